package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/noaa-alert-relay/internal/domain"
	"github.com/couchcryptid/noaa-alert-relay/internal/pipeline"
)

func TestAlertTitle(t *testing.T) {
	a := domain.Alert{CountyName: "Hillsborough", CountyState: "FL"}
	assert.Equal(t, "Hillsborough (FL) Weather Alert", pipeline.AlertTitle(a))
}

func TestAlertMessage(t *testing.T) {
	tests := []struct {
		name  string
		alert domain.Alert
		want  string
	}{
		{
			name:  "plain title gets identity suffix",
			alert: domain.Alert{ID: "abcdefgh", Title: "Tornado Warning issued April 26"},
			want:  "Tornado Warning issued April 26 (defgh)",
		},
		{
			name:  "sub-events are spliced before issued",
			alert: domain.Alert{ID: "abcdefgh", Title: "Special Weather Statement issued April 26", Details: "Hail, Wind"},
			want:  "Special Weather Statement (Hail, Wind) issued April 26 (defgh)",
		},
		{
			name:  "sub-events without issued keyword leave title unchanged",
			alert: domain.Alert{ID: "abcdefgh", Title: "Special Weather Statement", Details: "Hail"},
			want:  "Special Weather Statement (defgh)",
		},
		{
			name:  "short identity is used whole",
			alert: domain.Alert{ID: "abc", Title: "Flood Warning issued"},
			want:  "Flood Warning issued (abc)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pipeline.AlertMessage(tt.alert))
		})
	}
}
