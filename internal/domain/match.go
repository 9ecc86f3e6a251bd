package domain

import (
	"fmt"
	"log/slog"
	"regexp"
)

var (
	fipsRe = regexp.MustCompile(`^\d{6}$`)
	ugcRe  = regexp.MustCompile(`^[A-Z]{2}\d{3}$`)
)

// County is one operator-configured watch-list entry. FIPS may be empty;
// UGC is always required.
type County struct {
	FIPS  string `json:"fips"`
	UGC   string `json:"ugc"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Validate checks the code formats: FIPS is 6 digits when present, UGC is
// 2 letters followed by 3 digits.
func (c County) Validate() error {
	if c.FIPS != "" && !fipsRe.MatchString(c.FIPS) {
		return fmt.Errorf("invalid FIPS code %q for county %q", c.FIPS, c.Name)
	}
	if !ugcRe.MatchString(c.UGC) {
		return fmt.Errorf("invalid UGC code %q for county %q", c.UGC, c.Name)
	}
	return nil
}

// Watchlist is the read-only lookup table the matcher runs against: the
// configured counties plus derived sets of every watched FIPS and UGC code.
type Watchlist struct {
	counties []County
	fips     map[string]bool
	ugc      map[string]bool
}

// NewWatchlist builds a Watchlist from the configured counties. Entries with
// malformed codes are logged as warnings and kept — they simply never match.
func NewWatchlist(counties []County, logger *slog.Logger) *Watchlist {
	w := &Watchlist{
		counties: counties,
		fips:     make(map[string]bool, len(counties)),
		ugc:      make(map[string]bool, len(counties)),
	}
	for _, c := range counties {
		if err := c.Validate(); err != nil {
			logger.Warn("county validation warning", "error", err)
		}
		if c.FIPS != "" {
			w.fips[c.FIPS] = true
		}
		if c.UGC != "" {
			w.ugc[c.UGC] = true
		}
	}
	return w
}

// Len reports the number of configured counties.
func (w *Watchlist) Len() int { return len(w.counties) }

// MatchAlerts filters a batch of newly-inserted alerts down to the ones
// touching a watched county and enriches each with that county's display
// fields. Alerts with no candidate county are dropped from the result; they
// remain stored for expiry GC but are never notified. Input order is kept.
func (w *Watchlist) MatchAlerts(alerts []Alert) []Alert {
	var matched []Alert
	for _, alert := range alerts {
		county, ok := w.matchOne(alert)
		if !ok {
			continue
		}
		alert.CountyName = county.Name
		alert.CountyState = county.State
		matched = append(matched, alert)
	}
	return matched
}

// matchOne intersects the alert's codes with the watched sets and resolves
// the candidate counties. Watched counties are geographically disjoint by
// assumption, so the first candidate wins.
func (w *Watchlist) matchOne(alert Alert) (County, bool) {
	var candidates []County

	for _, code := range alert.UGCCodes {
		if !w.ugc[code] {
			continue
		}
		for _, c := range w.counties {
			if c.UGC == code {
				candidates = append(candidates, c)
			}
		}
	}
	for _, code := range alert.FIPSCodes {
		if !w.fips[code] {
			continue
		}
		for _, c := range w.counties {
			if c.FIPS == code {
				candidates = append(candidates, c)
			}
		}
	}

	if len(candidates) == 0 {
		return County{}, false
	}
	return candidates[0], true
}
