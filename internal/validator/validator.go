// Package validator holds the pure, stateless per-field validation
// predicates the Transformer runs over every candidate measurement.
package validator

import (
	"regexp"
	"strings"
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

// Config carries the tunables that change what "valid" means, all
// sourced from the process Config (see internal/config).
type Config struct {
	RSSIMin           int
	RSSIMax           int
	MaxLocationAccuracy float64
	MobileHotspot     MobileHotspotConfig
}

// MobileHotspotConfig controls the OUI-blacklist check.
type MobileHotspotConfig struct {
	Enabled       bool
	OUIBlacklist  map[string]struct{}
	Action        model.HotspotAction
}

// Result is the {ok, reason?} pair every predicate returns.
type Result struct {
	OK     bool
	Reason string
}

func ok() Result                  { return Result{OK: true} }
func fail(reason string) Result   { return Result{OK: false, Reason: reason} }

var bssidGrammar = regexp.MustCompile(`^([0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}$`)

const (
	allZeroBSSID = "00:00:00:00:00:00"
	allFFBSSID   = "ff:ff:ff:ff:ff:ff"
)

// CanonicalBSSID lowercases and colon-separates a BSSID string,
// accepting either ':' or '-' as the original separator. Returns ok=false
// if the input does not match the grammar at all.
func CanonicalBSSID(s string) (string, bool) {
	if s == "" || !bssidGrammar.MatchString(s) {
		return "", false
	}
	lower := strings.ToLower(s)
	lower = strings.ReplaceAll(lower, "-", ":")
	return lower, true
}

// ValidateBSSID fails if s is empty/malformed or a reserved all-zero /
// all-ff address, after canonicalization.
func ValidateBSSID(s string) Result {
	canon, ok2 := CanonicalBSSID(s)
	if !ok2 {
		return fail("invalid bssid format")
	}
	if canon == allZeroBSSID || canon == allFFBSSID {
		return fail("reserved bssid")
	}
	return ok()
}

// ValidateRSSI fails if r is nil or outside [rssiMin, rssiMax].
func ValidateRSSI(r *int, rssiMin, rssiMax int) Result {
	if r == nil {
		return fail("missing rssi")
	}
	if *r < rssiMin || *r > rssiMax {
		return fail("rssi out of range")
	}
	return ok()
}

// ValidateLocation fails if loc is nil, its coordinates are out of
// range, or its accuracy exceeds accuracyMax.
func ValidateLocation(loc *model.Location, accuracyMax float64) Result {
	if loc == nil {
		return fail("missing location")
	}
	if loc.Lat < -90 || loc.Lat > 90 {
		return fail("latitude out of range")
	}
	if loc.Lon < -180 || loc.Lon > 180 {
		return fail("longitude out of range")
	}
	if loc.Accuracy > accuracyMax {
		return fail("accuracy exceeds threshold")
	}
	return ok()
}

// ValidateTimestamp fails if ts is the zero value, in the future, or
// older than one year.
func ValidateTimestamp(ts time.Time, now time.Time) Result {
	if ts.IsZero() {
		return fail("missing timestamp")
	}
	if ts.After(now) {
		return fail("timestamp in the future")
	}
	if ts.Before(now.AddDate(-1, 0, 0)) {
		return fail("timestamp older than one year")
	}
	return ok()
}

// HotspotCheck is what DetectMobileHotspot returns.
type HotspotCheck struct {
	Checked  bool
	Detected bool
	OUI      string
	Action   model.HotspotAction
}

// DetectMobileHotspot compares the upper 3 octets of a canonical BSSID
// against the configured OUI blacklist. When disabled it never alters
// flow (Checked=false).
func DetectMobileHotspot(canonicalBSSID string, cfg MobileHotspotConfig) HotspotCheck {
	if !cfg.Enabled {
		return HotspotCheck{Checked: false}
	}
	oui := ouiOf(canonicalBSSID)
	_, blacklisted := cfg.OUIBlacklist[oui]
	return HotspotCheck{
		Checked:  true,
		Detected: blacklisted,
		OUI:      oui,
		Action:   cfg.Action,
	}
}

func ouiOf(canonicalBSSID string) string {
	parts := strings.SplitN(canonicalBSSID, ":", 4)
	if len(parts) < 3 {
		return ""
	}
	return strings.ToUpper(strings.Join(parts[:3], ":"))
}
