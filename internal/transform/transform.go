// Package transform implements the validation + filter + emission
// engine: turning one decoded ScanBundle into zero or more normalized
// Measurement records.
package transform

import (
	"errors"
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/validator"
)

// ErrInvalidInput is returned when Transform is called with a nil bundle.
var ErrInvalidInput = errors.New("invalid input: nil scan bundle")

// Config carries every filter/quality tunable, sourced from the process
// Config.
type Config struct {
	RSSIMin             int
	RSSIMax             int
	MaxLocationAccuracy float64
	ConnectedWeight     float64
	ScanWeight          float64
	LowLinkSpeedWeight  float64
	MobileHotspot       validator.MobileHotspotConfig
}

func (c Config) withDefaults() Config {
	if c.RSSIMin == 0 && c.RSSIMax == 0 {
		c.RSSIMin, c.RSSIMax = -100, 0
	}
	if c.MaxLocationAccuracy == 0 {
		c.MaxLocationAccuracy = 150
	}
	if c.ConnectedWeight == 0 {
		c.ConnectedWeight = 2.0
	}
	if c.ScanWeight == 0 {
		c.ScanWeight = 1.0
	}
	if c.LowLinkSpeedWeight == 0 {
		c.LowLinkSpeedWeight = 1.5
	}
	return c
}

// RejectReason enumerates the validator/filter counters incremented
// for each skipped candidate record (§7 FilterReject).
type RejectReason string

const (
	RejectMissingWifiOrLocation RejectReason = "missing_wifi_or_location"
	RejectBSSID                 RejectReason = "bssid"
	RejectRSSI                   RejectReason = "rssi"
	RejectLocation               RejectReason = "location"
	RejectTimestamp              RejectReason = "timestamp"
	RejectSSID                   RejectReason = "ssid"
	RejectHotspotExcluded        RejectReason = "hotspot_excluded"
)

// Counters tallies filter-reject reasons for one object.
type Counters map[RejectReason]int

func (c Counters) inc(r RejectReason) { c[r]++ }

// Transform runs the Transformer over one ScanBundle, invoking emit for
// each Measurement produced in encounter order. Counters accumulates
// reject reasons; pass a fresh Counters per call if per-object
// attribution matters.
func Transform(bundle *model.ScanBundle, ctx model.ProcessingContext, cfg Config, now time.Time, counters Counters, emit func(model.Measurement)) error {
	if bundle == nil {
		return ErrInvalidInput
	}
	cfg = cfg.withDefaults()
	if counters == nil {
		counters = Counters{}
	}

	for _, ev := range bundle.ConnectedEvents {
		if m, ok := transformConnected(ev, bundle.DeviceMetadata, ctx, cfg, now, counters); ok {
			emit(m)
		}
	}

	for _, sr := range bundle.ScanResults {
		if sr.Location == nil {
			counters.inc(RejectMissingWifiOrLocation)
			continue
		}
		for _, entry := range sr.Entries {
			if m, ok := transformScanEntry(entry, sr, bundle.DeviceMetadata, ctx, cfg, now, counters); ok {
				emit(m)
			}
		}
	}

	return nil
}

func transformConnected(ev model.ConnectedEvent, dev model.DeviceMetadata, ctx model.ProcessingContext, cfg Config, now time.Time, counters Counters) (model.Measurement, bool) {
	var zero model.Measurement
	if ev.WifiInfo == nil || ev.Location == nil {
		counters.inc(RejectMissingWifiOrLocation)
		return zero, false
	}

	bssid, ok := validator.CanonicalBSSID(ev.WifiInfo.BSSID)
	if !ok {
		counters.inc(RejectBSSID)
		return zero, false
	}
	if r := validator.ValidateBSSID(bssid); !r.OK {
		counters.inc(RejectBSSID)
		return zero, false
	}
	if r := validator.ValidateRSSI(ev.WifiInfo.RSSI, cfg.RSSIMin, cfg.RSSIMax); !r.OK {
		counters.inc(RejectRSSI)
		return zero, false
	}
	if r := validator.ValidateLocation(ev.Location, cfg.MaxLocationAccuracy); !r.OK {
		counters.inc(RejectLocation)
		return zero, false
	}
	if r := validator.ValidateTimestamp(ev.TS, now); !r.OK {
		counters.inc(RejectTimestamp)
		return zero, false
	}
	ssid, ssidOK := validator.NormalizeSSID(ev.WifiInfo.SSID)
	if !ssidOK {
		counters.inc(RejectSSID)
		return zero, false
	}

	hotspot := validator.DetectMobileHotspot(bssid, cfg.MobileHotspot)
	if hotspot.Checked && hotspot.Detected && hotspot.Action == model.HotspotActionExclude {
		counters.inc(RejectHotspotExcluded)
		return zero, false
	}

	weight := cfg.ConnectedWeight
	if ev.WifiInfo.LinkSpeed != nil && ev.WifiInfo.RSSI != nil && *ev.WifiInfo.LinkSpeed < 50 && *ev.WifiInfo.RSSI > -50 {
		weight = cfg.LowLinkSpeedWeight
	}

	m := model.Measurement{
		BSSID:           bssid,
		MeasurementTS:   ev.TS,
		EventID:         ev.EventID,
		DeviceMetadata:  dev,
		Lat:             ev.Location.Lat,
		Lon:             ev.Location.Lon,
		Altitude:        ev.Location.Altitude,
		Accuracy:        ev.Location.Accuracy,
		LocTS:           ev.Location.TS,
		Provider:        ev.Location.Provider,
		Source:          ev.Location.Source,
		SSID:            ssid,
		RSSI:            *ev.WifiInfo.RSSI,
		Frequency:       ev.WifiInfo.Frequency,
		Connection: &model.ConnectionBlock{
			LinkSpeed:          ev.WifiInfo.LinkSpeed,
			ChannelWidth:       ev.WifiInfo.ChannelWidth,
			CenterFreq0:        ev.WifiInfo.CenterFreq0,
			CenterFreq1:        ev.WifiInfo.CenterFreq1,
			Capabilities:       ev.WifiInfo.Capabilities,
			Is80211mcResponder: ev.WifiInfo.Is80211mcResponder,
			IsPasspointNetwork: ev.WifiInfo.IsPasspointNetwork,
			IsCaptive:          ev.WifiInfo.IsCaptive,
			NumScanResults:     ev.WifiInfo.NumScanResults,
		},
		ConnectionStatus:  model.ConnectionStatusConnected,
		QualityWeight:     weight,
		HotspotFlagged:    hotspot.Checked && hotspot.Detected && hotspot.Action == model.HotspotActionFlag,
		IngestionTS:       now,
		ProcessingBatchID: ctx.BatchID,
		DataVersion:       dev.DataVersion,
	}
	m.QualityScore = QualityScore(weight, m.RSSI, m.Accuracy)
	return m, true
}

func transformScanEntry(entry model.ScanResultEntry, sr model.ScanResult, dev model.DeviceMetadata, ctx model.ProcessingContext, cfg Config, now time.Time, counters Counters) (model.Measurement, bool) {
	var zero model.Measurement

	bssid, ok := validator.CanonicalBSSID(entry.BSSID)
	if !ok {
		counters.inc(RejectBSSID)
		return zero, false
	}
	if r := validator.ValidateBSSID(bssid); !r.OK {
		counters.inc(RejectBSSID)
		return zero, false
	}
	if r := validator.ValidateRSSI(entry.RSSI, cfg.RSSIMin, cfg.RSSIMax); !r.OK {
		counters.inc(RejectRSSI)
		return zero, false
	}
	if r := validator.ValidateLocation(sr.Location, cfg.MaxLocationAccuracy); !r.OK {
		counters.inc(RejectLocation)
		return zero, false
	}
	ts := sr.TS
	if entry.TS != nil {
		ts = *entry.TS
	}
	if r := validator.ValidateTimestamp(ts, now); !r.OK {
		counters.inc(RejectTimestamp)
		return zero, false
	}
	ssid, ssidOK := validator.NormalizeSSID(entry.SSID)
	if !ssidOK {
		counters.inc(RejectSSID)
		return zero, false
	}

	hotspot := validator.DetectMobileHotspot(bssid, cfg.MobileHotspot)
	if hotspot.Checked && hotspot.Detected && hotspot.Action == model.HotspotActionExclude {
		counters.inc(RejectHotspotExcluded)
		return zero, false
	}

	m := model.Measurement{
		BSSID:             bssid,
		MeasurementTS:     ts,
		DeviceMetadata:    dev,
		Lat:               sr.Location.Lat,
		Lon:               sr.Location.Lon,
		Altitude:          sr.Location.Altitude,
		Accuracy:          sr.Location.Accuracy,
		LocTS:             sr.Location.TS,
		Provider:          sr.Location.Provider,
		Source:            sr.Location.Source,
		SSID:              ssid,
		RSSI:              *entry.RSSI,
		Frequency:         entry.Frequency,
		Connection:        nil,
		ConnectionStatus:  model.ConnectionStatusScan,
		QualityWeight:     cfg.ScanWeight,
		HotspotFlagged:    hotspot.Checked && hotspot.Detected && hotspot.Action == model.HotspotActionFlag,
		IngestionTS:       now,
		ProcessingBatchID: ctx.BatchID,
		DataVersion:       dev.DataVersion,
	}
	m.QualityScore = QualityScore(m.QualityWeight, m.RSSI, m.Accuracy)
	return m, true
}
