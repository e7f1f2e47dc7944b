package transform

import (
	"testing"
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
	"github.com/rezhaque35/wifi-location-data-pipeline/internal/validator"
)

func intp(v int) *int          { return &v }
func floatp(v float64) *float64 { return &v }

func sampleLocation(accuracy float64) *model.Location {
	return &model.Location{Lat: 40.6768816, Lon: -74.416391, Accuracy: accuracy}
}

func baseCtx() model.ProcessingContext {
	return model.ProcessingContext{BatchID: "batch-1", StreamName: "stream", ObjectKey: "k"}
}

func baseCfg() Config {
	return Config{MaxLocationAccuracy: 150}
}

// S1: happy path — 1 CONNECTED + 1 SCAN record emitted.
func TestTransformHappyPath(t *testing.T) {
	now := time.Now()
	bundle := &model.ScanBundle{
		ConnectedEvents: []model.ConnectedEvent{{
			TS:      now.Add(-time.Minute),
			EventID: "ev1",
			WifiInfo: &model.WifiConnectedInfo{
				BSSID:     "b8:f8:53:c0:1e:ff",
				SSID:      "home",
				RSSI:      intp(-58),
				LinkSpeed: intp(351),
			},
			Location: sampleLocation(100.0),
		}},
		ScanResults: []model.ScanResult{{
			TS:       now.Add(-time.Minute),
			Location: sampleLocation(100.0),
			Entries: []model.ScanResultEntry{{
				BSSID: "aa:bb:cc:dd:ee:ff",
				SSID:  "neighbor",
				RSSI:  intp(-65),
			}},
		}},
	}

	var got []model.Measurement
	if err := Transform(bundle, baseCtx(), baseCfg(), now, nil, func(m model.Measurement) {
		got = append(got, m)
	}); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(got))
	}
	if got[0].ConnectionStatus != model.ConnectionStatusConnected || got[0].QualityWeight != 2.0 {
		t.Errorf("unexpected connected record: %+v", got[0])
	}
	if got[1].ConnectionStatus != model.ConnectionStatusScan || got[1].QualityWeight != 1.0 {
		t.Errorf("unexpected scan record: %+v", got[1])
	}
	if got[1].Connection != nil {
		t.Errorf("expected nil connection block on scan record, got %+v", got[1].Connection)
	}
	if got[0].ProcessingBatchID != got[1].ProcessingBatchID {
		t.Error("expected both records to share the processing batch id")
	}
}

// S2: filter reject — over-threshold accuracy drops the record but the
// object still completes (no error, zero emissions).
func TestTransformFilterReject(t *testing.T) {
	now := time.Now()
	bundle := &model.ScanBundle{
		ConnectedEvents: []model.ConnectedEvent{{
			TS:       now.Add(-time.Minute),
			WifiInfo: &model.WifiConnectedInfo{BSSID: "b8:f8:53:c0:1e:ff", SSID: "home", RSSI: intp(-58)},
			Location: sampleLocation(300.0),
		}},
	}
	var got []model.Measurement
	counters := Counters{}
	if err := Transform(bundle, baseCtx(), baseCfg(), now, counters, func(m model.Measurement) {
		got = append(got, m)
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected 0 measurements, got %d", len(got))
	}
	if counters[RejectLocation] != 1 {
		t.Errorf("expected 1 location reject, got %d", counters[RejectLocation])
	}
}

// S3: low-link-speed adjustment.
func TestTransformLowLinkSpeedWeight(t *testing.T) {
	now := time.Now()
	bundle := &model.ScanBundle{
		ConnectedEvents: []model.ConnectedEvent{{
			TS: now.Add(-time.Minute),
			WifiInfo: &model.WifiConnectedInfo{
				BSSID:     "b8:f8:53:c0:1e:ff",
				SSID:      "home",
				RSSI:      intp(-45),
				LinkSpeed: intp(25),
			},
			Location: sampleLocation(50),
		}},
	}
	var got []model.Measurement
	if err := Transform(bundle, baseCtx(), baseCfg(), now, nil, func(m model.Measurement) {
		got = append(got, m)
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].QualityWeight != 1.5 {
		t.Fatalf("expected single record with weight 1.5, got %+v", got)
	}
}

// S4: hotspot EXCLUDE action drops the record entirely.
func TestTransformHotspotExclude(t *testing.T) {
	now := time.Now()
	bundle := &model.ScanBundle{
		ConnectedEvents: []model.ConnectedEvent{{
			TS:       now.Add(-time.Minute),
			WifiInfo: &model.WifiConnectedInfo{BSSID: "00:11:22:aa:bb:cc", SSID: "hotspot", RSSI: intp(-50)},
			Location: sampleLocation(50),
		}},
	}
	cfg := baseCfg()
	cfg.MobileHotspot = validator.MobileHotspotConfig{
		Enabled:      true,
		OUIBlacklist: map[string]struct{}{"00:11:22": {}},
		Action:       model.HotspotActionExclude,
	}
	var got []model.Measurement
	if err := Transform(bundle, baseCtx(), cfg, now, nil, func(m model.Measurement) {
		got = append(got, m)
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected exclude to drop the record, got %d", len(got))
	}
}

func TestTransformNilBundleIsInvalidInput(t *testing.T) {
	if err := Transform(nil, baseCtx(), baseCfg(), time.Now(), nil, func(model.Measurement) {}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTransformEmptyListsYieldNoError(t *testing.T) {
	if err := Transform(&model.ScanBundle{}, baseCtx(), baseCfg(), time.Now(), nil, func(model.Measurement) {
		t.Fatal("did not expect any emission")
	}); err != nil {
		t.Fatal(err)
	}
}

func TestQualityScoreMonotonic(t *testing.T) {
	low := QualityScore(1.0, -90, 140)
	high := QualityScore(2.0, -40, 10)
	if !(low < high) {
		t.Errorf("expected stronger signal/weight/accuracy to score higher: low=%v high=%v", low, high)
	}
	if QualityScore(2.0, -40, 10) != QualityScore(2.0, -40, 10) {
		t.Error("expected QualityScore to be stable across repeated calls")
	}
}
