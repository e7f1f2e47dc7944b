package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMeasurementMarshalJSONUsesCamelCaseAndEpochMillis(t *testing.T) {
	ts := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	m := Measurement{
		BSSID:            "aa:bb:cc:dd:ee:ff",
		MeasurementTS:    ts,
		EventID:          "evt-1",
		Lat:              37.1,
		Lon:              -122.1,
		Accuracy:         5.0,
		SSID:             "net",
		RSSI:             -60,
		ConnectionStatus: ConnectionStatusScan,
		QualityScore:     0.8,
		IngestionTS:      ts.Add(time.Second),
	}

	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}

	if _, ok := decoded["BSSID"]; ok {
		t.Errorf("expected no PascalCase key BSSID in output: %s", out)
	}
	if v, ok := decoded["bssid"]; !ok || v != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("expected camelCase bssid key, got %s", out)
	}

	wantMs := float64(ts.UnixMilli())
	if v, ok := decoded["measurementTs"]; !ok || v != wantMs {
		t.Errorf("expected measurementTs as epoch-ms number %v, got %v (%s)", wantMs, v, out)
	}
	if v, ok := decoded["ingestionTs"]; !ok || v != float64(ts.Add(time.Second).UnixMilli()) {
		t.Errorf("expected ingestionTs as epoch-ms number, got %v (%s)", v, out)
	}
}

func TestPublishRecordIsNewlineTerminatedByCaller(t *testing.T) {
	m := Measurement{BSSID: "aa:bb:cc:dd:ee:ff"}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if out[len(out)-1] == '\n' {
		t.Errorf("MarshalJSON itself should not embed the trailing newline, the publisher appends it")
	}
}
