package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
[Queue]
Queue-URL=https://sqs.us-east-1.amazonaws.com/123456789012/wifi-scans
Region=us-east-1

[ObjectStore]
Region=us-east-1

[Publish]
Stream-Name=wifi-measurements
Region=us-east-1

[MobileHotspot]
Enabled=true
Action=EXCLUDE
OUI=AA:BB:CC
OUI=DD:EE:FF
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "ingestd.conf")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	p := writeTempConfig(t, sampleConfig)
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Queue.Max_Messages != 10 {
		t.Errorf("expected default Max_Messages 10, got %d", cfg.Queue.Max_Messages)
	}
	if cfg.Filter.Connected_Weight != 2.0 {
		t.Errorf("expected default connected weight 2.0, got %v", cfg.Filter.Connected_Weight)
	}
	if len(cfg.MobileHotspot.OUI) != 2 {
		t.Fatalf("expected 2 OUI entries, got %d: %v", len(cfg.MobileHotspot.OUI), cfg.MobileHotspot.OUI)
	}
	if _, ok := cfg.OUIBlacklist()["AA:BB:CC"]; !ok {
		t.Errorf("expected AA:BB:CC in the blacklist set")
	}
	if cfg.Publish.Max_Record_Bytes != 1000*1024 {
		t.Errorf("expected default Max_Record_Bytes 1000KiB, got %d", cfg.Publish.Max_Record_Bytes)
	}
	if cfg.BaseBackoff() != time.Second {
		t.Errorf("expected default base backoff 1s, got %v", cfg.BaseBackoff())
	}
}

func TestLoadFileRejectsMissingRequiredFields(t *testing.T) {
	p := writeTempConfig(t, "[Queue]\nRegion=us-east-1\n")
	if _, err := LoadFile(p); err == nil {
		t.Fatal("expected Verify to reject a config with no Queue-URL")
	}
}

func TestLoadFileRejectsInvalidHotspotAction(t *testing.T) {
	p := writeTempConfig(t, sampleConfig+"\n[MobileHotspot]\nAction=BOGUS\n")
	if _, err := LoadFile(p); err == nil {
		t.Fatal("expected Verify to reject an invalid MobileHotspot.Action")
	}
}
