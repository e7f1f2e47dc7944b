// Package config loads the ingest daemon's INI-style configuration file
// via gcfg, in the idiom of gravwell's own config.LoadConfigFile
// (ingest/config/loader.go): size-capped read, then gcfg.ReadStringInto
// against a plain struct.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gravwell/gcfg"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

const maxConfigSize int64 = 4 * 1024 * 1024

var ErrConfigFileTooLarge = errors.New("config file is too large")

// Global holds the process-wide settings shared by every component.
type Global struct {
	Log_Level        string
	Log_File         string
	Shutdown_Deadline_Seconds int
}

// Queue holds the SQS connection and polling tunables.
type Queue struct {
	Queue_URL           string
	Region              string
	Wait_Time_Seconds   int64
	Max_Messages        int64
	Visibility_Timeout_Seconds int64
	Concurrency         int64
}

// ObjectStore holds the S3 connection tunables.
type ObjectStore struct {
	Region           string
	Endpoint         string
	Force_Path_Style bool
	Max_Retries      int
}

// Decode holds the streaming decoder's size caps.
type Decode struct {
	Max_Object_Bytes   int64
	Max_Inflated_Bytes int64
	Max_Line_Bytes     int
}

// Filter holds the validator/transformer's tunables.
type Filter struct {
	RSSI_Min                  int
	RSSI_Max                  int
	Max_Location_Accuracy_Meters float64
	Connected_Weight          float64
	Scan_Weight               float64
	Low_Link_Speed_Weight     float64
}

// MobileHotspot holds the OUI-blacklist detection settings.
type MobileHotspot struct {
	Enabled bool
	Action  string
	OUI     []string
}

// Publish holds the Firehose delivery-stream and batching tunables.
type Publish struct {
	Stream_Name          string
	Region               string
	Max_Records          int
	Max_Bytes            int
	Max_Record_Bytes     int
	Flush_Period_Seconds int
	Max_Retries          int
	Base_Backoff_Ms      int
}

// Metrics holds the metrics HTTP listener settings.
type Metrics struct {
	Listen_Address string
}

// Config is the whole process configuration, read from one INI file.
type Config struct {
	Global        Global
	Queue         Queue
	ObjectStore   ObjectStore
	Decode        Decode
	Filter        Filter
	MobileHotspot MobileHotspot
	Publish       Publish
	Metrics       Metrics
}

func (c Config) withDefaults() Config {
	if c.Global.Shutdown_Deadline_Seconds <= 0 {
		c.Global.Shutdown_Deadline_Seconds = 30
	}
	if c.Queue.Wait_Time_Seconds <= 0 {
		c.Queue.Wait_Time_Seconds = 20
	}
	if c.Queue.Max_Messages <= 0 {
		c.Queue.Max_Messages = 10
	}
	if c.Queue.Visibility_Timeout_Seconds <= 0 {
		c.Queue.Visibility_Timeout_Seconds = 60
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 4
	}
	if c.Filter.RSSI_Min == 0 && c.Filter.RSSI_Max == 0 {
		c.Filter.RSSI_Min, c.Filter.RSSI_Max = -100, 0
	}
	if c.Filter.Max_Location_Accuracy_Meters == 0 {
		c.Filter.Max_Location_Accuracy_Meters = 150
	}
	if c.Filter.Connected_Weight == 0 {
		c.Filter.Connected_Weight = 2.0
	}
	if c.Filter.Scan_Weight == 0 {
		c.Filter.Scan_Weight = 1.0
	}
	if c.Filter.Low_Link_Speed_Weight == 0 {
		c.Filter.Low_Link_Speed_Weight = 1.5
	}
	if c.Decode.Max_Object_Bytes <= 0 {
		c.Decode.Max_Object_Bytes = 5_000_000_000
	}
	if c.Decode.Max_Inflated_Bytes <= 0 {
		c.Decode.Max_Inflated_Bytes = 500_000_000
	}
	if c.Publish.Max_Records <= 0 {
		c.Publish.Max_Records = 500
	}
	if c.Publish.Max_Bytes <= 0 {
		c.Publish.Max_Bytes = 4 * 1024 * 1024
	}
	if c.Publish.Max_Record_Bytes <= 0 {
		c.Publish.Max_Record_Bytes = 1000 * 1024
	}
	if c.Publish.Flush_Period_Seconds <= 0 {
		c.Publish.Flush_Period_Seconds = 5
	}
	if c.Publish.Max_Retries <= 0 {
		c.Publish.Max_Retries = 3
	}
	if c.Publish.Base_Backoff_Ms <= 0 {
		c.Publish.Base_Backoff_Ms = 1000
	}
	if c.Metrics.Listen_Address == "" {
		c.Metrics.Listen_Address = "127.0.0.1:9090"
	}
	return c
}

// Verify checks the config for required fields and internal
// consistency, mirroring gravwell's verifyConfig.
func (c Config) Verify() error {
	if c.Queue.Queue_URL == "" {
		return errors.New("missing Queue.Queue-URL")
	}
	if c.Queue.Region == "" {
		return errors.New("missing Queue.Region")
	}
	if c.ObjectStore.Region == "" {
		return errors.New("missing ObjectStore.Region")
	}
	if c.Publish.Stream_Name == "" {
		return errors.New("missing Publish.Stream-Name")
	}
	if c.Publish.Region == "" {
		return errors.New("missing Publish.Region")
	}
	if c.MobileHotspot.Enabled {
		switch model.HotspotAction(c.MobileHotspot.Action) {
		case model.HotspotActionExclude, model.HotspotActionFlag, model.HotspotActionLogOnly:
		default:
			return fmt.Errorf("invalid MobileHotspot.Action %q", c.MobileHotspot.Action)
		}
	}
	return nil
}

// FlushPeriod returns the configured publish flush period as a
// time.Duration.
func (c Config) FlushPeriod() time.Duration {
	return time.Duration(c.Publish.Flush_Period_Seconds) * time.Second
}

// BaseBackoff returns the configured retry backoff base as a
// time.Duration.
func (c Config) BaseBackoff() time.Duration {
	return time.Duration(c.Publish.Base_Backoff_Ms) * time.Millisecond
}

// ShutdownDeadline returns the configured graceful-shutdown deadline.
func (c Config) ShutdownDeadline() time.Duration {
	return time.Duration(c.Global.Shutdown_Deadline_Seconds) * time.Second
}

// OUIBlacklist turns the configured OUI list into the set shape the
// validator package expects.
func (c Config) OUIBlacklist() map[string]struct{} {
	set := make(map[string]struct{}, len(c.MobileHotspot.OUI))
	for _, oui := range c.MobileHotspot.OUI {
		set[oui] = struct{}{}
	}
	return set
}

// LoadFile reads and parses path, applying defaults and running Verify.
func LoadFile(path string) (Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return Config{}, err
	}
	if fi.Size() > maxConfigSize {
		return Config{}, ErrConfigFileTooLarge
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, fin); err != nil {
		return Config{}, err
	}

	var c Config
	if err := gcfg.ReadStringInto(&c, buf.String()); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	c = c.withDefaults()
	if err := c.Verify(); err != nil {
		return Config{}, err
	}
	return c, nil
}
