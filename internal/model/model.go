// Package model holds the data types shared across the ingestion
// pipeline: the inbound upload event, the decoded scan bundle, and the
// flat measurement record emitted downstream.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionStatus classifies how a Measurement was observed.
type ConnectionStatus string

const (
	ConnectionStatusConnected ConnectionStatus = "CONNECTED"
	ConnectionStatusScan      ConnectionStatus = "SCAN"
)

// HotspotAction is the disposition a mobile-hotspot OUI match carries.
type HotspotAction string

const (
	HotspotActionExclude HotspotAction = "EXCLUDE"
	HotspotActionFlag    HotspotAction = "FLAG"
	HotspotActionLogOnly HotspotAction = "LOG_ONLY"
)

// UploadEvent is the normalized form of one object-created notification
// pulled off the queue.
type UploadEvent struct {
	RegionHint string
	Bucket     string
	ObjectKey  string
	ObjectSize int64
	ETag       string
	Sequencer  string
	EventTime  time.Time
	RequestID  string
}

// StreamName derives the delivery-stream name from the object key: the
// path component immediately preceding the file segment. URL-percent
// decoding is applied per component first; a component that fails to
// decode is used verbatim.
func (e UploadEvent) StreamName() string {
	return streamNameFromKey(e.ObjectKey)
}

// DeviceMetadata is the device-identifying block carried by a scan
// bundle and copied onto every Measurement it produces.
type DeviceMetadata struct {
	OSVersion      string
	Model          string
	Product        string
	Manufacturer   string
	OSName         string
	OSBuild        string
	AppNameVersion string
	DataVersion    string
}

// Location is a single position fix.
type Location struct {
	Provider string
	Lat      float64
	Lon      float64
	Altitude *float64
	Accuracy float64
	TS       *time.Time
	Source   string
	Speed    *float64
	Bearing  *float64
}

// WifiConnectedInfo describes the access point a device is currently
// associated with.
type WifiConnectedInfo struct {
	BSSID                string
	SSID                 string
	NumScanResults       int
	LinkSpeed            *int
	Frequency            *int
	RSSI                 *int
	Capabilities         string
	CenterFreq0          *int
	CenterFreq1          *int
	ChannelWidth         *int
	Is80211mcResponder   bool
	IsPasspointNetwork   bool
	IsCaptive            bool
}

// ConnectedEvent is one "currently associated" observation.
type ConnectedEvent struct {
	TS       time.Time
	EventID  string
	Type     string
	DeviceID string
	WifiInfo *WifiConnectedInfo
	Location *Location
}

// ScanResultEntry is one access point observed within a passive scan.
type ScanResultEntry struct {
	SSID      string
	BSSID     string
	TS        *time.Time
	RSSI      *int
	Frequency *int
}

// ScanResult is one passive-scan pass, covering many observed APs.
type ScanResult struct {
	TS       time.Time
	Source   string
	Location *Location
	Entries  []ScanResultEntry
}

// ScanBundle is one decoded line of the ingested object: device
// metadata plus the connected/scan observations captured in that
// sample window.
type ScanBundle struct {
	DeviceMetadata
	ConnectedEvents []ConnectedEvent
	ScanEvents      []ConnectedEvent // decoded for completeness; Transform does not emit these
	ScanResults     []ScanResult
}

// ConnectionBlock carries the richer link metadata available only for
// CONNECTED records; it is nil for SCAN records.
type ConnectionBlock struct {
	LinkSpeed          *int
	ChannelWidth       *int
	CenterFreq0        *int
	CenterFreq1        *int
	Capabilities       string
	Is80211mcResponder bool
	IsPasspointNetwork bool
	IsCaptive          bool
	NumScanResults     int
}

// Measurement is the flat, normalized record emitted by the
// Transformer and shipped by the Publisher.
type Measurement struct {
	BSSID         string
	MeasurementTS time.Time
	EventID       string

	DeviceMetadata

	Lat      float64
	Lon      float64
	Altitude *float64
	Accuracy float64
	LocTS    *time.Time
	Provider string
	Source   string

	SSID      string
	RSSI      int
	Frequency *int

	Connection *ConnectionBlock

	ConnectionStatus ConnectionStatus
	QualityWeight    float64
	QualityScore     float64
	HotspotFlagged   bool

	IngestionTS       time.Time
	ProcessingBatchID string
	DataVersion       string
}

// ProcessingContext tags every measurement emitted while handling one
// object, so the batch it came from can be traced end to end.
type ProcessingContext struct {
	BatchID    string
	StreamName string
	ObjectKey  string
	StartTS    time.Time
}

// NewProcessingContext builds a context with a fresh UUIDv4 batch id.
func NewProcessingContext(streamName, objectKey string, start time.Time) ProcessingContext {
	return ProcessingContext{
		BatchID:    uuid.New().String(),
		StreamName: streamName,
		ObjectKey:  objectKey,
		StartTS:    start,
	}
}
