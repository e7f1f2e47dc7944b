package model

import (
	"encoding/json"
	"time"
)

// connectionWire is the outbound, camelCase shape of ConnectionBlock.
type connectionWire struct {
	LinkSpeed          *int   `json:"linkSpeed,omitempty"`
	ChannelWidth       *int   `json:"channelWidth,omitempty"`
	CenterFreq0        *int   `json:"centerFreq0,omitempty"`
	CenterFreq1        *int   `json:"centerFreq1,omitempty"`
	Capabilities       string `json:"capabilities,omitempty"`
	Is80211mcResponder bool   `json:"is80211mcResponder"`
	IsPasspointNetwork bool   `json:"isPasspointNetwork"`
	IsCaptive          bool   `json:"isCaptive"`
	NumScanResults     int    `json:"numScanResults"`
}

// measurementWire is the record shape written to the delivery stream:
// camelCase keys, stable field order, epoch-millisecond timestamps for
// measurementTs/ingestionTs, ISO-8601 for the human-readable locTs.
type measurementWire struct {
	BSSID         string `json:"bssid"`
	MeasurementTS int64  `json:"measurementTs"`
	EventID       string `json:"eventId"`

	OSVersion      string `json:"osVersion,omitempty"`
	Model          string `json:"model,omitempty"`
	Product        string `json:"product,omitempty"`
	Manufacturer   string `json:"manufacturer,omitempty"`
	OSName         string `json:"osName,omitempty"`
	OSBuild        string `json:"osBuild,omitempty"`
	AppNameVersion string `json:"appNameVersion,omitempty"`

	Lat      float64    `json:"lat"`
	Lon      float64    `json:"lon"`
	Altitude *float64   `json:"altitude,omitempty"`
	Accuracy float64    `json:"accuracy"`
	LocTS    *time.Time `json:"locTs,omitempty"`
	Provider string     `json:"provider,omitempty"`
	Source   string     `json:"source,omitempty"`

	SSID      string `json:"ssid"`
	RSSI      int    `json:"rssi"`
	Frequency *int   `json:"frequency,omitempty"`

	Connection *connectionWire `json:"connection,omitempty"`

	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	QualityWeight    float64          `json:"qualityWeight"`
	QualityScore     float64          `json:"qualityScore"`
	HotspotFlagged   bool             `json:"hotspotFlagged"`

	IngestionTS       int64  `json:"ingestionTs"`
	ProcessingBatchID string `json:"processingBatchId"`
	DataVersion       string `json:"dataVersion,omitempty"`
}

// MarshalJSON emits the outbound delivery-stream record shape rather
// than Go's default PascalCase field dump: camelCase keys, epoch-ms
// integers for measurementTs/ingestionTs, ISO-8601 for locTs.
func (m Measurement) MarshalJSON() ([]byte, error) {
	w := measurementWire{
		BSSID:         m.BSSID,
		MeasurementTS: m.MeasurementTS.UnixMilli(),
		EventID:       m.EventID,

		OSVersion:      m.OSVersion,
		Model:          m.Model,
		Product:        m.Product,
		Manufacturer:   m.Manufacturer,
		OSName:         m.OSName,
		OSBuild:        m.OSBuild,
		AppNameVersion: m.AppNameVersion,

		Lat:      m.Lat,
		Lon:      m.Lon,
		Altitude: m.Altitude,
		Accuracy: m.Accuracy,
		LocTS:    m.LocTS,
		Provider: m.Provider,
		Source:   m.Source,

		SSID:      m.SSID,
		RSSI:      m.RSSI,
		Frequency: m.Frequency,

		Connection: connectionWireFrom(m.Connection),

		ConnectionStatus: m.ConnectionStatus,
		QualityWeight:    m.QualityWeight,
		QualityScore:     m.QualityScore,
		HotspotFlagged:   m.HotspotFlagged,

		IngestionTS:       m.IngestionTS.UnixMilli(),
		ProcessingBatchID: m.ProcessingBatchID,
		DataVersion:       m.DataVersion,
	}
	return json.Marshal(w)
}

func connectionWireFrom(c *ConnectionBlock) *connectionWire {
	if c == nil {
		return nil
	}
	return &connectionWire{
		LinkSpeed:          c.LinkSpeed,
		ChannelWidth:       c.ChannelWidth,
		CenterFreq0:        c.CenterFreq0,
		CenterFreq1:        c.CenterFreq1,
		Capabilities:       c.Capabilities,
		Is80211mcResponder: c.Is80211mcResponder,
		IsPasspointNetwork: c.IsPasspointNetwork,
		IsCaptive:          c.IsCaptive,
		NumScanResults:     c.NumScanResults,
	}
}
