package decode

import (
	"time"

	"github.com/rezhaque35/wifi-location-data-pipeline/internal/model"
)

// The wire* types mirror the JSON shape of one inflated scan-bundle
// line, decoupled from the internal model so a schema drift in the
// upstream app does not ripple through the whole pipeline.

type wireLocation struct {
	Provider string   `json:"provider"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Altitude *float64 `json:"altitude"`
	Accuracy float64  `json:"accuracy"`
	TS       *int64   `json:"ts"`
	Source   string   `json:"source"`
	Speed    *float64 `json:"speed"`
	Bearing  *float64 `json:"bearing"`
}

func (w *wireLocation) toModel() *model.Location {
	if w == nil {
		return nil
	}
	loc := &model.Location{
		Provider: w.Provider,
		Lat:      w.Lat,
		Lon:      w.Lon,
		Altitude: w.Altitude,
		Accuracy: w.Accuracy,
		Source:   w.Source,
		Speed:    w.Speed,
		Bearing:  w.Bearing,
	}
	if w.TS != nil {
		t := msToTime(*w.TS)
		loc.TS = &t
	}
	return loc
}

type wireWifiConnectedInfo struct {
	BSSID              string `json:"bssid"`
	SSID               string `json:"ssid"`
	NumScanResults     int    `json:"numScanResults"`
	LinkSpeed          *int   `json:"linkSpeed"`
	Frequency          *int   `json:"frequency"`
	RSSI               *int   `json:"rssi"`
	Capabilities       string `json:"capabilities"`
	CenterFreq0        *int   `json:"centerFreq0"`
	CenterFreq1        *int   `json:"centerFreq1"`
	ChannelWidth       *int   `json:"channelWidth"`
	Is80211mcResponder bool   `json:"is80211mcResponder"`
	IsPasspointNetwork bool   `json:"isPasspointNetwork"`
	IsCaptive          bool   `json:"isCaptive"`
}

type wireConnectedEvent struct {
	TS       int64                  `json:"ts"`
	EventID  string                 `json:"eventId"`
	Type     string                 `json:"type"`
	DeviceID string                 `json:"deviceId"`
	WifiInfo *wireWifiConnectedInfo `json:"wifiInfo"`
	Location *wireLocation          `json:"location"`
}

func (w wireConnectedEvent) toModel() model.ConnectedEvent {
	ev := model.ConnectedEvent{
		TS:       msToTime(w.TS),
		EventID:  w.EventID,
		Type:     w.Type,
		DeviceID: w.DeviceID,
		Location: w.Location.toModel(),
	}
	if w.WifiInfo != nil {
		ev.WifiInfo = &model.WifiConnectedInfo{
			BSSID:              w.WifiInfo.BSSID,
			SSID:               w.WifiInfo.SSID,
			NumScanResults:     w.WifiInfo.NumScanResults,
			LinkSpeed:          w.WifiInfo.LinkSpeed,
			Frequency:          w.WifiInfo.Frequency,
			RSSI:               w.WifiInfo.RSSI,
			Capabilities:       w.WifiInfo.Capabilities,
			CenterFreq0:        w.WifiInfo.CenterFreq0,
			CenterFreq1:        w.WifiInfo.CenterFreq1,
			ChannelWidth:       w.WifiInfo.ChannelWidth,
			Is80211mcResponder: w.WifiInfo.Is80211mcResponder,
			IsPasspointNetwork: w.WifiInfo.IsPasspointNetwork,
			IsCaptive:          w.WifiInfo.IsCaptive,
		}
	}
	return ev
}

type wireScanEntry struct {
	SSID      string `json:"ssid"`
	BSSID     string `json:"bssid"`
	TS        *int64 `json:"ts"`
	RSSI      *int   `json:"rssi"`
	Frequency *int   `json:"frequency"`
}

type wireScanResult struct {
	TS       int64           `json:"ts"`
	Source   string          `json:"source"`
	Location *wireLocation   `json:"location"`
	Entries  []wireScanEntry `json:"entries"`
}

func (w wireScanResult) toModel() model.ScanResult {
	sr := model.ScanResult{
		TS:       msToTime(w.TS),
		Source:   w.Source,
		Location: w.Location.toModel(),
	}
	for _, e := range w.Entries {
		entry := model.ScanResultEntry{
			SSID:      e.SSID,
			BSSID:     e.BSSID,
			RSSI:      e.RSSI,
			Frequency: e.Frequency,
		}
		if e.TS != nil {
			t := msToTime(*e.TS)
			entry.TS = &t
		}
		sr.Entries = append(sr.Entries, entry)
	}
	return sr
}

type wireScanBundle struct {
	OSVersion       string               `json:"osVersion"`
	Model           string               `json:"model"`
	Product         string               `json:"product"`
	Manufacturer    string               `json:"manufacturer"`
	OSName          string               `json:"osName"`
	OSBuild         string               `json:"osBuild"`
	AppNameVersion  string               `json:"appNameVersion"`
	DataVersion     string               `json:"dataVersion"`
	ConnectedEvents []wireConnectedEvent `json:"connectedEvents"`
	ScanEvents      []wireConnectedEvent `json:"scanEvents"`
	ScanResults     []wireScanResult     `json:"scanResults"`
}

func (w wireScanBundle) toModel() *model.ScanBundle {
	b := &model.ScanBundle{
		DeviceMetadata: model.DeviceMetadata{
			OSVersion:      w.OSVersion,
			Model:          w.Model,
			Product:        w.Product,
			Manufacturer:   w.Manufacturer,
			OSName:         w.OSName,
			OSBuild:        w.OSBuild,
			AppNameVersion: w.AppNameVersion,
			DataVersion:    w.DataVersion,
		},
	}
	for _, e := range w.ConnectedEvents {
		b.ConnectedEvents = append(b.ConnectedEvents, e.toModel())
	}
	for _, e := range w.ScanEvents {
		b.ScanEvents = append(b.ScanEvents, e.toModel())
	}
	for _, r := range w.ScanResults {
		b.ScanResults = append(b.ScanResults, r.toModel())
	}
	return b
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
