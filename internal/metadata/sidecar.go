package metadata

import (
	"encoding/json"
	"fmt"
)

// Sidecar is the nested JSON document written next to viewer-format images.
type Sidecar struct {
	CaptureTime string         `json:"capture_time"`
	Camera      SidecarCamera  `json:"camera"`
	Image       SidecarImage   `json:"image"`
	Location    SidecarLocale  `json:"location"`
	Software    SidecarRelease `json:"software"`
}

type SidecarCamera struct {
	Model       string   `json:"model"`
	ExposureUS  int      `json:"exposure_us"`
	Gain        int      `json:"gain"`
	Temperature *float64 `json:"temperature"`
}

type SidecarImage struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SidecarLocale struct {
	Timezone string `json:"timezone"`
}

type SidecarRelease struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Sidecar returns the JSON sidecar form.
func (m CaptureMetadata) Sidecar() Sidecar {
	return Sidecar{
		CaptureTime: m.FormatCaptureTime(),
		Camera: SidecarCamera{
			Model:       m.CameraModel,
			ExposureUS:  m.ExposureUS,
			Gain:        m.Gain,
			Temperature: m.Temperature,
		},
		Image:    SidecarImage{Width: m.Width, Height: m.Height},
		Location: SidecarLocale{Timezone: m.Timezone},
		Software: SidecarRelease{Name: m.SoftwareName, Version: m.SoftwareVersion},
	}
}

// MarshalSidecar encodes the sidecar with two-space indentation.
func (m CaptureMetadata) MarshalSidecar() ([]byte, error) {
	data, err := json.MarshalIndent(m.Sidecar(), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FromSidecar rebuilds metadata from a decoded sidecar.
func FromSidecar(s Sidecar) (CaptureMetadata, error) {
	captured, err := ParseTime(s.CaptureTime)
	if err != nil {
		return CaptureMetadata{}, fmt.Errorf("parse capture_time: %w", err)
	}
	return CaptureMetadata{
		CaptureTime:     captured,
		CameraModel:     s.Camera.Model,
		ExposureUS:      s.Camera.ExposureUS,
		Gain:            s.Camera.Gain,
		Temperature:     s.Camera.Temperature,
		Width:           s.Image.Width,
		Height:          s.Image.Height,
		Timezone:        s.Location.Timezone,
		SoftwareName:    s.Software.Name,
		SoftwareVersion: s.Software.Version,
	}, nil
}
