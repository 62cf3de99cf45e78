// Package metadata describes the provenance of one capture and renders it in
// the two forms the archive persists: FITS header cards and a JSON sidecar.
package metadata

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"analemma/internal/imaging"
)

// SoftwareName tags every persisted artifact.
const SoftwareName = "analemma-capture"

// SoftwareVersion is overridden at build time with -ldflags.
var SoftwareVersion = "0.1.0"

const (
	isoLayout       = "2006-01-02T15:04:05-07:00"
	isoMicroLayout  = "2006-01-02T15:04:05.000000-07:00"
	fitsImageType   = "LIGHT"
	fitsObject      = "SUN"
	microsPerSecond = 1_000_000
)

// CaptureMetadata is created once per successful capture and not modified afterwards.
type CaptureMetadata struct {
	CaptureTime     time.Time
	CameraModel     string
	ExposureUS      int
	Gain            int
	Temperature     *float64
	Width           int
	Height          int
	Timezone        string
	SoftwareName    string
	SoftwareVersion string
}

// Input carries the values a capture contributes to its metadata.
type Input struct {
	CaptureTime time.Time
	CameraModel string
	ExposureUS  int
	Gain        int
	Temperature *float64
	Timezone    string
}

// New builds metadata for frame. Width and height are taken from the frame so
// they always match the persisted pixels.
func New(in Input, frame imaging.Frame) (CaptureMetadata, error) {
	if in.CaptureTime.IsZero() {
		return CaptureMetadata{}, errors.New("capture time is required")
	}
	if strings.TrimSpace(in.Timezone) == "" {
		return CaptureMetadata{}, errors.New("timezone is required")
	}
	if err := frame.Validate(); err != nil {
		return CaptureMetadata{}, fmt.Errorf("frame: %w", err)
	}
	meta := CaptureMetadata{
		CaptureTime:     in.CaptureTime,
		CameraModel:     in.CameraModel,
		ExposureUS:      in.ExposureUS,
		Gain:            in.Gain,
		Width:           frame.Width,
		Height:          frame.Height,
		Timezone:        in.Timezone,
		SoftwareName:    SoftwareName,
		SoftwareVersion: SoftwareVersion,
	}
	if in.Temperature != nil {
		temp := *in.Temperature
		meta.Temperature = &temp
	}
	return meta, nil
}

// FormatCaptureTime renders the capture time as ISO 8601 with an explicit
// offset. Microseconds appear only when non-zero.
func (m CaptureMetadata) FormatCaptureTime() string {
	return FormatTime(m.CaptureTime)
}

// FormatTime renders t the way capture times are persisted.
func FormatTime(t time.Time) string {
	if t.Nanosecond()/1000 != 0 {
		return t.Format(isoMicroLayout)
	}
	return t.Format(isoLayout)
}

// ParseTime accepts the persisted ISO 8601 form.
func ParseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
}

// ExposureSeconds converts the exposure to seconds.
func (m CaptureMetadata) ExposureSeconds() float64 {
	return float64(m.ExposureUS) / microsPerSecond
}

// Software returns the "name version" provenance tag.
func (m CaptureMetadata) Software() string {
	return strings.TrimSpace(m.SoftwareName + " " + m.SoftwareVersion)
}

// FITSCards returns the header entries in write order. CCD-TEMP is present
// only when the sensor reported a temperature.
func (m CaptureMetadata) FITSCards() []imaging.Card {
	cards := []imaging.Card{
		{Name: "DATE-OBS", Value: m.FormatCaptureTime(), Comment: "Capture time"},
		{Name: "INSTRUME", Value: m.CameraModel, Comment: "Camera model"},
		{Name: "EXPTIME", Value: m.ExposureSeconds(), Comment: "Exposure time [s]"},
		{Name: "GAIN", Value: m.Gain, Comment: "Sensor gain"},
		{Name: "IMAGETYP", Value: fitsImageType},
		{Name: "OBJECT", Value: fitsObject},
		{Name: "TIMESYS", Value: m.Timezone, Comment: "Timezone of DATE-OBS"},
		{Name: "SWCREATE", Value: m.Software()},
	}
	if m.Temperature != nil {
		cards = append(cards, imaging.Card{Name: "CCD-TEMP", Value: *m.Temperature, Comment: "Sensor temperature [C]"})
	}
	return cards
}

// FromFITSCards rebuilds metadata from a FITS header read back from the
// archive. Width and height come from the decoded data unit.
func FromFITSCards(cards []imaging.Card, width, height int) (CaptureMetadata, error) {
	str := func(name string) string {
		if card, ok := imaging.LookupCard(cards, name); ok {
			if s, ok := card.Value.(string); ok {
				return strings.TrimSpace(s)
			}
		}
		return ""
	}
	num := func(name string) (float64, bool) {
		card, ok := imaging.LookupCard(cards, name)
		if !ok {
			return 0, false
		}
		return imaging.CardFloat(card.Value)
	}

	captured, err := ParseTime(str("DATE-OBS"))
	if err != nil {
		return CaptureMetadata{}, fmt.Errorf("parse DATE-OBS: %w", err)
	}
	meta := CaptureMetadata{
		CaptureTime: captured,
		CameraModel: str("INSTRUME"),
		Width:       width,
		Height:      height,
		Timezone:    str("TIMESYS"),
	}
	if exp, ok := num("EXPTIME"); ok {
		meta.ExposureUS = int(math.Round(exp * microsPerSecond))
	}
	if gain, ok := num("GAIN"); ok {
		meta.Gain = int(gain)
	}
	if temp, ok := num("CCD-TEMP"); ok {
		meta.Temperature = &temp
	}
	software := str("SWCREATE")
	if idx := strings.LastIndex(software, " "); idx > 0 {
		meta.SoftwareName, meta.SoftwareVersion = software[:idx], software[idx+1:]
	} else {
		meta.SoftwareName = software
	}
	return meta, nil
}
