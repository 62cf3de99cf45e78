package metadata_test

import (
	"encoding/json"
	"testing"
	"time"

	"analemma/internal/imaging"
	"analemma/internal/metadata"
)

func tokyoNoon(t *testing.T) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	return time.Date(2025, 3, 21, 12, 0, 5, 0, loc)
}

func TestNewTakesDimensionsFromFrame(t *testing.T) {
	temp := -4.5
	meta, err := metadata.New(metadata.Input{
		CaptureTime: tokyoNoon(t),
		CameraModel: "ZWO ASI224MC",
		ExposureUS:  1500,
		Gain:        80,
		Temperature: &temp,
		Timezone:    "Asia/Tokyo",
	}, imaging.NewFrame(64, 48, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if meta.Width != 64 || meta.Height != 48 {
		t.Fatalf("unexpected dimensions %dx%d", meta.Width, meta.Height)
	}
	temp = 99
	if *meta.Temperature != -4.5 {
		t.Fatal("metadata temperature aliased caller value")
	}
	if got := meta.FormatCaptureTime(); got != "2025-03-21T12:00:05+09:00" {
		t.Fatalf("FormatCaptureTime = %q", got)
	}
	if meta.Software() != metadata.SoftwareName+" "+metadata.SoftwareVersion {
		t.Fatalf("unexpected software tag %q", meta.Software())
	}
}

func TestNewRejectsMissingFields(t *testing.T) {
	frame := imaging.NewFrame(4, 4, 1)
	if _, err := metadata.New(metadata.Input{Timezone: "UTC"}, frame); err == nil {
		t.Fatal("expected error for zero capture time")
	}
	if _, err := metadata.New(metadata.Input{CaptureTime: time.Now()}, frame); err == nil {
		t.Fatal("expected error for missing timezone")
	}
	if _, err := metadata.New(metadata.Input{CaptureTime: time.Now(), Timezone: "UTC"}, imaging.Frame{}); err == nil {
		t.Fatal("expected error for empty frame")
	}
}

func TestFITSCards(t *testing.T) {
	base := metadata.Input{CaptureTime: tokyoNoon(t), CameraModel: "ASI", ExposureUS: 2500, Gain: 7, Timezone: "Asia/Tokyo"}
	meta, err := metadata.New(base, imaging.NewFrame(2, 2, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cards := meta.FITSCards()
	want := map[string]any{
		"DATE-OBS": "2025-03-21T12:00:05+09:00",
		"INSTRUME": "ASI",
		"EXPTIME":  0.0025,
		"GAIN":     7,
		"IMAGETYP": "LIGHT",
		"OBJECT":   "SUN",
		"TIMESYS":  "Asia/Tokyo",
	}
	for name, value := range want {
		card, ok := imaging.LookupCard(cards, name)
		if !ok {
			t.Fatalf("card %s missing", name)
		}
		if card.Value != value {
			t.Fatalf("card %s = %v, want %v", name, card.Value, value)
		}
	}
	if _, ok := imaging.LookupCard(cards, "CCD-TEMP"); ok {
		t.Fatal("CCD-TEMP written without a temperature")
	}

	temp := 21.5
	base.Temperature = &temp
	meta, err = metadata.New(base, imaging.NewFrame(2, 2, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	card, ok := imaging.LookupCard(meta.FITSCards(), "CCD-TEMP")
	if !ok || card.Value != 21.5 {
		t.Fatalf("unexpected CCD-TEMP card %+v", card)
	}
}

func TestSidecarShape(t *testing.T) {
	meta, err := metadata.New(metadata.Input{
		CaptureTime: tokyoNoon(t).Add(250 * time.Millisecond),
		CameraModel: "ASI",
		ExposureUS:  1000,
		Timezone:    "Asia/Tokyo",
	}, imaging.NewFrame(3, 2, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	data, err := meta.MarshalSidecar()
	if err != nil {
		t.Fatalf("MarshalSidecar: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc["capture_time"] != "2025-03-21T12:00:05.250000+09:00" {
		t.Fatalf("capture_time = %v", doc["capture_time"])
	}
	camera := doc["camera"].(map[string]any)
	if _, ok := camera["temperature"]; !ok || camera["temperature"] != nil {
		t.Fatalf("expected explicit null temperature, got %v", camera)
	}
	if doc["image"].(map[string]any)["width"] != float64(3) {
		t.Fatalf("unexpected image section %v", doc["image"])
	}
	if doc["location"].(map[string]any)["timezone"] != "Asia/Tokyo" {
		t.Fatalf("unexpected location section %v", doc["location"])
	}
	if doc["software"].(map[string]any)["name"] != metadata.SoftwareName {
		t.Fatalf("unexpected software section %v", doc["software"])
	}

	var sidecar metadata.Sidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	back, err := metadata.FromSidecar(sidecar)
	if err != nil {
		t.Fatalf("FromSidecar: %v", err)
	}
	if !back.CaptureTime.Equal(meta.CaptureTime) {
		t.Fatalf("capture time changed: %s vs %s", back.CaptureTime, meta.CaptureTime)
	}
}
