package dymo

import (
	"bytes"
	"testing"
)

func TestMMToMils(t *testing.T) {
	tests := []struct {
		mm   int
		want int
	}{
		{0, 0},
		{1, 39},
		{28, 1102},  // 1102.36
		{89, 3504},  // 3503.94
		{102, 4016}, // 4015.75
	}
	for _, tt := range tests {
		if got := MMToMils(tt.mm); got != tt.want {
			t.Errorf("MMToMils(%d) = %d, want %d", tt.mm, got, tt.want)
		}
	}
}

func TestLabelLengthCommand(t *testing.T) {
	l, ok := LookupLabel("Address30252")
	if !ok {
		t.Fatal("Address30252 not in catalog")
	}
	if l.PageHeight != 2100 {
		t.Fatalf("PageHeight = %d, want 2100", l.PageHeight)
	}
	if l.Length() != 1350 {
		t.Errorf("Length = %d, want 1350", l.Length())
	}
	want := []byte{0x1B, 0x4C, 0x05, 0x46}
	if got := l.LengthCommand(); !bytes.Equal(got, want) {
		t.Errorf("LengthCommand = % X, want % X", got, want)
	}
}

func TestLengthCommandFor_Unknown(t *testing.T) {
	want := []byte{0x1B, 0x4C, 0xFF, 0xFF}
	if got := LengthCommandFor("NoSuchLabel"); !bytes.Equal(got, want) {
		t.Errorf("LengthCommandFor = % X, want % X", got, want)
	}
}

func TestLookupLabel_CaseInsensitive(t *testing.T) {
	l, ok := LookupLabel("shipping30323")
	if !ok || l.OptionID != 266 {
		t.Errorf("LookupLabel = %+v, %v", l, ok)
	}
}

func TestMediaSize(t *testing.T) {
	l, _ := LookupLabel("Address30252")
	got := l.MediaSize()
	// width: (1102 - 18) * 300 / 72 = 4516; height: (3504 - 414) * 300 / 72 = 12875
	if got.WidthMils != 4516 {
		t.Errorf("WidthMils = %d, want 4516", got.WidthMils)
	}
	if got.HeightMils != 12875 {
		t.Errorf("HeightMils = %d, want 12875", got.HeightMils)
	}
	if got.ID != "Address30252" {
		t.Errorf("ID = %q", got.ID)
	}
}

func TestCatalogUnique(t *testing.T) {
	names := map[string]bool{}
	ids := map[int]bool{}
	for _, l := range Labels {
		if names[l.Name] {
			t.Errorf("duplicate name %q", l.Name)
		}
		if ids[l.OptionID] {
			t.Errorf("duplicate option id %d", l.OptionID)
		}
		names[l.Name] = true
		ids[l.OptionID] = true
		ms := l.MediaSize()
		if ms.WidthMils <= 0 || ms.HeightMils <= 0 {
			t.Errorf("%s: non-positive media size %+v", l.Name, ms)
		}
	}
}

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities()
	if len(caps.MediaSizes) != len(Labels) {
		t.Errorf("MediaSizes = %d, want %d", len(caps.MediaSizes), len(Labels))
	}
	if _, ok := LookupLabel(caps.DefaultMedia); !ok {
		t.Errorf("DefaultMedia %q not in catalog", caps.DefaultMedia)
	}
	if len(caps.ColorModes) != 1 || caps.ColorModes[0] != "monochrome" {
		t.Errorf("ColorModes = %v", caps.ColorModes)
	}
	if caps.DefaultResolution != "GraphicsQuality" {
		t.Errorf("DefaultResolution = %q", caps.DefaultResolution)
	}
}
