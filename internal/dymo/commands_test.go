package dymo

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestCommandBytes(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"session_configuration", SessionConfiguration(), []byte{
			0x1B, 0x73, 0x01, 0x00, 0x00, 0x00,
			0x1B, 0x43, 0x64,
			0x1B, 0x42, 0x00,
			0x1B, 0x68,
			0x1B, 0x4D, 0, 0, 0, 0, 0, 0, 0, 0,
		}},
		{"label_index_3", LabelIndex(3), []byte{0x1B, 0x6E, 0x03, 0x00}},
		{"label_length_prefix", LabelLengthPrefix(), []byte{0x1B, 0x4C}},
		{"short_form_feed", ShortFormFeed(), []byte{0x1B, 0x47}},
		{"form_feed", FormFeed(), []byte{0x1B, 0x45}},
		{"finish_session", FinishSession(), []byte{0x1B, 0x51}},
		{"final_feed", FinalFeed(), []byte{0x1B, 0x45, 0x1B, 0x51}},
		{"request_status", RequestStatus(), []byte{0x1B, 0x41, 0x01}},
		{"reset", Reset(), []byte{0x1B, 0x40}},
		{"restore_defaults", RestoreDefaults(), []byte{0x1B, 0x2A}},
		{"skip_lines", SkipLines(5), []byte{0x1B, 0x66, 0x01, 0x05}},
		{"version", RequestVersion(), []byte{0x1B, 0x56}},
		{"graphics_mode", GraphicsMode(), []byte{0x1B, 0x69}},
		{"density_dark", PrintDensity(DensityDark), []byte{0x1B, 0x43, 0x67}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("got % X, want % X", tt.got, tt.want)
			}
		})
	}
}

func TestLabelDimensions_LittleEndian(t *testing.T) {
	got := LabelDimensions(0x01020304, 0x0A0B0C0D)
	want := []byte{0x1B, 0x44, 0x01, 0x02, 0x04, 0x03, 0x02, 0x01, 0x0D, 0x0C, 0x0B, 0x0A}
	if !bytes.Equal(got, want) {
		t.Errorf("LabelDimensions = % X, want % X", got, want)
	}
}

func TestLabelDimensions_RoundTrip(t *testing.T) {
	values := []uint32{0, 1, 7, 8, 255, 256, 672, 1084, 65535, 65536, 1 << 24, math.MaxUint32 - 1, math.MaxUint32}
	for _, h := range values {
		for _, w := range values {
			gotH, gotW, err := ParseLabelDimensions(LabelDimensions(h, w))
			if err != nil {
				t.Fatalf("ParseLabelDimensions(%d, %d) failed: %v", h, w, err)
			}
			if gotH != h || gotW != w {
				t.Errorf("round-trip (%d, %d) = (%d, %d)", h, w, gotH, gotW)
			}
		}
	}
}

func TestParseLabelDimensions_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{0x1B, 0x44, 0x01}},
		{"long", make([]byte, 13)},
		{"bad_opcode", []byte{0x1B, 0x4C, 0x01, 0x02, 0, 0, 0, 0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseLabelDimensions(tt.data)
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Errorf("err = %v, want *ProtocolError", err)
			}
		})
	}
}

func TestLabelHeader_SingleWrite(t *testing.T) {
	got := LabelHeader(1, 672, 1088)
	if len(got) != 16 {
		t.Fatalf("len = %d, want 16", len(got))
	}
	if !bytes.Equal(got[:4], LabelIndex(1)) {
		t.Errorf("index part = % X", got[:4])
	}
	h, w, err := ParseLabelDimensions(got[4:])
	if err != nil {
		t.Fatalf("ParseLabelDimensions failed: %v", err)
	}
	if h != 672 || w != 1088 {
		t.Errorf("dims = (%d, %d), want (672, 1088)", h, w)
	}
}

func TestLabelLength_BigEndian(t *testing.T) {
	got := LabelLength(1350)
	want := []byte{0x1B, 0x4C, 0x05, 0x46}
	if !bytes.Equal(got, want) {
		t.Errorf("LabelLength(1350) = % X, want % X", got, want)
	}
}

func TestConcat(t *testing.T) {
	got := Concat([]byte{1}, nil, []byte{2, 3})
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Concat = %v", got)
	}
}
