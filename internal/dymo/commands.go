package dymo

import (
	"encoding/binary"
	"fmt"
)

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// SessionConfiguration builds the command block sent before the first label
// of a job: session preset 1, normal density, dot tab 0, text quality,
// standard media.
func SessionConfiguration() []byte {
	return []byte{
		ESC, OpSessionPreset, 0x01, 0x00, 0x00, 0x00,
		ESC, OpDensity, DensityMedium,
		ESC, OpDotTab, 0x00,
		ESC, OpTextMode,
		ESC, OpMediaType, 0, 0, 0, 0, 0, 0, 0, 0,
	}
}

// FinishSession ends the print session.
func FinishSession() []byte {
	return []byte{ESC, OpFinishSession}
}

// RequestStatus asks the printer for a 32-byte status frame.
func RequestStatus() []byte {
	return []byte{ESC, OpStatus, 0x01}
}

// --------------------------------------------------------------------------
// Label geometry
// --------------------------------------------------------------------------

// LabelIndex selects label n of the current job.
func LabelIndex(n int) []byte {
	return []byte{ESC, OpLabelIndex, byte(n), 0x00}
}

// LabelLengthPrefix is the bare label length opcode; the two length bytes
// follow as a separate write when the printer is asked for the maximum.
func LabelLengthPrefix() []byte {
	return []byte{ESC, OpLabelLength}
}

// LabelLength builds the label length command. The length is big-endian,
// unlike the dimension fields of LabelDimensions.
func LabelLength(length uint16) []byte {
	buf := make([]byte, 4)
	buf[0] = ESC
	buf[1] = OpLabelLength
	binary.BigEndian.PutUint16(buf[2:4], length)
	return buf
}

// LabelDimensions builds the 12-byte dimensions command for a raster of
// height rows and width dots (width already padded to a multiple of 8).
func LabelDimensions(height, width uint32) []byte {
	buf := make([]byte, 12)
	buf[0] = ESC
	buf[1] = OpLabelDims
	buf[2] = 0x01
	buf[3] = 0x02
	binary.LittleEndian.PutUint32(buf[4:8], height)
	binary.LittleEndian.PutUint32(buf[8:12], width)
	return buf
}

// ParseLabelDimensions is the inverse of LabelDimensions.
func ParseLabelDimensions(data []byte) (height, width uint32, err error) {
	if len(data) != 12 {
		return 0, 0, &ProtocolError{Msg: fmt.Sprintf("label dimensions: got %d bytes, want 12", len(data))}
	}
	if data[0] != ESC || data[1] != OpLabelDims || data[2] != 0x01 || data[3] != 0x02 {
		return 0, 0, &ProtocolError{Msg: fmt.Sprintf("label dimensions: bad header % X", data[:4])}
	}
	return binary.LittleEndian.Uint32(data[4:8]), binary.LittleEndian.Uint32(data[8:12]), nil
}

// LabelHeader is LabelIndex(n) followed by LabelDimensions, sent as one write.
func LabelHeader(n int, height, width uint32) []byte {
	return Concat(LabelIndex(n), LabelDimensions(height, width))
}

// --------------------------------------------------------------------------
// Feed
// --------------------------------------------------------------------------

// ShortFormFeed advances to the next label between pages of a job.
func ShortFormFeed() []byte {
	return []byte{ESC, OpShortFormFeed}
}

// FormFeed advances past the last label of a job.
func FormFeed() []byte {
	return []byte{ESC, OpFormFeed}
}

// FinalFeed is FormFeed followed by FinishSession, sent as one write.
func FinalFeed() []byte {
	return Concat(FormFeed(), FinishSession())
}

// SkipLines feeds n blank dot lines.
func SkipLines(n byte) []byte {
	return []byte{ESC, OpSkipLines, 0x01, n}
}

// --------------------------------------------------------------------------
// Printer control
// --------------------------------------------------------------------------

// Reset resets the printer.
func Reset() []byte { return []byte{ESC, OpReset} }

// RestoreDefaults restores the printer's default settings.
func RestoreDefaults() []byte { return []byte{ESC, OpRestoreDefault} }

// RequestVersion asks for the model and firmware string.
func RequestVersion() []byte { return []byte{ESC, OpVersion} }

// TextMode selects 300x300 dpi text quality.
func TextMode() []byte { return []byte{ESC, OpTextMode} }

// GraphicsMode selects 300x600 dpi graphics quality.
func GraphicsMode() []byte { return []byte{ESC, OpGraphicsMode} }

// PrintDensity sets the print density; d is one of the Density constants.
func PrintDensity(d byte) []byte { return []byte{ESC, OpDensity, d} }

// Concat joins commands into a single buffer for one combined write.
func Concat(cmds ...[]byte) []byte {
	n := 0
	for _, c := range cmds {
		n += len(c)
	}
	buf := make([]byte, 0, n)
	for _, c := range cmds {
		buf = append(buf, c...)
	}
	return buf
}
