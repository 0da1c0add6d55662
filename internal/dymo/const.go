package dymo

// ESC prefixes every LabelWriter command.
const ESC byte = 0x1B

// Command opcodes (second byte after ESC).
const (
	OpSessionPreset  byte = 0x73 // 's' session preset
	OpDensity        byte = 0x43 // 'C' print density
	OpDotTab         byte = 0x42 // 'B' dot tab
	OpTextMode       byte = 0x68 // 'h' 300x300 text quality
	OpGraphicsMode   byte = 0x69 // 'i' 300x600 graphics quality
	OpMediaType      byte = 0x4D // 'M' media type
	OpLabelIndex     byte = 0x6E // 'n' label index
	OpLabelLength    byte = 0x4C // 'L' label length
	OpLabelDims      byte = 0x44 // 'D' label dimensions
	OpShortFormFeed  byte = 0x47 // 'G' inter-page feed
	OpFormFeed       byte = 0x45 // 'E' final feed
	OpFinishSession  byte = 0x51 // 'Q' finish session
	OpStatus         byte = 0x41 // 'A' request status
	OpReset          byte = 0x40 // '@' reset printer
	OpRestoreDefault byte = 0x2A // '*' restore default settings
	OpSkipLines      byte = 0x66 // 'f' skip lines
	OpVersion        byte = 0x56 // 'V' model / firmware
)

// Density values for OpDensity.
const (
	DensityLight  byte = 0x63
	DensityMedium byte = 0x64
	DensityNormal byte = 0x65
	DensityDark   byte = 0x67
)

// StatusFrameSize is the fixed length of a status response.
const StatusFrameSize = 32

// Status frame byte offsets examined by DecodeStatus.
const (
	statusBusyOffset  = 0
	statusPaperOffset = 15
)

// MaxLabelLength is sent when the media size is not in the catalog.
const MaxLabelLength uint16 = 0xFFFF

// Geometry constants.
const (
	MilsPerMM  = 39.3700787 // thousandths of an inch per millimetre
	DeviceDPI  = 300
	PointsInch = 72
)

// DefaultPort is the raw data stream port LabelWriter Wireless listens on.
const DefaultPort = 9100

// ServiceType is the DNS-SD service LabelWriter Wireless advertises.
const ServiceType = "_pdl-datastream._tcp"

// VendorToken is matched case-insensitively against service instance names.
const VendorToken = "DYMO"
