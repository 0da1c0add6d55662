package dymo

import (
	"math"
	"strings"
)

// Label describes a supported label roll. Format dimensions are in
// millimetres; page and printable-origin values are in device units.
type Label struct {
	Name                  string `json:"name"`
	OptionID              int    `json:"optionId"`
	FormatWidthMM         int    `json:"formatWidthMm"`
	FormatHeightMM        int    `json:"formatHeightMm"`
	PageWidth             int    `json:"pageWidth"`
	PageHeight            int    `json:"pageHeight"`
	PrintableOriginWidth  int    `json:"printableOriginWidth"`
	PrintableOriginHeight int    `json:"printableOriginHeight"`
}

// MediaSize is the media descriptor advertised to print clients, in mils.
type MediaSize struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	WidthMils  int    `json:"widthMils"`
	HeightMils int    `json:"heightMils"`
}

// Resolution is an advertised print resolution.
type Resolution struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// Capabilities is what a LabelWriter advertises to print clients.
type Capabilities struct {
	MediaSizes        []MediaSize  `json:"mediaSizes"`
	DefaultMedia      string       `json:"defaultMedia"`
	Resolutions       []Resolution `json:"resolutions"`
	DefaultResolution string       `json:"defaultResolution"`
	ColorModes        []string     `json:"colorModes"`
	DuplexModes       []string     `json:"duplexModes"`
	NoMargins         bool         `json:"noMargins"`
}

// MMToMils converts millimetres to thousandths of an inch, rounded.
func MMToMils(mm int) int {
	return int(math.Round(float64(mm) * MilsPerMM))
}

// Length is the value carried by the label length command.
func (l Label) Length() uint16 {
	return uint16(l.PageHeight/2 + 300)
}

// LengthCommand builds the label length command for this label.
func (l Label) LengthCommand() []byte {
	return LabelLength(l.Length())
}

// MediaSize derives the advertised media descriptor.
func (l Label) MediaSize() MediaSize {
	w := (MMToMils(l.FormatWidthMM) - l.PrintableOriginWidth) * DeviceDPI / PointsInch
	h := (MMToMils(l.FormatHeightMM) - 3*l.PrintableOriginHeight) * DeviceDPI / PointsInch
	return MediaSize{ID: l.Name, Label: l.Name, WidthMils: w, HeightMils: h}
}

// Labels is the catalog of supported label rolls.
var Labels = []Label{
	{"Address30252", 259, 28, 89, 329, 2100, 18, 138},
	{"Address30320", 260, 28, 89, 329, 2100, 18, 138},
	{"HandingFileInsert30376", 261, 28, 51, 330, 1200, 36, 188},
	{"StandardAddress99010", 262, 28, 89, 329, 2100, 18, 138},
	{"Shipping30256", 263, 59, 102, 694, 2400, 17, 140},
	{"Shipping99014", 264, 54, 102, 638, 2382, 18, 128},
	{"NameBadgeLabel99014", 265, 54, 101, 638, 2382, 18, 128},
	{"Shipping30323", 266, 54, 101, 638, 2382, 18, 128},
	{"PCPostage3Part30383", 267, 57, 178, 675, 4200, 17, 132},
	{"PCPostage2Part30384", 268, 59, 191, 694, 4500, 17, 132},
	{"Diskette20258", 270, 54, 70, 638, 1650, 17, 132},
	{"Diskette99015", 271, 54, 70, 638, 1650, 12, 132},
	{"Diskette30324", 272, 54, 70, 638, 1650, 12, 132},
	{"ReturnAddress30330", 273, 19, 51, 225, 1200, 17, 136},
	{"Address2Up30253", 274, 59, 89, 693, 2100, 17, 136},
	{"FileFolder2Up30277", 275, 29, 87, 338, 2062, 18, 120},
	{"FileFolder30327", 276, 20, 87, 235, 2062, 0, 132},
	{"Zipdisk30370", 277, 51, 60, 600, 1406, 18, 132},
	{"LargeAddress30321", 278, 36, 89, 422, 2092, 18, 134},
	{"LargeAddress99012", 279, 36, 89, 422, 2092, 18, 134},
	{"NameBadgeLabel30364", 280, 59, 102, 694, 2400, 17, 140},
	{"NameBadgeCard30365", 281, 59, 89, 696, 2100, 0, 224},
	{"AppointmentCard30374", 282, 51, 89, 600, 2100, 36, 224},
}

// DefaultLabel is the media size advertised as default.
const DefaultLabel = "Shipping30323"

// LookupLabel finds a label by media size name, ignoring case.
func LookupLabel(name string) (Label, bool) {
	for _, l := range Labels {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Label{}, false
}

// LengthCommandFor returns the label length command for the named media,
// or the maximum length when the media is unknown.
func LengthCommandFor(media string) []byte {
	if l, ok := LookupLabel(media); ok {
		return l.LengthCommand()
	}
	return LabelLength(MaxLabelLength)
}

// DefaultCapabilities lists every catalog label, monochrome only, simplex only.
func DefaultCapabilities() Capabilities {
	sizes := make([]MediaSize, len(Labels))
	for i, l := range Labels {
		sizes[i] = l.MediaSize()
	}
	return Capabilities{
		MediaSizes:   sizes,
		DefaultMedia: DefaultLabel,
		Resolutions: []Resolution{
			{ID: "TextQuality", Label: "TextQuality", X: 300, Y: 300},
			{ID: "GraphicsQuality", Label: "GraphicsQuality", X: 300, Y: 600},
		},
		DefaultResolution: "GraphicsQuality",
		ColorModes:        []string{"monochrome"},
		DuplexModes:       []string{"none"},
		NoMargins:         true,
	}
}
