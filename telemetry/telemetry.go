// Package telemetry decodes the free-text responses of printer firmware into
// structured values. Decoders are tolerant: input they do not understand
// results in a default value, never an error.
package telemetry

// Kind identifies a telemetry variant.
type Kind int

// The different kinds of telemetry.
const (
	KindNone Kind = iota
	KindPosition
	KindTemperature
	KindCapabilities
	KindEndstops
	KindFileList
	KindLongFilename
	KindProgress
	KindDuration
)

// NotPrinting is reported by progress and duration when no job runs.
const NotPrinting = "not-printing"

// None is the default state of an endstop that was not reported.
const None = "None"

var kindNames = map[Kind]string{
	KindNone:         "none",
	KindPosition:     "position",
	KindTemperature:  "temperature",
	KindCapabilities: "capabilities",
	KindEndstops:     "endstops",
	KindFileList:     "file_list",
	KindLongFilename: "long_filename",
	KindProgress:     "progress",
	KindDuration:     "duration",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "unknown"
}

// kinds maps canonical mnemonics to the telemetry they produce.
var kinds = map[string]Kind{
	"M114": KindPosition,
	"M105": KindTemperature,
	"M115": KindCapabilities,
	"M119": KindEndstops,
	"M20":  KindFileList,
	"M33":  KindLongFilename,
	"M27":  KindProgress,
	"M31":  KindDuration,
}

// KindOf returns the kind of telemetry produced by a canonical mnemonic, or
// KindNone.
func KindOf(mnemonic string) Kind {
	return kinds[mnemonic]
}

// Telemetry is implemented by every decoded value.
type Telemetry interface {
	Kind() Kind
}

// Decode text as the given kind. It returns nil for KindNone.
func Decode(kind Kind, text string) Telemetry {
	switch kind {
	case KindPosition:
		return DecodePosition(text)
	case KindTemperature:
		return DecodeTemperature(text)
	case KindCapabilities:
		return DecodeCapabilities(text)
	case KindEndstops:
		return DecodeEndstops(text)
	case KindFileList:
		return DecodeFileList(text)
	case KindLongFilename:
		return DecodeLongFilename(text)
	case KindProgress:
		return DecodeProgress(text)
	case KindDuration:
		return DecodeDuration(text)
	default:
		return nil
	}
}

// AxisPosition is the current position reported by M114.
type AxisPosition struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Kind implements Telemetry.
func (AxisPosition) Kind() Kind { return KindPosition }

// TemperatureReport holds the temperatures reported by M105.
type TemperatureReport struct {
	Bed       int `json:"bed"`
	BedTarget int `json:"bed_set"`
	E0        int `json:"e0"`
	E0Target  int `json:"e0_set"`
	E1        int `json:"e1"`
	E1Target  int `json:"e1_set"`
	E2        int `json:"e2"`
	E2Target  int `json:"e2_set"`
	E3        int `json:"e3"`
	E3Target  int `json:"e3_set"`
}

// Kind implements Telemetry.
func (TemperatureReport) Kind() Kind { return KindTemperature }

// PrinterCapabilities holds the firmware information reported by M115.
type PrinterCapabilities struct {
	FirmwareName    string         `json:"firmware_name"`
	FirmwareVersion string         `json:"firmware_version"`
	ProtocolVersion string         `json:"protocol_version,omitempty"`
	MachineType     string         `json:"machine_type,omitempty"`
	Capabilities    map[string]int `json:"capabilities"`
}

// Kind implements Telemetry.
func (PrinterCapabilities) Kind() Kind { return KindCapabilities }

// EndstopStatus holds the endstop states reported by M119.
type EndstopStatus struct {
	XMin   string `json:"x_min"`
	YMin   string `json:"y_min"`
	ZMin   string `json:"z_min"`
	XMax   string `json:"x_max"`
	YMax   string `json:"y_max"`
	ZMax   string `json:"z_max"`
	ZProbe string `json:"z_probe"`
}

// Kind implements Telemetry.
func (EndstopStatus) Kind() Kind { return KindEndstops }

// FileList holds the SD card listing reported by M20.
type FileList struct {
	Files []string `json:"files"`
}

// Kind implements Telemetry.
func (FileList) Kind() Kind { return KindFileList }

// LongFilename holds the long path of a file reported by M33.
type LongFilename struct {
	Path string `json:"path"`
}

// Kind implements Telemetry.
func (LongFilename) Kind() Kind { return KindLongFilename }

// PrintProgress holds the SD print progress reported by M27.
type PrintProgress struct {
	Percent string `json:"percent"`
}

// Kind implements Telemetry.
func (PrintProgress) Kind() Kind { return KindProgress }

// PrintDuration holds the print time reported by M31.
type PrintDuration struct {
	Duration string `json:"duration"`
}

// Kind implements Telemetry.
func (PrintDuration) Kind() Kind { return KindDuration }
