package telemetry

import (
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CapabilityNames lists the capabilities that are reported. Others are
// ignored.
var CapabilityNames = []string{
	"SERIAL_XON_XOFF",
	"BINARY_FILE_TRANSFER",
	"EEPROM",
	"VOLUMETRIC",
	"AUTOREPORT_POS",
	"AUTOREPORT_TEMP",
	"PROGRESS",
	"PRINT_JOB",
	"AUTOLEVEL",
	"RUNOUT",
	"Z_PROBE",
	"LEVELING_DATA",
	"BUILD_PERCENT",
	"SOFTWARE_POWER",
	"TOGGLE_LIGHTS",
	"CASE_LIGHT_BRIGHTNESS",
	"EMERGENCY_PARSER",
	"HOST_ACTION_COMMANDS",
	"PROMPT_SUPPORT",
	"SDCARD",
	"REPEAT",
	"SD_WRITE",
	"AUTOREPORT_SD_STATUS",
	"LONG_FILENAME",
	"LFN_WRITE",
	"CUSTOM_FIRMWARE_UPLOAD",
	"EXTENDED_M20",
	"THERMAL_PROTECTION",
	"MOTION_MODES",
	"ARCS",
	"BABYSTEPPING",
	"CHAMBER_TEMPERATURE",
	"COOLER_TEMPERATURE",
	"MEATPACK",
	"CONFIG_EXPORT",
}

var capabilityNames = map[string]struct{}{}

func init() {
	for _, name := range CapabilityNames {
		capabilityNames[name] = struct{}{}
	}
}

var (
	firmwareRx = regexp.MustCompile(`FIRMWARE_NAME:\s*(\S+)(?:\s+(\S+))?`)
	protocolRx = regexp.MustCompile(`PROTOCOL_VERSION:\s*(\S+)`)
	machineRx  = regexp.MustCompile(`MACHINE_TYPE:\s*(.+?)(?:\s+\w+:|$)`)
)

// DecodeCapabilities reads firmware information and capability flags from
// an M115 response.
func DecodeCapabilities(text string) PrinterCapabilities {
	info := PrinterCapabilities{
		Capabilities: map[string]int{},
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)

		if strings.Contains(line, "FIRMWARE_NAME") {
			if parts := firmwareRx.FindStringSubmatch(line); parts != nil {
				info.FirmwareName = parts[1]
				info.FirmwareVersion = parts[2]
			}
			if parts := protocolRx.FindStringSubmatch(line); parts != nil {
				info.ProtocolVersion = parts[1]
			}
			if parts := machineRx.FindStringSubmatch(line); parts != nil {
				info.MachineType = strings.TrimSpace(parts[1])
			}

			continue
		}

		i := strings.Index(line, "Cap:")

		if i < 0 {
			continue
		}

		name, value, _ := strings.Cut(line[i+len("Cap:"):], ":")

		if _, ok := capabilityNames[name]; !ok {
			log.Debugf("Ignoring unknown capability '%s'.", name)
			continue
		}

		flag, err := strconv.Atoi(strings.TrimSpace(value))

		if err != nil {
			log.Debugf("Unable to parse capability '%s': %q", name, value)
		}

		info.Capabilities[name] = flag
	}

	return info
}
