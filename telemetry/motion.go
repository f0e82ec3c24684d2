package telemetry

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	axisRx        = regexp.MustCompile(`^([XYZ]):([-+]?[0-9]*\.?[0-9]+)$`)
	temperatureRx = regexp.MustCompile(`T:([-+]?[0-9.]+)\s*/([-+]?[0-9.]+)\s+B:([-+]?[0-9.]+)\s*/([-+]?[0-9.]+)`)
	extruderRx    = regexp.MustCompile(`\bT([0-3]):([-+]?[0-9.]+)\s*/([-+]?[0-9.]+)`)
)

// truncate parses a decimal and drops the fraction. Anything unparsable is
// zero.
func truncate(s string) int {
	f, err := strconv.ParseFloat(s, 64)

	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}

	return int(f)
}

// DecodePosition reads X, Y and Z from an M114 response. The rest of a line
// is ignored after "Count" or "ok", since the stepper counts that follow are
// not the live position.
func DecodePosition(text string) AxisPosition {
	position := AxisPosition{}

	for _, line := range strings.Split(text, "\n") {
		for _, token := range strings.Fields(line) {
			if strings.Contains(token, "Count") || token == "ok" {
				break
			}

			parts := axisRx.FindStringSubmatch(token)

			if parts == nil {
				continue
			}

			switch parts[1] {
			case "X":
				position.X = truncate(parts[2])
			case "Y":
				position.Y = truncate(parts[2])
			case "Z":
				position.Z = truncate(parts[2])
			}
		}
	}

	return position
}

// DecodeTemperature reads nozzle and bed temperatures from an M105
// response. Values are truncated. Per-extruder readings (T0: to T3:) are
// used when present.
func DecodeTemperature(text string) TemperatureReport {
	report := TemperatureReport{}

	parts := temperatureRx.FindStringSubmatch(text)

	if parts == nil {
		return report
	}

	report.E0 = truncate(parts[1])
	report.E0Target = truncate(parts[2])
	report.Bed = truncate(parts[3])
	report.BedTarget = truncate(parts[4])

	for _, extruder := range extruderRx.FindAllStringSubmatch(text, -1) {
		current, target := truncate(extruder[2]), truncate(extruder[3])

		switch extruder[1] {
		case "0":
			report.E0, report.E0Target = current, target
		case "1":
			report.E1, report.E1Target = current, target
		case "2":
			report.E2, report.E2Target = current, target
		case "3":
			report.E3, report.E3Target = current, target
		}
	}

	return report
}

// DecodeEndstops reads the endstop states from an M119 response. Endstops
// that are not reported are None.
func DecodeEndstops(text string) EndstopStatus {
	status := EndstopStatus{
		XMin:   None,
		YMin:   None,
		ZMin:   None,
		XMax:   None,
		YMax:   None,
		ZMax:   None,
		ZProbe: None,
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"x_min:", &status.XMin},
		{"y_min:", &status.YMin},
		{"z_min:", &status.ZMin},
		{"x_max:", &status.XMax},
		{"y_max:", &status.YMax},
		{"z_max:", &status.ZMax},
		{"z_probe:", &status.ZProbe},
	}

	for _, line := range strings.Split(text, "\n") {
		for _, field := range fields {
			i := strings.Index(line, field.name)

			if i < 0 {
				continue
			}

			*field.value = strings.TrimSpace(line[i+len(field.name):])

			break
		}
	}

	return status
}
