package telemetry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	progressRx = regexp.MustCompile(`SD printing byte (\d+)/(\d+)`)
	durationRx = regexp.MustCompile(`Print time: ([^\r\n]+)`)
)

func isProgram(token string) bool {
	return strings.Contains(strings.ToLower(token), ".gco")
}

// DecodeFileList collects every token of an M20 response that looks like a
// G-code file, in order of appearance.
func DecodeFileList(text string) FileList {
	files := FileList{Files: []string{}}

	for _, token := range strings.Fields(text) {
		if isProgram(token) {
			files.Files = append(files.Files, token)
		}
	}

	return files
}

// DecodeLongFilename returns the last token of an M33 response that looks
// like a G-code file.
func DecodeLongFilename(text string) LongFilename {
	filename := LongFilename{}

	for _, token := range strings.Fields(text) {
		if isProgram(token) {
			filename.Path = token
		}
	}

	return filename
}

// DecodeProgress computes the completion percentage of an SD print from an
// M27 response, with one decimal.
func DecodeProgress(text string) PrintProgress {
	progress := PrintProgress{Percent: NotPrinting}

	if strings.Contains(text, "Not SD printing") {
		return progress
	}

	parts := progressRx.FindStringSubmatch(text)

	if parts == nil {
		return progress
	}

	current, err := strconv.ParseFloat(parts[1], 64)

	if err != nil {
		return progress
	}

	total, err := strconv.ParseFloat(parts[2], 64)

	if err != nil || total == 0 {
		return progress
	}

	progress.Percent = fmt.Sprintf("%.1f", current/total*100)

	return progress
}

// DecodeDuration returns the print time of an M31 response verbatim. A time
// of zero seconds means nothing is printing.
func DecodeDuration(text string) PrintDuration {
	duration := PrintDuration{Duration: NotPrinting}

	parts := durationRx.FindStringSubmatch(text)

	if parts == nil {
		return duration
	}

	value := strings.TrimSpace(parts[1])

	if value == "" || value == "0s" {
		return duration
	}

	duration.Duration = value

	return duration
}
