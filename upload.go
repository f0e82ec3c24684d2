package link

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommentMarker starts a line that is sent without line number or checksum.
const CommentMarker = ";"

// Checksum returns the XOR of all bytes of line.
func Checksum(line string) byte {
	var checksum byte

	for i := 0; i < len(line); i++ {
		checksum ^= line[i]
	}

	return checksum
}

// FrameLine prefixes line with its line number and appends the checksum of
// the numbered line. Comment lines are returned unmodified.
func FrameLine(number int, line string) string {
	if strings.HasPrefix(line, CommentMarker) {
		return line
	}

	numbered := fmt.Sprintf("N%d %s", number, line)

	return fmt.Sprintf("%s*%d", numbered, Checksum(numbered))
}

// FrameProgram splits content into lines and frames them. Blank lines are
// skipped and numbering starts at one.
func FrameProgram(content string) []string {
	framed := []string{}
	number := 0

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, CommentMarker) {
			number++
		}

		framed = append(framed, FrameLine(number, line))
	}

	return framed
}

// UploadStarted is the reply of the firmware when it opened the file for
// writing.
const UploadStarted = "Writing to file"

// upload streams a program to the SD card. Every line must be acknowledged
// with "ok" before the next one is written. Once M28 has been sent, the file
// is always closed with M29, also when the upload fails. Otherwise the
// firmware keeps writing every following command into the file.
func (l *Link) upload(port Port, name string, content string) (Response, error) {
	begin := fmt.Sprintf("M28 %s", name)

	response, err := l.exchange(port, begin)

	if err == nil && !strings.Contains(response.Text, UploadStarted) {
		err = fmt.Errorf("%w: %s: %q", ErrUploadRejected, begin, strings.TrimSpace(response.Text))
	}

	if err != nil {
		l.abortUpload(port, name)
		return response, err
	}

	lines := FrameProgram(content)

	for i, line := range lines {
		response, err := l.exchange(port, line)

		if err == nil && !strings.HasPrefix(strings.TrimSpace(response.Text), Sentinel) {
			err = fmt.Errorf("%w: %q", ErrUploadRejected, strings.TrimSpace(response.Text))
		}

		if err != nil {
			l.abortUpload(port, name)
			return response, fmt.Errorf("line %d of %d: %w", i+1, len(lines), err)
		}
	}

	response, err = l.exchange(port, "M29")

	if err != nil {
		return response, err
	}

	log.Infof("Uploaded %d lines to '%s'.", len(lines), name)

	response.Command = begin

	return response, nil
}

// abortUpload closes the file of a failed upload. Its own failure is only
// logged, the error of the upload is what the caller gets.
func (l *Link) abortUpload(port Port, name string) {
	log.Warnf("Upload of '%s' failed, closing file.", name)

	if _, err := l.exchange(port, "M29"); err != nil {
		log.Errorf("Unable to close file '%s': %v", name, err)
	}
}
