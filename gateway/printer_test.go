package gateway

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	link "github.com/basilfx/go-gcode-link"
)

// fakePrinter is a port that answers every written line from a table of
// canned responses.
type fakePrinter struct {
	lock      sync.Mutex
	responses map[string]string
	pending   bytes.Buffer
	written   []string
	timeout   time.Duration
}

func newFakePrinter(responses map[string]string) *fakePrinter {
	return &fakePrinter{
		responses: responses,
		timeout:   5 * time.Millisecond,
	}
}

func (p *fakePrinter) Read(b []byte) (int, error) {
	p.lock.Lock()

	if p.pending.Len() > 0 {
		defer p.lock.Unlock()
		return p.pending.Read(b)
	}

	p.lock.Unlock()

	time.Sleep(p.timeout)

	return 0, nil
}

func (p *fakePrinter) Write(b []byte) (int, error) {
	p.lock.Lock()
	defer p.lock.Unlock()

	for _, line := range strings.Split(string(b), "\r\n") {
		if line == "" {
			continue
		}

		p.written = append(p.written, line)

		response, ok := p.responses[strings.Fields(line)[0]]

		if !ok {
			response = "ok\n"
		}

		p.pending.WriteString(response)
	}

	return len(b), nil
}

func (p *fakePrinter) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePrinter) Close() error {
	return nil
}

func (p *fakePrinter) lines() []string {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]string{}, p.written...)
}

var marlinResponses = map[string]string{
	"M105": "ok T:185.4 /200.0 B:55.2 /60.0 @:127 B@:0\n",
	"M114": "X:10.00 Y:20.00 Z:30.00 E:0.00 Count X:800 Y:1600 Z:12000\nok\n",
	"M115": "FIRMWARE_NAME:Marlin 2.0.1\nCap:EEPROM:1\nCap:SDCARD:1\nok\n",
	"M119": "Reporting endstop status\nx_min: TRIGGERED\ny_min: open\nz_min: open\nok\n",
	"M20":  "Begin file list\nA.GCO 10\nB.GCO 20\nC.GCO 30\nEnd file list\nok\n",
	"M27":  "SD printing byte 2812/1798968\nok\n",
	"M31":  "echo:Print time: 1h 2m 3s\nok\n",
	"M28":  "Writing to file: PART.GCO\nok\n",
	"M29":  "Done saving file.\nok\n",
	"M503": "echo:Steps per unit:\necho: M92 X80.00 Y80.00 Z400.00 E93.00\nok\n",
	"SLOW": "",
	"BUSY": "echo:busy: processing\n",
}

// withResponses returns a copy of marlinResponses with the given overrides.
func withResponses(overrides map[string]string) map[string]string {
	responses := map[string]string{}

	for k, v := range marlinResponses {
		responses[k] = v
	}

	for k, v := range overrides {
		responses[k] = v
	}

	return responses
}

// newTestLink returns a running link to a fake printer.
func newTestLink(t *testing.T, printer *fakePrinter) *link.Link {
	l := link.New(link.Config{
		Path:          "/dev/ttyTEST0",
		BaudRate:      250000,
		ReadTimeout:   2 * time.Millisecond,
		MaxEmptyReads: 5,
		Open: func(path string, baudRate int) (link.Port, error) {
			return printer, nil
		},
	})

	go l.Serve()

	t.Cleanup(l.Shutdown)

	return l
}
