package link

import (
	"bufio"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/acomagu/bufpipe"
)

// emulatedPrinter is a port backed by a fake firmware. Written lines are
// passed to reply, and the returned chunks are made available for reading.
type emulatedPrinter struct {
	out io.ReadCloser
	in  io.WriteCloser

	chunks  chan []byte
	pending []byte
	timeout time.Duration

	reply func(line string) []string

	lock    sync.Mutex
	written []string
	closed  bool
}

func newEmulatedPrinter(reply func(line string) []string) *emulatedPrinter {
	p := &emulatedPrinter{
		chunks:  make(chan []byte, 128),
		timeout: 10 * time.Millisecond,
		reply:   reply,
	}

	p.out, p.in = bufpipe.New(nil)

	// Start emulation.
	go p.emulate()

	return p
}

// marlin replies like a Marlin firmware would for a few common commands.
func marlin(line string) []string {
	command := strings.Fields(line)

	if len(command) == 0 {
		return nil
	}

	switch command[0] {
	case "M105":
		return []string{"ok T:185.4 /200.0 B:55.2 /60.0 @:127 B@:0\n"}
	case "M114":
		return []string{"X:10.00 Y:20.00 ", "Z:30.00 E:0.00 Count X:800 Y:1600 Z:12000\n", "ok\n"}
	case "M119":
		return []string{"Reporting endstop status\nx_min: TRIGGERED\ny_min: open\nz_min: open\nok\n"}
	case "SILENT":
		return nil
	case "STALL":
		return []string{"echo:busy: processing\n"}
	default:
		return []string{"ok\n"}
	}
}

func (p *emulatedPrinter) emulate() {
	scanner := bufio.NewScanner(p.out)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if line == "" {
			continue
		}

		p.lock.Lock()
		p.written = append(p.written, line)
		p.lock.Unlock()

		for _, chunk := range p.reply(line) {
			p.chunks <- []byte(chunk)
		}
	}
}

func (p *emulatedPrinter) lines() []string {
	p.lock.Lock()
	defer p.lock.Unlock()

	return append([]string{}, p.written...)
}

func (p *emulatedPrinter) isClosed() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.closed
}

// Read implements the read method. It returns no bytes and no error when
// nothing arrives within the read timeout, like a serial port does.
func (p *emulatedPrinter) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		select {
		case chunk := <-p.chunks:
			p.pending = chunk
		case <-time.After(p.timeout):
			return 0, nil
		}
	}

	n := copy(b, p.pending)
	p.pending = p.pending[n:]

	return n, nil
}

// Write implements the write method.
func (p *emulatedPrinter) Write(b []byte) (int, error) {
	return p.in.Write(b)
}

// SetReadTimeout implements the Port interface.
func (p *emulatedPrinter) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

// Close will close the emulated printer.
func (p *emulatedPrinter) Close() error {
	p.lock.Lock()
	p.closed = true
	p.lock.Unlock()

	p.in.Close()
	p.out.Close()

	return nil
}

// chunkReader returns the given chunks one read at a time and then only
// empty reads.
type chunkReader struct {
	chunks [][]byte
	reads  int
}

func (r *chunkReader) Read(b []byte) (int, error) {
	r.reads++

	if len(r.chunks) == 0 {
		return 0, nil
	}

	n := copy(b, r.chunks[0])
	r.chunks = r.chunks[1:]

	return n, nil
}
