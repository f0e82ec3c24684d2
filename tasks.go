package link

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

// Sentinel marks the end of a response. It is matched anywhere in the
// received text, so payload that contains "ok" ends a response early.
const Sentinel = "ok"

// LineTerminator is appended to every command.
const LineTerminator = "\r\n"

// TestModeResponse is the text returned for every exchange in test mode.
const TestModeResponse = "test mode"

// ReadBufferSize is the size of a single read from the device.
const ReadBufferSize = 256

func (l *Link) workerTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Debugf("Worker task stopped.")
			return
		case <-l.done:
			log.Debugf("Worker task stopped, link shut down.")
			return
		case r := <-l.requests:
			// The caller is gone before anything was written.
			if err := r.ctx.Err(); err != nil {
				log.Debugf("Dropping request %d of handle '%s': %v", r.id, r.handle, err)
				r.response <- result{err: err}
				continue
			}

			response, err := l.process(r)

			if err != nil {
				log.Errorf("Request %d of handle '%s' failed: %v", r.id, r.handle, err)
			}

			r.response <- result{response: response, err: err}
		}
	}
}

func (l *Link) process(r *request) (Response, error) {
	if l.config.TestMode {
		command := r.command

		if r.typ == requestFile {
			command = "M28 " + r.name
		}

		log.Debugf("Test mode, not sending: %s", command)

		return Response{
			ID:         r.id,
			Command:    command,
			Text:       TestModeResponse,
			Completion: CompletionSynthetic,
		}, nil
	}

	port, err := l.openPort()

	if err != nil {
		return Response{}, err
	}

	var response Response

	switch r.typ {
	case requestFile:
		response, err = l.upload(port, r.name, r.content)
	default:
		response, err = l.exchange(port, r.command)
	}

	response.ID = r.id

	// The device state is unknown after an I/O failure, start over with a
	// fresh handle on the next request.
	if IsKind(err, KindWrite) || (IsKind(err, KindRead) && !isTimeout(err)) {
		l.closePort()
	}

	return response, err
}

func (l *Link) openPort() (Port, error) {
	if l.port != nil {
		return l.port, nil
	}

	port, err := l.config.Open(l.config.Path, l.config.BaudRate)

	if err != nil {
		return nil, &Error{Kind: KindOpen, Path: l.config.Path, Err: err}
	}

	if err := port.SetReadTimeout(l.config.ReadTimeout); err != nil {
		port.Close()
		return nil, &Error{Kind: KindOpen, Path: l.config.Path, Err: err}
	}

	log.Infof("Opened device '%s' at %d baud.", l.config.Path, l.config.BaudRate)

	l.port = port

	return port, nil
}

func (l *Link) closePort() {
	if l.port == nil {
		return
	}

	if err := l.port.Close(); err != nil {
		log.Errorf("Error while closing device: %v", err)
	}

	l.port = nil
}

// exchange writes a single command and reads the response.
func (l *Link) exchange(port Port, command string) (Response, error) {
	log.Debugf("Link outgoing: %s", command)

	if err := writeCommand(port, command); err != nil {
		return Response{}, &Error{Kind: KindWrite, Path: l.config.Path, Err: err}
	}

	text, err := readResponse(port, l.config.MaxEmptyReads, l.config.MaxResponseTime)

	if err != nil {
		// Whatever arrived before the failure is kept for diagnostics.
		return Response{
			Command: command,
			Text:    text,
		}, &Error{Kind: KindRead, Path: l.config.Path, Err: err}
	}

	log.Debugf("Link incoming: %s", text)

	return Response{
		Command:    command,
		Text:       text,
		Completion: CompletionSentinel,
	}, nil
}

func writeCommand(w io.Writer, command string) error {
	data := []byte(command + LineTerminator)

	for len(data) > 0 {
		n, err := w.Write(data)

		if err != nil {
			return err
		}

		if n == 0 {
			return io.ErrShortWrite
		}

		data = data[n:]
	}

	return nil
}

// readResponse accumulates text until the sentinel appears. Chunks that are
// not valid UTF-8 are discarded. It gives up after maxEmptyReads
// consecutive reads without any bytes, or when the sentinel has not shown
// up within maxResponseTime, whichever comes first.
func readResponse(r io.Reader, maxEmptyReads int, maxResponseTime time.Duration) (string, error) {
	buffer := make([]byte, ReadBufferSize)
	response := strings.Builder{}
	empty := 0
	deadline := time.Now().Add(maxResponseTime)

	for {
		if time.Now().After(deadline) {
			log.Errorf("No response within %s, received so far: %q", maxResponseTime, response.String())
			return response.String(), ErrTimeout
		}

		n, err := r.Read(buffer)

		if n > 0 {
			empty = 0
			chunk := buffer[:n]

			if !utf8.Valid(chunk) {
				log.Debugf("Discarding invalid UTF-8 sequence: %q", chunk)
			} else {
				response.Write(chunk)

				if strings.Contains(response.String(), Sentinel) {
					return response.String(), nil
				}
			}
		}

		if err != nil && !isTimeout(err) {
			return response.String(), err
		}

		if n == 0 {
			empty++

			if empty >= maxEmptyReads {
				log.Errorf("Timeout after %d empty reads, received so far: %q", empty, response.String())
				return response.String(), ErrTimeout
			}
		}
	}
}

type timeout interface {
	Timeout() bool
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}

	var t timeout

	return errors.As(err, &t) && t.Timeout()
}
