package link

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream to the controller. A read that times out must
// return zero bytes and no error.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Opener opens a port for the given device path and baud rate.
type Opener func(path string, baudRate int) (Port, error)

// OpenSerial opens a serial device with 8N1 framing.
func OpenSerial(path string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)

	if err != nil {
		return nil, err
	}

	return port, nil
}
