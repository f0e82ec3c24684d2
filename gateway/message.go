package gateway

import (
	"errors"
	"time"
)

// MessageType indicates the type of the message.
type MessageType string

// The different message types.
const (
	// MessageGCommand is a command that is validated before it is sent.
	MessageGCommand MessageType = "GCommand"

	// MessageSerialConfig requests the device settings and capabilities.
	MessageSerialConfig MessageType = "SerialConfig"

	// MessageUnsafe is sent without validation, and decoded like a
	// GCommand.
	MessageUnsafe MessageType = "Unsafe"

	// MessageTerminal is sent without validation, and answered with the raw
	// response.
	MessageTerminal MessageType = "Terminal"

	// MessageUpload streams a program to the SD card. The first line of
	// the message is the file name, the rest is the program.
	MessageUpload MessageType = "Upload"

	// MessageError is only used for replies.
	MessageError MessageType = "Error"
)

// Message is an inbound message from a client.
type Message struct {
	Type    MessageType `json:"message_type"`
	Message string      `json:"message"`
}

// Reply is an outbound message to a client. Message holds either plain
// text or JSON-encoded telemetry.
type Reply struct {
	Type       MessageType `json:"message_type"`
	Message    string      `json:"message"`
	RawMessage string      `json:"raw_message"`
	Timestamp  int64       `json:"timestamp"`
}

var now = time.Now

func newReply(typ MessageType, message string, raw string) Reply {
	return Reply{
		Type:       typ,
		Message:    message,
		RawMessage: raw,
		Timestamp:  now().Unix(),
	}
}

func errorReply(err error, raw string) Reply {
	return newReply(MessageError, err.Error(), raw)
}

var (
	// ErrConnectionClosed is returned by a session when the client went
	// away.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrMalformedMessage is replied when a frame is not a valid message.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType is replied for message types that are not
	// supported.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrUnsafeDisabled is replied for passthrough messages when they are
	// not allowed.
	ErrUnsafeDisabled = errors.New("unsafe commands are disabled")

	// ErrInvalidUpload is replied for upload messages without file name.
	ErrInvalidUpload = errors.New("invalid upload")
)
