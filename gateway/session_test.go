package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	link "github.com/basilfx/go-gcode-link"
	"github.com/basilfx/go-gcode-link/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T) {
	now = func() time.Time {
		return time.Unix(1700000000, 0)
	}

	t.Cleanup(func() {
		now = time.Now
	})
}

func newTestSession(t *testing.T, l *link.Link, config Config) *Session {
	s := newSession("test", nil, l, config)

	t.Cleanup(s.handle.Release)

	return s
}

func TestSessionGCommandTelemetry(t *testing.T) {
	fixedClock(t)

	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	reply := s.process(context.Background(), Message{Type: MessageGCommand, Message: "M105"})

	assert.Equal(t, MessageGCommand, reply.Type)
	assert.Equal(t, "ok T:185.4 /200.0 B:55.2 /60.0 @:127 B@:0\n", reply.RawMessage)
	assert.Equal(t, int64(1700000000), reply.Timestamp)

	report := telemetry.TemperatureReport{}

	require.NoError(t, json.Unmarshal([]byte(reply.Message), &report))
	assert.Equal(t, 185, report.E0)
	assert.Equal(t, 200, report.E0Target)
	assert.Equal(t, 55, report.Bed)
	assert.Equal(t, 60, report.BedTarget)

	assert.Equal(t, StateIdle, s.State())
}

func TestSessionGCommandKinds(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	tests := map[string]string{
		"M114": `{"x":10,"y":20,"z":30}`,
		"M119": `{"x_min":"TRIGGERED","y_min":"open","z_min":"open","x_max":"None","y_max":"None","z_max":"None","z_probe":"None"}`,
		"M20":  `{"files":["A.GCO","B.GCO","C.GCO"]}`,
		"M27":  `{"percent":"0.2"}`,
		"M31":  `{"duration":"1h 2m 3s"}`,
	}

	for c, expected := range tests {
		reply := s.process(context.Background(), Message{Type: MessageGCommand, Message: c})

		assert.Equal(t, MessageGCommand, reply.Type, c)
		assert.JSONEq(t, expected, reply.Message, c)
	}
}

func TestSessionGCommandPlain(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	reply := s.process(context.Background(), Message{Type: MessageGCommand, Message: " G01 X10 Y10 "})

	assert.Equal(t, MessageGCommand, reply.Type)
	assert.Equal(t, "ok", reply.Message)
	assert.Equal(t, "ok\n", reply.RawMessage)
	assert.Equal(t, []string{"G01 X10 Y10"}, printer.lines())
}

func TestSessionInvalidCommand(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	for _, c := range []string{"M997", "", "hello"} {
		reply := s.process(context.Background(), Message{Type: MessageGCommand, Message: c})

		assert.Equal(t, MessageError, reply.Type, c)
		assert.Contains(t, reply.Message, "invalid command", c)
	}

	// Nothing reached the device.
	assert.Empty(t, printer.lines())
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionUnsafe(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{AllowUnsafe: true})

	reply := s.process(context.Background(), Message{Type: MessageUnsafe, Message: "M84"})

	assert.Equal(t, MessageUnsafe, reply.Type)
	assert.Equal(t, "ok", reply.Message)

	reply = s.process(context.Background(), Message{Type: MessageUnsafe, Message: "M114"})

	assert.Equal(t, MessageUnsafe, reply.Type)
	assert.JSONEq(t, `{"x":10,"y":20,"z":30}`, reply.Message)

	assert.Equal(t, []string{"M84", "M114"}, printer.lines())
}

func TestSessionTerminal(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{AllowUnsafe: true})

	reply := s.process(context.Background(), Message{Type: MessageTerminal, Message: "M114"})

	assert.Equal(t, MessageTerminal, reply.Type)
	assert.Equal(t, "X:10.00 Y:20.00 Z:30.00 E:0.00 Count X:800 Y:1600 Z:12000\nok", reply.Message)

	reply = s.process(context.Background(), Message{Type: MessageTerminal, Message: "M503"})

	assert.Equal(t, MessageTerminal, reply.Type)
	assert.Contains(t, reply.RawMessage, "M92 X80.00")
}

func TestSessionUnsafeDisabled(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{AllowUnsafe: false})

	for _, typ := range []MessageType{MessageUnsafe, MessageTerminal} {
		reply := s.process(context.Background(), Message{Type: typ, Message: "M84"})

		assert.Equal(t, MessageError, reply.Type)
		assert.Equal(t, ErrUnsafeDisabled.Error(), reply.Message)
	}

	assert.Empty(t, printer.lines())
}

func TestSessionSerialConfig(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	reply := s.process(context.Background(), Message{Type: MessageSerialConfig, Message: "/dev/ttyUSB1;9600"})

	assert.Equal(t, MessageSerialConfig, reply.Type)
	assert.JSONEq(t, `{
		"device": "/dev/ttyTEST0",
		"baud_rate": 250000,
		"test_mode": false,
		"capabilities": {
			"firmware_name": "Marlin",
			"firmware_version": "2.0.1",
			"capabilities": {"EEPROM": 1, "SDCARD": 1}
		}
	}`, reply.Message)
	assert.Equal(t, []string{"M115"}, printer.lines())
}

func TestSessionUpload(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	reply := s.process(context.Background(), Message{Type: MessageUpload, Message: "PART.GCO\n; cube\nG28\nG1 X10\n"})

	assert.Equal(t, MessageUpload, reply.Type)
	assert.Equal(t, "Done saving file.\nok", reply.Message)
	assert.Equal(t, []string{
		"M28 PART.GCO",
		"; cube",
		link.FrameLine(1, "G28"),
		link.FrameLine(2, "G1 X10"),
		"M29",
	}, printer.lines())
}

func TestSessionUploadInvalid(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	for _, message := range []string{"", "\nG28", "my part.gcode\nG28"} {
		reply := s.process(context.Background(), Message{Type: MessageUpload, Message: message})

		assert.Equal(t, MessageError, reply.Type)
		assert.Contains(t, reply.Message, ErrInvalidUpload.Error())
	}

	assert.Empty(t, printer.lines())
}

func TestSessionTransportError(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{AllowUnsafe: true})

	reply := s.process(context.Background(), Message{Type: MessageTerminal, Message: "SLOW"})

	assert.Equal(t, MessageError, reply.Type)
	assert.Contains(t, reply.Message, link.ErrTimeout.Error())

	// The session recovers for the next command.
	reply = s.process(context.Background(), Message{Type: MessageGCommand, Message: "G28"})

	assert.Equal(t, MessageGCommand, reply.Type)
}

func TestSessionTransportErrorKeepsRawText(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{AllowUnsafe: true})

	reply := s.process(context.Background(), Message{Type: MessageTerminal, Message: "BUSY"})

	assert.Equal(t, MessageError, reply.Type)
	assert.Contains(t, reply.Message, link.ErrTimeout.Error())
	assert.Equal(t, "echo:busy: processing\n", reply.RawMessage)
}

func TestSessionUploadRejected(t *testing.T) {
	printer := newFakePrinter(withResponses(map[string]string{
		"N2": "Error:Line Number is not Last Line Number+1, Last Line: 0\nResend: 1\nok\n",
	}))
	s := newTestSession(t, newTestLink(t, printer), Config{})

	reply := s.process(context.Background(), Message{Type: MessageUpload, Message: "PART.GCO\nG28\nG1 X10\nG1 X20\n"})

	assert.Equal(t, MessageError, reply.Type)
	assert.Contains(t, reply.Message, link.ErrUploadRejected.Error())
	assert.Contains(t, reply.RawMessage, "Resend: 1")
	assert.Equal(t, []string{
		"M28 PART.GCO",
		link.FrameLine(1, "G28"),
		link.FrameLine(2, "G1 X10"),
		"M29",
	}, printer.lines())
}

func TestSessionTestMode(t *testing.T) {
	l := link.New(link.Config{TestMode: true})

	go l.Serve()
	defer l.Shutdown()

	s := newTestSession(t, l, Config{})

	reply := s.process(context.Background(), Message{Type: MessageGCommand, Message: "G28"})

	assert.Equal(t, MessageGCommand, reply.Type)
	assert.Equal(t, link.TestModeResponse, reply.Message)
}

func TestSessionHandleFrame(t *testing.T) {
	printer := newFakePrinter(marlinResponses)
	s := newTestSession(t, newTestLink(t, printer), Config{})

	reply := s.handleFrame(context.Background(), []byte(`{"message_type":"GCommand","message":"M114"}`))

	assert.Equal(t, MessageGCommand, reply.Type)
	assert.JSONEq(t, `{"x":10,"y":20,"z":30}`, reply.Message)

	reply = s.handleFrame(context.Background(), []byte(`not json`))

	assert.Equal(t, MessageError, reply.Type)
	assert.Contains(t, reply.Message, ErrMalformedMessage.Error())

	reply = s.handleFrame(context.Background(), []byte(`{"message_type":"Reboot","message":""}`))

	assert.Equal(t, MessageError, reply.Type)
	assert.Contains(t, reply.Message, ErrUnknownMessageType.Error())
}
