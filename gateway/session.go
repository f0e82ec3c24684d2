package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	link "github.com/basilfx/go-gcode-link"
	"github.com/basilfx/go-gcode-link/command"
	"github.com/basilfx/go-gcode-link/telemetry"
	"github.com/basilfx/go-utilities/taskrunner"

	log "github.com/sirupsen/logrus"
)

// InboxSize is the number of frames a session buffers while a command is
// being processed.
const InboxSize = 8

// State is the processing state of a session.
type State int

// The different states. Every message goes from Idle to Replying and back.
const (
	StateIdle State = iota
	StateValidating
	StateForwarding
	StateParsing
	StateReplying
)

var stateNames = []string{"idle", "validating", "forwarding", "parsing", "replying"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "unknown"
}

// Config contains the settings of the gateway.
type Config struct {
	// AllowUnsafe enables the Unsafe and Terminal message types.
	AllowUnsafe bool
}

// Session handles the messages of a single client, one at a time.
type Session struct {
	id     string
	config Config
	device link.Config

	socket *Socket
	handle *link.Handle
	log    *log.Entry

	taskRunner *taskrunner.TaskRunner
	inbox      chan []byte

	lock  sync.Mutex
	state State
	err   error
}

func newSession(id string, socket *Socket, l *link.Link, config Config) *Session {
	return &Session{
		id:         id,
		config:     config,
		device:     l.Config(),
		socket:     socket,
		handle:     l.Acquire(),
		log:        log.WithField("session", id),
		taskRunner: taskrunner.New(),
		inbox:      make(chan []byte, InboxSize),
	}
}

// ID returns the identifier of the session.
func (s *Session) ID() string {
	return s.id
}

// State returns the current processing state.
func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.state
}

func (s *Session) setState(state State) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.log.Debugf("State %s -> %s.", s.state, state)

	s.state = state
}

func (s *Session) setErr(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.err == nil {
		s.err = err
	}
}

// Serve the session until the client goes away. The link handle is
// released when it returns.
func (s *Session) Serve() error {
	defer s.handle.Release()
	defer s.socket.Close()

	s.taskRunner.RunWithCancel("Session.Reader", s.readerTask)
	s.taskRunner.RunWithCancel("Session.Processor", s.processorTask)

	// Wait for both goroutines to complete.
	s.taskRunner.Wait()

	s.lock.Lock()
	defer s.lock.Unlock()

	return s.err
}

// Close the session. A command in progress on the device is completed,
// but its reply is not delivered.
func (s *Session) Close() {
	s.taskRunner.Cancel()
	s.socket.Close()
}

// handleFrame decodes a frame and processes the message.
func (s *Session) handleFrame(ctx context.Context, data []byte) Reply {
	message := Message{}

	if err := json.Unmarshal(data, &message); err != nil {
		return s.fail(fmt.Errorf("%w: %v", ErrMalformedMessage, err))
	}

	return s.process(ctx, message)
}

func (s *Session) process(ctx context.Context, message Message) Reply {
	defer s.setState(StateIdle)

	s.log.Infof("%s: %s", message.Type, message.Message)

	switch message.Type {
	case MessageGCommand:
		return s.command(ctx, message.Type, message.Message, true, true)
	case MessageUnsafe:
		if !s.config.AllowUnsafe {
			return s.fail(ErrUnsafeDisabled)
		}

		return s.command(ctx, message.Type, message.Message, false, true)
	case MessageTerminal:
		if !s.config.AllowUnsafe {
			return s.fail(ErrUnsafeDisabled)
		}

		return s.command(ctx, message.Type, message.Message, false, false)
	case MessageSerialConfig:
		return s.serialConfig(ctx)
	case MessageUpload:
		return s.upload(ctx, message.Message)
	default:
		return s.fail(fmt.Errorf("%w: '%s'", ErrUnknownMessageType, message.Type))
	}
}

func (s *Session) fail(err error) Reply {
	return s.failRaw(err, "")
}

// failRaw replies with an error, and whatever the device sent before the
// error occurred.
func (s *Session) failRaw(err error, raw string) Reply {
	s.setState(StateReplying)
	s.log.Warnf("Replying with error: %v", err)

	return errorReply(err, raw)
}

// command forwards raw to the device. Validation and decoding of the
// response are optional, passthrough messages skip them.
func (s *Session) command(ctx context.Context, typ MessageType, raw string, validate bool, decode bool) Reply {
	cmd := strings.TrimSpace(raw)

	if validate {
		s.setState(StateValidating)

		valid, err := command.Validate(cmd)

		if err != nil {
			return s.fail(fmt.Errorf("%w: '%s'", err, cmd))
		}

		s.log.Debugf("Command '%s' is in %v.", valid, command.Classify(valid))

		cmd = valid
	}

	if cmd == "" {
		return s.fail(fmt.Errorf("%w: empty command", command.ErrInvalidCommand))
	}

	s.setState(StateForwarding)

	response, err := s.handle.Send(ctx, cmd)

	if err != nil {
		return s.failRaw(err, response.Text)
	}

	s.setState(StateParsing)

	reply := newReply(typ, strings.TrimSpace(response.Text), response.Text)

	if decode {
		mnemonic := command.Canonical(command.Mnemonic(cmd))

		if value := telemetry.Decode(telemetry.KindOf(mnemonic), response.Text); value != nil {
			data, err := json.Marshal(value)

			if err != nil {
				return s.fail(err)
			}

			reply.Message = string(data)
		}
	}

	s.setState(StateReplying)

	return reply
}

type deviceInfo struct {
	Device       string                        `json:"device"`
	BaudRate     int                           `json:"baud_rate"`
	TestMode     bool                          `json:"test_mode"`
	Capabilities telemetry.PrinterCapabilities `json:"capabilities"`
}

// serialConfig reports the device settings, which cannot be changed at
// runtime, together with the capabilities of the firmware.
func (s *Session) serialConfig(ctx context.Context) Reply {
	s.setState(StateForwarding)

	response, err := s.handle.Send(ctx, "M115")

	if err != nil {
		return s.failRaw(err, response.Text)
	}

	s.setState(StateParsing)

	data, err := json.Marshal(deviceInfo{
		Device:       s.device.Path,
		BaudRate:     s.device.BaudRate,
		TestMode:     s.device.TestMode,
		Capabilities: telemetry.DecodeCapabilities(response.Text),
	})

	if err != nil {
		return s.fail(err)
	}

	s.setState(StateReplying)

	return newReply(MessageSerialConfig, string(data), response.Text)
}

func (s *Session) upload(ctx context.Context, message string) Reply {
	s.setState(StateValidating)

	name, content, _ := strings.Cut(message, "\n")
	name = strings.TrimSpace(name)

	if name == "" || strings.ContainsAny(name, " \t\r") {
		return s.fail(fmt.Errorf("%w: file name '%s'", ErrInvalidUpload, name))
	}

	s.setState(StateForwarding)

	response, err := s.handle.SendFile(ctx, name, content)

	if err != nil {
		return s.failRaw(err, response.Text)
	}

	s.setState(StateReplying)

	return newReply(MessageUpload, strings.TrimSpace(response.Text), response.Text)
}
