package link

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/basilfx/go-utilities/taskrunner"
	"github.com/twinj/uuid"

	log "github.com/sirupsen/logrus"
)

// QueueSize is the number of requests that can wait for the device.
const QueueSize = 32

// DefaultBaudRate is used when no baud rate is configured.
const DefaultBaudRate = 115200

// DefaultReadTimeout is the time a single read waits for bytes.
const DefaultReadTimeout = time.Second

// DefaultMaxEmptyReads is the number of consecutive empty reads after which
// an exchange times out.
const DefaultMaxEmptyReads = 10

// DefaultMaxResponseTime bounds a single exchange, also when the device
// keeps sending text without ever completing the response. Probing and
// homing report progress while they run, so it is well above the
// empty-read timeout.
const DefaultMaxResponseTime = 2 * time.Minute

// Config contains the settings of a link. It is copied on construction.
type Config struct {
	Path     string
	BaudRate int

	// TestMode makes every exchange return a synthetic response without
	// opening the device.
	TestMode bool

	ReadTimeout   time.Duration
	MaxEmptyReads int

	// MaxResponseTime is the longest a single response may take.
	MaxResponseTime time.Duration

	// Open is used to open the device. Defaults to OpenSerial.
	Open Opener
}

// Link serializes all exchanges with a single device. Requests of all
// handles are served one at a time, in the order they were queued.
type Link struct {
	config Config
	port   Port

	taskRunner *taskrunner.TaskRunner

	requests chan *request
	handles  map[string]*Handle
	lock     sync.RWMutex

	done      chan struct{}
	closeOnce sync.Once

	counter uint32
}

// New returns a new initialized instance of Link.
func New(config Config) *Link {
	if config.BaudRate <= 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultReadTimeout
	}
	if config.MaxEmptyReads <= 0 {
		config.MaxEmptyReads = DefaultMaxEmptyReads
	}
	if config.MaxResponseTime <= 0 {
		config.MaxResponseTime = DefaultMaxResponseTime
	}
	if config.Open == nil {
		config.Open = OpenSerial
	}

	return &Link{
		config:     config,
		requests:   make(chan *request, QueueSize),
		handles:    map[string]*Handle{},
		done:       make(chan struct{}),
		taskRunner: taskrunner.New(),
	}
}

// Config returns the configuration of the link.
func (l *Link) Config() Config {
	return l.config
}

// Acquire registers a new handle. The handle must be released when the
// caller is done with it.
func (l *Link) Acquire() *Handle {
	h := &Handle{
		id:   uuid.NewV4().String(),
		link: l,
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	l.handles[h.id] = h

	log.Debugf("Handle '%s' acquired.", h.id)

	return h
}

func (l *Link) release(id string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.handles[id]; !ok {
		return
	}

	delete(l.handles, id)

	log.Debugf("Handle '%s' released.", id)
}

// Handles returns the number of handles that are not released.
func (l *Link) Handles() int {
	l.lock.RLock()
	defer l.lock.RUnlock()

	return len(l.handles)
}

// submit queues a request and waits for its result. Cancelling ctx stops
// the wait, but an exchange that already started runs to completion.
func (l *Link) submit(ctx context.Context, r *request) (Response, error) {
	r.ctx = ctx
	r.id = atomic.AddUint32(&l.counter, 1)
	r.response = make(chan result, 1)

	select {
	case <-l.done:
		return Response{}, ErrShutdown
	default:
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-l.done:
		return Response{}, ErrShutdown
	case l.requests <- r:
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case res := <-r.response:
		return res.response, res.err
	case <-l.done:
		select {
		case res := <-r.response:
			return res.response, res.err
		default:
			return Response{}, ErrShutdown
		}
	}
}

// Serve runs the worker until Shutdown is called. The device is closed
// when it returns.
func (l *Link) Serve() {
	l.taskRunner.RunWithCancel("Link.Worker", l.workerTask)

	// Wait for the worker to complete.
	l.taskRunner.Wait()

	l.closePort()
}

// Shutdown the link. An exchange in progress is completed first.
func (l *Link) Shutdown() {
	l.closeOnce.Do(func() {
		close(l.done)
	})

	if l.taskRunner != nil {
		l.taskRunner.Cancel()
	}
}

// Handle is the per-caller access point to a link.
type Handle struct {
	id       string
	link     *Link
	released int32
}

// ID returns the identifier of the handle.
func (h *Handle) ID() string {
	return h.id
}

// Send writes a command to the device and waits for the response.
func (h *Handle) Send(ctx context.Context, command string) (Response, error) {
	if atomic.LoadInt32(&h.released) == 1 {
		return Response{}, ErrReleased
	}

	return h.link.submit(ctx, &request{
		typ:     requestCommand,
		handle:  h.id,
		command: command,
	})
}

// SendFile streams content to a file named name on the SD card of the
// device. The device is held for the whole transfer.
func (h *Handle) SendFile(ctx context.Context, name string, content string) (Response, error) {
	if atomic.LoadInt32(&h.released) == 1 {
		return Response{}, ErrReleased
	}

	return h.link.submit(ctx, &request{
		typ:     requestFile,
		handle:  h.id,
		name:    name,
		content: content,
	})
}

// Release the handle. It is safe to call Release more than once.
func (h *Handle) Release() {
	if !atomic.CompareAndSwapInt32(&h.released, 0, 1) {
		return
	}

	h.link.release(h.id)
}
