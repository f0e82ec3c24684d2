package link

import "context"

// Completion indicates why a response was considered complete.
type Completion int

// The different completion reasons.
const (
	// CompletionSentinel means the sentinel was seen in the received text.
	CompletionSentinel Completion = iota

	// CompletionSynthetic means the response was generated without
	// touching the device (test mode).
	CompletionSynthetic
)

func (c Completion) String() string {
	switch c {
	case CompletionSentinel:
		return "sentinel"
	case CompletionSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Response contains the raw text received for a single exchange.
type Response struct {
	ID         uint32
	Command    string
	Text       string
	Completion Completion
}

type requestType int

const (
	requestCommand requestType = iota
	requestFile
)

type result struct {
	response Response
	err      error
}

// request is a unit of work for the worker task. A file request holds the
// device for the whole transfer.
type request struct {
	ctx    context.Context
	typ    requestType
	id     uint32
	handle string

	command string
	name    string
	content string

	response chan result
}
