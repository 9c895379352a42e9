// Package sandbox runs one addon invocation at a time in an isolated
// worker subprocess, speaking a line-delimited JSON protocol over the
// worker's stdin/stdout.
package sandbox

import "encoding/json"

// Handle is the legacy plugin handle value passed on the emulated command
// line. Standalone runs have no real GUI window, so it is always -1.
const Handle = -1

// MsgKind discriminates the channel's tagged-union message type.
type MsgKind string

const (
	// MsgExecute asks the worker to run one callback URL (controller -> worker).
	MsgExecute MsgKind = "execute"
	// MsgPrompt relays a blocking user prompt (worker -> controller).
	MsgPrompt MsgKind = "prompt"
	// MsgPromptReply answers a prompt (controller -> worker).
	MsgPromptReply MsgKind = "prompt-reply"
	// MsgResult carries the invocation outcome (worker -> controller).
	MsgResult MsgKind = "result"
	// MsgLog forwards an addon log record (worker -> controller).
	MsgLog MsgKind = "log"
	// MsgStop tells a reusable worker to exit (controller -> worker).
	MsgStop MsgKind = "stop"
)

// Message is one frame on the worker channel. Exactly the payload matching
// Kind is set.
type Message struct {
	Kind    MsgKind         `json:"kind"`
	Execute *ExecutePayload `json:"execute,omitempty"`
	Prompt  *PromptPayload  `json:"prompt,omitempty"`
	Reply   *ReplyPayload   `json:"reply,omitempty"`
	Result  *ResultPayload  `json:"result,omitempty"`
	Log     *LogPayload     `json:"log,omitempty"`
}

// ExecutePayload is the emulated host command line for one invocation.
type ExecutePayload struct {
	// BaseURL is the callback URL without its query, e.g.
	// "plugin://plugin.video.example/path".
	BaseURL string `json:"base_url"`
	// Handle is always the constant Handle value.
	Handle int `json:"handle"`
	// Query is the raw query string prefixed with "?", or "" when empty.
	Query string `json:"query"`
	// URL is the complete callback URL, for the worker's own bookkeeping.
	URL string `json:"url"`
}

// PromptPayload asks the controller to collect user input.
type PromptPayload struct {
	Text string `json:"text"`
}

// ReplyPayload answers the most recent prompt.
type ReplyPayload struct {
	Text string `json:"text"`
}

// ResultPayload reports the outcome of one invocation.
type ResultPayload struct {
	Success bool      `json:"success"`
	State   *NavState `json:"state,omitempty"`
}

// LogPayload forwards one addon log record. Level uses the host's numeric
// log levels (0 debug .. 6 fatal).
type LogPayload struct {
	Level   int    `json:"level"`
	Message string `json:"message"`
}

// Encode renders the message as one channel frame, newline included.
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
