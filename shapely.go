package shapely

import (
	"context"
	"time"
)

// ReturnCapability is the synthetic capability through which the model hands back the answer.
const ReturnCapability = "return"

const returnDescription = "return response or result"

// FunctionSchema is one capability as advertised to the chat model.
type FunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// CallMode selects how the chat model may pick a capability on its next turn.
type CallMode int

const (
	// CallAuto lets the model decide whether and which capability to call.
	CallAuto CallMode = iota
	// CallNone asks the model not to call anything. Run mode turns it into a forced return.
	CallNone
	// CallNamed forces the capability in ForcedCall.Name.
	CallNamed
)

// ForcedCall is the forced-call directive sent with a completion request. The zero value is Auto.
type ForcedCall struct {
	Mode CallMode
	Name string
}

// Auto lets the model choose.
func Auto() ForcedCall { return ForcedCall{Mode: CallAuto} }

// NoCall asks the model not to call a capability.
func NoCall() ForcedCall { return ForcedCall{Mode: CallNone} }

// Force requires the model to call the named capability.
func Force(name string) ForcedCall { return ForcedCall{Mode: CallNamed, Name: name} }

// Forces reports whether the directive names a specific capability.
func (f ForcedCall) Forces() bool { return f.Mode == CallNamed && f.Name != "" }

func (f ForcedCall) String() string {
	switch f.Mode {
	case CallNone:
		return "none"
	case CallNamed:
		return "name:" + f.Name
	}
	return "auto"
}

// ChatModel is the boundary to a provider's chat/function-calling endpoint. It must return
// exactly one message. Transport retries and timeouts belong to the implementation; any error
// it returns is fatal to the current attempt.
type ChatModel interface {
	ChatCompletion(ctx context.Context, messages []Message, functions []FunctionSchema, call ForcedCall) (Message, error)
}

// ChatModelFunc adapts a function to ChatModel.
type ChatModelFunc func(ctx context.Context, messages []Message, functions []FunctionSchema, call ForcedCall) (Message, error)

func (f ChatModelFunc) ChatCompletion(ctx context.Context, messages []Message, functions []FunctionSchema, call ForcedCall) (Message, error) {
	return f(ctx, messages, functions, call)
}

// Mode names the engine operation that produced a hook event.
type Mode string

const (
	ModeAsk  Mode = "ask"
	ModeCall Mode = "call"
	ModeRun  Mode = "run"
)

// ModelCall is passed to the WithOnModelCall hook after every chat model round trip.
type ModelCall struct {
	Mode      Mode
	Functions []string
	Call      ForcedCall
	Response  Message
	Error     error
	Duration  time.Duration
}

// CapabilityExecution is passed to the WithOnCapability hook after a capability runs.
type CapabilityExecution struct {
	Mode     Mode
	Name     string
	Result   string
	Error    error
	Duration time.Duration
}

// RetryEvent is passed to the WithOnRetry hook before a corrective retry (ask and call modes)
// or when run mode feeds a malformed turn back to the model.
type RetryEvent struct {
	Mode    Mode
	Attempt int
	Err     error
}
