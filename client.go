package shapely

import (
	"context"
)

// Client is the task-level entry point: it renders a task with its parameters into a
// conversation (behind an optional system context) and hands it to an Engine.
type Client struct {
	engine  *Engine
	context string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSystemContext sets the system message prepended to every conversation.
func WithSystemContext(text string) ClientOption {
	return func(c *Client) {
		c.context = text
	}
}

// NewClient creates a Client over engine.
func NewClient(engine *Engine, opts ...ClientOption) *Client {
	c := &Client{engine: engine}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetContext replaces the system context for subsequent requests.
func (c *Client) SetContext(text string) { c.context = text }

// Engine returns the underlying engine.
func (c *Client) Engine() *Engine { return c.engine }

// Conversation builds the opening conversation for a task.
func (c *Client) Conversation(task string, params map[string]any) *Conversation {
	conv := NewConversation()
	if c.context != "" {
		conv.Append(SystemMessage(c.context))
	}
	conv.Append(UserMessage(PopulateParameters(task, params)))
	return conv
}

// Ask requests an answer of the given shape (anything Of accepts; nil means a string).
func (c *Client) Ask(ctx context.Context, question string, params map[string]any, shape any) (any, error) {
	target := String()
	if shape != nil {
		target = Normalize(Of(shape))
	}
	return c.engine.Ask(ctx, c.Conversation(question, params), target)
}

// AskAs requests an answer shaped like T and decodes it with Decode[T].
func AskAs[T any](ctx context.Context, c *Client, question string, params map[string]any) (T, error) {
	var zero T
	v, err := c.engine.Ask(ctx, c.Conversation(question, params), Normalize(TypeOf[T]()))
	if err != nil {
		return zero, err
	}
	return Decode[T](v)
}

// Call asks the model for arguments to one of caps and invokes it.
func (c *Client) Call(ctx context.Context, task string, params map[string]any, caps ...*Capability) (any, error) {
	return c.engine.Call(ctx, c.Conversation(task, params), caps, Auto())
}

// RunOption configures Client.Run.
type RunOption func(*runOptions)

type runOptions struct {
	shape any
	call  ForcedCall
}

// WithReturnShape sets the shape of the final answer (default: a string).
func WithReturnShape(shape any) RunOption {
	return func(o *runOptions) {
		o.shape = shape
	}
}

// WithForcedCall sets the initial forced-call directive (default: Auto).
func WithForcedCall(call ForcedCall) RunOption {
	return func(o *runOptions) {
		o.call = call
	}
}

// Run lets the model execute caps until it returns an answer.
func (c *Client) Run(ctx context.Context, task string, params map[string]any, caps []*Capability, opts ...RunOption) (any, error) {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	target := String()
	if o.shape != nil {
		target = Normalize(Of(o.shape))
	}
	return c.engine.Run(ctx, c.Conversation(task, params), caps, o.call, target)
}
