package shapely

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Engine drives a chat model through ask, call and run modes. An Engine holds no per-run state
// and may serve concurrent runs, provided each run owns its Conversation.
type Engine struct {
	model  ChatModel
	opts   engineOptions
	logger *slog.Logger
}

// NewEngine creates an Engine over model.
func NewEngine(model ChatModel, opts ...Option) *Engine {
	o := defaultEngineOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{model: model, opts: o, logger: logger}
}

// Ask requests a value of shape target. The model is forced to call the synthetic return
// capability; its arguments are validated and unwrapped. A reply without a call is returned
// as its plain content. Validation failures are fed back as function messages and retried
// (WithMaxRetries); exhaustion returns *RetryError. A nil conv starts an empty conversation.
func (e *Engine) Ask(ctx context.Context, conv *Conversation, target *Schema) (any, error) {
	if e.model == nil {
		return nil, ErrNoModel
	}
	if conv == nil {
		conv = NewConversation()
	}
	ret, err := newReturnCapability(target)
	if err != nil {
		return nil, err
	}
	functions := e.advertise([]*Capability{ret})
	call := Force(ReturnCapability)

	var last Message
	res, err := Retry(ctx, e.opts.maxRetries, func(ctx context.Context, _ int) (any, error) {
		msg, err := e.complete(ctx, ModeAsk, conv, functions, call)
		if err != nil {
			return nil, err
		}
		last = msg
		if !msg.HasCall() {
			return msg.Content, nil
		}
		return ret.ParseArguments(msg.Call.Arguments)
	}, e.feedback(ctx, ModeAsk, conv))
	return res, e.exhausted(err, last)
}

// Call asks the model to pick one of caps, validates the arguments and invokes it, returning the
// capability's raw result. With a single capability and an Auto directive the call is forced to
// it. A reply without a call, or calling something other than the forced name, returns the
// reply's content. Unknown names, invalid arguments and invocation errors are fed back and
// retried like Ask; a SystemError (recovered panic) ends the call. A nil conv starts empty.
func (e *Engine) Call(ctx context.Context, conv *Conversation, caps []*Capability, call ForcedCall) (any, error) {
	if e.model == nil {
		return nil, ErrNoModel
	}
	if conv == nil {
		conv = NewConversation()
	}
	if len(caps) == 1 && call.Mode == CallAuto && caps[0] != nil {
		call = Force(caps[0].Name())
	}
	functions := e.advertise(narrow(caps, call))

	var last Message
	res, err := Retry(ctx, e.opts.maxRetries, func(ctx context.Context, _ int) (any, error) {
		msg, err := e.complete(ctx, ModeCall, conv, functions, call)
		if err != nil {
			return nil, err
		}
		last = msg
		if !msg.HasCall() || (call.Forces() && msg.Call.Name != call.Name) {
			return msg.Content, nil
		}
		c, ok := findCapability(caps, msg.Call.Name)
		if !ok {
			return nil, notFound(msg.Call.Name)
		}
		args, err := c.ParseArguments(msg.Call.Arguments)
		if err != nil {
			return nil, err
		}
		res, err := e.invoke(ctx, ModeCall, c, args)
		if err != nil {
			if IsSystemError(err) {
				return nil, err
			}
			return nil, attribute(err, c.Name())
		}
		return res, nil
	}, e.feedback(ctx, ModeCall, conv))
	return res, e.exhausted(err, last)
}

// complete performs one chat model round trip and reports it to the hook.
func (e *Engine) complete(ctx context.Context, mode Mode, conv *Conversation, functions []FunctionSchema, call ForcedCall) (Message, error) {
	start := time.Now()
	msg, err := e.model.ChatCompletion(ctx, conv.Messages(), functions, call)
	dur := time.Since(start)
	if e.opts.onModelCall != nil {
		names := make([]string, len(functions))
		for i, f := range functions {
			names[i] = f.Name
		}
		e.opts.onModelCall(ctx, ModelCall{Mode: mode, Functions: names, Call: call, Response: msg, Error: err, Duration: dur})
	}
	if err != nil {
		e.logger.ErrorContext(ctx, "chat completion failed", "mode", mode, "error", err)
		return Message{}, fmt.Errorf("chat completion: %w", err)
	}
	if msg.HasCall() {
		e.logger.DebugContext(ctx, "model called capability", "mode", mode, "capability", msg.Call.Name, "arguments", msg.Call.Arguments)
	} else {
		e.logger.DebugContext(ctx, "model replied without a call", "mode", mode)
	}
	return msg, nil
}

// invoke runs c through the engine middleware chain and panic recovery, and reports it to the hook.
func (e *Engine) invoke(ctx context.Context, mode Mode, c *Capability, args any) (res any, err error) {
	c = Wrap(c, e.opts.middlewares...)
	start := time.Now()
	defer func() {
		if e.opts.onCapability != nil {
			exec := CapabilityExecution{Mode: mode, Name: c.Name(), Error: err, Duration: time.Since(start)}
			if err == nil {
				exec.Result = normalizeOutcome(res).Result
			}
			e.opts.onCapability(ctx, exec)
		}
	}()
	if e.opts.recoverPanics {
		defer func() {
			if p := recover(); p != nil {
				res = nil
				err = &SystemError{Err: &panicError{p: p}}
			}
		}()
	}
	return c.Invoke(ctx, args)
}

// feedback returns the Retry error handler that turns a ParseError into a function message.
func (e *Engine) feedback(ctx context.Context, mode Mode, conv *Conversation) func(int, error) {
	return func(attempt int, err error) {
		pe := attribute(err, "")
		conv.Append(FunctionMessage(pe.Capability, pe.Message))
		e.logger.DebugContext(ctx, "retrying after invalid answer", "mode", mode, "attempt", attempt+1, "capability", pe.Capability, "error", pe.Message)
		if e.opts.onRetry != nil {
			e.opts.onRetry(ctx, RetryEvent{Mode: mode, Attempt: attempt + 1, Err: err})
		}
	}
}

// exhausted wraps a ParseError that survived the retry bound into a RetryError.
func (e *Engine) exhausted(err error, last Message) error {
	if err == nil || !IsParseError(err) {
		return err
	}
	attempts := e.opts.maxRetries + 1
	return &RetryError{Err: err, LastResponse: last, Attempts: attempts}
}

// advertise renders the function schemas sent to the model.
func (e *Engine) advertise(caps []*Capability) []FunctionSchema {
	out := make([]FunctionSchema, 0, len(caps))
	for _, c := range caps {
		if c == nil {
			continue
		}
		fs := c.FunctionSchema()
		if e.opts.strict {
			fs.Parameters = c.args.wire.JSONSchema()
			applyStrictMode(fs.Parameters)
		}
		out = append(out, fs)
	}
	return out
}

func notFound(name string) *ParseError {
	return &ParseError{Message: fmt.Sprintf("Function %s not found", name), Capability: name, Err: ErrCapabilityNotFound}
}
