package shapely

import (
	"context"
	"fmt"
	"slices"
)

// Corrective messages fed back to the model on malformed run-mode turns.
const (
	noCallNudge     = "No function has been called, use the functions and only the functions"
	wrongCallNotice = "Wrong function called"
)

// runState is the mutable state threaded through run-mode iterations. Capability outcomes
// replace its fields through a Patch.
type runState struct {
	conv *Conversation
	caps []*Capability
	call ForcedCall
}

func (s *runState) apply(p Patch) {
	if p.Messages != nil {
		s.conv.Replace(p.Messages)
	}
	if p.Capabilities != nil {
		s.caps = p.Capabilities
	}
	if p.ForcedCall != nil {
		s.call = *p.ForcedCall
	}
}

// Run lets the model drive: each turn it calls one of caps, and the engine executes it and
// feeds the result back, until the model calls return with a value valid for target (or a
// capability interrupts). A NoCall directive is sent as a forced return so termination stays
// reachable. Capability errors and invalid arguments become result text; only chat model errors,
// an invalid return call (beyond WithReturnRetries) and the WithMaxNudges bound end the run with
// an error. A nil conv starts an empty conversation.
func (e *Engine) Run(ctx context.Context, conv *Conversation, caps []*Capability, call ForcedCall, target *Schema) (any, error) {
	if e.model == nil {
		return nil, ErrNoModel
	}
	if conv == nil {
		conv = NewConversation()
	}
	if target == nil {
		target = String()
	}
	ret, err := newReturnCapability(target)
	if err != nil {
		return nil, err
	}
	st := &runState{conv: conv, caps: caps, call: call}
	nudges, returnFailures := 0, 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		functions := e.advertise(slices.Concat(narrow(st.caps, st.call), []*Capability{ret}))
		directive := st.call
		if directive.Mode == CallNone {
			directive = Force(ReturnCapability)
		}

		msg, err := e.complete(ctx, ModeRun, st.conv, functions, directive)
		if err != nil {
			return nil, err
		}

		if !msg.HasCall() {
			st.conv.Append(msg, UserMessage(noCallNudge))
			if err := e.nudge(ctx, &nudges, &ParseError{Message: noCallNudge}); err != nil {
				return nil, err
			}
			continue
		}

		name := msg.Call.Name
		if name == ReturnCapability {
			v, err := ret.ParseArguments(msg.Call.Arguments)
			if err == nil {
				return v, nil
			}
			if returnFailures >= e.opts.returnRetries {
				return nil, err
			}
			returnFailures++
			pe := attribute(err, ReturnCapability)
			st.conv.Append(msg, FunctionMessage(ReturnCapability, pe.Message))
			e.retried(ctx, returnFailures, pe)
			continue
		}

		if st.call.Forces() && name != st.call.Name {
			st.conv.Append(msg, FunctionMessage(name, wrongCallNotice))
			if err := e.nudge(ctx, &nudges, &ParseError{Message: wrongCallNotice, Capability: name}); err != nil {
				return nil, err
			}
			continue
		}

		if msg.Content != "" {
			e.logger.DebugContext(ctx, "model passed content alongside a call", "capability", name, "content", msg.Content)
		}

		c, ok := findCapability(st.caps, name)
		if !ok {
			nf := notFound(name)
			st.conv.Append(msg, FunctionMessage(name, nf.Message))
			if err := e.nudge(ctx, &nudges, nf); err != nil {
				return nil, err
			}
			continue
		}

		result, interrupt := e.execute(ctx, st, c, msg.Call.Arguments)
		if interrupt {
			return result, nil
		}
		st.conv.Append(msg, FunctionMessage(name, result))
	}
}

// execute validates arguments, invokes c and applies its outcome to st. Argument and invocation
// errors are returned as result text so the model can react to them.
func (e *Engine) execute(ctx context.Context, st *runState, c *Capability, raw string) (string, bool) {
	args, err := c.ParseArguments(raw)
	if err != nil {
		return attribute(err, c.Name()).Message, false
	}
	res, err := e.invoke(ctx, ModeRun, c, args)
	if err != nil {
		e.logger.DebugContext(ctx, "capability failed, feeding error back", "capability", c.Name(), "error", err)
		return err.Error(), false
	}
	out := normalizeOutcome(res)
	st.apply(out.Patch)
	return out.Result, out.Patch.Interrupt
}

// nudge counts a malformed turn against WithMaxNudges.
func (e *Engine) nudge(ctx context.Context, nudges *int, cause *ParseError) error {
	*nudges++
	e.retried(ctx, *nudges, cause)
	if e.opts.maxNudges != Unbounded && *nudges > e.opts.maxNudges {
		return fmt.Errorf("%w after %d turns: %s", ErrNudgesExhausted, *nudges, cause.Message)
	}
	return nil
}

func (e *Engine) retried(ctx context.Context, attempt int, err *ParseError) {
	e.logger.DebugContext(ctx, "feeding malformed turn back to the model", "mode", ModeRun, "attempt", attempt, "capability", err.Capability, "error", err.Message)
	if e.opts.onRetry != nil {
		e.opts.onRetry(ctx, RetryEvent{Mode: ModeRun, Attempt: attempt, Err: err})
	}
}
