package shapely

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_AskNumber(t *testing.T) {
	t.Parallel()
	model := (&stubModel{}).reply(callMsg(ReturnCapability, `{"response":4}`))
	e := NewEngine(model)
	conv := NewConversation(UserMessage("How many legs does a dog have?"))

	v, err := e.Ask(context.Background(), conv, Number())
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.Equal(t, Force(ReturnCapability), req.call)
	assert.Equal(t, []string{ReturnCapability}, functionNames(req.functions))
	assert.Equal(t, returnDescription, req.functions[0].Description)
}

func TestEngine_AskObject(t *testing.T) {
	t.Parallel()
	model := (&stubModel{}).reply(callMsg(ReturnCapability, `{"name":"Ada","age":36}`))
	e := NewEngine(model)
	target := Normalize(Template(Entry("name", PrimString), Entry("age", PrimNumber)))

	v, err := e.Ask(context.Background(), NewConversation(UserMessage("who?")), target)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada", "age": 36.0}, v)
}

func TestEngine_AskWithoutCallReturnsContent(t *testing.T) {
	t.Parallel()
	model := (&stubModel{}).reply(textMsg("four"))
	v, err := NewEngine(model).Ask(context.Background(), NewConversation(UserMessage("legs?")), Number())
	require.NoError(t, err)
	assert.Equal(t, "four", v)
}

func TestEngine_AskExhaustion(t *testing.T) {
	t.Parallel()
	bad := callMsg(ReturnCapability, `{"response":"seven"}`)
	model := (&stubModel{}).reply(bad, bad, bad, bad, bad)
	conv := NewConversation(UserMessage("count"))

	_, err := NewEngine(model).Ask(context.Background(), conv, Number())
	require.Error(t, err)

	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Attempts)
	assert.Equal(t, bad, re.LastResponse)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, ErrValidation)

	require.Len(t, model.requests, 4)
	// Three corrective messages, one after each failed attempt but the last.
	msgs := conv.Messages()
	require.Len(t, msgs, 4)
	for _, m := range msgs[1:] {
		assert.Equal(t, RoleFunction, m.Role)
		assert.Equal(t, ReturnCapability, m.Name)
		assert.NotEmpty(t, m.Content)
	}
	assert.Len(t, model.requests[3].messages, 4)
}

func TestEngine_AskRecoversAfterFeedback(t *testing.T) {
	t.Parallel()
	model := (&stubModel{}).reply(
		callMsg(ReturnCapability, `{"response":"seven"}`),
		callMsg(ReturnCapability, `{"response":7}`),
	)
	var events []RetryEvent
	e := NewEngine(model, WithOnRetry(func(_ context.Context, ev RetryEvent) {
		events = append(events, ev)
	}))
	v, err := e.Ask(context.Background(), NewConversation(UserMessage("count")), Number())
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
	require.Len(t, events, 1)
	assert.Equal(t, ModeAsk, events[0].Mode)
	assert.Equal(t, 1, events[0].Attempt)
}

func TestEngine_AskModelErrorIsFatal(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	model := (&stubModel{}).replyFunc(func(request) (Message, error) { return Message{}, boom })
	_, err := NewEngine(model).Ask(context.Background(), NewConversation(), String())
	require.ErrorIs(t, err, boom)
	assert.Len(t, model.requests, 1)
}

func TestEngine_NilModel(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	_, err := e.Ask(context.Background(), NewConversation(), String())
	require.ErrorIs(t, err, ErrNoModel)
	_, err = e.Call(context.Background(), NewConversation(), nil, Auto())
	require.ErrorIs(t, err, ErrNoModel)
	_, err = e.Run(context.Background(), NewConversation(), nil, Auto(), nil)
	require.ErrorIs(t, err, ErrNoModel)
}

func TestEngine_CallSingleCapabilityIsForced(t *testing.T) {
	t.Parallel()
	double := newCapability(t, "double", "", PrimNumber, func(_ context.Context, v any) (any, error) {
		return v.(float64) * 2, nil
	})
	model := (&stubModel{}).reply(callMsg("double", `{"response":21}`))

	v, err := NewEngine(model).Call(context.Background(), NewConversation(UserMessage("double 21")), []*Capability{double}, Auto())
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, Force("double"), model.requests[0].call)
}

func TestEngine_CallNarrowsToForced(t *testing.T) {
	t.Parallel()
	a := newCapability(t, "a", "", PrimString, echo)
	b := newCapability(t, "b", "", PrimString, echo)
	model := (&stubModel{}).reply(callMsg("b", `{"response":"x"}`))

	_, err := NewEngine(model).Call(context.Background(), NewConversation(), []*Capability{a, b}, Force("b"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, functionNames(model.requests[0].functions))
}

func TestEngine_CallSoftSuccess(t *testing.T) {
	t.Parallel()
	a := newCapability(t, "a", "", PrimString, echo)
	b := newCapability(t, "b", "", PrimString, echo)

	t.Run("no call", func(t *testing.T) {
		t.Parallel()
		model := (&stubModel{}).reply(textMsg("I would rather not"))
		v, err := NewEngine(model).Call(context.Background(), NewConversation(), []*Capability{a, b}, Auto())
		require.NoError(t, err)
		assert.Equal(t, "I would rather not", v)
	})
	t.Run("wrong forced name", func(t *testing.T) {
		t.Parallel()
		msg := callMsg("a", `{"response":"x"}`)
		msg.Content = "called a instead"
		model := (&stubModel{}).reply(msg)
		v, err := NewEngine(model).Call(context.Background(), NewConversation(), []*Capability{a, b}, Force("b"))
		require.NoError(t, err)
		assert.Equal(t, "called a instead", v)
	})
}

func TestEngine_CallNotFoundIsRetried(t *testing.T) {
	t.Parallel()
	a := newCapability(t, "a", "", PrimString, echo)
	b := newCapability(t, "b", "", PrimString, echo)
	model := (&stubModel{}).reply(
		callMsg("c", `{}`),
		callMsg("a", `{"response":"ok"}`),
	)
	conv := NewConversation(UserMessage("go"))

	v, err := NewEngine(model).Call(context.Background(), conv, []*Capability{a, b}, Auto())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, FunctionMessage("c", "Function c not found"), last)
}

func TestEngine_CallInvocationErrorIsFedBack(t *testing.T) {
	t.Parallel()
	calls := 0
	flaky := newCapability(t, "flaky", "", PrimString, func(_ context.Context, v any) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("try again")
		}
		return v, nil
	})
	other := newCapability(t, "other", "", PrimString, echo)
	model := (&stubModel{}).reply(
		callMsg("flaky", `{"response":"1"}`),
		callMsg("flaky", `{"response":"2"}`),
	)
	conv := NewConversation()

	v, err := NewEngine(model).Call(context.Background(), conv, []*Capability{flaky, other}, Auto())
	require.NoError(t, err)
	assert.Equal(t, "2", v)
	assert.Equal(t, []Message{FunctionMessage("flaky", "try again")}, conv.Messages())
}

func TestEngine_CallExhaustion(t *testing.T) {
	t.Parallel()
	a := newCapability(t, "a", "", PrimNumber, echo)
	bad := callMsg("a", `{"response":"x"}`)
	model := (&stubModel{}).reply(bad, bad)

	_, err := NewEngine(model, WithMaxRetries(1)).Call(context.Background(), NewConversation(), []*Capability{a}, Auto())
	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 2, re.Attempts)
	assert.Len(t, model.requests, 2)
}

func TestEngine_CallPanicBecomesSystemError(t *testing.T) {
	t.Parallel()
	p := newCapability(t, "p", "", PrimString, func(context.Context, any) (any, error) {
		panic("kaboom")
	})
	model := (&stubModel{}).reply(callMsg("p", `{"response":"x"}`), callMsg("p", `{"response":"x"}`))
	conv := NewConversation()

	_, err := NewEngine(model).Call(context.Background(), conv, []*Capability{p}, Auto())
	require.Error(t, err)
	assert.True(t, IsSystemError(err))
	assert.NotContains(t, err.Error(), "kaboom")
	var re *RetryError
	assert.False(t, errors.As(err, &re))
	assert.Len(t, model.requests, 1)
	assert.Zero(t, conv.Len())
}

func TestEngine_NilConversation(t *testing.T) {
	t.Parallel()
	a := newCapability(t, "a", "", PrimString, echo)
	model := (&stubModel{}).reply(
		callMsg(ReturnCapability, `{"response":"x"}`),
		callMsg("a", `{"response":"y"}`),
		callMsg(ReturnCapability, `{"response":"z"}`),
	)
	e := NewEngine(model)

	v, err := e.Ask(context.Background(), nil, String())
	require.NoError(t, err)
	assert.Equal(t, "x", v)
	v, err = e.Call(context.Background(), nil, []*Capability{a}, Auto())
	require.NoError(t, err)
	assert.Equal(t, "y", v)
	v, err = e.Run(context.Background(), nil, nil, Auto(), nil)
	require.NoError(t, err)
	assert.Equal(t, "z", v)
	for _, req := range model.requests {
		assert.Empty(t, req.messages)
	}
}

func TestEngine_StrictSchemas(t *testing.T) {
	t.Parallel()
	model := (&stubModel{}).reply(callMsg(ReturnCapability, `{"name":"x","extra":null}`))
	target := Normalize(Template(Entry("name", PrimString), Entry("extra", Any())))

	_, err := NewEngine(model, WithStrictSchemas()).Ask(context.Background(), NewConversation(), target)
	require.NoError(t, err)
	params := model.requests[0].functions[0].Parameters
	assert.Equal(t, false, params["additionalProperties"])
	assert.Equal(t, []any{"extra", "name"}, params["required"])
}

func TestEngine_Hooks(t *testing.T) {
	t.Parallel()
	a := newCapability(t, "a", "", PrimString, echo)
	model := (&stubModel{}).reply(callMsg("a", `{"response":"hi"}`))
	var calls []ModelCall
	var execs []CapabilityExecution
	e := NewEngine(model,
		WithOnModelCall(func(_ context.Context, mc ModelCall) { calls = append(calls, mc) }),
		WithOnCapability(func(_ context.Context, ce CapabilityExecution) { execs = append(execs, ce) }),
	)
	_, err := e.Call(context.Background(), NewConversation(), []*Capability{a}, Auto())
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, ModeCall, calls[0].Mode)
	assert.Equal(t, []string{"a"}, calls[0].Functions)
	require.Len(t, execs, 1)
	assert.Equal(t, "a", execs[0].Name)
	assert.Equal(t, "hi", execs[0].Result)
	assert.NoError(t, execs[0].Error)
}

func TestEngine_HooksChain(t *testing.T) {
	t.Parallel()
	model := (&stubModel{}).reply(callMsg(ReturnCapability, `{"response":"x"}`))
	var order []string
	e := NewEngine(model,
		WithOnModelCall(func(context.Context, ModelCall) { order = append(order, "first") }),
		WithOnModelCall(nil),
		WithOnModelCall(func(context.Context, ModelCall) { order = append(order, "second") }),
	)
	_, err := e.Ask(context.Background(), NewConversation(), String())
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEngine_Logger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	model := (&stubModel{}).reply(callMsg(ReturnCapability, `{"response":"x"}`))
	_, err := NewEngine(model, WithLogger(logger)).Ask(context.Background(), NewConversation(), String())
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "model called capability"))
}

func TestEngine_MiddlewareApplied(t *testing.T) {
	t.Parallel()
	var order []string
	mw := func(tag string) Middleware {
		return func(next *Capability) *Capability {
			return next.withInvoker(func(ctx context.Context, args any) (any, error) {
				order = append(order, tag)
				return next.Invoke(ctx, args)
			})
		}
	}
	a := newCapability(t, "a", "", PrimString, echo)
	model := (&stubModel{}).reply(callMsg("a", `{"response":"x"}`))
	_, err := NewEngine(model, WithMiddleware(mw("outer"), mw("inner"))).
		Call(context.Background(), NewConversation(), []*Capability{a}, Auto())
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
