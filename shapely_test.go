package shapely

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// request is one recorded chat completion.
type request struct {
	messages  []Message
	functions []FunctionSchema
	call      ForcedCall
}

// stubModel replays scripted replies in order and records every request.
// Running out of replies is an error so a test never loops forever.
type stubModel struct {
	replies  []func(request) (Message, error)
	requests []request
}

func (m *stubModel) ChatCompletion(_ context.Context, messages []Message, functions []FunctionSchema, call ForcedCall) (Message, error) {
	req := request{messages: messages, functions: functions, call: call}
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return Message{}, errors.New("stub model: script exhausted")
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next(req)
}

func (m *stubModel) reply(msgs ...Message) *stubModel {
	for _, msg := range msgs {
		m.replies = append(m.replies, func(request) (Message, error) { return msg, nil })
	}
	return m
}

func (m *stubModel) replyFunc(fn func(request) (Message, error)) *stubModel {
	m.replies = append(m.replies, fn)
	return m
}

func callMsg(name, args string) Message {
	return Message{Role: RoleAssistant, Call: &CallRequest{Name: name, Arguments: args}}
}

func textMsg(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

func functionNames(fs []FunctionSchema) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func newCapability(t *testing.T, name, desc string, shape any, fn Invoker) *Capability {
	t.Helper()
	c, err := NewDynamicCapability(name, desc, shape, fn)
	require.NoError(t, err)
	return c
}
