// Package testutil provides test helpers for shapely: a scripted chat model and
// constructors for engines and registries suited to tests.
package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/skosovsky/shapely"
)

// ErrScriptExhausted is returned by ScriptedModel when a request arrives after the last reply.
var ErrScriptExhausted = errors.New("scripted model: no reply left")

// Request is one chat completion recorded by ScriptedModel.
type Request struct {
	Messages  []shapely.Message
	Functions []shapely.FunctionSchema
	Call      shapely.ForcedCall
}

// FunctionNames returns the names of the advertised functions, in order.
func (r Request) FunctionNames() []string {
	out := make([]string, len(r.Functions))
	for i, f := range r.Functions {
		out[i] = f.Name
	}
	return out
}

// Reply produces the model's answer to one request.
type Reply func(ctx context.Context, req Request) (shapely.Message, error)

// ScriptedModel is a shapely.ChatModel that answers from a script and records every request.
// Safe for concurrent use.
type ScriptedModel struct {
	mu       sync.Mutex
	replies  []Reply
	requests []Request
}

// NewScriptedModel returns a model answering with msgs in order.
func NewScriptedModel(msgs ...shapely.Message) *ScriptedModel {
	m := &ScriptedModel{}
	return m.Then(msgs...)
}

// Then appends fixed replies to the script.
func (m *ScriptedModel) Then(msgs ...shapely.Message) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.replies = append(m.replies, func(context.Context, Request) (shapely.Message, error) {
			return msg, nil
		})
	}
	return m
}

// ThenFunc appends a computed reply to the script.
func (m *ScriptedModel) ThenFunc(fn Reply) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, fn)
	return m
}

// ThenError appends a reply that fails with err.
func (m *ScriptedModel) ThenError(err error) *ScriptedModel {
	return m.ThenFunc(func(context.Context, Request) (shapely.Message, error) {
		return shapely.Message{}, err
	})
}

// ChatCompletion implements shapely.ChatModel.
func (m *ScriptedModel) ChatCompletion(ctx context.Context, messages []shapely.Message, functions []shapely.FunctionSchema, call shapely.ForcedCall) (shapely.Message, error) {
	req := Request{
		Messages:  slices.Clone(messages),
		Functions: slices.Clone(functions),
		Call:      call,
	}
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		m.mu.Unlock()
		return shapely.Message{}, ErrScriptExhausted
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	m.mu.Unlock()
	return next(ctx, req)
}

// Requests returns a copy of the recorded requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

// Remaining reports how many scripted replies are left.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

// CallMessage is an assistant message requesting capability name with raw JSON arguments.
func CallMessage(name, args string) shapely.Message {
	return shapely.Message{Role: shapely.RoleAssistant, Call: &shapely.CallRequest{Name: name, Arguments: args}}
}

// ReturnMessage is an assistant message calling the return capability with raw JSON arguments.
func ReturnMessage(args string) shapely.Message {
	return CallMessage(shapely.ReturnCapability, args)
}

// TextMessage is an assistant message without a call.
func TextMessage(content string) shapely.Message {
	return shapely.Message{Role: shapely.RoleAssistant, Content: content}
}

var _ shapely.ChatModel = (*ScriptedModel)(nil)
