package mock

import (
	"context"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ChatModel is a test double for model.BaseChatModel.
type ChatModel struct {
	// GenerateFunc is called by Generate if set. If nil, Generate replies
	// with an empty assistant message.
	GenerateFunc func(ctx context.Context, input []*schema.Message) (*schema.Message, error)

	mu     sync.Mutex
	inputs [][]*schema.Message
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

func NewChatModel(fn func(ctx context.Context, input []*schema.Message) (*schema.Message, error)) *ChatModel {
	return &ChatModel{GenerateFunc: fn}
}

// Generate honours cancellation like a network-backed model would.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, input)
	}
	return schema.AssistantMessage("", nil), nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// CallCount returns the number of Generate and Stream calls.
func (m *ChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Inputs returns the messages of every call, in call order.
func (m *ChatModel) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.inputs))
	copy(out, m.inputs)
	return out
}

// Replies returns a GenerateFunc that answers with msgs in order and keeps
// repeating the last one.
func Replies(msgs ...*schema.Message) func(context.Context, []*schema.Message) (*schema.Message, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func(context.Context, []*schema.Message) (*schema.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(msgs) == 0 {
			return schema.AssistantMessage("", nil), nil
		}
		msg := msgs[min(i, len(msgs)-1)]
		i++
		return msg, nil
	}
}

// ToolCall builds an assistant message carrying one function call.
func ToolCall(name, argumentsJSON string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       fmt.Sprintf("call_%s", name),
		Function: schema.FunctionCall{Name: name, Arguments: argumentsJSON},
	}})
}

// Text builds a plain assistant reply.
func Text(content string) *schema.Message {
	return schema.AssistantMessage(content, nil)
}
