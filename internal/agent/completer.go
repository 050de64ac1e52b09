// Package agent runs the bounded tool-use loop against a completion service.
package agent

import (
	"context"
	"encoding/json"

	"github.com/rcliao/recall/internal/model"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one turn sent to the completion service. Assistant turns may
// carry tool calls; the user turn that follows carries their results.
type Message struct {
	Role        model.Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// ToolSpec declares a tool and its JSON-schema properties.
type ToolSpec struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
}

// Request is one completion round.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Response is the aggregated result of a round.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// Completer starts a streamed completion.
type Completer interface {
	Stream(ctx context.Context, req Request) Stream
}

// Stream exposes a completion as two channels: text tokens in emission
// order, and the final aggregated response. Tokens is closed before Wait
// returns. Callers that do not care about tokens may call Wait directly.
type Stream interface {
	Tokens() <-chan string
	Wait() (*Response, error)
}

// pipe is the Stream used by the completers in this package.
type pipe struct {
	tokens chan string
	done   chan struct{}
	resp   *Response
	err    error
}

func newPipe() *pipe {
	return &pipe{
		tokens: make(chan string, 64),
		done:   make(chan struct{}),
	}
}

func (p *pipe) Tokens() <-chan string { return p.tokens }

// Wait drains unread tokens so that an ignored token channel never stalls
// the producer.
func (p *pipe) Wait() (*Response, error) {
	for range p.tokens {
	}
	<-p.done
	return p.resp, p.err
}

func (p *pipe) send(tok string) {
	if tok != "" {
		p.tokens <- tok
	}
}

func (p *pipe) finish(resp *Response, err error) {
	p.resp, p.err = resp, err
	close(p.tokens)
	close(p.done)
}

// Complete runs req and returns the aggregated response, forwarding tokens
// to onToken when it is non-nil.
func Complete(ctx context.Context, c Completer, req Request, onToken func(string)) (*Response, error) {
	s := c.Stream(ctx, req)
	for tok := range s.Tokens() {
		if onToken != nil {
			onToken(tok)
		}
	}
	return s.Wait()
}
