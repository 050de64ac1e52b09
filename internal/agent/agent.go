package agent

import (
	"context"
	"fmt"

	"github.com/rcliao/recall/internal/logger"
	"github.com/rcliao/recall/internal/model"
)

// MaxRounds bounds the completion calls made for one user turn.
const MaxRounds = 10

// Result is the outcome of a run. Exhausted is set when the round budget
// ran out while the model was still requesting tools; Text then holds
// whatever the last round produced.
type Result struct {
	Text      string
	Rounds    int
	Exhausted bool
}

// Agent drives the tool-use loop.
type Agent struct {
	completer Completer
	tools     *Toolbox
	log       logger.Logger
	maxRounds int
}

// New creates an agent. tools may be nil for a tool-free agent.
func New(c Completer, tools *Toolbox, log logger.Logger) *Agent {
	if log == nil {
		log = logger.Nop()
	}
	return &Agent{
		completer: c,
		tools:     tools,
		log:       log.WithFields(logger.StringField("component", "agent")),
		maxRounds: MaxRounds,
	}
}

// Run sends history with the system prompt and executes requested tools
// until the model answers without tools or the round budget is spent.
// Tokens are passed to onToken as they arrive; it may be nil.
func (a *Agent) Run(ctx context.Context, system string, history []Message, onToken func(string)) (*Result, error) {
	msgs := make([]Message, len(history), len(history)+2*a.maxRounds)
	copy(msgs, history)
	specs := a.tools.Specs()

	for round := 1; ; round++ {
		resp, err := Complete(ctx, a.completer, Request{System: system, Messages: msgs, Tools: specs}, onToken)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		if len(resp.ToolCalls) == 0 {
			return &Result{Text: resp.Text, Rounds: round}, nil
		}
		if round >= a.maxRounds {
			a.log.Warn("round budget exhausted", logger.IntField("rounds", round), logger.IntField("pending_tools", len(resp.ToolCalls)))
			return &Result{Text: resp.Text, Rounds: round, Exhausted: true}, nil
		}

		msgs = append(msgs, Message{Role: model.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls})
		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, a.execute(ctx, call))
		}
		msgs = append(msgs, Message{Role: model.RoleUser, ToolResults: results})
	}
}

// execute runs one call. Failures become error results for the model.
func (a *Agent) execute(ctx context.Context, call ToolCall) ToolResult {
	log := a.log.WithFields(logger.StringField("tool", call.Name), logger.StringField("call_id", call.ID))

	tool, err := DecodeCall(call.Name, call.Input)
	if err == nil {
		var out string
		out, err = a.tools.Execute(ctx, tool)
		if err == nil {
			log.Debug("tool succeeded", logger.IntField("bytes", len(out)))
			return ToolResult{CallID: call.ID, Content: out}
		}
	}
	log.Warn("tool failed", logger.ErrorField(err))
	return ToolResult{CallID: call.ID, Content: "error: " + err.Error(), IsError: true}
}

// Summarize asks for a short tool-free summary of a conversation.
func Summarize(ctx context.Context, c Completer, transcript []Message) (string, error) {
	msgs := make([]Message, 0, len(transcript)+1)
	for _, m := range transcript {
		if m.Text != "" && (m.Role == model.RoleUser || m.Role == model.RoleAssistant) {
			msgs = append(msgs, Message{Role: m.Role, Text: m.Text})
		}
	}
	msgs = append(msgs, Message{Role: model.RoleUser, Text: summaryRequest})

	resp, err := Complete(ctx, c, Request{System: summarySystem, Messages: msgs}, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

const (
	summarySystem  = "You write concise summaries of conversations for later retrieval."
	summaryRequest = "Summarize this conversation in one short paragraph. Mention the topics discussed and any decisions or facts about the user."
)
