package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/okarin0/relay/internal/gemini"
	"github.com/okarin0/relay/internal/log"
	"github.com/okarin0/relay/internal/search"
	"github.com/okarin0/relay/internal/tools"
)

// persistTimeout bounds the final database write after the stream has
// ended, including after a caller disconnect.
const persistTimeout = 5 * time.Second

// Model is the subset of the provider client the orchestrator consumes.
type Model interface {
	// Generate performs one non-streaming call, used to probe for tool
	// requests before committing to a stream.
	Generate(ctx context.Context, turns []*genai.Content) (*genai.GenerateContentResponse, error)

	// Stream yields incremental text chunks for the given turns.
	Stream(ctx context.Context, turns []*genai.Content) iter.Seq2[string, error]
}

// Recorder persists one finished prompt/response pair.
type Recorder interface {
	SaveConversation(ctx context.Context, prompt, result, conversationName string) error
}

// state enumerates the positions of the orchestration machine. Transitions
// only move forward; every path ends in stateDone.
type state int

const (
	stateStart state = iota
	stateFirstCall
	stateDirectStream
	stateToolRequested
	stateToolExecuting
	stateToolDone
	stateToolFailed
	stateFinalStream
	stateDone
)

// Params bundles everything one Run needs.
type Params struct {
	Model    Model
	Registry *tools.Registry
	Recorder Recorder
	Emitter  Emitter
	Logger   log.Logger

	// Credentials are forwarded to tool executions.
	Credentials tools.Credentials

	// History is the full conversation, already converted to provider
	// turns, ending with the caller's latest message.
	History []*genai.Content

	// PromptSummary is the condensed latest user message used as the
	// persisted prompt. Empty when the latest message is not from the
	// user, which disables persistence.
	PromptSummary string

	// ConversationName labels the persisted record.
	ConversationName string
}

// Orchestrator runs one chat turn end to end: probe, optional tool round
// trip, stream, persist, done.
type Orchestrator struct {
	model    Model
	registry *tools.Registry
	recorder Recorder
	emitter  Emitter
	logger   log.Logger

	creds            tools.Credentials
	history          []*genai.Content
	promptSummary    string
	conversationName string
}

// New builds an Orchestrator. All of Model, Registry, Recorder and Emitter
// are required.
func New(p Params) (*Orchestrator, error) {
	switch {
	case p.Model == nil:
		return nil, errors.New("stream: model is required")
	case p.Registry == nil:
		return nil, errors.New("stream: tool registry is required")
	case p.Recorder == nil:
		return nil, errors.New("stream: recorder is required")
	case p.Emitter == nil:
		return nil, errors.New("stream: emitter is required")
	}
	logger := p.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Orchestrator{
		model:            p.Model,
		registry:         p.Registry,
		recorder:         p.Recorder,
		emitter:          p.Emitter,
		logger:           logger,
		creds:            p.Credentials,
		history:          p.History,
		promptSummary:    p.PromptSummary,
		conversationName: p.ConversationName,
	}, nil
}

// Run drives the machine to completion. It never returns an error: every
// fault is converted into an error event on the stream, and a done event
// is emitted on every path, including panics.
func (o *Orchestrator) Run(ctx context.Context) {
	var text strings.Builder

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("orchestrator panic", "panic", r)
			o.emit(ErrorEvent{Message: fmt.Sprintf("internal error: %v", r)})
		}
		o.persist(ctx, text.String())
		o.emit(DoneEvent{})
	}()

	var (
		probe  *genai.GenerateContentResponse
		call   *genai.FunctionCall
		result search.Result
	)

	st := stateStart
	for st != stateDone {
		switch st {
		case stateStart:
			st = stateFirstCall

		case stateFirstCall:
			resp, err := o.model.Generate(ctx, o.history)
			if err != nil {
				o.logger.Error("probe call failed", "error", err)
				o.emit(ErrorEvent{Message: err.Error()})
				st = stateDone
				continue
			}
			probe = resp
			if fc := gemini.FunctionCall(resp); fc != nil {
				call = fc
				st = stateToolRequested
			} else {
				st = stateDirectStream
			}

		case stateDirectStream:
			o.streamInto(ctx, o.history, &text)
			st = stateDone

		case stateToolRequested:
			o.emit(ToolCallEvent{Name: call.Name, Args: call.Args})
			if _, ok := o.registry.Lookup(call.Name); !ok {
				diag := fmt.Sprintf("Error: Model tried to call an unknown function '%s'.", call.Name)
				o.logger.Warn("unknown tool requested", "tool", call.Name)
				text.WriteString(diag)
				o.emit(DeltaEvent{Text: diag})
				st = stateDone
				continue
			}
			st = stateToolExecuting

		case stateToolExecuting:
			tool, _ := o.registry.Lookup(call.Name)
			result = tool.Execute(ctx, call.Args, o.creds)
			if result.Failed() {
				st = stateToolFailed
			} else {
				st = stateToolDone
			}

		case stateToolFailed:
			o.logger.Error("tool execution failed", "tool", call.Name, "error", result.Error)
			o.emit(ErrorEvent{Message: "An error occurred while using the search tool: " + result.Error})
			st = stateDone

		case stateToolDone:
			o.history = append(o.history,
				gemini.CallContent(probe),
				toolResponseTurn(call.Name, result),
			)
			st = stateFinalStream

		case stateFinalStream:
			o.streamInto(ctx, o.history, &text)
			st = stateDone
		}
	}
}

// streamInto consumes one streaming call, forwarding chunks as delta events
// and accumulating them into text. It stops on caller disconnect, provider
// fault, or emitter failure.
func (o *Orchestrator) streamInto(ctx context.Context, turns []*genai.Content, text *strings.Builder) {
	for chunk, err := range o.model.Stream(ctx, turns) {
		if err != nil {
			o.logger.Error("stream failed", "error", err)
			o.emit(ErrorEvent{Message: err.Error()})
			return
		}
		if chunk == "" {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := o.emitter.Emit(DeltaEvent{Text: chunk}); err != nil {
			o.logger.Debug("emitter closed mid-stream", "error", err)
			return
		}
		text.WriteString(chunk)
	}
}

// persist writes the finished pair when both sides are non-empty. The
// write outlives the request context so a late disconnect does not lose a
// completed response.
func (o *Orchestrator) persist(ctx context.Context, resultText string) {
	if o.promptSummary == "" || resultText == "" {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.recorder.SaveConversation(saveCtx, o.promptSummary, resultText, o.conversationName); err != nil {
		o.logger.Error("conversation save failed", "error", err, "conversation", o.conversationName)
		o.emit(ErrorEvent{Message: "DB save failed: " + err.Error()})
	}
}

// emit delivers one event, dropping it when the caller is gone.
func (o *Orchestrator) emit(e Event) {
	if err := o.emitter.Emit(e); err != nil {
		o.logger.Debug("emit failed", "error", err)
	}
}

// toolResponseTurn wraps a tool result as the provider's function-response
// turn, paired with the model turn that requested it.
func toolResponseTurn(name string, result search.Result) *genai.Content {
	return &genai.Content{
		Role: "tool",
		Parts: []*genai.Part{{
			FunctionResponse: &genai.FunctionResponse{
				Name:     name,
				Response: result.Payload(),
			},
		}},
	}
}
