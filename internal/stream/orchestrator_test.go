package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/genai"

	"github.com/okarin0/relay/internal/log"
	"github.com/okarin0/relay/internal/search"
	"github.com/okarin0/relay/internal/stream"
	"github.com/okarin0/relay/internal/tools"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeModel struct {
	generateResp *genai.GenerateContentResponse
	generateErr  error

	chunks    []string
	streamErr error

	streamCalls int
	streamTurns []*genai.Content
}

func (m *fakeModel) Generate(_ context.Context, _ []*genai.Content) (*genai.GenerateContentResponse, error) {
	return m.generateResp, m.generateErr
}

func (m *fakeModel) Stream(_ context.Context, turns []*genai.Content) iter.Seq2[string, error] {
	m.streamCalls++
	m.streamTurns = turns
	return func(yield func(string, error) bool) {
		for _, c := range m.chunks {
			if !yield(c, nil) {
				return
			}
		}
		if m.streamErr != nil {
			yield("", m.streamErr)
		}
	}
}

type captureEmitter struct {
	events   []stream.Event
	comments int

	// failAfter, when non-negative, makes Emit fail once that many events
	// have been accepted.
	failAfter int
}

func newCaptureEmitter() *captureEmitter {
	return &captureEmitter{failAfter: -1}
}

func (e *captureEmitter) Emit(ev stream.Event) error {
	if e.failAfter >= 0 && len(e.events) >= e.failAfter {
		return errors.New("client gone")
	}
	e.events = append(e.events, ev)
	return nil
}

func (e *captureEmitter) Comment() error {
	e.comments++
	return nil
}

func (e *captureEmitter) kinds() []string {
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		switch ev.(type) {
		case stream.ToolCallEvent:
			out = append(out, "tool_call")
		case stream.DeltaEvent:
			out = append(out, "delta")
		case stream.ErrorEvent:
			out = append(out, "error")
		case stream.DoneEvent:
			out = append(out, "done")
		}
	}
	return out
}

type captureRecorder struct {
	calls  int
	prompt string
	result string
	name   string
	err    error
}

func (r *captureRecorder) SaveConversation(_ context.Context, prompt, result, name string) error {
	r.calls++
	r.prompt = prompt
	r.result = result
	r.name = name
	return r.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: text}},
			},
		}},
	}
}

func callResponse(name string, args map[string]any) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{Name: name, Args: args}}},
			},
		}},
	}
}

// newRegistry wires the real tool set against a stub search provider.
func newRegistry(t *testing.T, handler http.HandlerFunc) *tools.Registry {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := search.NewClient(search.WithBaseURL(srv.URL), search.WithHTTPClient(srv.Client()))
	svc := search.NewService(client, log.NewNop())
	return tools.NewRegistry(tools.NewInternetSearch(svc, log.NewNop()))
}

func searchOK(t *testing.T) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		results := []map[string]any{}
		for range 6 {
			results = append(results, map[string]any{
				"title": "Go", "url": "https://go.dev", "content": "the Go programming language", "score": 0.9,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}
}

func newOrchestrator(t *testing.T, p stream.Params) *stream.Orchestrator {
	t.Helper()
	if p.Registry == nil {
		p.Registry = newRegistry(t, searchOK(t))
	}
	if p.PromptSummary == "" {
		p.PromptSummary = "what is go"
	}
	if p.ConversationName == "" {
		p.ConversationName = "default"
	}
	p.History = []*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: "what is go"}}}}
	o, err := stream.New(p)
	require.NoError(t, err)
	return o
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	t.Parallel()

	base := func() stream.Params {
		return stream.Params{
			Model:    &fakeModel{},
			Registry: tools.NewRegistry(tools.NewInternetSearch(search.NewService(search.NewClient(), log.NewNop()), log.NewNop())),
			Recorder: &captureRecorder{},
			Emitter:  newCaptureEmitter(),
		}
	}

	tests := []struct {
		name   string
		mutate func(*stream.Params)
	}{
		{"model", func(p *stream.Params) { p.Model = nil }},
		{"registry", func(p *stream.Params) { p.Registry = nil }},
		{"recorder", func(p *stream.Params) { p.Recorder = nil }},
		{"emitter", func(p *stream.Params) { p.Emitter = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := base()
			tt.mutate(&p)
			_, err := stream.New(p)
			assert.Error(t, err)
		})
	}
}

func TestRunDirectStream(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateResp: textResponse("ignored"), chunks: []string{"Hello ", "world"}}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	assert.Equal(t, []string{"delta", "delta", "done"}, emitter.kinds())
	assert.Equal(t, 1, model.streamCalls)

	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, "what is go", recorder.prompt)
	assert.Equal(t, "Hello world", recorder.result)
	assert.Equal(t, "default", recorder.name)
}

func TestRunToolRoundTrip(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		generateResp: callResponse(tools.InternetSearchName, map[string]any{"query": "go"}),
		chunks:       []string{"Go is ", "a language"},
	}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	assert.Equal(t, []string{"tool_call", "delta", "delta", "done"}, emitter.kinds())

	call, ok := emitter.events[0].(stream.ToolCallEvent)
	require.True(t, ok)
	assert.Equal(t, tools.InternetSearchName, call.Name)
	assert.Equal(t, map[string]any{"query": "go"}, call.Args)

	// The final stream sees the model's call turn and the tool response
	// appended after the original history.
	require.Len(t, model.streamTurns, 3)
	assert.Equal(t, genai.RoleModel, model.streamTurns[1].Role)
	last := model.streamTurns[2]
	assert.Equal(t, "tool", last.Role)
	require.Len(t, last.Parts, 1)
	fr := last.Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, tools.InternetSearchName, fr.Name)
	assert.Contains(t, fr.Response, "results")

	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, "Go is a language", recorder.result)
}

func TestRunToolFailure(t *testing.T) {
	t.Parallel()

	registry := newRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	model := &fakeModel{generateResp: callResponse(tools.InternetSearchName, map[string]any{"query": "go"})}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Registry: registry, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	assert.Equal(t, []string{"tool_call", "error", "done"}, emitter.kinds())
	errEv, ok := emitter.events[1].(stream.ErrorEvent)
	require.True(t, ok)
	assert.Contains(t, errEv.Message, "An error occurred while using the search tool:")

	assert.Zero(t, model.streamCalls)
	assert.Zero(t, recorder.calls)
}

func TestRunUnknownTool(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateResp: callResponse("imagine", map[string]any{"prompt": "a cat"})}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	assert.Equal(t, []string{"tool_call", "delta", "done"}, emitter.kinds())
	delta, ok := emitter.events[1].(stream.DeltaEvent)
	require.True(t, ok)
	assert.Equal(t, "Error: Model tried to call an unknown function 'imagine'.", delta.Text)

	// The diagnostic is the response text, so the pair persists.
	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, delta.Text, recorder.result)
}

func TestRunProbeFailure(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateErr: errors.New("quota exceeded")}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	assert.Equal(t, []string{"error", "done"}, emitter.kinds())
	assert.Zero(t, recorder.calls)
}

func TestRunStreamFaultKeepsPartialText(t *testing.T) {
	t.Parallel()

	model := &fakeModel{
		generateResp: textResponse("ignored"),
		chunks:       []string{"partial"},
		streamErr:    errors.New("connection reset"),
	}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	assert.Equal(t, []string{"delta", "error", "done"}, emitter.kinds())
	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, "partial", recorder.result)
}

func TestRunEmptyPromptSummarySkipsPersistence(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateResp: textResponse("ignored"), chunks: []string{"hi"}}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	history := []*genai.Content{{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "hello"}}}}
	o, err := stream.New(stream.Params{
		Model:            model,
		Registry:         newRegistry(t, searchOK(t)),
		Recorder:         recorder,
		Emitter:          emitter,
		History:          history,
		ConversationName: "default",
	})
	require.NoError(t, err)
	o.Run(context.Background())

	assert.Equal(t, []string{"delta", "done"}, emitter.kinds())
	assert.Zero(t, recorder.calls)
}

func TestRunSaveFailureReportsBeforeDone(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateResp: textResponse("ignored"), chunks: []string{"hi"}}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{err: errors.New("pool closed")}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	require.Equal(t, []string{"delta", "error", "done"}, emitter.kinds())
	errEv := emitter.events[1].(stream.ErrorEvent)
	assert.Equal(t, "DB save failed: pool closed", errEv.Message)
}

func TestRunEmitterClosedStopsStreaming(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateResp: textResponse("ignored"), chunks: []string{"a", "b", "c"}}
	emitter := newCaptureEmitter()
	emitter.failAfter = 1
	recorder := &captureRecorder{}

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(context.Background())

	// Only the first delta got out; the text accepted so far still persists.
	assert.Equal(t, []string{"delta"}, emitter.kinds())
	require.Equal(t, 1, recorder.calls)
	assert.Equal(t, "a", recorder.result)
}

func TestRunCanceledContextStopsStream(t *testing.T) {
	t.Parallel()

	model := &fakeModel{generateResp: textResponse("ignored"), chunks: []string{"a", "b"}}
	emitter := newCaptureEmitter()
	recorder := &captureRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(t, stream.Params{Model: model, Recorder: recorder, Emitter: emitter})
	o.Run(ctx)

	assert.Equal(t, []string{"done"}, emitter.kinds())
	assert.Zero(t, recorder.calls)
}

func TestEventMarshal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   stream.Event
		want string
	}{
		{"tool_call", stream.ToolCallEvent{Name: "internet_search", Args: map[string]any{"query": "go"}},
			`{"type":"tool_call","name":"internet_search","args":{"query":"go"}}`},
		{"tool_call nil args", stream.ToolCallEvent{Name: "internet_search"},
			`{"type":"tool_call","name":"internet_search","args":{}}`},
		{"delta", stream.DeltaEvent{Text: "hi"}, `{"type":"delta","text":"hi"}`},
		{"error", stream.ErrorEvent{Message: "boom"}, `{"type":"error","message":"boom"}`},
		{"done", stream.DoneEvent{}, `{"type":"done"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := json.Marshal(tt.ev)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}
}
