// Package engine runs the orchestration decision loop.
//
// One Run handles one request end to end with no internal parallelism:
// recall context, enumerate capabilities, ask the model for a plan, then
// respond, search the web, or run a capability. Writing the turn back to
// memory is left to the caller.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/becomeliminal/nim-orchestrator/core"
	"github.com/becomeliminal/nim-orchestrator/llm"
	"github.com/becomeliminal/nim-orchestrator/memory"
	"github.com/becomeliminal/nim-orchestrator/telemetry"
	"github.com/becomeliminal/nim-orchestrator/websearch"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// PlanParseFailureText is the response when the plan is not a JSON object.
	PlanParseFailureText = "Failed to parse plan."

	// UnknownActionText is the response when the plan names no known action.
	UnknownActionText = "Unknown action."
)

// Discoverer enumerates the capabilities available for one decision.
type Discoverer interface {
	Discover(ctx context.Context) ([]core.ToolDescriptor, error)
}

// Invoker runs a capability by name.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// Engine is the decision loop and its collaborators.
type Engine struct {
	completer  llm.Completer
	registry   Discoverer
	dispatcher Invoker
	memory     memory.Manager     // Optional: context retrieval
	searcher   websearch.Searcher // Optional: without it web_search synthesises from the failure text
	structured bool               // Use CompleteJSON when the completer supports it
	inst       *telemetry.Instruments
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory sets the memory manager used for context retrieval.
func WithMemory(m memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithSearcher sets the web search collaborator.
func WithSearcher(s websearch.Searcher) Option {
	return func(e *Engine) {
		e.searcher = s
	}
}

// WithStructuredOutput toggles schema-constrained completions for the plan,
// argument extraction and tool selection. It is on by default and has no
// effect on completers without structured output support.
func WithStructuredOutput(enabled bool) Option {
	return func(e *Engine) {
		e.structured = enabled
	}
}

// WithInstruments sets the tracer and meters. Defaults to the global providers.
func WithInstruments(inst *telemetry.Instruments) Option {
	return func(e *Engine) {
		e.inst = inst
	}
}

// NewEngine creates a new engine.
func NewEngine(completer llm.Completer, registry Discoverer, dispatcher Invoker, opts ...Option) *Engine {
	e := &Engine{
		completer:  completer,
		registry:   registry,
		dispatcher: dispatcher,
		structured: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.inst == nil {
		e.inst = telemetry.Global()
	}
	return e
}

// Registry returns the engine's capability source.
func (e *Engine) Registry() Discoverer {
	return e.registry
}

// Output represents the outcome of one decision.
type Output struct {
	// Type indicates the kind of output.
	Type OutputType

	// Text is the final response. For OutputError it is the user-visible
	// failure message.
	Text string

	// Action is the planned action, empty when no plan was parsed.
	Action core.Action

	// ToolName and Args record the capability invocation for run_tool.
	ToolName string
	Args     map[string]any

	// SearchQuery is the distilled query for web_search.
	SearchQuery string

	// Error is set when Type is OutputError.
	Error error
}

// OutputType indicates the kind of output from a run.
type OutputType int

const (
	// OutputComplete indicates a response was produced.
	OutputComplete OutputType = iota

	// OutputError indicates a user-visible failure: unparseable plan,
	// unknown action, unknown capability or a failed capability.
	OutputError
)

func (t OutputType) String() string {
	if t == OutputError {
		return "error"
	}
	return "complete"
}

// Run executes the decision loop for req.
//
// User-visible failures are reported in the Output with a nil error.
// Upstream failures (completion, embedding, transcription timeouts) are
// returned as *core.UpstreamError alongside an OutputError.
func (e *Engine) Run(ctx context.Context, req *core.Request) (*Output, error) {
	start := time.Now()
	ctx, span := e.inst.Tracer.Start(ctx, "engine.run", trace.WithAttributes(
		attribute.String("nim.request.id", req.ID),
		attribute.String("nim.request.source", string(req.Source)),
	))
	defer span.End()

	out, err := e.run(ctx, req)

	status := "ok"
	switch {
	case err != nil:
		status = "upstream_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case out.Type == OutputError:
		status = "error"
		span.SetStatus(codes.Error, out.Text)
	}
	span.SetAttributes(
		attribute.String("nim.action", string(out.Action)),
		attribute.String("nim.status", status),
	)

	attrs := metric.WithAttributes(
		attribute.String("action", string(out.Action)),
		attribute.String("status", status),
	)
	e.inst.Requests.Add(ctx, 1, attrs)
	e.inst.RequestDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

	log.Printf("[ENGINE] [%s] Finished in %s (action=%q, status=%s)", shortID(req.ID), time.Since(start).Round(time.Millisecond), out.Action, status)
	return out, err
}

func (e *Engine) run(ctx context.Context, req *core.Request) (*Output, error) {
	id := shortID(req.ID)

	// === PHASE 1: RETRIEVE CONTEXT ===
	memoryContext, err := e.retrieve(ctx, req)
	if err != nil {
		return upstreamFailure(err)
	}

	// === PHASE 2: ENUMERATE CAPABILITIES ===
	snapshot, err := e.discover(ctx)
	if err != nil {
		err = fmt.Errorf("discover capabilities: %w", err)
		return &Output{Type: OutputError, Text: err.Error(), Error: err}, nil
	}
	summaries := make([]string, 0, len(snapshot))
	for _, d := range snapshot {
		summaries = append(summaries, d.Summary())
	}

	// === PHASE 3: PLAN ===
	raw, err := e.completeJSON(ctx, "plan", planningPrompt(req.Text, memoryContext, summaries), llm.PlanSchema())
	if err != nil {
		return upstreamFailure(err)
	}
	plan, err := core.ParsePlan(raw)
	if err != nil {
		log.Printf("[ENGINE] [%s] Plan rejected: %v (completion: %q)", id, err, truncateLog(raw, 200))
		return &Output{Type: OutputError, Text: PlanParseFailureText, Error: err}, nil
	}
	log.Printf("[ENGINE] [%s] Action: %s", id, plan.Action)

	// === PHASE 4: DISPATCH ===
	ctx, span := e.inst.Tracer.Start(ctx, "engine.dispatch", trace.WithAttributes(
		attribute.String("nim.action", string(plan.Action)),
	))
	defer span.End()

	switch d := plan.Decide().(type) {
	case core.Respond:
		return &Output{Type: OutputComplete, Text: d.Text, Action: core.ActionRespond}, nil

	case core.WebSearch:
		return e.webSearch(ctx, id, req.Text)

	case core.RunTool:
		return e.runTool(ctx, id, req.Text, snapshot, d)

	case core.UnknownAction:
		return &Output{
			Type:   OutputError,
			Text:   UnknownActionText,
			Action: core.Action(d.Action),
			Error:  fmt.Errorf("%w: %q", core.ErrUnknownAction, d.Action),
		}, nil
	}
	err = fmt.Errorf("unhandled decision %T", plan.Decide())
	return &Output{Type: OutputError, Text: err.Error(), Error: err}, nil
}

// retrieve recalls the context block. Upstream failures abort the request;
// anything else degrades to an empty context.
func (e *Engine) retrieve(ctx context.Context, req *core.Request) (string, error) {
	if e.memory == nil {
		return "", nil
	}
	ctx, span := e.inst.Tracer.Start(ctx, "engine.recall")
	defer span.End()

	block, err := e.memory.Retrieve(ctx, req.Text)
	if err != nil {
		span.RecordError(err)
		var ue *core.UpstreamError
		if errors.As(err, &ue) {
			return "", err
		}
		log.Printf("[MEMORY] Retrieval failed, continuing without context: %v", err)
		return "", nil
	}
	return block, nil
}

func (e *Engine) discover(ctx context.Context) ([]core.ToolDescriptor, error) {
	ctx, span := e.inst.Tracer.Start(ctx, "engine.discover")
	defer span.End()

	snapshot, err := e.registry.Discover(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("nim.capabilities", len(snapshot)))
	return snapshot, nil
}

func (e *Engine) webSearch(ctx context.Context, id, request string) (*Output, error) {
	raw, err := e.complete(ctx, "search_query", searchQueryPrompt(request))
	if err != nil {
		return upstreamFailure(err)
	}
	query := cleanQuery(raw)
	log.Printf("[ENGINE] [%s] Search query: %s", id, query)

	results := e.search(ctx, query)

	answer, err := e.complete(ctx, "synthesis", synthesisPrompt(request, results))
	if err != nil {
		return upstreamFailure(err)
	}
	return &Output{
		Type:        OutputComplete,
		Text:        answer,
		Action:      core.ActionWebSearch,
		SearchQuery: query,
	}, nil
}

// search never fails: provider errors become websearch.FailureText so the
// synthesis step can acknowledge the gap.
func (e *Engine) search(ctx context.Context, query string) string {
	ctx, span := e.inst.Tracer.Start(ctx, "engine.search")
	defer span.End()

	if e.searcher == nil {
		return websearch.FailureText
	}
	results, err := e.searcher.Search(ctx, query)
	if err != nil {
		span.RecordError(err)
		log.Printf("[SEARCH] Search failed, synthesising without results: %v", err)
		return websearch.FailureText
	}
	return results
}

func (e *Engine) runTool(ctx context.Context, id, request string, snapshot []core.ToolDescriptor, d core.RunTool) (*Output, error) {
	out := &Output{Action: core.ActionRunTool, ToolName: d.ToolName}

	desc, ok := core.FindTool(snapshot, d.ToolName)
	if !ok {
		err := &core.ToolNotFoundError{Name: d.ToolName}
		log.Printf("[ENGINE] [%s] Plan selected unknown capability %q", id, d.ToolName)
		out.Type, out.Text, out.Error = OutputError, err.Error(), err
		return out, nil
	}

	args := d.Args
	if len(args) == 0 {
		var err error
		args, err = e.extractArgs(ctx, id, request, desc)
		if err != nil {
			return upstreamFailure(err)
		}
	}
	out.Args = args

	log.Printf("[ENGINE] [%s] Running tool: %s with args: %v", id, desc.Name, args)
	result, err := e.dispatcher.Invoke(ctx, desc.Name, args)

	status := "ok"
	if err != nil {
		status = "error"
	}
	e.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", desc.Name),
		attribute.String("status", status),
	))

	if err != nil {
		out.Type, out.Text, out.Error = OutputError, err.Error(), err
		return out, nil
	}
	out.Type, out.Text = OutputComplete, result
	return out, nil
}

// extractArgs asks the model for the declared arguments of desc. An
// unparseable reply maps every declared name to "", and names missing from a
// parsed reply are filled with "" as well.
func (e *Engine) extractArgs(ctx context.Context, id, request string, desc core.ToolDescriptor) (map[string]any, error) {
	names := desc.Args.Declared()
	if len(names) == 0 {
		return map[string]any{}, nil
	}

	raw, err := e.completeJSON(ctx, "extract", extractionPrompt(request, desc.Args.Lines()), llm.StringMapSchema(names))
	if err != nil {
		return nil, err
	}

	args, ok := parseObject(raw)
	if !ok {
		log.Printf("[ENGINE] [%s] extraction fallback for %s: %q", id, desc.Name, truncateLog(raw, 200))
		args = map[string]any{}
	}
	for _, name := range names {
		if _, present := args[name]; !present {
			args[name] = ""
		}
	}
	return args, nil
}

// complete issues a plain completion for one step of the loop.
func (e *Engine) complete(ctx context.Context, step, prompt string) (string, error) {
	ctx, span := e.inst.Tracer.Start(ctx, "engine.complete", trace.WithAttributes(
		attribute.String("nim.step", step),
	))
	defer span.End()

	out, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		span.RecordError(err)
		return "", core.Upstream("completion", fmt.Errorf("%s: %w", step, err))
	}
	return out, nil
}

// completeJSON prefers a schema-constrained completion and falls back to a
// plain one.
func (e *Engine) completeJSON(ctx context.Context, step, prompt string, schema map[string]any) (string, error) {
	sc, ok := e.completer.(llm.StructuredCompleter)
	if !e.structured || !ok {
		return e.complete(ctx, step, prompt)
	}

	ctx, span := e.inst.Tracer.Start(ctx, "engine.complete", trace.WithAttributes(
		attribute.String("nim.step", step),
		attribute.Bool("nim.structured", true),
	))
	defer span.End()

	out, err := sc.CompleteJSON(ctx, prompt, schema)
	if err != nil {
		span.RecordError(err)
		return "", core.Upstream("completion", fmt.Errorf("%s: %w", step, err))
	}
	return out, nil
}

func upstreamFailure(err error) (*Output, error) {
	return &Output{Type: OutputError, Text: err.Error(), Error: err}, err
}

var wrappingQuotes = regexp.MustCompile(`^["'](.*)["']$`)

// cleanQuery trims the distilled query and strips one pair of wrapping quotes.
func cleanQuery(raw string) string {
	return wrappingQuotes.ReplaceAllString(strings.TrimSpace(raw), "$1")
}

// parseObject decodes a completion that should be a JSON object.
func parseObject(raw string) (map[string]any, bool) {
	body := core.StripFences(raw)
	if !strings.HasPrefix(body, "{") {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(body), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
