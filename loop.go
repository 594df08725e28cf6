package kata

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultMaxTurns bounds the loop when WithMaxTurns is not given.
const defaultMaxTurns = 10

// defaultResultBudget is the maximum length of a tool result inserted into
// the conversation. This outer cap bounds context growth regardless of any
// larger truncation a tool applies internally to its own raw output (shell
// caps at 50000, for example); the two limits are independent layers.
const defaultResultBudget = 5000

// defaultNagAfter is how many tool rounds may pass without a plan-tool call
// before a reminder is injected.
const defaultNagAfter = 3

// maxParallelDispatch caps the number of concurrent tool call goroutines.
const maxParallelDispatch = 10

const defaultSystemPrompt = "You are a coding agent. Use tools to complete tasks."

// initialPlanReminder is appended to the first user message when plan
// reminders are enabled.
const initialPlanReminder = "As you work, use the plan tool to break the task into steps and track progress."

// planNagReminder is injected after too many tool rounds without a plan update.
const planNagReminder = "Reminder: you have not updated your plan recently. Use the plan tool to record progress and next steps."

// Outcome is the result of one loop invocation. Exhausted reports that the
// turn budget was consumed without a terminal response — a normal, reportable
// state, not a fault; Transcript then carries the partial conversation.
type Outcome struct {
	Text       string
	Exhausted  bool
	Transcript []ChatMessage
	Calls      []ToolCall
}

// Loop is the agent turn loop: it repeatedly calls the provider, dispatches
// any requested tool calls through the registry, and folds the results back
// into the conversation until a terminal answer or the turn budget is reached.
// One Loop runs one invocation at a time; its Session must not be shared with
// a concurrently running Loop.
type Loop struct {
	provider     Provider
	registry     *ToolRegistry
	session      *Session
	systemPrompt string
	maxTurns     int
	resultBudget int
	planTool     string // non-empty enables plan reminders
	nagAfter     int
	guard        *InjectionGuard
	tracer       Tracer
	logger       *slog.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTools registers tools on the loop's registry.
func WithTools(tools ...Tool) LoopOption {
	return func(l *Loop) {
		for _, t := range tools {
			l.registry.Add(t)
		}
	}
}

// WithSession sets the shared session context.
func WithSession(s *Session) LoopOption {
	return func(l *Loop) { l.session = s }
}

// WithSystemPrompt overrides the default system prompt.
func WithSystemPrompt(p string) LoopOption {
	return func(l *Loop) { l.systemPrompt = p }
}

// WithMaxTurns sets the turn budget (default 10).
func WithMaxTurns(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxTurns = n
		}
	}
}

// WithResultBudget sets the per-result truncation budget in characters
// (default 5000).
func WithResultBudget(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.resultBudget = n
		}
	}
}

// WithPlanReminder enables planning reminders keyed to the named tool: the
// first user message carries a planning nudge, and a nag is injected whenever
// afterRounds tool rounds pass without a call to planTool.
func WithPlanReminder(planTool string, afterRounds int) LoopOption {
	return func(l *Loop) {
		l.planTool = planTool
		if afterRounds > 0 {
			l.nagAfter = afterRounds
		}
	}
}

// WithGuard scans tool results for prompt-injection phrases before they
// re-enter the conversation. Matches are logged, never blocked.
func WithGuard(g *InjectionGuard) LoopOption {
	return func(l *Loop) { l.guard = g }
}

// WithTracer sets a span tracer for turns and tool dispatches.
func WithTracer(t Tracer) LoopOption {
	return func(l *Loop) { l.tracer = t }
}

// WithLogger sets a structured logger (default: discard).
func WithLogger(lg *slog.Logger) LoopOption {
	return func(l *Loop) { l.logger = lg }
}

// NewLoop creates a Loop for the given provider.
func NewLoop(provider Provider, opts ...LoopOption) *Loop {
	l := &Loop{
		provider:     provider,
		registry:     NewToolRegistry(),
		systemPrompt: defaultSystemPrompt,
		maxTurns:     defaultMaxTurns,
		resultBudget: defaultResultBudget,
		nagAfter:     defaultNagAfter,
		logger:       nopLogger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry exposes the loop's tool registry, mainly so hosts can register
// tools after construction.
func (l *Loop) Registry() *ToolRegistry { return l.registry }

// Run executes the turn loop on initialTask until the provider returns a
// response with no tool calls (terminal) or maxTurns elapse (exhausted).
// Provider transport errors are the only way Run fails; every tool-level
// failure is folded into the conversation as text.
func (l *Loop) Run(ctx context.Context, initialTask string) (Outcome, error) {
	if l.tracer != nil {
		var span Span
		ctx, span = l.tracer.Start(ctx, "loop.run",
			StringAttr("provider", l.provider.Name()),
			IntAttr("max_turns", l.maxTurns))
		defer span.End()
	}

	first := initialTask
	if l.planTool != "" {
		first += "\n\n" + initialPlanReminder
	}
	messages := []ChatMessage{
		SystemMessage(l.systemPrompt),
		UserMessage(first),
	}
	defs := l.registry.AllDefinitions()

	var callLog []ToolCall
	roundsWithoutPlan := 0

	for turn := 0; turn < l.maxTurns; turn++ {
		turnCtx := ctx
		var turnSpan Span
		if l.tracer != nil {
			turnCtx, turnSpan = l.tracer.Start(ctx, "loop.turn", IntAttr("turn", turn))
		}
		endTurn := func() {
			if turnSpan != nil {
				turnSpan.End()
			}
		}

		resp, err := l.provider.Chat(turnCtx, ChatRequest{Messages: messages, Tools: defs})
		if err != nil {
			if turnSpan != nil {
				turnSpan.Error(err)
			}
			endTurn()
			return Outcome{Transcript: messages, Calls: callLog}, err
		}

		// Terminal: no further tool use requested.
		if len(resp.ToolCalls) == 0 {
			endTurn()
			l.logger.Info("loop finished", "turns", turn+1, "tool_calls", len(callLog))
			messages = append(messages, AssistantMessage(resp.Content))
			return Outcome{Text: resp.Content, Transcript: messages, Calls: callLog}, nil
		}

		if turnSpan != nil {
			turnSpan.SetAttr(IntAttr("tool_count", len(resp.ToolCalls)))
		}

		// One assistant message with the raw response, then one result per
		// invocation id, inserted in request order.
		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		callLog = append(callLog, resp.ToolCalls...)

		results := l.dispatchOrdered(turnCtx, resp.ToolCalls)
		for i, tc := range resp.ToolCalls {
			content := truncateStr(results[i].content, l.resultBudget)
			if l.guard != nil {
				if matches := l.guard.Scan(content); len(matches) > 0 {
					l.logger.Warn("possible prompt injection in tool output",
						"tool", tc.Name, "phrase", matches[0])
					if turnSpan != nil {
						turnSpan.Event("injection_flagged", StringAttr("tool", tc.Name))
					}
				}
			}
			messages = append(messages, ToolResultMessage(tc.ID, content))
		}
		endTurn()

		// Planning nag: inject a reminder when the plan tool goes unused.
		if l.planTool != "" {
			if callsTool(resp.ToolCalls, l.planTool) {
				roundsWithoutPlan = 0
			} else {
				roundsWithoutPlan++
				if roundsWithoutPlan >= l.nagAfter {
					messages = append(messages, UserMessage(planNagReminder))
					roundsWithoutPlan = 0
				}
			}
		}
	}

	l.logger.Warn("turn budget exhausted", "max_turns", l.maxTurns, "tool_calls", len(callLog))
	return Outcome{Exhausted: true, Transcript: messages, Calls: callLog}, nil
}

func callsTool(calls []ToolCall, name string) bool {
	for _, tc := range calls {
		if tc.Name == name {
			return true
		}
	}
	return false
}

// --- ordered tool dispatch ---

// dispatchResult holds the result of a single tool call.
type dispatchResult struct {
	content  string
	isError  bool
	duration time.Duration
}

// indexedResult pairs a result with its position in the original call slice,
// allowing channel-based collection in request order.
type indexedResult struct {
	idx    int
	result dispatchResult
}

// dispatchOrdered runs all tool calls of one turn and returns results indexed
// by their position in calls — result insertion order always matches request
// order, which is a correctness requirement, not an optimization. Single
// calls run inline (no goroutine). Multiple calls use a fixed worker pool of
// min(len(calls), maxParallelDispatch) goroutines pulling from a shared work
// channel.
//
// The collection loop is context-aware: if ctx is cancelled while calls are
// in flight, incomplete slots are filled with context-error results instead
// of blocking indefinitely.
func (l *Loop) dispatchOrdered(ctx context.Context, calls []ToolCall) []dispatchResult {
	if len(calls) == 1 {
		return []dispatchResult{l.dispatchOne(ctx, calls[0])}
	}

	resultCh := make(chan indexedResult, len(calls))

	type workItem struct {
		idx int
		tc  ToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, tc := range calls {
		workCh <- workItem{idx: i, tc: tc}
	}
	close(workCh)

	numWorkers := min(len(calls), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedResult{w.idx, dispatchResult{content: "error: " + ctx.Err().Error(), isError: true}}
					continue
				}
				resultCh <- indexedResult{w.idx, l.dispatchOne(ctx, w.tc)}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]dispatchResult, len(calls))
	seen := make([]bool, len(calls))
collect:
	for received := 0; received < len(calls); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break collect
			}
			results[r.idx] = r.result
			seen[r.idx] = true
		case <-ctx.Done():
			errResult := dispatchResult{content: "error: " + ctx.Err().Error(), isError: true}
			for i := range results {
				if !seen[i] {
					results[i] = errResult
				}
			}
			return results
		}
	}
	for i := range results {
		if !seen[i] {
			results[i] = dispatchResult{content: "error: result not received", isError: true}
		}
	}
	return results
}

// dispatchOne runs a single tool call through the registry boundary, timing it.
func (l *Loop) dispatchOne(ctx context.Context, tc ToolCall) dispatchResult {
	start := time.Now()
	content, isError := l.registry.Dispatch(ctx, tc)
	d := time.Since(start)
	if isError {
		l.logger.Debug("tool failed", "tool", tc.Name, "duration", d)
	} else {
		l.logger.Debug("tool ok", "tool", tc.Name, "duration", d)
	}
	return dispatchResult{content: content, isError: isError, duration: d}
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	// Fast path: byte length ≤ n guarantees rune count ≤ n,
	// avoiding the []rune allocation for short/ASCII strings.
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
