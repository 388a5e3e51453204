// Package orchestrator runs the turn state machine that drives the assistant
// through rounds of capability calls: planning, executing, aggregating, until
// a final answer lands or the round budget, the turn deadline, or
// cancellation ends the turn. Per-call failures stay local to their round;
// only turn-level conditions abort, and an aborted turn still carries every
// citation gathered before the stop.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/eventlog"
	"github.com/ColtMercer/nautobot-mcp/pkg/executor"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/planner"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
)

// State identifies where a turn is in its round loop.
type State string

// Turn states. Done and Aborted are terminal.
const (
	StatePlanning    State = "PLANNING"
	StateExecuting   State = "EXECUTING"
	StateAggregating State = "AGGREGATING"
	StateDone        State = "DONE"
	StateAborted     State = "ABORTED"
)

const (
	// DefaultMaxRounds bounds planning rounds per turn. The budget is the
	// recursion-depth guard against infinite tool-calling loops.
	DefaultMaxRounds = 6

	// DefaultTurnDeadline bounds the wall time of one whole turn across all
	// rounds.
	DefaultTurnDeadline = 120 * time.Second
)

// Config controls the turn budget.
type Config struct {
	MaxRounds    int
	TurnDeadline time.Duration
}

// Orchestrator processes one turn at a time. All per-conversation state
// lives in the Session; the orchestrator itself can be shared by every
// session of a service.
type Orchestrator struct {
	planner  planner.Planner
	registry *registry.Registry
	executor *executor.Executor
	logger   *logx.Logger
	metrics  metrics.Recorder
	events   *eventlog.Writer
	cfg      Config
	mu       sync.Mutex
}

// New creates an orchestrator. Zero config fields fall back to defaults; nil
// logger and recorder fall back to a component logger and a no-op recorder;
// a nil events writer disables the audit trail.
func New(p planner.Planner, reg *registry.Registry, exec *executor.Executor, cfg Config,
	logger *logx.Logger, rec metrics.Recorder, events *eventlog.Writer) *Orchestrator {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.TurnDeadline <= 0 {
		cfg.TurnDeadline = DefaultTurnDeadline
	}
	if logger == nil {
		logger = logx.NewLogger("orchestrator")
	}
	if rec == nil {
		rec = metrics.Nop()
	}
	return &Orchestrator{
		planner:  p,
		registry: reg,
		executor: exec,
		logger:   logger,
		metrics:  rec,
		events:   events,
		cfg:      cfg,
	}
}

// turnRun is the mutable state of one in-progress turn.
type turnRun struct {
	sess     *session.Session
	snap     *registry.Snapshot
	recorder *session.Recorder
	history  []planner.Message
	rounds   []planner.RoundResult

	// calls and results stage the current round between states.
	calls   []capability.CallRequest
	results []capability.CallResult

	round  int
	answer string
	reason session.AbortReason
}

// ProcessTurn records the user message, runs the round loop against a single
// catalog snapshot, and finalizes exactly one assistant turn into the
// session. Aborts are not errors: the returned turn is tagged incomplete
// with its reason and keeps all citations gathered before the stop. The
// error return covers only invalid use.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sess *session.Session, userText string) (*session.Turn, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}

	// One turn at a time; rounds inside a turn never interleave with
	// another turn's rounds.
	o.mu.Lock()
	defer o.mu.Unlock()

	started := time.Now()

	// Catalog refreshes happen between turns only; the snapshot taken here
	// serves every round of this turn.
	snap := o.registry.Snapshot()
	if !snap.Ready() {
		o.logger.Info("🔄 Capability catalog not ready, refreshing before turn")
		if err := o.registry.Refresh(ctx); err != nil {
			o.logger.Error("❌ Capability catalog refresh failed: %v", err)
		}
		snap = o.registry.Snapshot()
	}

	sess.AppendTurn(session.NewUserTurn(userText))

	run := &turnRun{
		sess:     sess,
		snap:     snap,
		recorder: session.NewRecorder(),
		history:  historyMessages(sess.Turns()),
	}

	o.logger.Info("🎯 Turn %s started (session %s, %d capabilities)",
		run.recorder.ID(), sess.ID(), snap.Len())
	o.logEvent(&eventlog.Event{
		Kind:      eventlog.KindTurnStarted,
		SessionID: sess.ID(),
		TurnID:    run.recorder.ID(),
	})

	if !snap.Ready() {
		run.reason = session.AbortRegistryUnavailable
		return o.finalize(run, StateAborted, started), nil
	}

	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnDeadline)
	defer cancel()

	state := StatePlanning
	for state != StateDone && state != StateAborted {
		var next State
		switch state {
		case StatePlanning:
			next = o.plan(turnCtx, run)
		case StateExecuting:
			next = o.execute(turnCtx, run)
		case StateAggregating:
			next = o.aggregate(turnCtx, run)
		default:
			o.logger.Error("❌ Unknown state %s, aborting turn", state)
			run.reason = session.AbortPlannerFailure
			next = StateAborted
		}
		o.logger.Debug("🔄 State %s -> %s (round %d)", state, next, run.round)
		state = next
	}

	return o.finalize(run, state, started), nil
}

// plan asks the planner for the next decision. Budget and context checks
// happen here, so every round starts by honoring cancellation and deadline.
func (o *Orchestrator) plan(ctx context.Context, run *turnRun) State {
	if reason := abortReasonFor(ctx); reason != session.AbortNone {
		run.reason = reason
		return StateAborted
	}
	if run.round >= o.cfg.MaxRounds {
		o.logger.Warn("⚠️  Round budget (%d) exhausted without a final answer", o.cfg.MaxRounds)
		run.reason = session.AbortRoundLimit
		return StateAborted
	}

	decision, err := o.planner.Decide(ctx, &planner.Request{
		History:    run.history,
		Catalog:    run.snap.List(),
		Rounds:     run.rounds,
		CacheHints: run.sess.Cache().Summary(),
	})
	if err != nil {
		if reason := abortReasonFor(ctx); reason != session.AbortNone {
			run.reason = reason
			return StateAborted
		}
		o.logger.Error("❌ Planner failed in round %d: %v", run.round, err)
		run.reason = session.AbortPlannerFailure
		return StateAborted
	}

	if decision.Kind == planner.DecisionFinal {
		o.logger.Info("✅ Round %d: planner produced the final answer (%d chars)", run.round, len(decision.Answer))
		o.logEvent(&eventlog.Event{
			Kind:      eventlog.KindRoundPlanned,
			SessionID: run.sess.ID(),
			TurnID:    run.recorder.ID(),
			Round:     run.round,
			Status:    "final",
		})
		run.answer = decision.Answer
		return StateDone
	}

	if len(decision.Calls) == 0 {
		// Neither answer nor calls. Counts against the round budget and
		// re-plans rather than aborting, so a hesitating planner gets
		// another chance.
		o.logger.Warn("⚠️  Round %d: planner returned no calls and no answer, re-planning", run.round)
		run.round++
		return StatePlanning
	}

	for i := range decision.Calls {
		decision.Calls[i].RoundIndex = run.round
	}
	run.calls = decision.Calls

	o.logger.Info("🔧 Round %d: planner requested %d capability calls", run.round, len(run.calls))
	o.logEvent(&eventlog.Event{
		Kind:      eventlog.KindRoundPlanned,
		SessionID: run.sess.ID(),
		TurnID:    run.recorder.ID(),
		Round:     run.round,
		Status:    "calls",
		Detail:    callNames(run.calls),
	})
	return StateExecuting
}

// execute dispatches the planned round under what remains of the turn
// deadline.
func (o *Orchestrator) execute(ctx context.Context, run *turnRun) State {
	run.results = o.executor.Execute(ctx, executor.Batch{
		SessionID: run.sess.ID(),
		Snapshot:  run.snap,
		Cache:     run.sess.Cache(),
		Requests:  run.calls,
	})
	return StateAggregating
}

// aggregate records citations in request order and folds the round into the
// context for the next planning pass. Citations are recorded before the
// cancellation check so an aborted turn keeps every settled result.
func (o *Orchestrator) aggregate(ctx context.Context, run *turnRun) State {
	for i := range run.calls {
		res := run.results[i]
		run.recorder.Record(run.round, run.calls[i], res)
		o.logEvent(&eventlog.Event{
			Kind:       eventlog.KindCallCompleted,
			SessionID:  run.sess.ID(),
			TurnID:     run.recorder.ID(),
			Round:      run.round,
			Capability: run.calls[i].CapabilityName,
			Status:     resultStatus(&res),
			ElapsedMS:  res.Elapsed.Milliseconds(),
		})
	}

	run.rounds = append(run.rounds, planner.RoundResult{Requests: run.calls, Results: run.results})
	run.calls, run.results = nil, nil
	run.round++

	if reason := abortReasonFor(ctx); reason != session.AbortNone {
		run.reason = reason
		return StateAborted
	}
	return StatePlanning
}

// finalize closes the assistant turn, appends it to the session, and reports
// the outcome.
func (o *Orchestrator) finalize(run *turnRun, state State, started time.Time) *session.Turn {
	outcome := "done"
	text := run.answer
	incomplete := false
	if state == StateAborted {
		outcome = "aborted"
		text = abortAnswer(run.reason)
		incomplete = true
	}

	turn := run.recorder.Finalize(text, incomplete, run.reason)
	run.sess.AppendTurn(turn)

	elapsed := time.Since(started)
	o.metrics.ObserveTurn(outcome, string(run.reason), turn.Rounds, elapsed)
	o.logEvent(&eventlog.Event{
		Kind:      eventlog.KindTurnCompleted,
		SessionID: run.sess.ID(),
		TurnID:    turn.ID,
		Round:     turn.Rounds,
		Status:    outcome,
		Detail:    string(run.reason),
		ElapsedMS: elapsed.Milliseconds(),
	})

	if incomplete {
		o.logger.Warn("⚠️  Turn %s aborted after %d executed rounds, %d citations (%s, %.2fs)",
			turn.ID, turn.Rounds, len(turn.Citations), run.reason, elapsed.Seconds())
	} else {
		o.logger.Info("✅ Turn %s done: %d executed rounds, %d citations (%.2fs)",
			turn.ID, turn.Rounds, len(turn.Citations), elapsed.Seconds())
	}
	return &turn
}

func (o *Orchestrator) logEvent(event *eventlog.Event) {
	if o.events == nil {
		return
	}
	if err := o.events.Write(event); err != nil {
		o.logger.Warn("⚠️  Event log write failed: %v", err)
	}
}

// abortReasonFor classifies a dead context. The turn context carries the
// deadline, so DeadlineExceeded means the turn budget elapsed; Canceled
// means the external caller gave up.
func abortReasonFor(ctx context.Context) session.AbortReason {
	err := ctx.Err()
	switch {
	case errors.Is(err, context.Canceled):
		return session.AbortCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return session.AbortDeadline
	default:
		return session.AbortNone
	}
}

// abortAnswer is the user-facing text of an aborted turn. The citations
// still carry whatever was gathered before the stop.
func abortAnswer(reason session.AbortReason) string {
	switch reason {
	case session.AbortRoundLimit:
		return "I hit the limit on lookup rounds before I could finish answering. The citations on this turn show everything I gathered."
	case session.AbortDeadline:
		return "I ran out of time while gathering data for this request. The citations on this turn show what I collected before the deadline."
	case session.AbortCancelled:
		return "This request was cancelled before I could finish."
	case session.AbortPlannerFailure:
		return "I ran into an internal planning error and could not finish this request. Please try again."
	case session.AbortRegistryUnavailable:
		return "The capability catalog is unavailable right now, so I cannot look anything up. Please try again shortly."
	default:
		return "I could not finish this request."
	}
}

// historyMessages flattens finalized turns into planner messages. Turns with
// no text (nothing was produced before an abort) are skipped.
func historyMessages(turns []session.Turn) []planner.Message {
	msgs := make([]planner.Message, 0, len(turns))
	for i := range turns {
		if turns[i].Text == "" {
			continue
		}
		msgs = append(msgs, planner.Message{Role: turns[i].Role, Content: turns[i].Text})
	}
	return msgs
}

func resultStatus(res *capability.CallResult) string {
	switch res.Kind {
	case capability.ResultSuccess:
		return "success"
	case capability.ResultCacheHit:
		return "cache_hit"
	case capability.ResultFailure:
		return string(res.FailureKind)
	default:
		return "unknown"
	}
}

func callNames(calls []capability.CallRequest) string {
	names := make([]string, len(calls))
	for i := range calls {
		names[i] = calls[i].CapabilityName
	}
	return strings.Join(names, ",")
}
