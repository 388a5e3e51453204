package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
)

// Turn role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// AbortReason tags an incomplete assistant turn with why it was cut short.
type AbortReason string

// Abort reason constants.
const (
	AbortNone                AbortReason = ""
	AbortRoundLimit          AbortReason = "round_limit"
	AbortDeadline            AbortReason = "deadline"
	AbortCancelled           AbortReason = "cancelled"
	AbortPlannerFailure      AbortReason = "planner_failure"
	AbortRegistryUnavailable AbortReason = "registry_unavailable"
)

// Citation is one recorded (request, result) pair proving which capability
// produced which data. Citations within a turn are ordered by
// (round, original request index); completion timing never reorders them.
type Citation struct {
	Round   int                    `json:"round"`
	Request capability.CallRequest `json:"request"`
	Result  capability.CallResult  `json:"result"`
}

// Turn is one user message or one assistant response, including every
// citation gathered while producing it. Turns are immutable once finalized;
// an incomplete turn still carries whatever citations were gathered before
// the abort.
//
//nolint:govet // fieldalignment: field order mirrors the export format
type Turn struct {
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	ID          string      `json:"id"`
	Role        string      `json:"role"`
	Text        string      `json:"text"`
	Citations   []Citation  `json:"citations,omitempty"`
	Rounds      int         `json:"rounds"`
	Incomplete  bool        `json:"incomplete,omitempty"`
	AbortReason AbortReason `json:"abort_reason,omitempty"`
}

// NewUserTurn builds a closed turn for an incoming user message.
func NewUserTurn(text string) Turn {
	now := time.Now().UTC()
	return Turn{
		StartedAt:   now,
		CompletedAt: now,
		ID:          uuid.New().String(),
		Role:        RoleUser,
		Text:        text,
	}
}

// Recorder accumulates citations for one in-progress assistant turn. It is
// purely additive and performs no I/O; the orchestrator is its only caller.
type Recorder struct {
	id        string
	startedAt time.Time
	citations []Citation
	rounds    map[int]struct{}
}

// NewRecorder starts recording an assistant turn. The turn's ID and
// StartedAt are stamped here, before the first planning round, so audit
// events can reference the turn while it is still in progress.
func NewRecorder() *Recorder {
	return &Recorder{
		id:        uuid.New().String(),
		startedAt: time.Now().UTC(),
		rounds:    make(map[int]struct{}),
	}
}

// ID returns the identifier the finalized turn will carry.
func (r *Recorder) ID() string {
	return r.id
}

// Record appends one citation. Callers record results in request order per
// round, so citation order is (round, request index) by construction.
func (r *Recorder) Record(round int, req capability.CallRequest, res capability.CallResult) {
	r.rounds[round] = struct{}{}
	r.citations = append(r.citations, Citation{Round: round, Request: req, Result: res})
}

// Len returns the number of citations recorded so far.
func (r *Recorder) Len() int {
	return len(r.citations)
}

// Finalize closes the turn with the assistant's answer text. The returned
// Turn owns a copy of the citations, so later recorder use cannot reach it.
// Rounds counts the distinct executed rounds, not planning-only rounds.
func (r *Recorder) Finalize(text string, incomplete bool, reason AbortReason) Turn {
	citations := make([]Citation, len(r.citations))
	copy(citations, r.citations)

	return Turn{
		StartedAt:   r.startedAt,
		CompletedAt: time.Now().UTC(),
		ID:          r.id,
		Role:        RoleAssistant,
		Text:        text,
		Citations:   citations,
		Rounds:      len(r.rounds),
		Incomplete:  incomplete,
		AbortReason: reason,
	}
}
