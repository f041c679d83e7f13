package chat

import (
	"fmt"
	"sync"

	"github.com/zombor/kassir/internal/draft"
)

// State is where a user's pending transaction is
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingPreview State = "awaiting_preview"
	StatePreviewReady    State = "preview_ready"
	StateConfirming      State = "confirming"
	StateSettledSuccess  State = "settled_success"
	StateSettledFailure  State = "settled_failure"
)

var transitions = map[State][]State{
	StateIdle:            {StateAwaitingPreview},
	StateAwaitingPreview: {StatePreviewReady, StateIdle},
	StatePreviewReady:    {StateConfirming, StateIdle},
	StateConfirming:      {StateSettledSuccess, StateSettledFailure, StatePreviewReady},
	StateSettledSuccess:  {StateIdle},
	StateSettledFailure:  {StateIdle},
}

// CanTransition reports whether a transaction may move from one state to another
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InFlight reports whether a request is outstanding in state s
func (s State) InFlight() bool {
	return s == StateAwaitingPreview || s == StateConfirming
}

// Pending is what the draft was built from
type Pending struct {
	UserInput     string `json:"user_input"`
	OperationType string `json:"operation_type"`
}

type session struct {
	mu             sync.Mutex
	userID         string
	transcript     *Transcript
	pending        *Pending
	edited         draft.Document
	lastReceipt    draft.Document
	contextMessage string
	editMode       bool
	state          State
}

func (s *session) moveTo(to State) {
	if !CanTransition(s.state, to) {
		// callers check preconditions first, so this is a programming error
		panic(fmt.Sprintf("invalid transition %s -> %s", s.state, to))
	}
	s.state = to
}

// reset returns a settled or ready session to idle before a new cycle
func (s *session) reset() {
	if s.state == StateSettledSuccess || s.state == StateSettledFailure || s.state == StatePreviewReady {
		s.moveTo(StateIdle)
	}
}

func (s *session) discardDraft() {
	s.pending = nil
	s.edited = nil
	s.editMode = false
}
