// Package transcript rebuilds turn-by-turn interview transcripts from
// incrementally delivered speech fragments.
package transcript

import (
	"strings"
	"sync"
)

// Turn is one finished exchange: what the candidate said and how the
// interviewer replied.
type Turn struct {
	User  string `json:"user"`
	Model string `json:"model"`
}

// Callbacks receives running totals and completed turns. Nil fields are skipped.
type Callbacks struct {
	User  func(string)
	Model func(string)
	Turn  func(Turn)
}

// Assembler accumulates user and model fragments until the remote marks the
// turn complete.
type Assembler struct {
	callbacks Callbacks

	mu    sync.Mutex
	user  strings.Builder
	model strings.Builder
}

// NewAssembler constructs an assembler with empty accumulators.
func NewAssembler(callbacks Callbacks) *Assembler {
	return &Assembler{callbacks: callbacks}
}

// AppendUser appends one input-transcription delta and reports the running total.
func (a *Assembler) AppendUser(fragment string) {
	a.mu.Lock()
	a.user.WriteString(fragment)
	total := a.user.String()
	a.mu.Unlock()

	if a.callbacks.User != nil {
		a.callbacks.User(total)
	}
}

// AppendModel appends one output-transcription delta and reports the running total.
func (a *Assembler) AppendModel(fragment string) {
	a.mu.Lock()
	a.model.WriteString(fragment)
	total := a.model.String()
	a.mu.Unlock()

	if a.callbacks.Model != nil {
		a.callbacks.Model(total)
	}
}

// Complete packages both running totals as a Turn, emits it, and resets.
func (a *Assembler) Complete() Turn {
	a.mu.Lock()
	turn := Turn{User: a.user.String(), Model: a.model.String()}
	a.user.Reset()
	a.model.Reset()
	a.mu.Unlock()

	if a.callbacks.Turn != nil {
		a.callbacks.Turn(turn)
	}
	return turn
}

// Reset discards in-progress text without emitting a turn.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.Reset()
	a.model.Reset()
}

// Pending returns the current running totals.
func (a *Assembler) Pending() (user string, model string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.String(), a.model.String()
}
