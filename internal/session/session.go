// Package session drives the editing control flow over a store: apply a
// mutation, revalidate the affected rounds, and propagate pro-rata lineage
// into later rounds.
package session

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/roach88/captable/internal/compute"
	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/store"
	"github.com/roach88/captable/internal/validate"
)

var (
	// ErrNoChecker is returned by Check when no computation service is
	// configured.
	ErrNoChecker = errors.New("session: no computation service configured")

	// ErrNoRight is returned by ToggleExercise when the holder has neither
	// an allocation in the round nor a right granted before it.
	ErrNoRight = errors.New("session: holder has no pro-rata right before this round")
)

// Checker submits a document to the computation service.
type Checker interface {
	Check(ctx context.Context, doc model.Document) (compute.Result, error)
}

// Clock supplies monotonically increasing revision numbers.
type Clock interface {
	Next() int64
}

type counter struct{ n atomic.Int64 }

func (c *counter) Next() int64 { return c.n.Add(1) }

// Outcome reports the effects of one mutation.
type Outcome struct {
	// Revision identifies the mutation within the session.
	Revision int64
	// Errors holds the validation errors of every round the mutation
	// touched, keyed by round index. A clean round maps to an empty list.
	Errors map[int][]validate.ValidationError
	// Propagated lists allocations updated or removed by lineage
	// propagation.
	Propagated []lineage.Location
	// Resolution is set by EditAllocation.
	Resolution *lineage.Resolution
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithChecker sets the computation service used by Check.
func WithChecker(c Checker) Option {
	return func(s *Session) { s.checker = c }
}

// WithClock sets the revision source.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// Session is a single-writer editing session over one document.
type Session struct {
	store   *store.Store
	log     zerolog.Logger
	checker Checker
	clock   Clock
	errs    map[int][]validate.ValidationError
}

// New starts a session on a copy of doc and validates every round.
func New(doc model.Document, opts ...Option) *Session {
	s := &Session{
		store: store.New(doc),
		log:   zerolog.Nop(),
		clock: &counter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.revalidateAll()
	return s
}

// Snapshot returns a deep copy of the document.
func (s *Session) Snapshot() model.Document {
	return s.store.Snapshot()
}

// Errors returns the cached validation errors of round ri.
func (s *Session) Errors(ri int) []validate.ValidationError {
	return append([]validate.ValidationError(nil), s.errs[ri]...)
}

// Complete reports whether every round validates cleanly.
func (s *Session) Complete() bool {
	for _, errs := range s.errs {
		if len(errs) > 0 {
			return false
		}
	}
	return true
}

// DocumentErrors validates holder references and every round.
func (s *Session) DocumentErrors() []validate.ValidationError {
	return validate.ValidateDocument(s.store.Snapshot())
}

// Audit reports lineage inconsistencies.
func (s *Session) Audit() []lineage.Issue {
	return lineage.Audit(s.store.Rounds())
}

// Rights returns the rights available for exercise in round ri.
func (s *Session) Rights(ri int) []lineage.Right {
	return lineage.CollectRightsHolders(s.store.Rounds(), ri)
}

// Check submits the current document to the computation service. The
// document is never modified by a check.
func (s *Session) Check(ctx context.Context) (compute.Result, error) {
	if s.checker == nil {
		return compute.Result{}, ErrNoChecker
	}
	return s.checker.Check(ctx, s.store.Snapshot())
}

func (s *Session) revalidateAll() {
	s.errs = make(map[int][]validate.ValidationError, s.store.RoundCount())
	for i, r := range s.store.Rounds() {
		s.errs[i] = validate.Validate(r)
	}
}

// finish revalidates the touched rounds and builds the outcome.
func (s *Session) finish(op string, touched []int, propagated []lineage.Location) Outcome {
	out := Outcome{
		Revision:   s.clock.Next(),
		Errors:     make(map[int][]validate.ValidationError),
		Propagated: propagated,
	}
	seen := make(map[int]bool)
	for _, ri := range touched {
		if seen[ri] {
			continue
		}
		seen[ri] = true
		r, err := s.store.Round(ri)
		if err != nil {
			continue
		}
		errs := validate.Validate(r)
		if errs == nil {
			errs = []validate.ValidationError{}
		}
		s.errs[ri] = errs
		out.Errors[ri] = errs
	}

	ev := s.log.Debug().Str("op", op).Int64("revision", out.Revision).Ints("rounds", sortedKeys(seen))
	ev.Msg("mutation applied")
	if len(propagated) > 0 {
		locs := make([]string, len(propagated))
		for i, l := range propagated {
			locs[i] = l.String()
		}
		s.log.Info().Str("op", op).Int64("revision", out.Revision).Strs("allocations", locs).Msg("pro-rata terms propagated")
	}
	return out
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func allRounds(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
