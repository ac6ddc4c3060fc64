// Package session drives one receipt scan from image upload to commit.
//
// A Session moves idle -> uploading -> processing -> success -> reviewing ->
// committing -> committed, or to error on any failed step. Nothing is
// persisted before Commit, so Cancel is always a local discard. Cancel is
// ignored while a commit is in flight.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/zombor/billnote/internal/candidate"
	"github.com/zombor/billnote/internal/extraction"
	"github.com/zombor/billnote/internal/note"
)

// State is a step of the scan lifecycle
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateReviewing  State = "reviewing"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateError      State = "error"
)

// Coarse progress reported to the UI
const (
	progressUploading  = 10
	progressProcessing = 30
	progressDone       = 100
)

// ReadFailure is the reason recorded when the image cannot be read
const ReadFailure = "failed to read image"

var (
	// ErrInvalidTransition is returned when an action is not allowed in the current state
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrCanceled is returned by Accept when Cancel interrupted it, including
	// while the extractor was running
	ErrCanceled = errors.New("session canceled")
)

// Extractor turns an image into a candidate
type Extractor interface {
	Extract(ctx context.Context, req extraction.Request) (*extraction.Result, error)
}

// Committer persists a reviewed receipt
type Committer interface {
	Commit(ctx context.Context, req note.CommitRequest) (*note.NoteWithItems, error)
}

// Snapshot is a copy of the session state
type Snapshot struct {
	State       State
	Progress    int
	Reason      string
	Err         error
	Candidate   *candidate.Candidate
	Confidence  float64
	AutoConfirm bool
	Note        *note.NoteWithItems
}

// Session is safe for concurrent use; Accept and Commit block on the
// network without holding the lock.
type Session struct {
	extractor Extractor
	committer Committer
	onChange  func(Snapshot)
	config    *extraction.Config
	options   *extraction.Options

	mu          sync.Mutex
	gen         uint64
	cancel      context.CancelFunc
	state       State
	progress    int
	reason      string
	err         error
	image       []byte
	contentType string
	result      *extraction.Result
	cand        *candidate.Candidate
	committed   *note.NoteWithItems
}

// Option configures a Session
type Option func(*Session)

// WithOnChange is called after every state change with the new snapshot
func WithOnChange(fn func(Snapshot)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithConfig sends a processing config with every extraction
func WithConfig(cfg extraction.Config) Option {
	return func(s *Session) { s.config = &cfg }
}

// WithOptions sends per-scan options with every extraction
func WithOptions(opts extraction.Options) Option {
	return func(s *Session) { s.options = &opts }
}

// New creates an idle session
func New(extractor Extractor, committer Committer, opts ...Option) *Session {
	s := &Session{
		extractor: extractor,
		committer: committer,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Progress: s.progress,
		Reason:   s.reason,
		Err:      s.err,
		Note:     s.committed,
	}
	if s.cand != nil {
		snap.Candidate = s.cand.Clone()
	}
	if s.result != nil {
		snap.Confidence = s.result.Confidence
		snap.AutoConfirm = s.result.AutoConfirm
	}
	return snap
}

// update mutates the session under the lock and notifies outside it
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshot()
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(snap)
	}
}

func (s *Session) reset() {
	s.progress = 0
	s.reason = ""
	s.err = nil
	s.image = nil
	s.contentType = ""
	s.result = nil
	s.cand = nil
	s.committed = nil
}

func (s *Session) fail(gen uint64, reason string, err error) {
	s.update(func() {
		if s.gen != gen {
			return
		}
		s.state = StateError
		s.progress = 0
		s.reason = reason
		s.err = err
		s.cancel = nil
	})
}

// Accept starts a scan from idle, error or committed. Any earlier attempt is
// discarded. It returns once the session is in success or error.
func (s *Session) Accept(ctx context.Context, r io.Reader, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gen uint64
	var transitionErr error
	s.update(func() {
		switch s.state {
		case StateIdle, StateError, StateCommitted:
		default:
			transitionErr = fmt.Errorf("%w: cannot accept an image while %s", ErrInvalidTransition, s.state)
			return
		}
		s.reset()
		s.gen++
		gen = s.gen
		s.cancel = cancel
		s.state = StateUploading
		s.progress = progressUploading
	})
	if transitionErr != nil {
		return transitionErr
	}

	var buf bytes.Buffer
	if r == nil {
		err := errors.New("no image")
		s.fail(gen, ReadFailure, err)
		return err
	}
	if _, err := io.Copy(&buf, r); err != nil {
		s.fail(gen, ReadFailure, err)
		return fmt.Errorf("%s: %w", ReadFailure, err)
	}
	image := buf.Bytes()

	if !s.advance(gen, func() {
		s.image = image
		s.contentType = contentType
		s.state = StateProcessing
		s.progress = progressProcessing
	}) {
		return ErrCanceled
	}

	req := extraction.NewRequest(image, contentType)
	req.Config = s.config
	req.Options = s.options
	result, err := s.extractor.Extract(ctx, req)
	if err != nil {
		if !s.current(gen) {
			return ErrCanceled
		}
		e := extraction.AsError(err)
		reason := e.Message
		if e.Details != "" {
			reason += ": " + e.Details
		}
		s.fail(gen, reason, e)
		return e
	}

	if !s.advance(gen, func() {
		s.result = result
		s.cand = result.Candidate.Clone()
		s.state = StateSuccess
		s.progress = progressDone
		s.cancel = nil
	}) {
		return ErrCanceled
	}
	return nil
}

// advance applies fn only if the attempt identified by gen is still current
func (s *Session) advance(gen uint64, fn func()) bool {
	current := true
	s.update(func() {
		if s.gen != gen {
			current = false
			return
		}
		fn()
	})
	return current
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

// Review hands the extracted candidate to the reviewer
func (s *Session) Review() error {
	var err error
	s.update(func() {
		if s.state != StateSuccess {
			err = fmt.Errorf("%w: cannot review while %s", ErrInvalidTransition, s.state)
			return
		}
		s.state = StateReviewing
	})
	return err
}

// Edit applies one edit to the candidate under review. A failed edit leaves
// the candidate unchanged.
func (s *Session) Edit(e candidate.Edit) error {
	var err error
	s.update(func() {
		if s.state != StateReviewing {
			err = fmt.Errorf("%w: cannot edit while %s", ErrInvalidTransition, s.state)
			return
		}
		err = s.cand.Apply(e)
	})
	return err
}

// Commit persists the reviewed candidate. Only one commit runs at a time;
// a second call while one is in flight gets ErrInvalidTransition. On failure
// the session returns to reviewing so the commit can be retried.
func (s *Session) Commit(ctx context.Context, meta note.Metadata) (*note.NoteWithItems, error) {
	var (
		req note.CommitRequest
		gen uint64
		err error
	)
	s.update(func() {
		if s.state != StateReviewing {
			err = fmt.Errorf("%w: cannot commit while %s", ErrInvalidTransition, s.state)
			return
		}
		req, err = note.FromCandidate(s.cand.Clone(), meta)
		if err != nil {
			return
		}
		if s.result.ArtifactKey == "" {
			req.Image = s.image
			req.ImageContentType = s.contentType
		}
		gen = s.gen
		s.state = StateCommitting
	})
	if err != nil {
		return nil, err
	}

	committed, err := s.committer.Commit(ctx, req)
	if err != nil {
		s.advance(gen, func() {
			s.state = StateReviewing
		})
		return nil, fmt.Errorf("committing receipt: %w", err)
	}

	if !s.advance(gen, func() {
		s.state = StateCommitted
		s.committed = committed
		s.image = nil
	}) {
		return committed, fmt.Errorf("%w: note %s was saved but the session moved on", ErrCanceled, committed.ID)
	}
	return committed, nil
}

// Cancel discards the current attempt and returns to idle. An extraction in
// flight is interrupted. A committed session, or one whose commit is in
// flight, is left as is.
func (s *Session) Cancel() {
	s.update(func() {
		switch s.state {
		case StateCommitted, StateIdle, StateCommitting:
			return
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.gen++
		s.cancel = nil
		s.reset()
		s.state = StateIdle
	})
}
