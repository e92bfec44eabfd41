// Package session holds the per-user conversion state.
//
// A session owns one preview surface, at most one current conversion and at
// most one live download artifact. Conversions are started with [Session.Begin],
// which returns a [Run] token that is handed back on completion:
//
//	run := sess.Begin(ctx, file.Name)
//	conv, err := runner.Convert(ctx, file, opts)
//	if err != nil {
//	    sess.Fail(run, err)
//	    return err
//	}
//	sess.Complete(ctx, run, conv)
//
// Overlapping runs are allowed. Whichever completes last becomes current.
//
// # Storage
//
// Sessions live in a [Store]. [MemoryStore] keeps them in process and drops
// idle sessions after their TTL; nothing survives a restart.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/source"
)

// Default durations.
const (
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = 30 * time.Minute
)

// Placeholder is shown on an empty preview surface.
const Placeholder = "Drop an image to convert it"

// State summarizes a session for clients.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// Session is one user's conversion state. All methods are safe for
// concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu        sync.Mutex
	artifacts *artifact.Store
	surface   *present.Surface
	ttl       time.Duration
	expiresAt time.Time
	seq       uint64
	pending   int
	current   *pipeline.Conversion
	lastErr   error
	handle    string
}

// Run identifies one conversion attempt.
type Run struct {
	ID      uint64
	Name    string
	Started time.Time
}

// New creates a session storing downloads in artifacts. A non-positive ttl
// uses DefaultTTL.
func New(artifacts *artifact.Store, ttl time.Duration) *Session {
	if artifacts == nil {
		artifacts = artifact.NewStore(nil, nil, 0)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		artifacts: artifacts,
		surface:   present.NewSurface(Placeholder),
		ttl:       ttl,
		expiresAt: now.Add(ttl),
	}
}

// IsExpired returns true if the session has been idle past its TTL.
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().After(s.expiresAt)
}

func (s *Session) touch() {
	s.expiresAt = time.Now().Add(s.ttl)
}

// Begin starts a run. The current result is invalidated, its artifact
// released, and the surface shows the processing overlay.
func (s *Session) Begin(ctx context.Context, name string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.seq++
	s.pending++
	s.current = nil
	s.lastErr = nil
	s.releaseLocked(ctx)
	s.surface.Processing(fmt.Sprintf("Converting %s...", name))
	return &Run{ID: s.seq, Name: name, Started: time.Now()}
}

// Complete makes conv the current result. The last completion wins,
// regardless of the order runs were started in. The processing overlay stays
// up until no other run is pending.
func (s *Session) Complete(ctx context.Context, run *Run, conv *pipeline.Conversion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.finishLocked(run)
	s.current = conv
	s.lastErr = nil
	s.releaseLocked(ctx)
	if s.pending == 0 {
		s.renderLocked()
	}
}

// Fail ends a run without a result. Once no other run is pending the
// surface shows the current result, or clears when there is none.
func (s *Session) Fail(run *Run, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.finishLocked(run)
	if s.pending > 0 {
		return
	}
	if s.current != nil {
		s.renderLocked()
		return
	}
	s.lastErr = err
	s.surface.Clear()
}

func (s *Session) renderLocked() {
	s.surface.Render(s.current.SVG, present.Label(s.current.Vectorized))
}

func (s *Session) finishLocked(run *Run) {
	if run != nil && s.pending > 0 {
		s.pending--
	}
}

// Convert validates f, then runs it through r as one session run. Rejected
// input leaves the session untouched.
func (s *Session) Convert(ctx context.Context, r *pipeline.Runner, f *source.File, opts pipeline.Options) (*pipeline.Conversion, error) {
	if err := source.Validate(f); err != nil {
		return nil, err
	}
	run := s.Begin(ctx, f.Name)
	conv, err := r.Convert(ctx, f, opts)
	if err != nil {
		s.Fail(run, err)
		return nil, err
	}
	s.Complete(ctx, run, conv)
	return conv, nil
}

// Download creates the artifact for variant from the current result,
// releasing any previous artifact first.
func (s *Session) Download(ctx context.Context, v present.Variant) (*artifact.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.current == nil {
		return nil, errors.New(errors.ErrCodeNoResult, "nothing to download yet")
	}
	s.releaseLocked(ctx)
	d := present.DownloadFor(v, s.current.Base, s.current.SVG)
	a, err := s.artifacts.Create(ctx, d.Filename, present.MediaType, d.Data)
	if err != nil {
		return nil, err
	}
	s.handle = a.Handle
	return a, nil
}

// Reset drops the result and releases the artifact.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.lastErr = nil
	s.releaseLocked(ctx)
	if s.pending == 0 {
		s.surface.Clear()
	}
}

// releaseLocked releases the live artifact. Release failures only leak
// until the artifact TTL.
func (s *Session) releaseLocked(ctx context.Context) {
	if s.handle == "" {
		return
	}
	_ = s.artifacts.Release(ctx, s.handle)
	s.handle = ""
}

// Current returns the current result, or nil.
func (s *Session) Current() *pipeline.Conversion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Handle returns the live artifact handle, or "".
func (s *Session) Handle() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// View returns the preview surface content.
func (s *Session) View() present.View {
	return s.surface.View()
}

// Snapshot is a point-in-time copy of a session for clients. State and
// Preview always agree: processing while any run is pending, otherwise the
// rendered result, the failure, or the placeholder.
type Snapshot struct {
	ID       string               `json:"id"`
	State    State                `json:"state"`
	Preview  string               `json:"preview_state"`
	Status   string               `json:"status,omitempty"`
	Error    string               `json:"error,omitempty"`
	Result   *pipeline.Conversion `json:"result,omitempty"`
	Labels   []string             `json:"labels,omitempty"`
	Artifact string               `json:"artifact,omitempty"`
	Pending  int                  `json:"pending"`
}

// Snapshot returns the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := s.surface.View()
	snap := Snapshot{
		ID:       s.ID,
		Preview:  view.State.String(),
		Status:   view.Text,
		Result:   s.current,
		Labels:   view.Labels,
		Artifact: s.handle,
		Pending:  s.pending,
	}
	switch {
	case s.pending > 0:
		snap.State = StateProcessing
	case s.current != nil:
		snap.State = StateReady
	case s.lastErr != nil:
		snap.State = StateFailed
		snap.Error = errors.UserMessage(s.lastErr)
	default:
		snap.State = StateIdle
	}
	return snap
}

// Store is the interface for session storage backends.
type Store interface {
	// Get retrieves a session by ID.
	// Returns nil, nil if the session doesn't exist or has expired.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Set stores a session.
	Set(ctx context.Context, session *Session) error

	// Delete removes a session and releases its artifact.
	Delete(ctx context.Context, sessionID string) error

	// Cleanup removes expired sessions.
	Cleanup(ctx context.Context) error
}
