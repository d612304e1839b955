package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"collegeattend/internal/auth"
	"collegeattend/internal/docstore"
	"collegeattend/internal/logging"
	"collegeattend/internal/metrics"
	"collegeattend/internal/queue"
)

// Publisher receives events after a redemption commits. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Engine validates scans against sessions and enrollments and records at most one
// attendance record per student and session.
type Engine struct {
	repo   *Repository
	now    Clock
	events Publisher
}

// NewEngine creates a redemption engine. events may be nil.
func NewEngine(repo *Repository, now Clock, events Publisher) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{repo: repo, now: now, events: events}
}

// Redeem converts a scanned payload into a present record for the actor.
func (e *Engine) Redeem(ctx context.Context, actor auth.Principal, payload, location string) (Record, error) {
	rec, err := e.redeem(ctx, actor, payload, location)
	metrics.Redemptions.WithLabelValues(outcome(err)).Inc()
	log := logging.Ctx(ctx)
	if err != nil {
		log.Debug().Err(err).Str("student_id", actor.UserID).Msg("redeem rejected")
		return Record{}, err
	}
	log.Info().
		Str("session_id", rec.SessionID).
		Str("student_id", rec.StudentID).
		Msg("attendance marked")
	e.publish(ctx, rec.SessionID)
	return rec, nil
}

func (e *Engine) redeem(ctx context.Context, actor auth.Principal, payload, location string) (Record, error) {
	p, err := Decode(payload)
	if err != nil {
		return Record{}, err
	}
	s, err := e.repo.GetSession(ctx, p.SessionID)
	if err != nil {
		return Record{}, err
	}
	if p.CourseID != s.CourseID {
		return Record{}, fmt.Errorf("%w: course does not match session", ErrMalformed)
	}

	now := e.now().UTC()
	switch s.StatusAt(now) {
	case StatusClosed:
		return Record{}, ErrSessionClosed
	case StatusExpired:
		if s.IsActive {
			e.expire(ctx, s.SessionID, now)
		}
		return Record{}, ErrSessionExpired
	case StatusOpen:
	}

	enrolled, err := e.repo.HasActiveEnrollment(ctx, actor.UserID, s.CourseID)
	if err != nil {
		return Record{}, err
	}
	if !enrolled {
		return Record{}, ErrNotEnrolled
	}

	name, err := e.repo.StudentName(ctx, actor.UserID)
	if err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:           uuid.NewString(),
		StudentID:    actor.UserID,
		CourseID:     s.CourseID,
		SessionID:    s.SessionID,
		FacultyID:    s.OwnerID,
		StudentName:  name,
		SessionTitle: s.Title,
		Status:       Present,
		Date:         now.Format(DateLayout),
		Timestamp:    now,
		MarkedVia:    ViaQRCode,
		Location:     location,
	}
	if err := e.repo.CommitRedemption(ctx, rec, now); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// expire persists the expiry observed by a redemption attempt. Failure is logged only; the
// attempt is rejected either way.
func (e *Engine) expire(ctx context.Context, id string, now time.Time) {
	err := e.repo.UpdateSession(ctx, id, docstore.Fields{"isActive": false, "updatedAt": now})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", id).Msg("persist session expiry failed")
		return
	}
	metrics.SessionsClosed.WithLabelValues("expired").Inc()
}

func (e *Engine) publish(ctx context.Context, sessionID string) {
	if e.events == nil {
		return
	}
	msg, err := queue.NewMarked(sessionID)
	if err == nil {
		err = e.events.Publish(ctx, msg)
	}
	if err != nil {
		metrics.QueuePublishErrors.Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Msg("publish attendance event failed")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "marked"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrAlreadyMarked):
		return "already_marked"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
