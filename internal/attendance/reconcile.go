package attendance

import (
	"context"
	"errors"

	"collegeattend/internal/logging"
	"collegeattend/internal/queue"
)

// Drain reconciles the session named by every attendance.marked message until msgs is closed.
func (r *Registry) Drain(ctx context.Context, msgs <-chan queue.Message) {
	for msg := range msgs {
		r.handleMessage(ctx, msg)
	}
}

func (r *Registry) handleMessage(ctx context.Context, msg queue.Message) {
	if msg.Type != queue.TypeAttendanceMarked {
		return
	}
	m, err := queue.DecodeMarked(msg)
	if err != nil {
		logging.Warn().Err(err).Msg("dropping malformed message")
		return
	}
	changed, err := r.Reconcile(ctx, m.SessionID)
	switch {
	case errors.Is(err, ErrNotFound):
		logging.Debug().Str("session_id", m.SessionID).Msg("session deleted before reconcile")
	case err != nil:
		logging.Error().Err(err).Str("session_id", m.SessionID).Msg("reconcile failed")
	case changed:
		logging.Info().Str("session_id", m.SessionID).Msg("session counter reconciled")
	}
}
