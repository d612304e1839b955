package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"collegeattend/internal/auth"
	"collegeattend/internal/logging"
	"collegeattend/internal/metrics"
)

// ManualEntry is one row submitted by faculty for manual marking.
type ManualEntry struct {
	StudentID    string       `json:"studentId" validate:"required"`
	CourseID     string       `json:"courseId" validate:"required"`
	Status       RecordStatus `json:"status" validate:"required,oneof=present absent"`
	Date         string       `json:"date" validate:"required,datetime=2006-01-02"`
	SessionTitle string       `json:"sessionTitle"`
	Location     string       `json:"location"`
}

// ManualResultStatus is the outcome of one manual entry.
type ManualResultStatus string

const (
	ManualCreated ManualResultStatus = "created"
	ManualUpdated ManualResultStatus = "updated"
	ManualError   ManualResultStatus = "error"
)

// ManualResult reports the outcome of one entry.
type ManualResult struct {
	StudentID string             `json:"studentId"`
	Status    ManualResultStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
}

const manualTitle = "Manual Entry"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Marker records attendance entered by hand.
type Marker struct {
	repo *Repository
	now  Clock
}

// NewMarker creates a manual marker. A nil clock uses time.Now.
func NewMarker(repo *Repository, now Clock) *Marker {
	if now == nil {
		now = time.Now
	}
	return &Marker{repo: repo, now: now}
}

// ManualMark applies each entry independently; a failed entry does not stop the rest.
// Only an empty batch or a store outage fails the call as a whole.
func (m *Marker) ManualMark(ctx context.Context, actor auth.Principal, entries []ManualEntry) ([]ManualResult, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: attendance records are required", ErrInvalid)
	}
	results := make([]ManualResult, 0, len(entries))
	courses := make(map[string]*Course)
	for _, entry := range entries {
		st, err := m.mark(ctx, actor, entry, courses)
		if errors.Is(err, ErrTransient) {
			return nil, err
		}
		res := ManualResult{StudentID: entry.StudentID, Status: st}
		if err != nil {
			res.Status = ManualError
			res.Error = entryError(err)
		}
		metrics.ManualMarks.WithLabelValues(string(res.Status)).Inc()
		results = append(results, res)
	}
	logging.Ctx(ctx).Info().
		Str("actor_id", actor.UserID).
		Int("entries", len(entries)).
		Msg("manual attendance applied")
	return results, nil
}

func (m *Marker) mark(ctx context.Context, actor auth.Principal, e ManualEntry, courses map[string]*Course) (ManualResultStatus, error) {
	e.StudentID = strings.TrimSpace(e.StudentID)
	e.CourseID = strings.TrimSpace(e.CourseID)
	if err := validate.Struct(e); err != nil {
		return ManualError, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	course, ok := courses[e.CourseID]
	if !ok {
		c, err := m.repo.GetCourse(ctx, e.CourseID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return ManualError, err
		default:
			course = &c
		}
		courses[e.CourseID] = course
	}
	if course == nil {
		return ManualError, fmt.Errorf("course %s: %w", e.CourseID, ErrNotFound)
	}
	if !actor.CanManage(course.FacultyID) {
		return ManualError, ErrForbidden
	}

	enrolled, err := m.repo.HasActiveEnrollment(ctx, e.StudentID, e.CourseID)
	if err != nil {
		return ManualError, err
	}
	if !enrolled {
		return ManualError, ErrNotEnrolled
	}

	name, err := m.repo.StudentName(ctx, e.StudentID)
	if err != nil {
		return ManualError, err
	}
	title := strings.TrimSpace(e.SessionTitle)
	if title == "" {
		title = manualTitle
	}
	now := m.now().UTC()
	rec := Record{
		StudentID:    e.StudentID,
		CourseID:     e.CourseID,
		FacultyID:    actor.UserID,
		StudentName:  name,
		SessionTitle: title,
		Status:       e.Status,
		Date:         e.Date,
		Timestamp:    now,
		MarkedVia:    ViaManual,
		Location:     e.Location,
	}

	// One retry covers a concurrent insert for the same key winning the race.
	for range 2 {
		existing, err := m.repo.DayRecord(ctx, e.StudentID, e.CourseID, e.Date)
		if err != nil {
			return ManualError, err
		}
		if existing != nil {
			rec.ID = existing.ID
			rec.Timestamp = existing.Timestamp
			rec.UpdatedAt = &now
			if err := m.repo.CorrectRecord(ctx, *existing, rec, now); err != nil {
				return ManualError, err
			}
			return ManualUpdated, nil
		}
		_, err = m.repo.InsertManual(ctx, rec)
		if errors.Is(err, ErrAlreadyMarked) {
			continue
		}
		if err != nil {
			return ManualError, err
		}
		return ManualCreated, nil
	}
	return ManualError, ErrAlreadyMarked
}

func entryError(err error) string {
	switch {
	case errors.Is(err, ErrInvalid):
		return "missing or invalid fields"
	case errors.Is(err, ErrNotFound):
		return "course not found"
	case errors.Is(err, ErrForbidden):
		return "access denied for this course"
	case errors.Is(err, ErrNotEnrolled):
		return "student not enrolled in course"
	default:
		return err.Error()
	}
}
