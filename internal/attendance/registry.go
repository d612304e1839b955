package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"collegeattend/internal/auth"
	"collegeattend/internal/docstore"
	"collegeattend/internal/logging"
	"collegeattend/internal/metrics"
)

// Clock returns the current time; tests substitute a fixed clock.
type Clock func() time.Time

// Limits bounds session durations in minutes.
type Limits struct {
	DefaultMinutes int
	MaxMinutes     int
}

// DefaultLimits matches the recommended 1-180 minute range with a 30 minute default.
var DefaultLimits = Limits{DefaultMinutes: 30, MaxMinutes: 180}

// Registry creates, reads, closes and deletes attendance sessions.
type Registry struct {
	repo   *Repository
	now    Clock
	limits Limits
}

// NewRegistry creates a registry. A nil clock uses time.Now.
func NewRegistry(repo *Repository, limits Limits, now Clock) *Registry {
	if now == nil {
		now = time.Now
	}
	if limits.MaxMinutes <= 0 {
		limits.MaxMinutes = DefaultLimits.MaxMinutes
	}
	if limits.DefaultMinutes <= 0 || limits.DefaultMinutes > limits.MaxMinutes {
		limits.DefaultMinutes = min(DefaultLimits.DefaultMinutes, limits.MaxMinutes)
	}
	return &Registry{repo: repo, now: now, limits: limits}
}

// NewSession is the input to CreateSession.
type NewSession struct {
	CourseID        string
	Title           string
	DurationMinutes int
	Location        string
}

// CreateSession opens a session for a course the actor owns (or any course for an admin).
// A zero duration takes the configured default.
func (r *Registry) CreateSession(ctx context.Context, actor auth.Principal, in NewSession) (Session, error) {
	in.CourseID = strings.TrimSpace(in.CourseID)
	in.Title = strings.TrimSpace(in.Title)
	if in.CourseID == "" || in.Title == "" {
		return Session{}, fmt.Errorf("%w: course ID and session title are required", ErrInvalid)
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = r.limits.DefaultMinutes
	}
	if in.DurationMinutes < 1 || in.DurationMinutes > r.limits.MaxMinutes {
		return Session{}, fmt.Errorf("%w: duration must be between 1 and %d minutes", ErrInvalid, r.limits.MaxMinutes)
	}

	course, err := r.repo.GetCourse(ctx, in.CourseID)
	if err != nil {
		return Session{}, err
	}
	if !actor.CanManage(course.FacultyID) {
		return Session{}, fmt.Errorf("course %s: %w", in.CourseID, ErrForbidden)
	}

	now := r.now().UTC()
	s := Session{
		SessionID:       uuid.NewString(),
		CourseID:        in.CourseID,
		OwnerID:         actor.UserID,
		Title:           in.Title,
		Location:        in.Location,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(in.DurationMinutes) * time.Minute),
		DurationMinutes: in.DurationMinutes,
		IsActive:        true,
	}
	if err := r.repo.InsertSession(ctx, s); err != nil {
		return Session{}, err
	}

	metrics.SessionsCreated.Inc()
	logging.Ctx(ctx).Info().
		Str("session_id", s.SessionID).
		Str("course_id", s.CourseID).
		Str("owner_id", s.OwnerID).
		Int("duration_min", s.DurationMinutes).
		Msg("attendance session created")
	return s, nil
}

// GetSession returns the session with its effective status. Reads never write.
func (r *Registry) GetSession(ctx context.Context, id string) (SessionView, error) {
	s, err := r.repo.GetSession(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	return viewAt(s, r.now()), nil
}

// ListFilter narrows ListSessions.
type ListFilter struct {
	OwnerID        string
	CourseID       string
	IncludeExpired bool
}

// ListSessions returns matching sessions newest first, each with course details when the course
// exists. Without IncludeExpired only open sessions are returned.
func (r *Registry) ListSessions(ctx context.Context, f ListFilter) ([]SessionView, error) {
	var filters []docstore.Filter
	if f.OwnerID != "" {
		filters = append(filters, docstore.Where("facultyId", f.OwnerID))
	}
	if f.CourseID != "" {
		filters = append(filters, docstore.Where("courseId", f.CourseID))
	}
	if !f.IncludeExpired {
		filters = append(filters, docstore.Where("isActive", true))
	}
	sessions, err := r.repo.ListSessions(ctx, filters...)
	if err != nil {
		return nil, err
	}

	now := r.now()
	courses := make(map[string]*Course)
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		v := viewAt(s, now)
		if !f.IncludeExpired && v.Status != StatusOpen {
			continue
		}
		c, seen := courses[s.CourseID]
		if !seen {
			course, err := r.repo.GetCourse(ctx, s.CourseID)
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				return nil, err
			default:
				c = &course
			}
			courses[s.CourseID] = c
		}
		v.CourseDetails = c
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Registry) ownedSession(ctx context.Context, actor auth.Principal, id string) (Session, error) {
	s, err := r.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !actor.CanManage(s.OwnerID) {
		return Session{}, fmt.Errorf("session %s: %w", id, ErrForbidden)
	}
	return s, nil
}

// CloseSession ends a session early. Closing an already closed session is a no-op.
func (r *Registry) CloseSession(ctx context.Context, actor auth.Principal, id string) error {
	s, err := r.ownedSession(ctx, actor, id)
	if err != nil {
		return err
	}
	if !s.IsActive && s.ClosedAt != nil {
		return nil
	}
	now := r.now().UTC()
	if err := r.repo.UpdateSession(ctx, id, docstore.Fields{
		"isActive":  false,
		"closedAt":  now,
		"updatedAt": now,
	}); err != nil {
		return err
	}
	metrics.SessionsClosed.WithLabelValues("manual").Inc()
	logging.Ctx(ctx).Info().Str("session_id", id).Str("actor_id", actor.UserID).Msg("attendance session closed")
	return nil
}

// DeleteSession removes a session and all of its records atomically.
func (r *Registry) DeleteSession(ctx context.Context, actor auth.Principal, id string) error {
	if _, err := r.ownedSession(ctx, actor, id); err != nil {
		return err
	}
	n, err := r.repo.DeleteSessionCascade(ctx, id)
	if err != nil {
		return err
	}
	logging.Ctx(ctx).Info().Str("session_id", id).Int("records_deleted", n).Msg("attendance session deleted")
	return nil
}

// EnrolledStudent is one row of a session report.
type EnrolledStudent struct {
	StudentID        string       `json:"studentId"`
	StudentName      string       `json:"studentName"`
	Email            string       `json:"email"`
	RollNumber       string       `json:"rollNumber"`
	HasAttended      bool         `json:"hasAttended"`
	AttendanceStatus RecordStatus `json:"attendanceStatus"`
}

// ReportStatistics summarises a session report.
type ReportStatistics struct {
	TotalEnrolled        int `json:"totalEnrolled"`
	TotalPresent         int `json:"totalPresent"`
	TotalAbsent          int `json:"totalAbsent"`
	AttendancePercentage int `json:"attendancePercentage"`
}

// Report is the attendance sheet of one session.
type Report struct {
	Session           SessionView       `json:"session"`
	AttendanceRecords []Record          `json:"attendanceRecords"`
	EnrolledStudents  []EnrolledStudent `json:"enrolledStudents"`
	Statistics        ReportStatistics  `json:"statistics"`
}

// SessionAttendance builds the attendance sheet of a session for its owner or an admin.
func (r *Registry) SessionAttendance(ctx context.Context, actor auth.Principal, id string) (Report, error) {
	s, err := r.ownedSession(ctx, actor, id)
	if err != nil {
		return Report{}, err
	}
	recs, err := r.repo.RecordsForSession(ctx, id)
	if err != nil {
		return Report{}, err
	}
	enrollments, err := r.repo.ActiveEnrollments(ctx, s.CourseID)
	if err != nil {
		return Report{}, err
	}

	// A record corrected to absent by a manual mark stays attached to the session.
	attended := make(map[string]bool, len(recs))
	present := 0
	for _, rec := range recs {
		if rec.Status == Present {
			attended[rec.StudentID] = true
			present++
		}
	}
	students := make([]EnrolledStudent, 0, len(enrollments))
	for _, e := range enrollments {
		st, err := r.repo.GetStudent(ctx, e.StudentID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return Report{}, err
		}
		row := EnrolledStudent{
			StudentID:        e.StudentID,
			StudentName:      strings.TrimSpace(st.FirstName + " " + st.LastName),
			Email:            st.Email,
			RollNumber:       st.RollNumber,
			HasAttended:      attended[e.StudentID],
			AttendanceStatus: Absent,
		}
		if row.HasAttended {
			row.AttendanceStatus = Present
		}
		students = append(students, row)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.After(recs[j].Timestamp) })

	stats := ReportStatistics{
		TotalEnrolled: len(students),
		TotalPresent:  present,
		TotalAbsent:   len(students) - present,
	}
	if stats.TotalAbsent < 0 {
		stats.TotalAbsent = 0
	}
	if stats.TotalEnrolled > 0 {
		stats.AttendancePercentage = int(math.Round(float64(stats.TotalPresent) / float64(stats.TotalEnrolled) * 100))
	}
	return Report{
		Session:           viewAt(s, r.now()),
		AttendanceRecords: recs,
		EnrolledStudents:  students,
		Statistics:        stats,
	}, nil
}

// reconcileAttempts bounds recounts when redemptions keep landing between the read and the write.
const reconcileAttempts = 3

// Reconcile recomputes a session's counter from its QR records and repairs any drift. The write
// only lands if the counter is unchanged since it was read, so a concurrent redemption is never
// overwritten. It reports whether the stored counter changed.
func (r *Registry) Reconcile(ctx context.Context, id string) (bool, error) {
	for range reconcileAttempts {
		s, err := r.repo.GetSession(ctx, id)
		if err != nil {
			return false, err
		}
		n, err := r.repo.CountQRRecords(ctx, id)
		if err != nil {
			return false, err
		}
		if n == s.AttendanceCount {
			return false, nil
		}
		err = r.repo.SetCounter(ctx, id, s.AttendanceCount, n, r.now().UTC())
		if errors.Is(err, docstore.ErrConflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		metrics.CounterRepairs.Inc()
		logging.Ctx(ctx).Warn().
			Str("session_id", id).
			Int("stored", s.AttendanceCount).
			Int("actual", n).
			Msg("attendance counter repaired")
		return true, nil
	}
	// Every concurrent redemption publishes its own event, which triggers another pass.
	logging.Ctx(ctx).Debug().Str("session_id", id).Msg("counter moved during reconcile; deferring")
	return false, nil
}
