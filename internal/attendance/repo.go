package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"collegeattend/internal/docstore"
)

// Repository persists attendance data in the document store.
type Repository struct {
	store docstore.Store
}

// NewRepository creates a repo.
func NewRepository(store docstore.Store) *Repository {
	return &Repository{store: store}
}

// storeErr translates store failures into the attendance error taxonomy.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, docstore.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", what, ErrTransient, err)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// GetSession loads a session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	if strings.TrimSpace(id) == "" {
		return Session{}, fmt.Errorf("session: %w", ErrNotFound)
	}
	doc, err := r.store.Get(ctx, CollSessions, id)
	if err != nil {
		return Session{}, storeErr(err, "session "+id)
	}
	var s Session
	if err := fromFields(doc.Fields, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	s.SessionID = doc.ID
	return s, nil
}

// InsertSession writes a new session; an existing id is never overwritten.
func (r *Repository) InsertSession(ctx context.Context, s Session) error {
	fields, err := toFields(s)
	if err != nil {
		return err
	}
	err = r.store.Commit(ctx, docstore.NewBatch().CreateUnique(CollSessions, s.SessionID, fields))
	if errors.Is(err, docstore.ErrConflict) {
		return fmt.Errorf("session id %s already in use: %w", s.SessionID, ErrTransient)
	}
	return storeErr(err, "insert session")
}

// UpdateSession merges fields into a session.
func (r *Repository) UpdateSession(ctx context.Context, id string, fields docstore.Fields) error {
	return storeErr(r.store.Update(ctx, CollSessions, id, fields), "update session "+id)
}

// ListSessions returns sessions matching the filters, unordered.
func (r *Repository) ListSessions(ctx context.Context, filters ...docstore.Filter) ([]Session, error) {
	docs, err := r.store.Query(ctx, CollSessions, filters...)
	if err != nil {
		return nil, storeErr(err, "list sessions")
	}
	out := make([]Session, 0, len(docs))
	for _, d := range docs {
		var s Session
		if err := fromFields(d.Fields, &s); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", d.ID, err)
		}
		s.SessionID = d.ID
		out = append(out, s)
	}
	return out, nil
}

// GetCourse loads a course by id.
func (r *Repository) GetCourse(ctx context.Context, id string) (Course, error) {
	if strings.TrimSpace(id) == "" {
		return Course{}, fmt.Errorf("course: %w", ErrNotFound)
	}
	doc, err := r.store.Get(ctx, CollCourses, id)
	if err != nil {
		return Course{}, storeErr(err, "course "+id)
	}
	var c Course
	if err := fromFields(doc.Fields, &c); err != nil {
		return Course{}, fmt.Errorf("decode course %s: %w", id, err)
	}
	c.ID = doc.ID
	return c, nil
}

// HasActiveEnrollment reports whether the student is actively enrolled in the course.
func (r *Repository) HasActiveEnrollment(ctx context.Context, studentID, courseID string) (bool, error) {
	docs, err := r.store.Query(ctx, CollEnrollments,
		docstore.Where("studentId", studentID),
		docstore.Where("courseId", courseID),
		docstore.Where("status", string(EnrollmentActive)),
	)
	if err != nil {
		return false, storeErr(err, "enrollment lookup")
	}
	return len(docs) > 0, nil
}

// ActiveEnrollments lists the active enrollments of a course.
func (r *Repository) ActiveEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	docs, err := r.store.Query(ctx, CollEnrollments,
		docstore.Where("courseId", courseID),
		docstore.Where("status", string(EnrollmentActive)),
	)
	if err != nil {
		return nil, storeErr(err, "list enrollments")
	}
	out := make([]Enrollment, 0, len(docs))
	for _, d := range docs {
		var e Enrollment
		if err := fromFields(d.Fields, &e); err != nil {
			return nil, fmt.Errorf("decode enrollment %s: %w", d.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// GetStudent loads a student profile. A missing profile returns ErrNotFound.
func (r *Repository) GetStudent(ctx context.Context, id string) (Student, error) {
	doc, err := r.store.Get(ctx, CollStudents, id)
	if err != nil {
		return Student{}, storeErr(err, "student "+id)
	}
	var s Student
	if err := fromFields(doc.Fields, &s); err != nil {
		return Student{}, fmt.Errorf("decode student %s: %w", id, err)
	}
	return s, nil
}

// StudentName returns "First Last" or "" when the profile is missing.
func (r *Repository) StudentName(ctx context.Context, id string) (string, error) {
	s, err := r.GetStudent(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(s.FirstName + " " + s.LastName), nil
}

// QueryRecords returns attendance records matching the filters.
func (r *Repository) QueryRecords(ctx context.Context, filters ...docstore.Filter) ([]Record, error) {
	docs, err := r.store.Query(ctx, CollRecords, filters...)
	if err != nil {
		return nil, storeErr(err, "query records")
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		var rec Record
		if err := fromFields(d.Fields, &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", d.ID, err)
		}
		rec.ID = d.ID
		out = append(out, rec)
	}
	return out, nil
}

// RecordsForSession returns the records referencing a session.
func (r *Repository) RecordsForSession(ctx context.Context, sessionID string) ([]Record, error) {
	return r.QueryRecords(ctx, docstore.Where("sessionId", sessionID))
}

// CommitRedemption inserts a QR record unless one already exists for (studentId, sessionId), and
// increments the session counter in the same atomic batch.
func (r *Repository) CommitRedemption(ctx context.Context, rec Record, now time.Time) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	fields, err := toFields(rec)
	if err != nil {
		return err
	}
	b := docstore.NewBatch().
		CreateUnique(CollRecords, rec.ID, fields, "studentId", "sessionId").
		Increment(CollSessions, rec.SessionID, "attendanceCount", 1).
		Update(CollSessions, rec.SessionID, docstore.Fields{"updatedAt": now})
	err = r.store.Commit(ctx, b)
	if errors.Is(err, docstore.ErrConflict) {
		return ErrAlreadyMarked
	}
	return storeErr(err, "commit redemption")
}

var manualKey = []string{"studentId", "courseId", "date", "markedVia"}

// DayRecord returns the record a manual correction for (student, course, date) replaces: an
// earlier manual entry when there is one, otherwise the latest QR record. nil when neither exists.
func (r *Repository) DayRecord(ctx context.Context, studentID, courseID, date string) (*Record, error) {
	recs, err := r.QueryRecords(ctx,
		docstore.Where("studentId", studentID),
		docstore.Where("courseId", courseID),
		docstore.Where("date", date),
	)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	var pick *Record
	for i := range recs {
		rec := &recs[i]
		switch {
		case pick == nil:
			pick = rec
		case rec.MarkedVia == ViaManual && pick.MarkedVia != ViaManual:
			pick = rec
		case rec.MarkedVia == pick.MarkedVia && rec.Timestamp.After(pick.Timestamp):
			pick = rec
		}
	}
	return pick, nil
}

// InsertManual creates a manual record keyed on (studentId, courseId, date). A concurrent insert
// for the same key returns ErrAlreadyMarked.
func (r *Repository) InsertManual(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	fields, err := toFields(rec)
	if err != nil {
		return Record{}, err
	}
	err = r.store.Commit(ctx, docstore.NewBatch().CreateUnique(CollRecords, rec.ID, fields, manualKey...))
	if errors.Is(err, docstore.ErrConflict) {
		return Record{}, ErrAlreadyMarked
	}
	return rec, storeErr(err, "insert manual record")
}

// CorrectRecord overwrites existing with rec. A QR record keeps its sessionId but leaves its
// session's attendanceCount in the same batch, since it is no longer a qr_code record.
func (r *Repository) CorrectRecord(ctx context.Context, existing Record, rec Record, now time.Time) error {
	fields, err := toFields(rec)
	if err != nil {
		return err
	}
	delete(fields, "id")
	b := docstore.NewBatch().Update(CollRecords, existing.ID, fields)
	if existing.MarkedVia == ViaQRCode && existing.SessionID != "" {
		b.Increment(CollSessions, existing.SessionID, "attendanceCount", -1).
			Update(CollSessions, existing.SessionID, docstore.Fields{"updatedAt": now})
	}
	return storeErr(r.store.Commit(ctx, b), "update record "+existing.ID)
}

// DeleteSessionCascade removes a session and every record referencing it in one batch.
func (r *Repository) DeleteSessionCascade(ctx context.Context, sessionID string) (int, error) {
	recs, err := r.RecordsForSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	b := docstore.NewBatch().Delete(CollSessions, sessionID)
	for _, rec := range recs {
		b.Delete(CollRecords, rec.ID)
	}
	if err := r.store.Commit(ctx, b); err != nil {
		return 0, storeErr(err, "delete session "+sessionID)
	}
	return len(recs), nil
}

// SetCounter writes attendanceCount = n only if the stored counter still equals seen. Otherwise it
// returns ErrConflict from the store, untranslated, so the caller can recount.
func (r *Repository) SetCounter(ctx context.Context, sessionID string, seen, n int, now time.Time) error {
	b := docstore.NewBatch().
		Expect(CollSessions, sessionID, "attendanceCount", seen).
		Update(CollSessions, sessionID, docstore.Fields{"attendanceCount": n, "updatedAt": now})
	err := r.store.Commit(ctx, b)
	if errors.Is(err, docstore.ErrConflict) {
		return err
	}
	return storeErr(err, "set counter "+sessionID)
}

// CountQRRecords counts QR records referencing a session.
func (r *Repository) CountQRRecords(ctx context.Context, sessionID string) (int, error) {
	recs, err := r.QueryRecords(ctx,
		docstore.Where("sessionId", sessionID),
		docstore.Where("markedVia", string(ViaQRCode)),
	)
	return len(recs), err
}
