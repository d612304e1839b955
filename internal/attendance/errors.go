package attendance

import "errors"

var (
	// ErrMalformed means the scanned payload could not be used; the student must rescan.
	ErrMalformed = errors.New("invalid QR code data")
	// ErrInvalid means a request field was missing or out of range.
	ErrInvalid = errors.New("invalid request")
	// ErrNotFound means the session, course or student does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden means the actor does not own the course and is not an admin.
	ErrForbidden = errors.New("access denied")
	// ErrSessionClosed means the session was closed by its owner.
	ErrSessionClosed = errors.New("attendance session is no longer active")
	// ErrSessionExpired means the session's window has elapsed.
	ErrSessionExpired = errors.New("attendance session has expired")
	// ErrNotEnrolled means the student has no active enrollment in the session's course.
	ErrNotEnrolled = errors.New("not enrolled in this course")
	// ErrAlreadyMarked means attendance for this student and session already exists.
	ErrAlreadyMarked = errors.New("attendance already marked for this session")
	// ErrTransient means the store timed out or was unavailable; the operation may be retried.
	ErrTransient = errors.New("temporarily unavailable")
)
