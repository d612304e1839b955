package attendance

import (
	"time"

	"github.com/goccy/go-json"

	"collegeattend/internal/docstore"
)

// Collections in the document store.
const (
	CollSessions    = "attendance_sessions"
	CollRecords     = "attendance"
	CollEnrollments = "enrollments"
	CollCourses     = "courses"
	CollStudents    = "students"
)

// DateLayout is the calendar-date format of records and statistics filters.
const DateLayout = "2006-01-02"

// Session is a time-boxed invitation to mark attendance for one course meeting.
type Session struct {
	SessionID       string     `json:"sessionId"`
	CourseID        string     `json:"courseId"`
	OwnerID         string     `json:"facultyId"`
	Title           string     `json:"sessionTitle"`
	Location        string     `json:"location"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExpiresAt       time.Time  `json:"expiresAt"`
	DurationMinutes int        `json:"duration"`
	IsActive        bool       `json:"isActive"`
	AttendanceCount int        `json:"attendanceCount"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// SessionStatus is the status of a session derived from its stored state and the clock.
type SessionStatus string

const (
	StatusOpen    SessionStatus = "open"
	StatusExpired SessionStatus = "expired"
	StatusClosed  SessionStatus = "closed"
)

// StatusAt derives the effective status without mutating anything. Only an explicit close stamps
// closedAt, so an inactive session without it was expired, and a scan gets SessionExpired.
func (s Session) StatusAt(now time.Time) SessionStatus {
	switch {
	case !s.IsActive && s.ClosedAt != nil:
		return StatusClosed
	case !s.IsActive, now.After(s.ExpiresAt):
		return StatusExpired
	default:
		return StatusOpen
	}
}

// SessionView is a session as presented to readers: IsActive reflects the effective status.
type SessionView struct {
	Session
	Status        SessionStatus `json:"status"`
	CourseDetails *Course       `json:"courseDetails,omitempty"`
}

func viewAt(s Session, now time.Time) SessionView {
	st := s.StatusAt(now)
	s.IsActive = st == StatusOpen
	return SessionView{Session: s, Status: st}
}

// RecordStatus is present or absent.
type RecordStatus string

const (
	Present RecordStatus = "present"
	Absent  RecordStatus = "absent"
)

// MarkedVia records how an attendance record was created.
type MarkedVia string

const (
	ViaQRCode MarkedVia = "qr_code"
	ViaManual MarkedVia = "manual"
)

// Record is one student's attendance for a session (QR) or a course day (manual).
type Record struct {
	ID           string       `json:"id"`
	StudentID    string       `json:"studentId"`
	CourseID     string       `json:"courseId"`
	SessionID    string       `json:"sessionId,omitempty"`
	FacultyID    string       `json:"facultyId"`
	StudentName  string       `json:"studentName"`
	SessionTitle string       `json:"sessionTitle"`
	Status       RecordStatus `json:"status"`
	Date         string       `json:"date"`
	Timestamp    time.Time    `json:"timestamp"`
	MarkedVia    MarkedVia    `json:"markedVia"`
	Location     string       `json:"location"`
	UpdatedAt    *time.Time   `json:"updatedAt,omitempty"`
}

// EnrollmentStatus is owned by the enrollment subsystem.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentInactive  EnrollmentStatus = "inactive"
	EnrollmentCompleted EnrollmentStatus = "completed"
)

// Enrollment links a student to a course.
type Enrollment struct {
	StudentID string           `json:"studentId"`
	CourseID  string           `json:"courseId"`
	Status    EnrollmentStatus `json:"status"`
}

// Course is the subset of the course document the attendance core reads.
type Course struct {
	ID        string `json:"courseId,omitempty"`
	Name      string `json:"courseName"`
	Code      string `json:"courseCode,omitempty"`
	FacultyID string `json:"facultyId"`
}

// Student is the subset of the student document used for display names.
type Student struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	RollNumber string `json:"rollNumber"`
}

func toFields(v any) (docstore.Fields, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var f docstore.Fields
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, err
	}
	return f, nil
}

func fromFields(f docstore.Fields, v any) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
