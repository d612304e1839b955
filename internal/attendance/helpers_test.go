package attendance

import (
	"context"
	"sync"
	"testing"
	"time"

	"collegeattend/internal/auth"
	"collegeattend/internal/docstore"
	"collegeattend/internal/queue"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

var (
	faculty  = auth.Principal{UserID: "f1", Role: auth.RoleFaculty}
	faculty2 = auth.Principal{UserID: "f2", Role: auth.RoleFaculty}
	admin    = auth.Principal{UserID: "a1", Role: auth.RoleAdmin}
	staff    = auth.Principal{UserID: "st1", Role: auth.RoleStaff}
	alice    = auth.Principal{UserID: "s1", Role: auth.RoleStudent}
	bob      = auth.Principal{UserID: "s2", Role: auth.RoleStudent}
	carol    = auth.Principal{UserID: "s3", Role: auth.RoleStudent}
)

type fixture struct {
	store  *docstore.Memory
	clock  *fakeClock
	events *fakePublisher
	svc    *Service
}

// newFixture seeds two courses: c1 owned by f1 with alice and bob enrolled, c2 owned by f2 with
// carol enrolled. carol's enrollment in c1 is inactive.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:  docstore.NewMemory(),
		clock:  &fakeClock{t: t0},
		events: &fakePublisher{},
	}
	f.svc = NewService(f.store, Options{Limits: DefaultLimits, Now: f.clock.Now, Events: f.events})

	seed := []struct {
		coll, id string
		fields   docstore.Fields
	}{
		{CollCourses, "c1", docstore.Fields{"courseName": "Algorithms", "courseCode": "CS201", "facultyId": "f1"}},
		{CollCourses, "c2", docstore.Fields{"courseName": "Databases", "courseCode": "CS305", "facultyId": "f2"}},
		{CollStudents, "s1", docstore.Fields{"firstName": "Alice", "lastName": "Ng", "email": "alice@example.edu", "rollNumber": "R1"}},
		{CollStudents, "s2", docstore.Fields{"firstName": "Bob", "lastName": "Roy", "email": "bob@example.edu", "rollNumber": "R2"}},
		{CollEnrollments, "e1", docstore.Fields{"studentId": "s1", "courseId": "c1", "status": "active"}},
		{CollEnrollments, "e2", docstore.Fields{"studentId": "s2", "courseId": "c1", "status": "active"}},
		{CollEnrollments, "e3", docstore.Fields{"studentId": "s3", "courseId": "c2", "status": "active"}},
		{CollEnrollments, "e4", docstore.Fields{"studentId": "s3", "courseId": "c1", "status": "inactive"}},
	}
	for _, s := range seed {
		if err := f.store.Set(ctx, s.coll, s.id, s.fields); err != nil {
			t.Fatalf("seed %s/%s: %v", s.coll, s.id, err)
		}
	}
	return f
}

func (f *fixture) open(t *testing.T, actor auth.Principal, courseID string, minutes int) Session {
	t.Helper()
	s, err := f.svc.CreateSession(context.Background(), actor, NewSession{
		CourseID:        courseID,
		Title:           "Lecture",
		DurationMinutes: minutes,
		Location:        "Room 101",
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}

func (f *fixture) payload(t *testing.T, s Session) string {
	t.Helper()
	p, err := Encode(s.SessionID, s.CourseID, s.CreatedAt)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fixture) stored(t *testing.T, id string) Session {
	t.Helper()
	s, err := NewRepository(f.store).GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession(%s) error = %v", id, err)
	}
	return s
}
