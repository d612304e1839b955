package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"collegeattend/internal/auth"
	"collegeattend/internal/docstore"
)

// StatsFilter narrows Statistics. Dates are inclusive YYYY-MM-DD bounds.
type StatsFilter struct {
	CourseID  string
	StudentID string
	StartDate string
	EndDate   string
}

// Totals summarises the matched records.
type Totals struct {
	TotalRecords         int     `json:"totalRecords"`
	PresentRecords       int     `json:"presentRecords"`
	AbsentRecords        int     `json:"absentRecords"`
	AttendancePercentage float64 `json:"attendancePercentage"`
}

// Tally counts records in one group.
type Tally struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Total   int `json:"total"`
}

// CourseTally is a Tally with the course name attached.
type CourseTally struct {
	Tally
	CourseName string `json:"courseName"`
}

// Statistics is the aggregate attendance view.
type Statistics struct {
	Statistics  Totals                  `json:"statistics"`
	DailyStats  map[string]*Tally       `json:"dailyStats"`
	CourseStats map[string]*CourseTally `json:"courseStats"`
}

// Stats aggregates attendance records.
type Stats struct {
	repo *Repository
}

// NewStats creates the statistics reader.
func NewStats(repo *Repository) *Stats {
	return &Stats{repo: repo}
}

// scope returns the filters that restrict records to what the actor may see.
func scope(actor auth.Principal, f *StatsFilter) ([]docstore.Filter, error) {
	switch actor.Role {
	case auth.RoleStudent:
		f.StudentID = ""
		return []docstore.Filter{docstore.Where("studentId", actor.UserID)}, nil
	case auth.RoleFaculty:
		return []docstore.Filter{docstore.Where("facultyId", actor.UserID)}, nil
	case auth.RoleAdmin, auth.RoleStaff:
		return nil, nil
	}
	return nil, fmt.Errorf("role %v: %w", actor.Role, ErrForbidden)
}

// Statistics aggregates the records visible to the actor.
func (st *Stats) Statistics(ctx context.Context, actor auth.Principal, f StatsFilter) (Statistics, error) {
	for _, d := range []string{f.StartDate, f.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return Statistics{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalid, d)
		}
	}

	filters, err := scope(actor, &f)
	if err != nil {
		return Statistics{}, err
	}
	if f.CourseID != "" {
		filters = append(filters, docstore.Where("courseId", f.CourseID))
	}
	if f.StudentID != "" {
		filters = append(filters, docstore.Where("studentId", f.StudentID))
	}
	if f.StartDate != "" {
		filters = append(filters, docstore.Filter{Field: "date", Op: docstore.OpGte, Value: f.StartDate})
	}
	if f.EndDate != "" {
		filters = append(filters, docstore.Filter{Field: "date", Op: docstore.OpLte, Value: f.EndDate})
	}

	recs, err := st.repo.QueryRecords(ctx, filters...)
	if err != nil {
		return Statistics{}, err
	}

	out := Statistics{DailyStats: make(map[string]*Tally)}
	courses := make(map[string]*CourseTally)
	for _, r := range recs {
		present := r.Status == Present
		out.Statistics.TotalRecords++
		if present {
			out.Statistics.PresentRecords++
		}

		day := out.DailyStats[r.Date]
		if day == nil {
			day = &Tally{}
			out.DailyStats[r.Date] = day
		}
		day.add(present)

		if f.CourseID != "" {
			continue
		}
		ct := courses[r.CourseID]
		if ct == nil {
			ct = &CourseTally{}
			c, err := st.repo.GetCourse(ctx, r.CourseID)
			switch {
			case err == nil:
				ct.CourseName = c.Name
			case !errors.Is(err, ErrNotFound):
				return Statistics{}, err
			}
			courses[r.CourseID] = ct
		}
		ct.add(present)
	}

	t := &out.Statistics
	t.AbsentRecords = t.TotalRecords - t.PresentRecords
	if t.TotalRecords > 0 {
		t.AttendancePercentage = math.Round(float64(t.PresentRecords)/float64(t.TotalRecords)*10000) / 100
	}
	if len(courses) > 0 {
		out.CourseStats = courses
	}
	return out, nil
}

func (t *Tally) add(present bool) {
	if present {
		t.Present++
	} else {
		t.Absent++
	}
	t.Total++
}
