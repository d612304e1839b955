package attendance

import (
	"context"
	"errors"
	"testing"

	"collegeattend/internal/auth"
)

// seedStats records attendance in both courses: c1 (f1) on two days, c2 (f2) on one.
func seedStats(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	s := f.open(t, faculty, "c1", 30)
	if _, err := f.svc.Redeem(ctx, alice, f.payload(t, s), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ManualMark(ctx, faculty, []ManualEntry{
		{StudentID: "s2", CourseID: "c1", Status: Absent, Date: "2025-03-10"},
		{StudentID: "s1", CourseID: "c1", Status: Present, Date: "2025-03-11"},
		{StudentID: "s2", CourseID: "c1", Status: Present, Date: "2025-03-11"},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ManualMark(ctx, faculty2, []ManualEntry{
		{StudentID: "s3", CourseID: "c2", Status: Absent, Date: "2025-03-12"},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestStatistics_Scope(t *testing.T) {
	f := newFixture(t)
	seedStats(t, f)
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   auth.Principal
		filter  StatsFilter
		total   int
		present int
		pct     float64
	}{
		{"admin sees all", admin, StatsFilter{}, 5, 3, 60},
		{"staff sees all", staff, StatsFilter{}, 5, 3, 60},
		{"faculty sees own", faculty, StatsFilter{}, 4, 3, 75},
		{"other faculty", faculty2, StatsFilter{}, 1, 0, 0},
		{"student sees own", alice, StatsFilter{}, 2, 2, 100},
		{"student filter ignored", bob, StatsFilter{StudentID: "s1"}, 2, 1, 50},
		{"admin by student", admin, StatsFilter{StudentID: "s2"}, 2, 1, 50},
		{"date range", admin, StatsFilter{StartDate: "2025-03-11", EndDate: "2025-03-12"}, 3, 2, 66.67},
		{"single day", faculty, StatsFilter{StartDate: "2025-03-10", EndDate: "2025-03-10"}, 2, 1, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Statistics(ctx, tt.actor, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			s := got.Statistics
			if s.TotalRecords != tt.total || s.PresentRecords != tt.present || s.AbsentRecords != tt.total-tt.present {
				t.Errorf("totals = %+v, want %d/%d", s, tt.total, tt.present)
			}
			if s.AttendancePercentage != tt.pct {
				t.Errorf("percentage = %v, want %v", s.AttendancePercentage, tt.pct)
			}
		})
	}
}

func TestStatistics_Groups(t *testing.T) {
	f := newFixture(t)
	seedStats(t, f)
	ctx := context.Background()

	got, err := f.svc.Statistics(ctx, admin, StatsFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if d := got.DailyStats["2025-03-10"]; d == nil || *d != (Tally{Present: 1, Absent: 1, Total: 2}) {
		t.Errorf("daily 2025-03-10 = %+v", d)
	}
	c1 := got.CourseStats["c1"]
	if c1 == nil || c1.CourseName != "Algorithms" || c1.Total != 4 || c1.Present != 3 {
		t.Errorf("course c1 = %+v", c1)
	}

	got, err = f.svc.Statistics(ctx, admin, StatsFilter{CourseID: "c1"})
	if err != nil {
		t.Fatal(err)
	}
	if got.CourseStats != nil {
		t.Errorf("CourseStats = %+v, want nil when filtered by course", got.CourseStats)
	}

	got, err = f.svc.Statistics(ctx, admin, StatsFilter{StartDate: "2030-01-01"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Statistics.TotalRecords != 0 || got.CourseStats != nil || len(got.DailyStats) != 0 {
		t.Errorf("empty stats = %+v", got)
	}
}

func TestStatistics_RejectsBadDate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Statistics(context.Background(), admin, StatsFilter{StartDate: "March"})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Statistics() error = %v, want ErrInvalid", err)
	}
}
