package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestBuildQuery(t *testing.T) {
	q, args, err := buildQuery("attendance", []Filter{
		Where("sessionId", "s1"),
		{Field: "date", Op: OpGte, Value: "2025-03-10"},
		{Field: "markedVia", Op: OpNe, Value: "manual"},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"collection = $1",
		"(data -> $2::text) = $3::jsonb",
		"(data -> $4::text) >= $5::jsonb",
		"(data -> $6::text) IS DISTINCT FROM $7::jsonb",
		"ORDER BY id",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
	if len(args) != 7 || args[2] != `"s1"` || args[4] != `"2025-03-10"` {
		t.Errorf("args = %v", args)
	}

	if _, _, err := buildQuery("c", []Filter{{Field: "x", Op: "~", Value: 1}}); err == nil {
		t.Error("buildQuery() with unknown operator error = nil")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"nil", nil, false},
		{"connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"serialization", fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"}), true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"conn done", sql.ErrConnDone, true},
		{"other", errors.New("syntax"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if errors.Is(got, ErrUnavailable) != tt.unavailable {
				t.Errorf("classify(%v) = %v, unavailable want %v", tt.err, got, tt.unavailable)
			}
			if tt.err == nil && got != nil {
				t.Errorf("classify(nil) = %v", got)
			}
		})
	}
}
