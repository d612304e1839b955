package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"collegeattend/internal/attendance"
	"collegeattend/internal/auth"
	"collegeattend/internal/docstore"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "collegeattend-test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *docstore.Memory
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{t: t, store: docstore.NewMemory(), now: time.Now().UTC()}
	ctx := context.Background()
	for _, s := range []struct {
		coll, id string
		fields   docstore.Fields
	}{
		{attendance.CollCourses, "c1", docstore.Fields{"courseName": "Algorithms", "facultyId": "f1"}},
		{attendance.CollStudents, "s1", docstore.Fields{"firstName": "Alice", "lastName": "Ng"}},
		{attendance.CollEnrollments, "e1", docstore.Fields{"studentId": "s1", "courseId": "c1", "status": "active"}},
	} {
		if err := ts.store.Set(ctx, s.coll, s.id, s.fields); err != nil {
			t.Fatal(err)
		}
	}
	svc := attendance.NewService(ts.store, attendance.Options{
		Limits: attendance.DefaultLimits,
		Now:    func() time.Time { return ts.now },
	})
	ts.router = gin.New()
	NewHandler(svc).Register(ts.router, auth.Authenticate(testKey, testIssuer))
	return ts
}

func (ts *testServer) do(method, path, sub string, role auth.Role, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		tok, err := auth.Issue(sub, role, testIssuer, testKey, time.Hour)
		if err != nil {
			ts.t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type generateResponse struct {
	Session attendance.Session `json:"session"`
	QRCode  string             `json:"qrCode"`
	QRData  string             `json:"qrData"`
}

func (ts *testServer) generate(duration int) generateResponse {
	ts.t.Helper()
	w := ts.do(http.MethodPost, "/attendance/generate-qr", "f1", auth.RoleFaculty, gin.H{
		"courseId": "c1", "sessionTitle": "Lecture 4", "duration": duration, "location": "Hall A",
	})
	if w.Code != http.StatusCreated {
		ts.t.Fatalf("generate-qr status = %d body = %s", w.Code, w.Body.String())
	}
	return decode[generateResponse](ts.t, w)
}

func TestGenerateAndMark(t *testing.T) {
	ts := newTestServer(t)
	gen := ts.generate(30)
	if !strings.HasPrefix(gen.QRCode, "data:image/png;base64,") {
		t.Errorf("qrCode = %.40s...", gen.QRCode)
	}
	if !strings.Contains(gen.QRData, gen.Session.SessionID) {
		t.Errorf("qrData = %s", gen.QRData)
	}

	w := ts.do(http.MethodPost, "/attendance/mark-attendance", "s1", auth.RoleStudent, gin.H{"qrData": gen.QRData})
	if w.Code != http.StatusOK {
		t.Fatalf("mark status = %d body = %s", w.Code, w.Body.String())
	}
	got := decode[struct {
		Attendance attendance.Record `json:"attendance"`
	}](t, w)
	if got.Attendance.StudentName != "Alice Ng" || got.Attendance.SessionTitle != "Lecture 4" {
		t.Errorf("attendance = %+v", got.Attendance)
	}

	w = ts.do(http.MethodPost, "/attendance/mark-attendance", "s1", auth.RoleStudent, gin.H{"qrData": gen.QRData})
	if e := decode[errorBody](t, w); w.Code != http.StatusBadRequest || e.Code != "ALREADY_MARKED" {
		t.Errorf("duplicate mark = %d %+v", w.Code, e)
	}

	ts.now = ts.now.Add(31 * time.Minute)
	w = ts.do(http.MethodPost, "/attendance/mark-attendance", "s1", auth.RoleStudent, gin.H{"qrData": gen.QRData})
	if e := decode[errorBody](t, w); w.Code != http.StatusBadRequest || e.Code != "SESSION_EXPIRED" {
		t.Errorf("expired mark = %d %+v", w.Code, e)
	}
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	gen := ts.generate(10)
	other, _ := attendance.Encode("missing", "c1", time.Now())

	tests := []struct {
		name   string
		method string
		path   string
		sub    string
		role   auth.Role
		body   any
		status int
		code   string
	}{
		{"no token", http.MethodGet, "/attendance/sessions", "", 0, nil, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"student cannot generate", http.MethodPost, "/attendance/generate-qr", "s1", auth.RoleStudent,
			gin.H{"courseId": "c1", "sessionTitle": "x"}, http.StatusForbidden, "FORBIDDEN"},
		{"staff cannot redeem", http.MethodPost, "/attendance/mark-attendance", "st1", auth.RoleStaff,
			gin.H{"qrData": gen.QRData}, http.StatusForbidden, "FORBIDDEN"},
		{"missing title", http.MethodPost, "/attendance/generate-qr", "f1", auth.RoleFaculty,
			gin.H{"courseId": "c1"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"duration too long", http.MethodPost, "/attendance/generate-qr", "f1", auth.RoleFaculty,
			gin.H{"courseId": "c1", "sessionTitle": "x", "duration": 500}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown course", http.MethodPost, "/attendance/generate-qr", "f1", auth.RoleFaculty,
			gin.H{"courseId": "zz", "sessionTitle": "x"}, http.StatusNotFound, "NOT_FOUND"},
		{"not owner", http.MethodPost, "/attendance/generate-qr", "f2", auth.RoleFaculty,
			gin.H{"courseId": "c1", "sessionTitle": "x"}, http.StatusForbidden, "FORBIDDEN"},
		{"garbage qr", http.MethodPost, "/attendance/mark-attendance", "s1", auth.RoleStudent,
			gin.H{"qrData": "{oops"}, http.StatusBadRequest, "INVALID_QR"},
		{"unknown session", http.MethodPost, "/attendance/mark-attendance", "s1", auth.RoleStudent,
			gin.H{"qrData": other}, http.StatusNotFound, "NOT_FOUND"},
		{"not enrolled", http.MethodPost, "/attendance/mark-attendance", "s9", auth.RoleStudent,
			gin.H{"qrData": gen.QRData}, http.StatusForbidden, "NOT_ENROLLED"},
		{"close by stranger", http.MethodPut, "/attendance/sessions/" + gen.Session.SessionID + "/close", "f2", auth.RoleFaculty,
			nil, http.StatusForbidden, "FORBIDDEN"},
		{"bad includeExpired", http.MethodGet, "/attendance/sessions?includeExpired=maybe", "f1", auth.RoleFaculty,
			nil, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad stats date", http.MethodGet, "/attendance/statistics?startDate=yesterday", "s1", auth.RoleStudent,
			nil, http.StatusBadRequest, "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.method, tt.path, tt.sub, tt.role, tt.body)
			e := decode[errorBody](t, w)
			if w.Code != tt.status || e.Code != tt.code {
				t.Errorf("got %d %+v, want %d %s", w.Code, e, tt.status, tt.code)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	gen := ts.generate(30)
	id := gen.Session.SessionID

	w := ts.do(http.MethodGet, "/attendance/sessions", "f1", auth.RoleFaculty, nil)
	list := decode[struct {
		Sessions []attendance.SessionView `json:"sessions"`
	}](t, w)
	if len(list.Sessions) != 1 || list.Sessions[0].CourseDetails == nil {
		t.Fatalf("sessions = %+v", list.Sessions)
	}

	w = ts.do(http.MethodGet, "/attendance/sessions", "f2", auth.RoleFaculty, nil)
	if !strings.Contains(w.Body.String(), `"sessions":[]`) {
		t.Errorf("other faculty sessions = %s, want empty array", w.Body.String())
	}

	w = ts.do(http.MethodPut, "/attendance/sessions/"+id+"/close", "f1", auth.RoleFaculty, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close status = %d", w.Code)
	}
	w = ts.do(http.MethodPost, "/attendance/mark-attendance", "s1", auth.RoleStudent, gin.H{"qrData": gen.QRData})
	if e := decode[errorBody](t, w); e.Code != "SESSION_CLOSED" {
		t.Errorf("mark closed = %d %+v", w.Code, e)
	}

	w = ts.do(http.MethodGet, "/attendance/sessions?includeExpired=true", "a1", auth.RoleAdmin, nil)
	list = decode[struct {
		Sessions []attendance.SessionView `json:"sessions"`
	}](t, w)
	if len(list.Sessions) != 1 || list.Sessions[0].Status != attendance.StatusClosed {
		t.Errorf("admin sessions = %+v", list.Sessions)
	}

	w = ts.do(http.MethodGet, "/attendance/sessions/"+id+"/attendance", "f1", auth.RoleFaculty, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d", w.Code)
	}
	rep := decode[attendance.Report](t, w)
	if rep.Statistics.TotalEnrolled != 1 || rep.Statistics.TotalPresent != 0 {
		t.Errorf("report statistics = %+v", rep.Statistics)
	}

	w = ts.do(http.MethodDelete, "/attendance/sessions/"+id, "a1", auth.RoleAdmin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = ts.do(http.MethodDelete, "/attendance/sessions/"+id, "a1", auth.RoleAdmin, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestManualMarkAndStatistics(t *testing.T) {
	ts := newTestServer(t)
	day := ts.now.Format(attendance.DateLayout)

	w := ts.do(http.MethodPost, "/attendance/manual-mark", "f1", auth.RoleFaculty, gin.H{
		"attendanceRecords": []gin.H{
			{"studentId": "s1", "courseId": "c1", "status": "present", "date": day},
			{"studentId": "s9", "courseId": "c1", "status": "present", "date": day},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("manual-mark status = %d body = %s", w.Code, w.Body.String())
	}
	res := decode[struct {
		Results []attendance.ManualResult `json:"results"`
	}](t, w)
	if len(res.Results) != 2 || res.Results[0].Status != attendance.ManualCreated || res.Results[1].Status != attendance.ManualError {
		t.Errorf("results = %+v", res.Results)
	}

	w = ts.do(http.MethodPost, "/attendance/manual-mark", "f1", auth.RoleFaculty, gin.H{"attendanceRecords": []gin.H{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty manual-mark status = %d, want 400", w.Code)
	}

	w = ts.do(http.MethodGet, "/attendance/statistics", "s1", auth.RoleStudent, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("statistics status = %d", w.Code)
	}
	stats := decode[attendance.Statistics](t, w)
	if stats.Statistics.TotalRecords != 1 || stats.Statistics.AttendancePercentage != 100 {
		t.Errorf("statistics = %+v", stats.Statistics)
	}
	if stats.CourseStats["c1"] == nil || stats.CourseStats["c1"].CourseName != "Algorithms" {
		t.Errorf("courseStats = %+v", stats.CourseStats)
	}
}
