package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/auth"
	"arena-quiz-service/internal/domain"
	"arena-quiz-service/internal/infra/memory"
	"arena-quiz-service/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type testServer struct {
	router    *gin.Engine
	ctrl      *app.RoomController
	auth      *auth.Authenticator
	hostToken string
}

func newTestServer(t *testing.T, limit RateLimit) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	scorer, err := app.NewScorer(app.DefaultScoring())
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}
	sets := memory.NewQuestionSetRepository(memory.NewStaticQuestionSetLoader(nil), time.Minute)
	ctrl := app.NewRoomController(memory.NewRoomStore(), sets, scorer, nil)
	authn, err := auth.NewAuthenticator("test-secret", "arena")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	token, err := authn.Issue(domain.Host{UserID: "host-1", DisplayName: "Teacher", IsAdmin: true}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	router := NewRouter(RouterConfig{
		Controller: ctrl,
		Auth:       authn,
		Metrics:    metrics.NewRecorder(prometheus.NewRegistry()),
		RateLimit:  limit,
	})
	return &testServer{router: router, ctrl: ctrl, auth: authn, hostToken: token}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "q1", Text: "2 + 2?", Options: []string{"3", "4", "5", "6"}, CorrectOption: 1, TimeLimit: 10},
		{ID: "q2", Text: "3 + 3?", Options: []string{"6", "7", "8", "9"}, CorrectOption: 0, TimeLimit: 10},
	}
}

func (s *testServer) createRoom(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/rooms", s.hostToken, map[string]any{"name": "Demo", "questions": sampleQuestions()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create room: %d %s", rec.Code, rec.Body.String())
	}
	return decode[struct {
		Code string `json:"code"`
	}](t, rec).Code
}

func (s *testServer) join(t *testing.T, code, name string) domain.Student {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/join", "", map[string]string{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("join: %d %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Student](t, rec)
}

func TestRESTQuizFlow(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	code := s.createRoom(t)
	alice := s.join(t, code, "Alice")
	s.join(t, code, "Bob")

	rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/open", s.hostToken, map[string]int{"duration": 10})
	cmd := decode[commandResponse](t, rec)
	if rec.Code != http.StatusOK || !cmd.Applied || cmd.Room.Phase != domain.PhaseOpen {
		t.Fatalf("open: %d %+v", rec.Code, cmd)
	}

	answer := map[string]any{"studentId": alice.ID, "questionId": "q1", "selectedOption": 1, "timeTaken": 2}
	if rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/answers", "", answer); rec.Code != http.StatusCreated {
		t.Fatalf("answer: %d %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/rooms/"+code+"/answers", "", answer)
	if rec.Code != http.StatusConflict || decode[errorBody](t, rec).Error != "already answered" {
		t.Fatalf("duplicate answer: %d %s", rec.Code, rec.Body.String())
	}

	// reveal before close is not permitted and reports applied=false
	rec = s.do(t, http.MethodPost, "/api/rooms/"+code+"/reveal", s.hostToken, nil)
	if rec.Code != http.StatusOK || decode[commandResponse](t, rec).Applied {
		t.Fatalf("early reveal: %d %s", rec.Code, rec.Body.String())
	}

	if rec := s.do(t, http.MethodGet, "/api/rooms/"+code+"/questions/q1/stats", "", nil); rec.Code != http.StatusConflict {
		t.Fatalf("stats before reveal: %d", rec.Code)
	}

	s.do(t, http.MethodPost, "/api/rooms/"+code+"/close", s.hostToken, nil)
	rec = s.do(t, http.MethodPost, "/api/rooms/"+code+"/reveal", s.hostToken, nil)
	if !decode[commandResponse](t, rec).Applied {
		t.Fatalf("reveal after close not applied: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/rooms/"+code+"/scores", "", nil)
	lb := decode[domain.Leaderboard](t, rec)
	if len(lb.Entries) != 2 || lb.Entries[0].StudentID != alice.ID || lb.Entries[0].Score != 800 {
		t.Fatalf("unexpected scores %+v", lb)
	}

	rec = s.do(t, http.MethodPost, "/api/rooms/"+code+"/cancel", s.hostToken, map[string]string{"message": "Bye"})
	if !decode[commandResponse](t, rec).Applied {
		t.Fatalf("cancel not applied: %s", rec.Body.String())
	}
	rec = s.do(t, http.MethodGet, "/api/rooms/"+code, "", nil)
	view := decode[app.RoomView](t, rec)
	if view.Status != domain.StatusEnded || view.CanceledMessage != "Bye" {
		t.Fatalf("unexpected view after cancel %+v", view)
	}
	if rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/join", "", map[string]string{"name": "Late"}); rec.Code != http.StatusNotFound {
		t.Fatalf("join ended room: %d", rec.Code)
	}
}

func TestHostRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	code := s.createRoom(t)

	if rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/open", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	other, _ := s.auth.Issue(domain.Host{UserID: "host-2", IsAdmin: true}, time.Hour)
	if rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/open", other, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/rooms", "", map[string]any{"questions": sampleQuestions()}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on create, got %d", rec.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	code := s.createRoom(t)
	alice := s.join(t, code, "Alice")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown room", http.MethodGet, "/api/rooms/ZZZZZZ", nil, http.StatusNotFound},
		{"answer while waiting", http.MethodPost, "/api/rooms/" + code + "/answers",
			map[string]any{"studentId": alice.ID, "questionId": "q1", "selectedOption": 1}, http.StatusConflict},
		{"answer without option", http.MethodPost, "/api/rooms/" + code + "/answers",
			map[string]any{"studentId": alice.ID, "questionId": "q1"}, http.StatusBadRequest},
		{"unknown student", http.MethodPost, "/api/rooms/" + code + "/answers",
			map[string]any{"studentId": "ghost", "questionId": "q1", "selectedOption": 1}, http.StatusNotFound},
		{"blank name", http.MethodPost, "/api/rooms/" + code + "/join", map[string]string{"name": "  "}, http.StatusBadRequest},
		{"unknown question stats", http.MethodGet, "/api/rooms/" + code + "/questions/nope/stats", nil, http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := s.do(t, tc.method, tc.path, "", tc.body); rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.want, rec.Code, rec.Body.String())
		}
	}

	bad := sampleQuestions()
	bad[0].Options = bad[0].Options[:2]
	if rec := s.do(t, http.MethodPost, "/api/rooms", s.hostToken, map[string]any{"questions": bad}); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid questions: expected 400, got %d", rec.Code)
	}
}

func TestJoinRateLimit(t *testing.T) {
	s := newTestServer(t, RateLimit{PerSecond: 0.001, Burst: 2})
	code := s.createRoom(t)

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, "/api/rooms/"+code+"/join", "", map[string]string{"name": "Student"})
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected burst of 2 then 429, got %v", codes)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, RateLimit{})
	if rec := s.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
	s.createRoom(t)
	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatalf("metrics: %d", rec.Code)
	}
}
