package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"arena-quiz-service/internal/auth"
	"arena-quiz-service/internal/domain"
)

func TestParseQuestionSetAcceptsAuthoringVariants(t *testing.T) {
	data := []byte(`{
		"id": "math-1",
		"name": "Arithmetic",
		"questions": [
			{"text": "2 + 2?", "options": ["3", "4", "5", "6"], "correctOption": 1, "timeLimit": 15},
			{"question": "Capital of France?", "choices": ["Rome", "Paris", "Oslo", "Bern"], "answer": "paris"},
			{"prompt": "Largest?", "options": [{"text": "1"}, {"text": "9", "correct": true}, {"text": "3"}, {"text": "4"}]}
		]
	}`)

	set, err := parseQuestionSet(data, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if set.ID != "math-1" || set.Title != "Arithmetic" || len(set.Questions) != 3 {
		t.Fatalf("unexpected set %+v", set)
	}
	if q := set.Questions[0]; q.ID != "q1" || q.CorrectOption != 1 || q.TimeLimit != 15 {
		t.Fatalf("unexpected first question %+v", q)
	}
	if q := set.Questions[1]; q.Text != "Capital of France?" || q.CorrectOption != 1 || q.TimeLimit != defaultImportTimeLimit {
		t.Fatalf("unexpected second question %+v", q)
	}
	if q := set.Questions[2]; q.CorrectOption != 1 || q.Options[1] != "9" {
		t.Fatalf("unexpected third question %+v", q)
	}
}

func TestParseQuestionSetRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"id": "x", "questions": [`,
		"missing id":     `{"questions": [{"text": "a", "options": ["1","2","3","4"], "correctOption": 0}]}`,
		"no questions":   `{"id": "x", "questions": []}`,
		"unknown answer": `{"id": "x", "questions": [{"text": "a", "options": ["1","2","3","4"], "answer": "7"}]}`,
		"three options":  `{"id": "x", "questions": [{"text": "a", "options": ["1","2","3"], "correctOption": 0}]}`,
		"option range":   `{"id": "x", "questions": [{"text": "a", "options": ["1","2","3","4"], "correctOption": 4}]}`,
	}
	for name, raw := range cases {
		if _, err := parseQuestionSet([]byte(raw), ""); !errors.Is(err, domain.ErrInvalidQuestions) {
			t.Fatalf("%s: expected ErrInvalidQuestions, got %v", name, err)
		}
	}
}

func TestParseQuestionSetIDOverride(t *testing.T) {
	raw := `{"questions": [{"text": "a", "options": ["1","2","3","4"], "correctOption": 0}]}`
	set, err := parseQuestionSet([]byte(raw), "override")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if set.ID != "override" || set.Title != "override" {
		t.Fatalf("expected id override, got %+v", set)
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := "auth:\n  jwtSecret: cli-secret\n  issuer: arena-test\n  tokenTTL: 1h\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTokenCommandIssuesValidToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--config", writeConfig(t), "--user", "teacher-7", "--name", "Ms. Lee"})
	if err := root.Execute(); err != nil {
		t.Fatalf("token command: %v", err)
	}

	authn, err := auth.NewAuthenticator("cli-secret", "arena-test")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	host, err := authn.Validate(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if host.UserID != "teacher-7" || host.DisplayName != "Ms. Lee" || !host.IsAdmin {
		t.Fatalf("unexpected host %+v", host)
	}
}

func TestQuestionsImportDryRun(t *testing.T) {
	file := filepath.Join(t.TempDir(), "set.json")
	raw := `{"id": "warmup", "questions": [{"text": "a", "options": ["1","2","3","4"], "correctOption": 2}]}`
	if err := os.WriteFile(file, []byte(raw), 0o600); err != nil {
		t.Fatalf("write set: %v", err)
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"questions", "import", file, "--dry-run", "--config", writeConfig(t)})
	if err := root.Execute(); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), `"warmup" is valid (1 questions)`) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestCleanupCommandWithMemoryStores(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"cleanup", "--config", writeConfig(t)})
	if err := root.Execute(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if strings.TrimSpace(out.String()) != "expired=0 purged=0" {
		t.Fatalf("unexpected output %q", out.String())
	}
}
