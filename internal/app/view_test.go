package app_test

import (
	"context"
	"testing"
	"time"

	"arena-quiz-service/internal/app"
	"arena-quiz-service/internal/domain"
)

func TestViewHidesAnswerUntilReveal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code := f.createRoom(t)
	a := f.join(t, code, "Alice")
	f.join(t, code, "Bob")
	_, _ = f.ctrl.OpenQuestion(ctx, host, code, 0)
	_ = f.submit(code, a.ID, "q1", 1, 2)

	f.now = f.now.Add(3 * time.Second)
	v, err := f.ctrl.View(ctx, code, app.Viewer{Role: app.RoleStudent, StudentID: a.ID})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if v.Question == nil || v.Question.CorrectOption != nil {
		t.Fatalf("correct option leaked before reveal: %+v", v.Question)
	}
	if v.RemainingSeconds != 7 {
		t.Fatalf("expected 7s remaining, got %d", v.RemainingSeconds)
	}
	if v.MyAnswer == nil || v.MyAnswer.SelectedOption != 1 {
		t.Fatalf("expected own answer in view, got %+v", v.MyAnswer)
	}
	if v.Leaderboard != nil || v.Stats != nil || v.Students != nil {
		t.Fatalf("student view exposes too much: %+v", v)
	}
	if v.AnsweredCount != 1 || v.StudentCount != 2 {
		t.Fatalf("unexpected counts %d/%d", v.AnsweredCount, v.StudentCount)
	}

	_, _ = f.ctrl.CloseQuestion(ctx, host, code)
	_, _ = f.ctrl.RevealAnswers(ctx, host, code)
	v, _ = f.ctrl.View(ctx, code, app.Viewer{Role: app.RoleHost})
	if v.Question.CorrectOption == nil || *v.Question.CorrectOption != 1 {
		t.Fatalf("expected correct option after reveal")
	}
	if v.Leaderboard == nil || v.Stats == nil || len(v.Students) != 2 {
		t.Fatalf("host view after reveal incomplete: %+v", v)
	}
	if v.Students[0].Name != "Alice" {
		t.Fatalf("students must be listed in join order")
	}
}

func TestViewOptionOnlyHidesQuestionText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	code, err := f.ctrl.CreateRoom(ctx, host, app.CreateRoomInput{Mode: domain.ModeOptionOnly, Questions: twoQuestions()})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = f.ctrl.OpenQuestion(ctx, host, code, 0)

	student, _ := f.ctrl.View(ctx, code, app.Viewer{Role: app.RoleStudent})
	if student.Question.Text != "" || len(student.Question.Options) != 4 {
		t.Fatalf("option-only student view: %+v", student.Question)
	}
	hostView, _ := f.ctrl.View(ctx, code, app.Viewer{Role: app.RoleHost})
	if hostView.Question.Text == "" {
		t.Fatalf("host must see the question text")
	}
}
