package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"arena-quiz-service/internal/domain"
	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*RoomStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return NewRoomStore(newClient(mr), time.Hour), mr
}

func sampleRoom(code string) domain.Room {
	return domain.Room{
		Code:      code,
		HostID:    "host-1",
		Status:    domain.StatusWaiting,
		Mode:      domain.ModeFullManual,
		Questions: sampleSet().Questions,
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestRoomStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)

	if err := store.Create(ctx, sampleRoom("ABC123")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sampleRoom("ABC123")); !errors.Is(err, domain.ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
	if !mr.Exists("rooms:ABC123") {
		t.Fatalf("expected room key")
	}
	if ok, _ := mr.SIsMember("rooms:index", "ABC123"); !ok {
		t.Fatalf("expected room indexed")
	}

	room, err := store.Get(ctx, "ABC123")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if room.HostID != "host-1" || len(room.Questions) != 1 || room.Phase() != domain.PhaseWaiting {
		t.Fatalf("unexpected room %+v", room)
	}
	if _, err := store.Get(ctx, "NOPE00"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
}

func TestRoomStoreUpdatePersistsControl(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))

	start := time.Unix(1700000100, 0).UTC()
	_, err := store.Update(ctx, "ABC123", func(r *domain.Room) error {
		r.Status = domain.StatusActive
		r.AcceptingAnswers = true
		r.QuestionStartTime = start
		r.QuestionTimer = 10
		r.HostID = "ignored"
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	room, _ := store.Get(ctx, "ABC123")
	if room.Phase() != domain.PhaseOpen || !room.QuestionStartTime.Equal(start) || room.QuestionTimer != 10 {
		t.Fatalf("control not persisted: %+v", room.Control())
	}
	if room.HostID != "host-1" {
		t.Fatalf("non-control field changed: %s", room.HostID)
	}

	if _, err := store.Update(ctx, "ABC123", func(r *domain.Room) error {
		r.Status = domain.StatusEnded
		return domain.ErrInvalidTransition
	}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if room, _ := store.Get(ctx, "ABC123"); room.Status != domain.StatusActive {
		t.Fatalf("rejected update must not write")
	}
}

func TestRoomStoreStudentsAndResponses(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))

	a, err := store.AddStudent(ctx, "ABC123", domain.Student{ID: "s1", Name: "A"})
	if err != nil {
		t.Fatalf("add student: %v", err)
	}
	b, _ := store.AddStudent(ctx, "ABC123", domain.Student{ID: "s2", Name: "B"})
	if a.Seq != 1 || b.Seq != 2 {
		t.Fatalf("expected join order 1,2 got %d,%d", a.Seq, b.Seq)
	}
	again, _ := store.AddStudent(ctx, "ABC123", domain.Student{ID: "s1", Name: "A"})
	if again.Seq != 1 {
		t.Fatalf("re-adding a student must keep its seq, got %d", again.Seq)
	}

	resp := domain.Response{StudentID: "s1", QuestionID: "q1", SelectedOption: 1, TimeTakenSeconds: 2, TimeLimitSeconds: 10}
	if err := store.AddResponse(ctx, "ABC123", resp, nil); err != nil {
		t.Fatalf("add response: %v", err)
	}
	resp.SelectedOption = 2
	if err := store.AddResponse(ctx, "ABC123", resp, nil); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if err := store.AddResponse(ctx, "ABC123", domain.Response{StudentID: "ghost", QuestionID: "q1"}, nil); !errors.Is(err, domain.ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
	guardErr := store.AddResponse(ctx, "ABC123", domain.Response{StudentID: "s2", QuestionID: "q1"}, func(domain.Room) error {
		return domain.ErrNotAcceptingAnswers
	})
	if !errors.Is(guardErr, domain.ErrNotAcceptingAnswers) {
		t.Fatalf("expected guard error, got %v", guardErr)
	}

	room, _ := store.Get(ctx, "ABC123")
	if len(room.Students) != 2 || len(room.Responses) != 1 {
		t.Fatalf("unexpected room contents: %d students %d responses", len(room.Students), len(room.Responses))
	}
	if got := room.Responses[domain.ResponseKey("s1", "q1")].SelectedOption; got != 1 {
		t.Fatalf("first answer must stand, got %d", got)
	}
}

func TestRoomStoreAddStudentRejectsEndedRoom(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))
	if _, err := store.AddStudent(ctx, "ABC123", domain.Student{ID: "s1", Name: "A"}); err != nil {
		t.Fatalf("add student: %v", err)
	}

	_, err := store.Update(ctx, "ABC123", func(r *domain.Room) error {
		r.Status = domain.StatusEnded
		r.CanceledMessage = "bye"
		return nil
	})
	if err != nil {
		t.Fatalf("end room: %v", err)
	}

	if _, err := store.AddStudent(ctx, "ABC123", domain.Student{ID: "s2", Name: "B"}); !errors.Is(err, domain.ErrRoomEnded) {
		t.Fatalf("expected ErrRoomEnded, got %v", err)
	}
	if mr.HGet("rooms:ABC123:students", "s2") != "" {
		t.Fatalf("late student must not be stored")
	}
	if seq, _ := mr.Get("rooms:ABC123:seq"); seq != "1" {
		t.Fatalf("rejected join must not consume a seq, got %q", seq)
	}
}

func TestRoomStoreJoinsRacingEndNeverLandAfterIt(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))

	const joiners = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	joined := map[string]bool{}
	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			_, err := store.AddStudent(ctx, "ABC123", domain.Student{ID: id, Name: id})
			switch {
			case err == nil:
				mu.Lock()
				joined[id] = true
				mu.Unlock()
			case errors.Is(err, domain.ErrRoomEnded):
			default:
				t.Errorf("join %s: %v", id, err)
			}
		}(i)
	}
	_, err := store.Update(ctx, "ABC123", func(r *domain.Room) error {
		r.Status = domain.StatusEnded
		return nil
	})
	if err != nil {
		t.Fatalf("end room: %v", err)
	}
	wg.Wait()

	// only joins that committed are stored, and nothing joins once the room has ended
	room, _ := store.Get(ctx, "ABC123")
	if len(room.Students) != len(joined) {
		t.Fatalf("stored %d students, %d joins reported success", len(room.Students), len(joined))
	}
	if _, err := store.AddStudent(ctx, "ABC123", domain.Student{ID: "late", Name: "late"}); !errors.Is(err, domain.ErrRoomEnded) {
		t.Fatalf("expected ErrRoomEnded after end, got %v", err)
	}
}

func TestRoomStoreConcurrentResponsesFirstWins(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))
	_, _ = store.AddStudent(ctx, "ABC123", domain.Student{ID: "s1", Name: "A"})

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(option int) {
			defer wg.Done()
			results <- store.AddResponse(ctx, "ABC123", domain.Response{StudentID: "s1", QuestionID: "q1", SelectedOption: option}, nil)
		}(i % 4)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted response, got %d", accepted)
	}
}

func TestRoomStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))

	ch, cancel, err := store.Subscribe(ctx, "ABC123")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if initial := <-ch; initial.Code != "ABC123" {
		t.Fatalf("unexpected initial snapshot %+v", initial)
	}

	_, _ = store.AddStudent(ctx, "ABC123", domain.Student{ID: "s1", Name: "A"})
	select {
	case room := <-ch:
		if len(room.Students) != 1 {
			t.Fatalf("expected 1 student, got %d", len(room.Students))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for update")
	}

	if err := store.Delete(ctx, "ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			// a late update may still be in flight; the close must follow
			if _, ok := <-ch; ok {
				t.Fatalf("expected channel closed after delete")
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after delete")
	}
}

func TestRoomStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t)
	_ = store.Create(ctx, sampleRoom("ABC123"))
	_ = store.Create(ctx, sampleRoom("XYZ789"))
	_, _ = store.AddStudent(ctx, "ABC123", domain.Student{ID: "s1", Name: "A"})

	rooms, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rooms) != 2 || rooms[0].Code != "ABC123" {
		t.Fatalf("unexpected rooms %+v", rooms)
	}

	if err := store.Delete(ctx, "ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("rooms:ABC123:students") || mr.Exists("rooms:ABC123") {
		t.Fatalf("expected room keys removed")
	}
	if err := store.Delete(ctx, "ABC123"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound on second delete, got %v", err)
	}

	// a record that expired leaves a dangling index entry behind
	mr.Del("rooms:XYZ789")
	rooms, _ = store.List(ctx)
	if len(rooms) != 0 {
		t.Fatalf("expected expired room skipped, got %d", len(rooms))
	}
	if ok, _ := mr.SIsMember("rooms:index", "XYZ789"); ok {
		t.Fatalf("expected dangling index entry removed")
	}
}
