package memory

import (
	"context"
	"sort"
	"sync"

	"arena-quiz-service/internal/domain"
)

const subscriberBuffer = 8

// RoomStore is an in-memory implementation of app.RoomStore. Every write is applied
// under one lock and pushed to the room's subscribers before the lock is released.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	room        domain.Room
	seq         int64
	subscribers map[chan domain.Room]struct{}
}

func NewRoomStore() *RoomStore {
	return &RoomStore{rooms: make(map[string]*roomEntry)}
}

func (s *RoomStore) Create(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Code]; ok {
		return domain.ErrRoomExists
	}
	room = room.Clone()
	s.rooms[room.Code] = &roomEntry{
		room:        room,
		seq:         int64(len(room.Students)),
		subscribers: make(map[chan domain.Room]struct{}),
	}
	return nil
}

func (s *RoomStore) Get(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return entry.room.Clone(), nil
}

// Update runs fn on a copy of the room and keeps only the control fields it changed.
func (s *RoomStore) Update(_ context.Context, code string, fn func(*domain.Room) error) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	draft := entry.room.Clone()
	if err := fn(&draft); err != nil {
		return domain.Room{}, err
	}
	entry.room.SetControl(draft.Control())
	s.broadcastLocked(entry)
	return entry.room.Clone(), nil
}

func (s *RoomStore) AddStudent(_ context.Context, code string, student domain.Student) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.Student{}, domain.ErrRoomNotFound
	}
	if entry.room.Status == domain.StatusEnded {
		return domain.Student{}, domain.ErrRoomEnded
	}
	if existing, ok := entry.room.Students[student.ID]; ok {
		return existing, nil
	}
	entry.seq++
	student.Seq = entry.seq
	student.RoomCode = code
	entry.room.Students[student.ID] = student
	s.broadcastLocked(entry)
	return student, nil
}

// AddResponse stores response unless one already exists for the same
// (student, question). guard sees the room as of the write.
func (s *RoomStore) AddResponse(_ context.Context, code string, response domain.Response, guard func(domain.Room) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if guard != nil {
		if err := guard(entry.room); err != nil {
			return err
		}
	}
	if _, ok := entry.room.Students[response.StudentID]; !ok {
		return domain.ErrStudentNotFound
	}
	if _, dup := entry.room.Responses[response.Key()]; dup {
		return domain.ErrDuplicateSubmission
	}
	entry.room.Responses[response.Key()] = response
	s.broadcastLocked(entry)
	return nil
}

// Subscribe returns a channel that first receives the current snapshot and then every
// later change. Slow subscribers only ever miss intermediate snapshots, never the latest.
func (s *RoomStore) Subscribe(ctx context.Context, code string) (<-chan domain.Room, func(), error) {
	ch := make(chan domain.Room, subscriberBuffer)

	s.mu.Lock()
	entry, ok := s.rooms[code]
	if !ok {
		s.mu.Unlock()
		return nil, nil, domain.ErrRoomNotFound
	}
	entry.subscribers[ch] = struct{}{}
	ch <- entry.room.Clone()
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := entry.subscribers[ch]; ok {
				delete(entry.subscribers, ch)
				close(ch)
			}
		})
	}
	stop := context.AfterFunc(ctx, cancel)
	return ch, func() {
		stop()
		cancel()
	}, nil
}

func (s *RoomStore) List(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Room, 0, len(s.rooms))
	for _, entry := range s.rooms {
		out = append(out, entry.room.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// Delete removes a room and closes its subscriptions.
func (s *RoomStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.rooms[code]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for ch := range entry.subscribers {
		delete(entry.subscribers, ch)
		close(ch)
	}
	delete(s.rooms, code)
	return nil
}

func (s *RoomStore) broadcastLocked(entry *roomEntry) {
	for ch := range entry.subscribers {
		snapshot := entry.room.Clone()
		select {
		case ch <- snapshot:
		default:
			// drop the oldest pending snapshot so the newest always lands
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
