package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	indexKey         = "rooms:index"
	maxTxRetries     = 5
	subscriberBuffer = 8

	eventUpdated = "updated"
	eventDeleted = "deleted"
)

// RoomStore keeps rooms in Redis so several server instances can share them.
// Layout per room code:
//
//	rooms:{code}            JSON record (immutable fields + control), created with SETNX
//	rooms:{code}:students   HASH studentID -> JSON student
//	rooms:{code}:seq        INCR counter for join order
//	rooms:{code}:responses  HASH studentID:questionID -> JSON response, written with HSETNX
//	rooms:{code}:events     pub/sub channel, one message per write
//
// Control updates run under WATCH/MULTI on the record key; answers are written with
// HSETNX under the same watch, so a close racing a submit is serialized by Redis.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoomStore builds a store; ttl > 0 refreshes an expiry on every write.
func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{client: client, ttl: ttl}
}

type roomRecord struct {
	Code      string            `json:"code"`
	Name      string            `json:"name,omitempty"`
	HostID    string            `json:"hostId"`
	Mode      domain.Mode       `json:"mode"`
	Questions []domain.Question `json:"questions"`
	CreatedAt time.Time         `json:"createdAt"`
	Control   domain.Control    `json:"control"`
}

func recordFromRoom(r domain.Room) roomRecord {
	return roomRecord{
		Code:      r.Code,
		Name:      r.Name,
		HostID:    r.HostID,
		Mode:      r.Mode,
		Questions: r.Questions,
		CreatedAt: r.CreatedAt,
		Control:   r.Control(),
	}
}

func (rec roomRecord) room() domain.Room {
	r := domain.Room{
		Code:      rec.Code,
		Name:      rec.Name,
		HostID:    rec.HostID,
		Mode:      rec.Mode,
		Questions: rec.Questions,
		CreatedAt: rec.CreatedAt,
		Students:  map[string]domain.Student{},
		Responses: map[string]domain.Response{},
	}
	r.SetControl(rec.Control)
	return r
}

func (s *RoomStore) Create(ctx context.Context, room domain.Room) error {
	payload, err := json.Marshal(recordFromRoom(room))
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	ok, err := s.client.SetNX(ctx, roomKey(room.Code), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("redis create room: %w", err)
	}
	if !ok {
		return domain.ErrRoomExists
	}
	if err := s.client.SAdd(ctx, indexKey, room.Code).Err(); err != nil {
		return fmt.Errorf("redis index room: %w", err)
	}
	return nil
}

func (s *RoomStore) Get(ctx context.Context, code string) (domain.Room, error) {
	return loadRoom(ctx, s.client, code)
}

// Update applies fn to the room and persists the resulting control fields atomically.
func (s *RoomStore) Update(ctx context.Context, code string, fn func(*domain.Room) error) (domain.Room, error) {
	var updated domain.Room
	err := s.watch(ctx, func(tx *redis.Tx) error {
		room, err := loadRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		draft := room.Clone()
		if err := fn(&draft); err != nil {
			return err
		}
		room.SetControl(draft.Control())
		payload, err := json.Marshal(recordFromRoom(room))
		if err != nil {
			return fmt.Errorf("encode room: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, roomKey(code), payload, s.ttl)
			s.touch(ctx, pipe, code)
			pipe.Publish(ctx, eventsKey(code), eventUpdated)
			return nil
		})
		if err != nil {
			return err
		}
		updated = room
		return nil
	}, roomKey(code))
	if err != nil {
		return domain.Room{}, err
	}
	return updated, nil
}

// AddStudent registers student with HSETNX while watching the room record, so a join
// racing an end or cancel never lands in an ended room.
func (s *RoomStore) AddStudent(ctx context.Context, code string, student domain.Student) (domain.Student, error) {
	student.RoomCode = code
	var stored domain.Student
	err := s.watch(ctx, func(tx *redis.Tx) error {
		room, err := loadRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		if room.Status == domain.StatusEnded {
			return domain.ErrRoomEnded
		}
		if existing, ok := room.Students[student.ID]; ok {
			stored = existing
			return nil
		}

		// seq is outside the watched key; a retried join only leaves a gap in the order
		seq, err := tx.Incr(ctx, seqKey(code)).Result()
		if err != nil {
			return fmt.Errorf("redis join order: %w", err)
		}
		candidate := student
		candidate.Seq = seq
		payload, err := json.Marshal(candidate)
		if err != nil {
			return fmt.Errorf("encode student: %w", err)
		}

		var added *redis.BoolCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			added = pipe.HSetNX(ctx, studentsKey(code), candidate.ID, payload)
			s.touch(ctx, pipe, code)
			pipe.Publish(ctx, eventsKey(code), eventUpdated)
			return nil
		})
		if err != nil {
			return err
		}
		if !added.Val() {
			existing, err := s.student(ctx, code, candidate.ID)
			if err != nil {
				return err
			}
			stored = existing
			return nil
		}
		stored = candidate
		return nil
	}, roomKey(code))
	if err != nil {
		return domain.Student{}, err
	}
	return stored, nil
}

// AddResponse stores response with HSETNX while watching the room record, so guard is
// evaluated against the same control state the write commits under.
func (s *RoomStore) AddResponse(ctx context.Context, code string, response domain.Response, guard func(domain.Room) error) error {
	payload, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return s.watch(ctx, func(tx *redis.Tx) error {
		room, err := loadRoom(ctx, tx, code)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(room); err != nil {
				return err
			}
		}
		if _, ok := room.Students[response.StudentID]; !ok {
			return domain.ErrStudentNotFound
		}

		var added *redis.BoolCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			added = pipe.HSetNX(ctx, responsesKey(code), response.Key(), payload)
			s.touch(ctx, pipe, code)
			pipe.Publish(ctx, eventsKey(code), eventUpdated)
			return nil
		})
		if err != nil {
			return err
		}
		if !added.Val() {
			return domain.ErrDuplicateSubmission
		}
		return nil
	}, roomKey(code))
}

// Subscribe listens on the room's event channel and re-reads the room on every event.
func (s *RoomStore) Subscribe(ctx context.Context, code string) (<-chan domain.Room, func(), error) {
	pubsub := s.client.Subscribe(ctx, eventsKey(code))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}
	initial, err := loadRoom(ctx, s.client, code)
	if err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Room, subscriberBuffer)
	out <- initial
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok || msg.Payload == eventDeleted {
					return
				}
				room, err := loadRoom(ctx, s.client, code)
				if err != nil {
					return
				}
				push(out, room)
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
		<-done
	}
	return out, cancel, nil
}

// push keeps the newest snapshot when the subscriber falls behind.
func push(out chan domain.Room, room domain.Room) {
	select {
	case out <- room:
	default:
		select {
		case <-out:
		default:
		}
		out <- room
	}
}

func (s *RoomStore) List(ctx context.Context) ([]domain.Room, error) {
	codes, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list rooms: %w", err)
	}
	sort.Strings(codes)
	rooms := make([]domain.Room, 0, len(codes))
	for _, code := range codes {
		room, err := loadRoom(ctx, s.client, code)
		if errors.Is(err, domain.ErrRoomNotFound) {
			// expired by ttl
			_ = s.client.SRem(ctx, indexKey, code).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

func (s *RoomStore) Delete(ctx context.Context, code string) error {
	n, err := s.client.Del(ctx, roomKey(code), studentsKey(code), responsesKey(code), seqKey(code)).Result()
	if err != nil {
		return fmt.Errorf("redis delete room: %w", err)
	}
	_ = s.client.SRem(ctx, indexKey, code).Err()
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	s.publish(ctx, code, eventDeleted)
	return nil
}

func (s *RoomStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis room contended after %d attempts: %w", maxTxRetries, redis.TxFailedErr)
}

func (s *RoomStore) touch(ctx context.Context, pipe redis.Pipeliner, code string) {
	if s.ttl <= 0 {
		return
	}
	for _, key := range []string{studentsKey(code), responsesKey(code), seqKey(code)} {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func (s *RoomStore) publish(ctx context.Context, code, event string) {
	// best-effort; subscribers re-read the full room on the next event anyway
	_ = s.client.Publish(ctx, eventsKey(code), event).Err()
}

func (s *RoomStore) student(ctx context.Context, code, id string) (domain.Student, error) {
	raw, err := s.client.HGet(ctx, studentsKey(code), id).Bytes()
	if err != nil {
		return domain.Student{}, fmt.Errorf("redis get student: %w", err)
	}
	var st domain.Student
	if err := json.Unmarshal(raw, &st); err != nil {
		return domain.Student{}, fmt.Errorf("decode student: %w", err)
	}
	return st, nil
}

type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func loadRoom(ctx context.Context, r reader, code string) (domain.Room, error) {
	raw, err := r.Get(ctx, roomKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("redis get room: %w", err)
	}
	var rec roomRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Room{}, fmt.Errorf("decode room %s: %w", code, err)
	}
	room := rec.room()

	students, err := r.HGetAll(ctx, studentsKey(code)).Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("redis get students: %w", err)
	}
	for id, v := range students {
		var st domain.Student
		if err := json.Unmarshal([]byte(v), &st); err != nil {
			return domain.Room{}, fmt.Errorf("decode student %s: %w", id, err)
		}
		room.Students[id] = st
	}

	responses, err := r.HGetAll(ctx, responsesKey(code)).Result()
	if err != nil {
		return domain.Room{}, fmt.Errorf("redis get responses: %w", err)
	}
	for key, v := range responses {
		var resp domain.Response
		if err := json.Unmarshal([]byte(v), &resp); err != nil {
			return domain.Room{}, fmt.Errorf("decode response %s: %w", key, err)
		}
		room.Responses[key] = resp
	}
	return room, nil
}

func roomKey(code string) string      { return "rooms:" + code }
func studentsKey(code string) string  { return "rooms:" + code + ":students" }
func seqKey(code string) string       { return "rooms:" + code + ":seq" }
func responsesKey(code string) string { return "rooms:" + code + ":responses" }
func eventsKey(code string) string    { return "rooms:" + code + ":events" }
