package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionSetLoader fetches question sets from a backing store (e.g., Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
}

// QuestionSetRepository caches question sets in Redis as JSON and falls back to a
// loader on cache miss. Sets are stored as: SET question_sets:{id} {json} EX ttl
type QuestionSetRepository struct {
	client *redis.Client
	loader QuestionSetLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionSetRepository(client *redis.Client, loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	if set, ok := r.cached(ctx, id); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if set, ok := r.cached(ctx, id); ok {
			return set, nil
		}

		set, err := r.loader.LoadQuestionSet(ctx, id)
		if err != nil {
			return domain.QuestionSet{}, err
		}
		if payload, err := json.Marshal(set); err == nil {
			// cache write is best-effort; the loaded set is still served
			_ = r.client.Set(ctx, setKey(id), payload, r.ttlWithJitter()).Err()
		}
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate drops the cached copy of a set after it changed in the backing store.
func (r *QuestionSetRepository) Invalidate(ctx context.Context, id string) error {
	return r.client.Del(ctx, setKey(id)).Err()
}

func (r *QuestionSetRepository) cached(ctx context.Context, id string) (domain.QuestionSet, bool) {
	raw, err := r.client.Get(ctx, setKey(id)).Bytes()
	if err != nil {
		// redis.Nil is a plain miss; other errors fall through to the loader
		return domain.QuestionSet{}, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil || len(set.Questions) == 0 {
		return domain.QuestionSet{}, false
	}
	return set, true
}

func setKey(id string) string {
	return "question_sets:" + id
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
