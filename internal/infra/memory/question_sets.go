package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"arena-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionSetLoader fetches question sets from a backing store (e.g., Postgres).
type QuestionSetLoader interface {
	LoadQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error)
}

// QuestionSetRepository caches question sets with TTL to avoid repeated DB hits.
type QuestionSetRepository struct {
	loader QuestionSetLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedSet
}

type cachedSet struct {
	set       domain.QuestionSet
	expiresAt time.Time
}

func NewQuestionSetRepository(loader QuestionSetLoader, ttl time.Duration) *QuestionSetRepository {
	return &QuestionSetRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedSet),
	}
}

func (r *QuestionSetRepository) GetQuestionSet(ctx context.Context, id string) (domain.QuestionSet, error) {
	if set, ok := r.cached(id); ok {
		return set, nil
	}

	result, err, _ := r.sf.Do(id, func() (interface{}, error) {
		if set, ok := r.cached(id); ok {
			return set, nil
		}
		set, err := r.loader.LoadQuestionSet(ctx, id)
		if err != nil {
			return domain.QuestionSet{}, err
		}

		r.mu.Lock()
		r.cache[id] = cachedSet{set: set, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return domain.QuestionSet{}, err
	}
	return result.(domain.QuestionSet), nil
}

// Invalidate drops a cached set so the next read reloads it.
func (r *QuestionSetRepository) Invalidate(id string) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

func (r *QuestionSetRepository) cached(id string) (domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[id]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.QuestionSet{}, false
	}
	return entry.set, true
}

func (r *QuestionSetRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionSetLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuestionSetLoader struct {
	mu   sync.RWMutex
	sets map[string]domain.QuestionSet
}

func NewStaticQuestionSetLoader(sets map[string]domain.QuestionSet) *StaticQuestionSetLoader {
	if sets == nil {
		sets = make(map[string]domain.QuestionSet)
	}
	return &StaticQuestionSetLoader{sets: sets}
}

func (l *StaticQuestionSetLoader) LoadQuestionSet(_ context.Context, id string) (domain.QuestionSet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if set, ok := l.sets[id]; ok {
		return set, nil
	}
	return domain.QuestionSet{}, domain.ErrQuestionSetNotFound
}

// SaveQuestionSet stores or replaces a set.
func (l *StaticQuestionSetLoader) SaveQuestionSet(_ context.Context, set domain.QuestionSet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sets[set.ID] = set
	return nil
}
