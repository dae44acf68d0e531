package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"bird-quiz-service/internal/domain"
	"bird-quiz-service/internal/infra/memory"
)

// CatalogRepository caches catalogs in Redis (hash per catalog) and falls back to a loader on cache miss.
// Questions are stored as: HSET quiz:catalog:{catalogID}:questions {index} {question JSON}
type CatalogRepository struct {
	client *redis.Client
	loader memory.CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader memory.CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context, catalogID string) (domain.Catalog, error) {
	key := r.questionsKey(catalogID)

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		if catalog, err := buildCatalogFromCache(catalogID, fields); err == nil {
			return catalog, nil
		}
	}

	result, err, _ := r.sf.Do(catalogID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			if catalog, err := buildCatalogFromCache(catalogID, fields); err == nil {
				return catalog, nil
			}
		}

		catalog, err := r.loader.LoadCatalog(ctx, catalogID)
		if err != nil {
			return domain.Catalog{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, q := range catalog.Questions {
			raw, err := json.Marshal(q)
			if err != nil {
				return domain.Catalog{}, fmt.Errorf("encode question %d: %w", q.Index, err)
			}
			pipe.HSet(ctx, key, strconv.Itoa(q.Index), raw)
		}
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return catalog, nil
	})
	if err != nil {
		return domain.Catalog{}, err
	}
	return result.(domain.Catalog), nil
}

func (r *CatalogRepository) questionsKey(catalogID string) string {
	return "quiz:catalog:" + catalogID + ":questions"
}

func buildCatalogFromCache(catalogID string, fields map[string]string) (domain.Catalog, error) {
	questions := make([]domain.Question, 0, len(fields))
	for _, raw := range fields {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return domain.Catalog{}, err
		}
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool { return questions[i].Index < questions[j].Index })
	return domain.Catalog{ID: catalogID, Questions: questions}, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
