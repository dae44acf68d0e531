package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"bird-quiz-service/internal/domain"
)

// CatalogLoader loads bird questions from Postgres.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

const selectQuestions = `
SELECT idx, kind, prompt, options, keys, hint_text, hint_image_url
FROM bird_questions
WHERE catalog_id = $1
ORDER BY idx`

func (l *CatalogLoader) LoadCatalog(ctx context.Context, catalogID string) (domain.Catalog, error) {
	rows, err := l.pool.Query(ctx, selectQuestions, catalogID)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	catalog := domain.Catalog{ID: catalogID}
	for rows.Next() {
		var (
			q    domain.Question
			kind string
		)
		if err := rows.Scan(&q.Index, &kind, &q.Prompt, &q.Options, &q.Keys, &q.Hint.Text, &q.Hint.ImageURL); err != nil {
			return domain.Catalog{}, fmt.Errorf("scan question: %w", err)
		}
		q.Kind = domain.QuestionKind(kind)
		catalog.Questions = append(catalog.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.Catalog{}, fmt.Errorf("load catalog: %w", err)
	}
	if len(catalog.Questions) == 0 {
		return domain.Catalog{}, fmt.Errorf("%w: %s", domain.ErrCatalogNotFound, catalogID)
	}
	return catalog, nil
}
