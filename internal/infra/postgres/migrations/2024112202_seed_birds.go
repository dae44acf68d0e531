package migrations

import (
	"context"

	"github.com/uptrace/bun"

	"bird-quiz-service/internal/domain"
	"bird-quiz-service/internal/infra/memory"
)

// BirdQuestion is the bun model of a bird_questions row.
type BirdQuestion struct {
	bun.BaseModel `bun:"table:bird_questions"`

	CatalogID    string   `bun:"catalog_id,pk"`
	Idx          int      `bun:"idx,pk"`
	Kind         string   `bun:"kind,notnull"`
	Prompt       string   `bun:"prompt,notnull"`
	Options      []string `bun:"options,array"`
	Keys         []string `bun:"keys,array"`
	HintText     string   `bun:"hint_text"`
	HintImageURL string   `bun:"hint_image_url"`
}

// Rows converts a catalog into insertable rows.
func Rows(catalog domain.Catalog) []BirdQuestion {
	rows := make([]BirdQuestion, 0, len(catalog.Questions))
	for _, q := range catalog.Questions {
		options := q.Options
		if options == nil {
			options = []string{}
		}
		rows = append(rows, BirdQuestion{
			CatalogID:    catalog.ID,
			Idx:          q.Index,
			Kind:         string(q.Kind),
			Prompt:       q.Prompt,
			Options:      options,
			Keys:         q.Keys,
			HintText:     q.Hint.Text,
			HintImageURL: q.Hint.ImageURL,
		})
	}
	return rows
}

// Upsert writes the catalog, replacing existing questions with the same index.
func Upsert(ctx context.Context, db bun.IDB, catalog domain.Catalog) error {
	rows := Rows(catalog)
	if len(rows) == 0 {
		return nil
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (catalog_id, idx) DO UPDATE").
		Set("kind = EXCLUDED.kind").
		Set("prompt = EXCLUDED.prompt").
		Set("options = EXCLUDED.options").
		Set("keys = EXCLUDED.keys").
		Set("hint_text = EXCLUDED.hint_text").
		Set("hint_image_url = EXCLUDED.hint_image_url").
		Exec(ctx)
	return err
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return Upsert(ctx, db, memory.SeedCatalog())
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.NewDelete().
				Model((*BirdQuestion)(nil)).
				Where("catalog_id = ?", memory.SeedCatalogID).
				Exec(ctx)
			return err
		},
	)
}
