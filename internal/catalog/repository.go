package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) Lookup(ctx context.Context, id string) (*domain.CatalogItem, error) {
	var (
		item domain.CatalogItem
		tags pq.StringArray
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, brand, size, unit, tags
		FROM catalog
		WHERE LOWER(id) = LOWER($1)
		LIMIT 1
	`, strings.TrimSpace(id)).Scan(&item.ID, &item.Name, &item.Category, &item.Price, &item.Brand, &item.Size, &item.Unit, &tags)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	item.Tags = []string(tags)
	return &item, nil
}

func (r *CatalogRepository) Search(ctx context.Context, query string, limit int) ([]domain.CatalogItem, error) {
	q := strings.ToLower(strings.TrimSpace(query))

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, category, price, brand, size, unit, tags
		FROM catalog
		WHERE strpos(LOWER(name), $1) > 0 OR $1 = ANY(tags)
		ORDER BY position
		LIMIT $2
	`, q, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []domain.CatalogItem{}
	for rows.Next() {
		var (
			item domain.CatalogItem
			tags pq.StringArray
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.Price, &item.Brand, &item.Size, &item.Unit, &tags); err != nil {
			return nil, err
		}
		item.Tags = []string(tags)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// Seed inserts items only when the catalog is empty. It reports whether
// anything was written.
func (r *CatalogRepository) Seed(ctx context.Context, items []domain.CatalogItem) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Serialises concurrent seeders so only one of them sees an empty table.
	if _, err := tx.ExecContext(ctx, `LOCK TABLE catalog IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return false, err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM catalog`).Scan(&count); err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO catalog (id, name, category, price, brand, size, unit, tags)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, item.Name, item.Category, item.Price, item.Brand, item.Size, item.Unit, pq.Array(normalizeTags(item.Tags)))
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
