package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// CatalogRepository serves catalog items from a sqlite database.
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(dbPath string) (*CatalogRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &CatalogRepository{db: db}, nil
}

func (r *CatalogRepository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *CatalogRepository) ListItems(ctx context.Context) ([]domain.CatalogItem, error) {
	query := `
		SELECT id, category, description, image, price, title
		FROM catalog_items
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CatalogItem, 0)
	for rows.Next() {
		var item domain.CatalogItem
		if err := scanCatalogItem(rows, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *CatalogRepository) GetItem(ctx context.Context, id int64) (*domain.CatalogItem, error) {
	query := `
		SELECT id, category, description, image, price, title
		FROM catalog_items
		WHERE id = ?
	`

	var item domain.CatalogItem
	err := scanCatalogItem(r.db.QueryRowContext(ctx, query, id), &item)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCatalogItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *CatalogRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalogItem(row rowScanner, item *domain.CatalogItem) error {
	err := row.Scan(
		&item.ID,
		&item.Category,
		&item.Description,
		&item.Image,
		&item.Price,
		&item.Title,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to scan catalog item: %w", err)
	}
	return nil
}
