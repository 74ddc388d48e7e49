package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
)

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(cred *Credentials) (*PurchaseRepository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PurchaseRepository{db: db}, nil
}

func (r *PurchaseRepository) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "purchases_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// CreatePurchase stores p and its purchase-completed outbox event in one
// transaction.
func (r *PurchaseRepository) CreatePurchase(ctx context.Context, p domain.Purchase) error {
	cheeses := p.Cheeses
	if cheeses == nil {
		cheeses = []domain.CartLineItem{}
	}
	cheesesJSON, err := json.Marshal(cheeses)
	if err != nil {
		return fmt.Errorf("failed to marshal purchase items: %w", err)
	}

	p.Cheeses = cheeses
	payload, err := json.Marshal(domain.PurchaseCompletedEvent{
		Purchase:    p,
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal purchase event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO purchases (id, user_id, total_price, total_items, date_time, cheeses, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	_, insertErr := tx.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.TotalPrice,
		p.TotalItems,
		p.DateTime,
		cheesesJSON)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicatePurchase
		}
		return fmt.Errorf("insert purchase: %w", insertErr)
	}

	outboxQuery := `INSERT INTO purchase_outbox (aggregate_id, event_type, payload)
	                VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, outboxQuery, p.ID, domain.EventPurchaseCompleted, payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit purchase: %w", err)
	}
	return nil
}

// SubmitPurchase makes the repository the checkout's submission
// collaborator.
func (r *PurchaseRepository) SubmitPurchase(ctx context.Context, p domain.Purchase) error {
	return r.CreatePurchase(ctx, p)
}

func (r *PurchaseRepository) GetPurchaseByID(ctx context.Context, id string) (*domain.Purchase, error) {
	query := `SELECT id, user_id, total_price, total_items, date_time, cheeses
	          FROM purchases WHERE id = $1`

	p, err := scanPurchase(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query purchase by id: %w", err)
	}
	return p, nil
}

func (r *PurchaseRepository) ListPurchasesByUserID(ctx context.Context, userID string) ([]domain.Purchase, error) {
	query := `SELECT id, user_id, total_price, total_items, date_time, cheeses
	          FROM purchases WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query purchases by user id: %w", err)
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0)
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		purchases = append(purchases, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return purchases, nil
}

// GetUnprocessedEvents returns up to limit outbox events not yet published,
// oldest first.
func (r *PurchaseRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at
	          FROM purchase_outbox WHERE processed_at IS NULL
	          ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]*OutboxEvent, 0)
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PurchaseRepository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE purchase_outbox SET processed_at = NOW() WHERE id = $1 AND processed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark outbox event %d: %w", id, err)
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *PurchaseRepository) Close() error {
	return r.db.Close()
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var p domain.Purchase
	var cheesesJSON []byte
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.TotalPrice,
		&p.TotalItems,
		&p.DateTime,
		&cheesesJSON,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cheesesJSON, &p.Cheeses); err != nil {
		return nil, fmt.Errorf("unmarshal purchase items: %w", err)
	}
	return &p, nil
}
