package journal

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"tiendapos/client/internal/domain"
)

// PostgresJournal persists submission attempts in a local postgres instance.
// Some shops run one per back office; the memory journal covers the rest.
type PostgresJournal struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, databaseURL string) (*PostgresJournal, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(2)
	db.SetMaxOpenConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	j := &PostgresJournal{db: db}
	if err := j.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

func (j *PostgresJournal) ensureSchema(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS order_journal (
			id TEXT PRIMARY KEY,
			shop_id BIGINT NOT NULL,
			idempotency_token TEXT NOT NULL,
			status TEXT NOT NULL,
			server_order_id BIGINT NOT NULL DEFAULT 0,
			payable_cents BIGINT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (j *PostgresJournal) Close() error {
	return j.db.Close()
}

func (j *PostgresJournal) Append(ctx context.Context, entry domain.JournalEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO order_journal (id, shop_id, idempotency_token, status, server_order_id, payable_cents, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ShopID, entry.IdempotencyToken, entry.Status, entry.ServerOrderID, entry.PayableCents, entry.Detail, entry.CreatedAt)
	return err
}

func (j *PostgresJournal) UpdateStatus(ctx context.Context, id string, status string, serverOrderID int64, detail string) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE order_journal
		SET status = $2, server_order_id = $3, detail = $4
		WHERE id = $1
	`, id, status, serverOrderID, detail)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (j *PostgresJournal) ListByShop(ctx context.Context, shopID int64, limit int) ([]domain.JournalEntry, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, shop_id, idempotency_token, status, server_order_id, payable_cents, detail, created_at
		FROM order_journal
		WHERE shop_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, shopID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.JournalEntry, 0, limit)
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(&e.ID, &e.ShopID, &e.IdempotencyToken, &e.Status, &e.ServerOrderID, &e.PayableCents, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
