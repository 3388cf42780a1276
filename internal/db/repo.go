package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dockwatch/internal/models"
)

// StateMissing marks inventory rows absent from the latest snapshot.
const StateMissing = "missing"

const (
	keyTelegramToken  = "telegram_token"
	keyTelegramChatID = "telegram_chat_id"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB { return r.db }

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// RecordSnapshot upserts every observed container and marks the rows that were
// not observed as missing.
func (r *Repository) RecordSnapshot(ctx context.Context, containers []models.Container, seenAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO containers (id,name,image,state,status,first_seen_at,last_seen_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name,image=excluded.image,state=excluded.state,status=excluded.status,last_seen_at=excluded.last_seen_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	seenAt = seenAt.UTC()
	ids := make([]any, 0, len(containers))
	for _, c := range containers {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Image, c.State, c.Status, seenAt, seenAt); err != nil {
			return fmt.Errorf("upsert container %s: %w", c.ID, err)
		}
		ids = append(ids, c.ID)
	}
	if err := markMissing(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit()
}

func markMissing(ctx context.Context, tx *sql.Tx, seenIDs []any) error {
	if len(seenIDs) == 0 {
		_, err := tx.ExecContext(ctx, `UPDATE containers SET state='missing' WHERE state!='missing'`)
		return err
	}
	placeholders := make([]string, len(seenIDs))
	for i := range seenIDs {
		placeholders[i] = "?" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf(`UPDATE containers SET state='missing' WHERE id NOT IN (%s) AND state!='missing'`, strings.Join(placeholders, ","))
	_, err := tx.ExecContext(ctx, query, seenIDs...)
	return err
}

func (r *Repository) ListContainers(ctx context.Context) ([]models.Container, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id,name,image,state,status,first_seen_at,last_seen_at FROM containers ORDER BY state='missing', name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Container
	for rows.Next() {
		var c models.Container
		if err := rows.Scan(&c.ID, &c.Name, &c.Image, &c.State, &c.Status, &c.FirstSeenAt, &c.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteMissingOlderThan removes missing containers last seen before cutoff.
func (r *Repository) DeleteMissingOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM containers WHERE state='missing' AND last_seen_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) SaveTelegramSettings(ctx context.Context, token, chatID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, kv := range [][2]string{{keyTelegramToken, token}, {keyTelegramChatID, chatID}} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings(key,value) VALUES (?,?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadTelegramSettings returns empty strings when nothing has been saved.
func (r *Repository) LoadTelegramSettings(ctx context.Context) (token, chatID string, err error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key,value FROM settings WHERE key IN (?,?)`, keyTelegramToken, keyTelegramChatID)
	if err != nil {
		return "", "", err
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return "", "", err
		}
		switch k {
		case keyTelegramToken:
			token = v
		case keyTelegramChatID:
			chatID = v
		}
	}
	return token, chatID, rows.Err()
}
