package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akinalp/ulak/database"
	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/reconcile"
)

// sqliteHistoryRepo, HistoryRepository'nin SQLite implementasyonu.
type sqliteHistoryRepo struct {
	db *sql.DB
}

// NewSQLiteHistoryRepo, constructor.
func NewSQLiteHistoryRepo(db *sql.DB) HistoryRepository {
	return &sqliteHistoryRepo{db: db}
}

func (r *sqliteHistoryRepo) GetMessages(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	// En yeni `limit` mesaj, ama kronolojik sırada dönmeli —
	// iç sorgu DESC keser, dış sorgu ASC çevirir.
	rows, err := r.db.QueryContext(ctx, `
		SELECT server_id, nonce, key, from_id, to_id, kind, body, ts_millis, state
		FROM (
			SELECT * FROM cached_messages
			WHERE channel_id = ?
			ORDER BY ts_millis DESC
			LIMIT ?
		)
		ORDER BY ts_millis ASC`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var key string
		var tsMillis int64
		if err := rows.Scan(&m.ServerID, &m.Nonce, &key, &m.From, &m.To, &m.Kind, &m.Body, &tsMillis, &m.State); err != nil {
			return nil, fmt.Errorf("failed to scan cached message: %w", err)
		}
		m.ChannelID = channelID
		m.Timestamp = time.UnixMilli(tsMillis)
		if !m.Identified() {
			m.RenderKey = key
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cached messages: %w", err)
	}
	return msgs, nil
}

func (r *sqliteHistoryRepo) ReplaceConversation(ctx context.Context, channelID string, msgs []models.Message) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM cached_messages WHERE channel_id = ?", channelID,
		); err != nil {
			return fmt.Errorf("failed to clear cached channel: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO cached_messages
				(channel_id, key, server_id, nonce, from_id, to_id, kind, body, ts_millis, state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, m := range msgs {
			key := reconcile.CanonicalKey(m)
			if key == "" {
				key = m.RenderKey
			}
			if key == "" {
				// Kimliksiz ve RenderKey'siz kayıt cache'lenmez —
				// yeniden yüklemede deduplike edilemez.
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				channelID, key, m.ServerID, m.Nonce, m.From, m.To,
				string(m.Kind), m.Body, m.Timestamp.UnixMilli(), string(m.State),
			); err != nil {
				return fmt.Errorf("failed to insert cached message: %w", err)
			}
		}
		return nil
	})
}

func (r *sqliteHistoryRepo) GetUnreadSnapshot(ctx context.Context) ([]models.UnreadEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT partner_id, channel_id, count FROM unread_snapshot",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unread snapshot: %w", err)
	}
	defer rows.Close()

	var entries []models.UnreadEntry
	for rows.Next() {
		var e models.UnreadEntry
		if err := rows.Scan(&e.PartnerID, &e.ChannelID, &e.Count); err != nil {
			return nil, fmt.Errorf("failed to scan unread entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate unread snapshot: %w", err)
	}
	return entries, nil
}

func (r *sqliteHistoryRepo) SaveUnreadSnapshot(ctx context.Context, entries []models.UnreadEntry) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM unread_snapshot"); err != nil {
			return fmt.Errorf("failed to clear unread snapshot: %w", err)
		}
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO unread_snapshot (partner_id, channel_id, count) VALUES (?, ?, ?)",
				e.PartnerID, e.ChannelID, e.Count,
			); err != nil {
				return fmt.Errorf("failed to insert unread entry: %w", err)
			}
		}
		return nil
	})
}
