package database

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx, verilen fonksiyonu bir SQL transaction içinde çalıştırır:
// fn nil dönerse COMMIT, error dönerse ROLLBACK, panic atarsa ROLLBACK +
// re-panic. Cache'in sayfa-değiştirme yazımları (sil + yeniden ekle)
// yarım kalmamalıdır — yarım cache, yanlış history render eder.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}

		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}

		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return
}
