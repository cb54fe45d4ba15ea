// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the idempotency
// table that backs safe-retry semantics for the publish endpoint.
//
// A placeholder row is inserted with ON CONFLICT DO NOTHING so that a
// concurrent duplicate either blocks on the winner's uncommitted row (Postgres
// unique index) or on the database write lock (SQLite) instead of failing the
// surrounding transaction.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// InsertIdempotencyPlaceholder reserves (userID, key). It reports false when
// a row for the pair already exists.
func InsertIdempotencyPlaceholder(ctx context.Context, db *gorm.DB, userID, key string) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.IdempotencyRecord{UserID: userID, IdempotencyKey: key})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetIdempotency returns the row for (userID, key) or ErrNotFound. The row
// may still be a placeholder; check Completed.
func GetIdempotency(ctx context.Context, db *gorm.DB, userID, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveIdempotencyResponse fills the placeholder for (userID, key). It returns
// ErrNotFound if no placeholder exists.
func SaveIdempotencyResponse(ctx context.Context, db *gorm.DB, userID, key string, status int, headers domain.HeaderPairs, body []byte) error {
	if body == nil {
		body = []byte{}
	}
	res := db.WithContext(ctx).
		Model(&domain.IdempotencyRecord{}).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		Updates(map[string]any{
			"response_status_code": status,
			"response_headers":     headers,
			"response_body":        body,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
