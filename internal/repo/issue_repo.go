// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for newsletter
// issues.
//
// Functions:
//
//   - CreateIssue(ctx, db, publishedBy, title, text, html) -> *domain.NewsletterIssue, error
//     Inserts an issue with a UUID primary key and UTC publish timestamp.
//
//   - GetIssue(ctx, db, id) -> *domain.NewsletterIssue, error
//     Fetches a single issue, or ErrNotFound if missing.
//
//   - CountIssues / ListIssuesPage
//     Newest-first pagination over all issues.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// CreateIssue inserts a new issue. Callers run it inside the publish
// transaction together with the fan-out.
func CreateIssue(ctx context.Context, db *gorm.DB, publishedBy, title, text, html string) (*domain.NewsletterIssue, error) {
	is := &domain.NewsletterIssue{
		ID:          uuid.NewString(),
		Title:       title,
		TextContent: text,
		HTMLContent: html,
		PublishedBy: publishedBy,
		PublishedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(is).Error; err != nil {
		return nil, err
	}
	return is, nil
}

// GetIssue fetches a single issue by ID. If the record does not exist, it
// returns ErrNotFound.
func GetIssue(ctx context.Context, db *gorm.DB, id string) (*domain.NewsletterIssue, error) {
	var is domain.NewsletterIssue
	if err := db.WithContext(ctx).Where("id = ?", id).First(&is).Error; err != nil {
		return nil, err
	}
	return &is, nil
}

// CountIssues returns the total number of issues.
func CountIssues(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.NewsletterIssue{}).Count(&total).Error
	return total, err
}

// ListIssuesPage returns a page of issues ordered newest first.
func ListIssuesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.NewsletterIssue, error) {
	var out []domain.NewsletterIssue
	err := db.WithContext(ctx).
		Order("published_at desc").
		Order("id").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
