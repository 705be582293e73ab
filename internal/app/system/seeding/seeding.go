// Package seeding creates the data a fresh install starts with.
package seeding

import (
	"context"
	"errors"

	pagestore "github.com/dalemusser/stratapage/internal/app/store/pages"
	"github.com/dalemusser/stratapage/internal/app/system/apperr"
	"github.com/dalemusser/stratapage/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// SeedAll seeds default data if not already present.
func SeedAll(ctx context.Context, db *mongo.Database, homeSlug string, logger *zap.Logger) error {
	if homeSlug == "" {
		return nil
	}
	return seedHomePage(ctx, pagestore.New(db), homeSlug, logger)
}

// seedHomePage creates an unpublished home page with a single welcome
// block so editors have something to open on a fresh install. An existing
// page with that slug is left alone.
func seedHomePage(ctx context.Context, store *pagestore.Store, slug string, logger *zap.Logger) error {
	_, err := store.GetBySlug(ctx, slug)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		logger.Error("failed to check for home page", zap.String("slug", slug), zap.Error(err))
		return err
	}

	page, err := store.Create(ctx, "Home", slug)
	if errors.Is(err, apperr.ErrConflict) {
		// Another instance seeded it first.
		return nil
	}
	if err != nil {
		logger.Error("failed to seed home page", zap.String("slug", slug), zap.Error(err))
		return err
	}

	sections := []models.Section{{
		ID:    "welcome",
		Type:  models.SectionContent,
		Order: 0,
		Data: &models.ContentBlock{
			Title:   "Welcome",
			Content: "<p>This page was created on first start. Open it in the editor to add sections, then publish it.</p>",
		},
	}}
	if _, err := store.ReplaceSections(ctx, page.ID, sections); err != nil {
		logger.Error("failed to seed home page sections", zap.String("slug", slug), zap.Error(err))
		return err
	}
	logger.Info("seeded home page", zap.String("slug", slug), zap.String("page_id", page.ID.Hex()))
	return nil
}
