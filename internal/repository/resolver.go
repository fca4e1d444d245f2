package repository

import (
	"context"

	"github.com/tmattsson/photocurator/internal/pipeline"
)

// ItemResolverAdapter satisfies pipeline.ItemResolver by delegating to an
// ItemRepository, keeping the pipeline package free of any database import.
type ItemResolverAdapter struct {
	items ItemRepository
}

// NewItemResolverAdapter creates a pipeline.ItemResolver backed by items.
func NewItemResolverAdapter(items ItemRepository) *ItemResolverAdapter {
	return &ItemResolverAdapter{items: items}
}

// ResolvePath implements pipeline.ItemResolver.
func (a *ItemResolverAdapter) ResolvePath(ctx context.Context, key string) (string, bool, error) {
	return a.items.ResolvePath(ctx, key)
}

// StageComplete implements pipeline.ItemResolver.
func (a *ItemResolverAdapter) StageComplete(ctx context.Context, stage pipeline.Stage, key string) (bool, error) {
	return a.items.StageComplete(ctx, stage, key)
}

var _ pipeline.ItemResolver = (*ItemResolverAdapter)(nil)
