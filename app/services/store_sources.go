package services

import (
	"context"
	"encoding/json"

	"DistroApp/app/database"
	"DistroApp/app/models"

	"go.uber.org/zap"
)

// LoadSource is one tier of the startup read chain
type LoadSource interface {
	Name() string
	// TryLoad returns the collection's items, or false when this tier has nothing usable
	TryLoad(ctx context.Context, c models.Collection) ([]json.RawMessage, bool)
}

const (
	sourceDurable  = "durable"
	sourceObjects  = "object-store"
	sourceDefaults = "defaults"
)

type durableSource struct {
	store DurableStore
}

func (durableSource) Name() string { return sourceDurable }

func (s durableSource) TryLoad(ctx context.Context, c models.Collection) ([]json.RawMessage, bool) {
	items, ok := s.store.Read(ctx, c.String())
	if !ok || len(items) == 0 {
		return nil, false
	}
	return items, true
}

type objectStoreSource struct {
	store ObjectStore
}

func (objectStoreSource) Name() string { return sourceObjects }

func (s objectStoreSource) TryLoad(ctx context.Context, c models.Collection) ([]json.RawMessage, bool) {
	docs := s.store.GetAllItems(ctx, c)
	if len(docs) == 0 {
		return nil, false
	}
	return database.RawFromDocuments(docs), true
}

// defaultsSource always answers: built-in catalogue for products and routes, empty otherwise
type defaultsSource struct {
	logger *zap.Logger
}

func (defaultsSource) Name() string { return sourceDefaults }

func (s defaultsSource) TryLoad(_ context.Context, c models.Collection) ([]json.RawMessage, bool) {
	var items any
	switch c {
	case models.CollectionProducts:
		items = models.DefaultProducts()
	case models.CollectionRoutes:
		items = models.DefaultRoutes()
	default:
		return []json.RawMessage{}, true
	}

	data, err := json.Marshal(items)
	if err != nil {
		s.logger.Error("failed to encode defaults", zap.String("collection", c.String()), zap.Error(err))
		return []json.RawMessage{}, true
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return []json.RawMessage{}, true
	}
	return raw, true
}
