package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const modelKeyPrefix = "predictor/"

// ModelStorage persists predictor state in a Store.
type ModelStorage struct {
	store  Store
	logger *slog.Logger
}

// NewModelStorage creates a new ModelStorage.
func NewModelStorage(s Store, logger *slog.Logger) *ModelStorage {
	return &ModelStorage{store: s, logger: logger}
}

// Saveable is an interface for objects that can be saved.
type Saveable interface {
	Save(w io.Writer) error
}

// Loadable is an interface for objects that can be loaded.
type Loadable interface {
	Load(r io.Reader) error
}

func modelKey(id string) string {
	return modelKeyPrefix + id
}

// SaveModel saves the state of predictor id.
func (ms *ModelStorage) SaveModel(ctx context.Context, id string, model Saveable) error {
	var buf bytes.Buffer
	if err := model.Save(&buf); err != nil {
		return fmt.Errorf("failed to save model %s: %w", id, err)
	}
	if err := ms.store.Put(ctx, modelKey(id), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to store model %s: %w", id, err)
	}

	ms.logger.Debug("saved model", "predictor", id, "bytes", buf.Len())
	return nil
}

// LoadModel loads the state of predictor id. Missing or corrupt state leaves the model fresh.
func (ms *ModelStorage) LoadModel(ctx context.Context, id string, model Loadable) error {
	data, err := ms.store.Get(ctx, modelKey(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			ms.logger.Info("no existing model state, using fresh model", "predictor", id)
			return nil
		}
		return fmt.Errorf("failed to read model %s: %w", id, err)
	}

	if err := model.Load(bytes.NewReader(data)); err != nil {
		ms.logger.Warn("failed to load model, using fresh model", "predictor", id, "error", err)
		return nil
	}

	ms.logger.Info("loaded model", "predictor", id)
	return nil
}

// ModelExists returns whether saved state exists for predictor id.
func (ms *ModelStorage) ModelExists(ctx context.Context, id string) bool {
	_, err := ms.store.Get(ctx, modelKey(id))
	return err == nil
}

// DeleteModel deletes the saved state of predictor id.
func (ms *ModelStorage) DeleteModel(ctx context.Context, id string) error {
	if err := ms.store.Delete(ctx, modelKey(id)); err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	return nil
}
