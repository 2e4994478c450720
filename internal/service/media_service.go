package service

import (
	"context"
	"errors"
	"io"

	"geounity/internal/logging"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/storage"
)

// ImageStore is implemented by *storage.Store.
type ImageStore interface {
	UploadImage(ctx context.Context, userID uint64, r io.Reader, size int64) (*storage.Uploaded, error)
}

type MediaService struct {
	store ImageStore
}

// NewMediaService accepts a nil store; uploads then fail with a validation error.
func NewMediaService(store ImageStore) *MediaService {
	return &MediaService{store: store}
}

func (s *MediaService) UploadImage(ctx context.Context, actor *model.User, r io.Reader, size int64) (*storage.Uploaded, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, pkg.Validation("%v", storage.ErrDisabled)
	}
	up, err := s.store.UploadImage(ctx, actor.ID, r, size)
	switch {
	case errors.Is(err, storage.ErrTooLarge), errors.Is(err, storage.ErrUnsupported), errors.Is(err, storage.ErrDisabled):
		return nil, pkg.Validation("%v", err)
	case err != nil:
		return nil, err
	}
	logging.Ctx(ctx).Info().Uint64("user_id", actor.ID).Str("key", up.Key).Int64("size", up.Size).Msg("image uploaded")
	return up, nil
}
