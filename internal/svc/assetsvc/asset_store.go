package assetsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	"github.com/mkrupp/feed/internal/repo/blob"
	"github.com/mkrupp/feed/internal/util/ident"
)

// Store persists post images in blob storage.
// Every saved image gets a fresh ref, so an asset is never overwritten.
type Store struct {
	blobs blob.Repository
	cfg   AssetConfig
	log   logging.Logger
}

// NewStore creates a Store on top of blobs.
func NewStore(blobs blob.Repository, cfg AssetConfig) *Store {
	return &Store{
		blobs: blobs,
		cfg:   cfg,
		log:   logging.GetLogger("svc.assetsvc.asset_store"),
	}
}

// MaxSize returns the maximum accepted image size in bytes.
func (s *Store) MaxSize() int64 {
	return s.cfg.MaxSize
}

// CheckUploadConstraints validates the size and type of an upload and returns
// the normalized MIME type. With data == nil only the size and the declared
// type are checked, so uploads can be rejected before they are read.
func (s *Store) CheckUploadConstraints(mimeType string, size int64, data []byte) (string, error) {
	if size > s.MaxSize() {
		return "", domain.ErrImageTooLarge
	}

	mimeType = normalizeMIMEType(mimeType)

	if _, err := extByType(mimeType); err != nil {
		return "", err
	}

	if data == nil {
		return mimeType, nil
	}

	if err := checkHeader(mimeType, data); err != nil {
		return "", err
	}

	return mimeType, nil
}

// Save stores an image and returns its ref.
// Only PNG and JPEG images are accepted.
func (s *Store) Save(ctx context.Context, data []byte, mimeType string) (ref domain.AssetRef, err error) {
	log := s.log.With(logging.Group("asset", "type", mimeType, "size", len(data)))

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "asset save failed", "error", err)
		} else {
			log.DebugContext(ctx, "asset saved")
		}
	}()

	if len(data) == 0 {
		return "", domain.ErrMissingAsset
	}

	mimeType, err = s.CheckUploadConstraints(mimeType, int64(len(data)), data)
	if err != nil {
		return "", fmt.Errorf("check upload constraints: %w", err)
	}

	ext, err := extByType(mimeType)
	if err != nil {
		return "", err
	}

	id, err := ident.NewCompact()
	if err != nil {
		return "", fmt.Errorf("new asset id: %w", err)
	}

	ref = domain.AssetRef(domain.AssetPathPrefix + id + "." + ext)
	log = log.With(logging.Group("asset", "ref", ref))

	if err := s.blobs.Store(ctx, domain.NewBlob(ref.BlobID(), data)); err != nil {
		return "", fmt.Errorf("store blob: %w", err)
	}

	return ref, nil
}

// Fetch loads a stored image.
// Returns ErrBlobNotFound for refs that were never issued by the store.
func (s *Store) Fetch(ctx context.Context, ref domain.AssetRef) (*domain.Blob, error) {
	if !ref.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrBlobNotFound, ref)
	}

	blob, err := s.blobs.Fetch(ctx, ref.BlobID())
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}

	return blob, nil
}

// Delete removes a stored image. Failures are logged and otherwise ignored.
func (s *Store) Delete(ctx context.Context, ref domain.AssetRef) {
	if ref == "" {
		return
	}

	log := s.log.With(logging.Group("asset", "ref", ref))

	if !ref.Valid() {
		log.WarnContext(ctx, "asset delete skipped, invalid ref")

		return
	}

	err := s.blobs.Delete(ctx, ref.BlobID())

	switch {
	case errors.Is(err, domain.ErrBlobNotFound):
		log.WarnContext(ctx, "asset delete failed, already gone", "error", err)
	case err != nil:
		log.ErrorContext(ctx, "asset delete failed", "error", err)
	default:
		log.DebugContext(ctx, "asset deleted")
	}
}
