package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
)

var (
	ErrBytesWrittenMismatch = errors.New("bytes written mismatch")
	ErrBytesReadMismatch    = errors.New("bytes read mismatch")
)

const (
	dirPrefixLength = 2 // 32^2 = 1024 directories per level
	dirPrefixDepth  = 2
	idMinLength     = dirPrefixDepth * dirPrefixLength
	tmpSuffix       = ".tmp"
)

// FileSystemBlobRepositoryConfig holds configuration for the filesystem-based blob repository.
type FileSystemBlobRepositoryConfig struct {
	// Basedir is the root directory for blob storage
	Basedir string `env:"BASEDIR" default:"var/storage/blob"`
}

// FileSystemBlobRepositoryFactory creates a factory function that returns a new FileSystemRepository.
func FileSystemBlobRepositoryFactory(cfg FileSystemBlobRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewFileSystemBlobRepository(ctx, cfg)
	}
}

// NewFileSystemBlobRepository creates a new FileSystemRepository rooted at cfg.Basedir.
func NewFileSystemBlobRepository(
	ctx context.Context,
	cfg FileSystemBlobRepositoryConfig,
) (*FileSystemRepository, error) {
	log := logging.GetLogger("repo.blob.filesystem_repository").With(
		logging.Group("repo", "basedir", cfg.Basedir),
	)

	repo := &FileSystemRepository{
		cfg: cfg,
		log: log,
	}

	if err := repo.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}

	return repo, nil
}

// FileSystemRepository implements Repository using the local filesystem.
// Blobs are spread over a directory hierarchy derived from their names, so
// "images/06bz3kq0.png" is stored as <basedir>/images/q0/3k/06bz3kq0.png.
type FileSystemRepository struct {
	cfg FileSystemBlobRepositoryConfig
	log logging.Logger
}

var _ Repository = (*FileSystemRepository)(nil)

// Store implements Repository.Store.
func (fsRepo *FileSystemRepository) Store(ctx context.Context, blob *domain.Blob) error {
	if err := fsRepo.storeBlob(ctx, blob); err != nil {
		return fmt.Errorf("store blob: %w", err)
	}

	return nil
}

// Fetch implements Repository.Fetch.
func (fsRepo *FileSystemRepository) Fetch(ctx context.Context, id domain.BlobID) (*domain.Blob, error) {
	blob, err := fsRepo.fetchBlob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch blob: %w", err)
	}

	return blob, nil
}

// Delete implements Repository.Delete.
func (fsRepo *FileSystemRepository) Delete(ctx context.Context, id domain.BlobID) error {
	if err := fsRepo.deleteBlob(ctx, id); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}

	return nil
}

// List implements Repository.List.
func (fsRepo *FileSystemRepository) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	infos, err := fsRepo.listBlobs(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	return infos, nil
}

func (fsRepo *FileSystemRepository) initStorage(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			fsRepo.log.ErrorContext(ctx, "init storage failed", "error", err)
		} else {
			fsRepo.log.DebugContext(ctx, "init storage")
		}
	}()

	if err := os.MkdirAll(fsRepo.cfg.Basedir, 0o755); err != nil {
		return fmt.Errorf("mkdir all: %w", err)
	}

	return nil
}

// GetFilename returns the full filesystem path for a blob with the given ID.
func (fsRepo *FileSystemRepository) GetFilename(id domain.BlobID) (string, error) {
	clean := path.Clean("/" + string(id))[1:]
	if clean == "" || clean != string(id) || strings.HasSuffix(clean, tmpSuffix) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidBlobID, id)
	}

	dir, name := path.Split(clean)

	// The trailing characters of generated names are random, which spreads the blobs evenly.
	stem := strings.TrimSuffix(name, path.Ext(name))
	if len(stem) < idMinLength {
		stem = strings.Repeat("0", idMinLength-len(stem)) + stem
	}

	parts := []string{fsRepo.cfg.Basedir, filepath.FromSlash(dir)}
	for i := range dirPrefixDepth {
		end := len(stem) - i*dirPrefixLength
		parts = append(parts, stem[end-dirPrefixLength:end])
	}

	return filepath.Join(append(parts, name)...), nil
}

func (fsRepo *FileSystemRepository) storeBlob(ctx context.Context, blob *domain.Blob) (err error) {
	filename, err := fsRepo.GetFilename(blob.ID)
	if err != nil {
		return err
	}

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "id", blob.ID, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "blob store failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob stored", "size", blob.Size())
		}
	}()

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("mkdir all: %w", err)
	}

	// write to a temporary file first so readers never see partial content
	tmpname := filename + tmpSuffix

	file, err := os.OpenFile(tmpname, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmpname)
		}
	}()

	n, err := file.Write(blob.Body)
	if err == nil && int64(n) != blob.Size() {
		err = fmt.Errorf("%w: expected %d, got %d", ErrBytesWrittenMismatch, blob.Size(), n)
	}

	if err == nil {
		err = file.Sync()
	}

	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	if err := os.Rename(tmpname, filename); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) fetchBlob(
	ctx context.Context,
	blobID domain.BlobID,
) (blob *domain.Blob, err error) {
	filename, err := fsRepo.GetFilename(blobID)
	if err != nil {
		return nil, err
	}

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "id", blobID, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "blob fetch failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob fetched")
		}
	}()

	body, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(domain.ErrBlobNotFound, err)
		}

		return nil, fmt.Errorf("read: %w", err)
	}

	return domain.NewBlob(blobID, body), nil
}

func (fsRepo *FileSystemRepository) deleteBlob(ctx context.Context, id domain.BlobID) (err error) {
	filename, err := fsRepo.GetFilename(id)
	if err != nil {
		return err
	}

	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "id", id, "filename", filename))
		if err != nil {
			log.ErrorContext(ctx, "blob delete failed", "error", err)
		} else {
			log.DebugContext(ctx, "blob deleted")
		}
	}()

	if err := os.Remove(filename); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = errors.Join(domain.ErrBlobNotFound, err)
		}

		return fmt.Errorf("remove: %w", err)
	}

	return nil
}

func (fsRepo *FileSystemRepository) listBlobs(ctx context.Context, prefix string) (infos []domain.BlobInfo, err error) {
	defer func() {
		log := fsRepo.log.With(logging.Group("blob", "prefix", prefix))
		if err != nil {
			log.ErrorContext(ctx, "blob list failed", "error", err)
		} else {
			log.DebugContext(ctx, "blobs listed", "count", len(infos))
		}
	}()

	// prefix "images/ab" lists below "images" and filters by the full prefix
	dir, _ := path.Split(prefix)
	root := filepath.Join(fsRepo.cfg.Basedir, filepath.FromSlash(dir))

	err = filepath.WalkDir(root, func(filename string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && filename == root {
				return fs.SkipAll
			}

			return err
		}

		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck
		}

		if entry.IsDir() || strings.HasSuffix(entry.Name(), tmpSuffix) {
			return nil
		}

		id, ok := fsRepo.blobID(root, dir, filename)
		if !ok || !strings.HasPrefix(string(id), prefix) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat: %w", err)
		}

		infos = append(infos, domain.BlobInfo{
			ID:      id,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}

	return infos, nil
}

// blobID reverses GetFilename for a file found below root, which holds the blobs of dir.
func (fsRepo *FileSystemRepository) blobID(root, dir, filename string) (domain.BlobID, bool) {
	rel, err := filepath.Rel(root, filename)
	if err != nil {
		return "", false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < dirPrefixDepth+1 {
		return "", false
	}

	nested := parts[:len(parts)-1-dirPrefixDepth]
	id := domain.BlobID(dir + path.Join(append(nested, parts[len(parts)-1])...))

	if expected, err := fsRepo.GetFilename(id); err != nil || expected != filename {
		return "", false
	}

	return id, true
}
