package assetsvc

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
)

const assetCacheControl = "public, max-age=31536000, immutable"

// HTTPTransport serves stored images under the path of their ref.
type HTTPTransport struct {
	store *Store
	log   logging.Logger
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport serving images from store.
func NewHTTPTransport(store *Store) *HTTPTransport {
	return &HTTPTransport{
		store: store,
		log:   logging.GetLogger("svc.assetsvc.http_transport"),
	}
}

// Routes registers GET /images/{name}, so a post's imageUrl is directly fetchable.
func (ht *HTTPTransport) Routes(r chi.Router) {
	r.Get("/"+domain.AssetPathPrefix+"{name}", ht.HandleDownload)
}

// HandleDownload writes the image named in the URL.
func (ht *HTTPTransport) HandleDownload(w http.ResponseWriter, r *http.Request) {
	if err := ht.handleDownload(w, r); err != nil {
		http_.WriteError(w, r, err)
	}
}

func (ht *HTTPTransport) handleDownload(w http.ResponseWriter, r *http.Request) (err error) {
	ref := domain.AssetRef(domain.AssetPathPrefix + chi.URLParam(r, "name"))
	log := ht.log.With(logging.Group("asset", "ref", ref))

	defer func(ctx context.Context) {
		if err != nil {
			log.DebugContext(ctx, "asset download failed", "error", err)
		} else {
			log.DebugContext(ctx, "asset downloaded")
		}
	}(r.Context())

	blob, err := ht.store.Fetch(r.Context(), ref)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	w.Header().Set("Content-Type", TypeByRef(ref))
	w.Header().Set("Content-Length", strconv.FormatInt(blob.Size(), 10))
	w.Header().Set("Cache-Control", assetCacheControl)

	if _, err := io.Copy(w, blob.Reader()); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

// ReadUpload reads the file in form field field of a parsed multipart form.
// Returns nil and no error if the request carries no such file. The declared
// size and type are checked before the file is read.
func (s *Store) ReadUpload(form *multipart.Form, field string) (*domain.Upload, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, nil //nolint:nilnil
	}

	fileHeader := form.File[field][0]

	mimeType, err := s.CheckUploadConstraints(fileHeader.Header.Get("Content-Type"), fileHeader.Size, nil)
	if err != nil {
		return nil, fmt.Errorf("upload not allowed: %s: %w", fileHeader.Filename, err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fileHeader.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.MaxSize()+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileHeader.Filename, err)
	}

	if int64(len(data)) > s.MaxSize() {
		return nil, fmt.Errorf("read %s: %w", fileHeader.Filename, domain.ErrImageTooLarge)
	}

	return &domain.Upload{
		Filename: fileHeader.Filename,
		MIMEType: mimeType,
		Data:     data,
	}, nil
}
