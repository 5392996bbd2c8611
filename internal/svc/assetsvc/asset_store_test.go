package assetsvc_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrupp/feed/internal/domain"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"

	. "github.com/mkrupp/feed/internal/svc/assetsvc"
)

//nolint:gochecknoglobals
var (
	pngData  = []byte("\x89PNG\r\n\x1a\n-image-body")
	jpegData = []byte("\xFF\xD8\xFF\xE0-image-body")
)

var errDeleteFailed = errors.New("delete failed")

type memoryBlobRepository struct {
	mu        sync.Mutex
	blobs     map[domain.BlobID][]byte
	modTimes  map[domain.BlobID]time.Time
	deleteErr error
	now       time.Time
}

func newMemoryBlobRepository() *memoryBlobRepository {
	return &memoryBlobRepository{
		blobs:    make(map[domain.BlobID][]byte),
		modTimes: make(map[domain.BlobID]time.Time),
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (r *memoryBlobRepository) Store(_ context.Context, blob *domain.Blob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.blobs[blob.ID] = bytes.Clone(blob.Body)
	r.modTimes[blob.ID] = r.now

	return nil
}

func (r *memoryBlobRepository) Fetch(_ context.Context, id domain.BlobID) (*domain.Blob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	body, ok := r.blobs[id]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}

	return domain.NewBlob(id, body), nil
}

func (r *memoryBlobRepository) Delete(_ context.Context, id domain.BlobID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleteErr != nil {
		return r.deleteErr
	}

	if _, ok := r.blobs[id]; !ok {
		return domain.ErrBlobNotFound
	}

	delete(r.blobs, id)

	return nil
}

func (r *memoryBlobRepository) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var infos []domain.BlobInfo

	for id, body := range r.blobs {
		if strings.HasPrefix(id.String(), prefix) {
			infos = append(infos, domain.BlobInfo{ID: id, Size: int64(len(body)), ModTime: r.modTimes[id]})
		}
	}

	return infos, nil
}

func (r *memoryBlobRepository) has(ref domain.AssetRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.blobs[ref.BlobID()]

	return ok
}

func testConfig() AssetConfig {
	return AssetConfig{MaxSize: 64, SweepGrace: 15 * time.Minute}
}

func TestStore_Save(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mimeType string
		data     []byte
		wantExt  string
		wantErr  error
	}{
		{name: "png", mimeType: "image/png", data: pngData, wantExt: ".png"},
		{name: "jpeg", mimeType: "image/jpeg", data: jpegData, wantExt: ".jpeg"},
		{name: "jpg", mimeType: "image/jpg", data: jpegData, wantExt: ".jpg"},
		{name: "type parameters", mimeType: "Image/PNG; charset=binary", data: pngData, wantExt: ".png"},
		{name: "gif", mimeType: "image/gif", data: []byte("GIF89a"), wantErr: domain.ErrImageTypeNotSupported},
		{name: "mismatch", mimeType: "image/png", data: jpegData, wantErr: domain.ErrImageTypeMismatch},
		{name: "too large", mimeType: "image/png", data: append(bytes.Clone(pngData), make([]byte, 64)...), wantErr: domain.ErrImageTooLarge},
		{name: "empty", mimeType: "image/png", data: nil, wantErr: domain.ErrMissingAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			blobs := newMemoryBlobRepository()
			store := NewStore(blobs, testConfig())

			ref, err := store.Save(ctx, tt.data, tt.mimeType)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, blobs.blobs)

				return
			}

			require.NoError(t, err)
			assert.True(t, ref.Valid(), ref)
			assert.True(t, strings.HasSuffix(ref.String(), tt.wantExt), ref)

			blob, err := store.Fetch(ctx, ref)
			require.NoError(t, err)
			assert.Equal(t, tt.data, blob.Body)
		})
	}
}

func TestStore_SaveUniqueRefs(t *testing.T) {
	t.Parallel()

	store := NewStore(newMemoryBlobRepository(), testConfig())

	first, err := store.Save(context.Background(), pngData, "image/png")
	require.NoError(t, err)

	second, err := store.Save(context.Background(), pngData, "image/png")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	blobs := newMemoryBlobRepository()
	store := NewStore(blobs, testConfig())

	ref, err := store.Save(ctx, pngData, "image/png")
	require.NoError(t, err)

	store.Delete(ctx, ref)
	assert.False(t, blobs.has(ref))

	// Deleting twice, deleting nothing and deleting garbage are all silent.
	store.Delete(ctx, ref)
	store.Delete(ctx, "")
	store.Delete(ctx, "../etc/passwd")

	ref, err = store.Save(ctx, pngData, "image/png")
	require.NoError(t, err)

	blobs.deleteErr = errDeleteFailed
	store.Delete(ctx, ref)
	assert.True(t, blobs.has(ref))
}

func TestStore_FetchInvalidRef(t *testing.T) {
	t.Parallel()

	store := NewStore(newMemoryBlobRepository(), testConfig())

	_, err := store.Fetch(context.Background(), "images/../../secret.png")
	require.ErrorIs(t, err, domain.ErrBlobNotFound)
}

func newUploadForm(t *testing.T, contentType string, data []byte) *multipart.Form {
	t.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="photo"`)
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	require.NoError(t, err)

	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form
}

func TestStore_ReadUpload(t *testing.T) {
	t.Parallel()

	store := NewStore(newMemoryBlobRepository(), testConfig())

	upload, err := store.ReadUpload(newUploadForm(t, "image/png", pngData), "image")
	require.NoError(t, err)
	require.NotNil(t, upload)
	assert.Equal(t, "photo", upload.Filename)
	assert.Equal(t, "image/png", upload.MIMEType)
	assert.Equal(t, pngData, upload.Data)

	upload, err = store.ReadUpload(newUploadForm(t, "image/png", pngData), "other")
	require.NoError(t, err)
	assert.Nil(t, upload)

	upload, err = store.ReadUpload(nil, "image")
	require.NoError(t, err)
	assert.Nil(t, upload)

	_, err = store.ReadUpload(newUploadForm(t, "text/plain", []byte("hello")), "image")
	require.ErrorIs(t, err, domain.ErrImageTypeNotSupported)

	_, err = store.ReadUpload(newUploadForm(t, "image/png", make([]byte, 65)), "image")
	require.ErrorIs(t, err, domain.ErrImageTooLarge)
}

func TestHTTPTransport_Download(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore(newMemoryBlobRepository(), testConfig())
	router := http_.NewRouter(http_.HTTPTransportConfig{CORSOrigins: []string{"*"}}, NewHTTPTransport(store))

	ref, err := store.Save(ctx, jpegData, "image/jpg")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+ref.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, fmt.Sprint(len(jpegData)), rec.Header().Get("Content-Length"))
	assert.Equal(t, jpegData, rec.Body.Bytes())

	for _, path := range []string{"/images/missing.png", "/images/not-an-id.png"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}
