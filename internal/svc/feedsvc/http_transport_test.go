package feedsvc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkrupp/feed/internal/domain"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
	"github.com/mkrupp/feed/internal/repo/blob"
	"github.com/mkrupp/feed/internal/repo/post"
	"github.com/mkrupp/feed/internal/repo/user"
	"github.com/mkrupp/feed/internal/svc/assetsvc"
	"github.com/mkrupp/feed/internal/svc/authsvc"
	"github.com/mkrupp/feed/internal/svc/broadcast"

	. "github.com/mkrupp/feed/internal/svc/feedsvc"
)

//nolint:gochecknoglobals
var pngData = []byte("\x89PNG\r\n\x1a\n-image-body")

type server struct {
	*httptest.Server

	blobs blob.Repository
	hub   *broadcast.Hub
}

func newServer(t *testing.T) *server {
	t.Helper()

	ctx := context.Background()

	blobs, err := blob.NewFileSystemBlobRepository(ctx, blob.FileSystemBlobRepositoryConfig{Basedir: t.TempDir()})
	require.NoError(t, err)

	creds, err := authsvc.NewCredentialService(ctx, authsvc.CredentialConfig{
		SigningMethod: "HS256",
		Secret:        "test-secret",
		TokenDuration: time.Hour,
		BcryptCost:    bcrypt.MinCost,
	})
	require.NoError(t, err)

	users := user.NewMemoryUserRepository()
	posts := post.NewMemoryPostRepository(users)
	guard := authsvc.NewGuard(creds, posts)
	store := assetsvc.NewStore(blobs, assetsvc.AssetConfig{MaxSize: 1024})
	hub := broadcast.NewHub(broadcast.HubConfig{QueueSize: 8})
	engine := NewEngine(posts, users, store, guard, hub, FeedConfig{PageSize: 2})

	router := http_.NewRouter(http_.HTTPTransportConfig{CORSOrigins: []string{"*"}},
		authsvc.NewHTTPTransport(authsvc.NewAuthService(users, creds)),
		NewHTTPTransport(engine, guard, store, HTTPTransportConfig{
			MultipartFileName:      "image",
			MultipartFormMaxMemory: 1 << 20,
			MaxBodySize:            1 << 20,
		}),
		assetsvc.NewHTTPTransport(store),
		broadcast.NewWebSocketTransport(hub, broadcast.WebSocketConfig{
			WriteTimeout: time.Second,
			PingInterval: time.Minute,
			PongTimeout:  2 * time.Minute,
			ReadLimit:    512,
		}),
	)

	srv := &server{Server: httptest.NewServer(router), blobs: blobs, hub: hub}
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	return srv
}

func (s *server) do(t *testing.T, method, path, token, contentType string, body io.Reader) (int, map[string]any) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, s.URL+path, body)
	require.NoError(t, err)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}

	return resp.StatusCode, decoded
}

func (s *server) doJSON(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	return s.do(t, method, path, token, "application/json", bytes.NewReader(raw))
}

func (s *server) doForm(
	t *testing.T,
	method, path, token string,
	fields map[string]string,
	imageType string,
	image []byte,
) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		require.NoError(t, writer.WriteField(name, value))
	}

	if image != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="image"; filename="upload"`)
		header.Set("Content-Type", imageType)

		part, err := writer.CreatePart(header)
		require.NoError(t, err)

		_, err = part.Write(image)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())

	return s.do(t, method, path, token, writer.FormDataContentType(), &buf)
}

func (s *server) login(t *testing.T, email, name string) string {
	t.Helper()

	status, _ := s.doJSON(t, http.MethodPut, "/auth/signup", "", domain.SignupRequest{
		Email:    email,
		Password: "secret123",
		Name:     name,
	})
	require.Equal(t, http.StatusCreated, status)

	status, body := s.doJSON(t, http.MethodPost, "/auth/login", "", domain.LoginRequest{
		Email:    email,
		Password: "secret123",
	})
	require.Equal(t, http.StatusOK, status)

	token, ok := body["token"].(string)
	require.True(t, ok)

	return token
}

func postFields(title string) map[string]string {
	return map[string]string{"title": title, "content": "Long enough content"}
}

//nolint:funlen
func TestHTTPTransport_Scenario(t *testing.T) {
	t.Parallel()

	srv := newServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = resp.Body.Close()

	require.Eventually(t, func() bool { return srv.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	token := srv.login(t, "ann@x.com", "Ann")

	status, body := srv.doForm(t, http.MethodPost, "/feed/post", token, postFields("Hello World"), "image/png", pngData)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Post created successfully!", body["message"])

	created, ok := body["post"].(map[string]any)
	require.True(t, ok)

	postID, _ := created["id"].(string)
	imageURL, _ := created["imageUrl"].(string)
	require.NotEmpty(t, postID)
	require.True(t, strings.HasPrefix(imageURL, "images/"), imageURL)
	assert.Equal(t, "Ann", body["creator"].(map[string]any)["name"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var event map[string]any
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "create", event["action"])
	assert.Equal(t, postID, event["post"].(map[string]any)["id"])

	imageResp, err := srv.Client().Get(srv.URL + "/" + imageURL)
	require.NoError(t, err)

	image, err := io.ReadAll(imageResp.Body)
	require.NoError(t, err)
	_ = imageResp.Body.Close()

	assert.Equal(t, http.StatusOK, imageResp.StatusCode)
	assert.Equal(t, pngData, image)

	status, body = srv.do(t, http.MethodGet, "/feed/posts", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, body["totalItems"], 0)

	status, _ = srv.do(t, http.MethodDelete, "/feed/post/"+postID, token, "", nil)
	require.Equal(t, http.StatusOK, status)

	event = nil
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, map[string]any{"action": "delete", "post": postID}, event)

	status, body = srv.do(t, http.MethodGet, "/feed/posts", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 0, body["totalItems"], 0)
	assert.Empty(t, body["posts"])

	_, err = srv.blobs.Fetch(context.Background(), domain.BlobID(imageURL))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

//nolint:funlen
func TestHTTPTransport_Errors(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	ann := srv.login(t, "ann@x.com", "Ann")
	bob := srv.login(t, "bob@x.com", "Bob")

	status, body := srv.doForm(t, http.MethodPost, "/feed/post", ann, postFields("Hello World"), "image/png", pngData)
	require.Equal(t, http.StatusCreated, status)

	created, _ := body["post"].(map[string]any)
	postID, _ := created["id"].(string)
	imageURL, _ := created["imageUrl"].(string)

	tests := []struct {
		name       string
		send       func() (int, map[string]any)
		wantStatus int
		wantMsg    string
	}{
		{
			name: "no token",
			send: func() (int, map[string]any) {
				return srv.doForm(t, http.MethodPost, "/feed/post", "", postFields("Hello World"), "image/png", pngData)
			},
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Not authenticated.",
		},
		{
			name: "bad token",
			send: func() (int, map[string]any) {
				return srv.do(t, http.MethodGet, "/feed/post/"+postID, "garbage", "", nil)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "missing image",
			send: func() (int, map[string]any) {
				return srv.doForm(t, http.MethodPost, "/feed/post", ann, postFields("Hello World"), "", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "No image provided.",
		},
		{
			name: "unsupported image type",
			send: func() (int, map[string]any) {
				return srv.doForm(t, http.MethodPost, "/feed/post", ann, postFields("Hello World"), "image/gif", pngData)
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "short title",
			send: func() (int, map[string]any) {
				return srv.doForm(t, http.MethodPost, "/feed/post", ann, postFields("abc"), "image/png", pngData)
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "other user updates",
			send: func() (int, map[string]any) {
				return srv.doForm(t, http.MethodPut, "/feed/post/"+postID, bob, postFields("Hijacked post"), "image/png", pngData)
			},
			wantStatus: http.StatusForbidden,
			wantMsg:    "Not authorized!",
		},
		{
			name: "other user deletes",
			send: func() (int, map[string]any) {
				return srv.do(t, http.MethodDelete, "/feed/post/"+postID, bob, "", nil)
			},
			wantStatus: http.StatusForbidden,
		},
		{
			name: "update without image",
			send: func() (int, map[string]any) {
				return srv.doForm(t, http.MethodPut, "/feed/post/"+postID, ann, postFields("Updated title"), "", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "No file picked.",
		},
		{
			name: "unknown post",
			send: func() (int, map[string]any) {
				return srv.do(t, http.MethodGet, "/feed/post/missing", ann, "", nil)
			},
			wantStatus: http.StatusNotFound,
			wantMsg:    "Could not find post.",
		},
		{
			name: "invalid page",
			send: func() (int, map[string]any) {
				return srv.do(t, http.MethodGet, "/feed/posts?page=abc", "", "", nil)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "Invalid page.",
		},
		{
			name: "empty status",
			send: func() (int, map[string]any) {
				return srv.doJSON(t, http.MethodPut, "/feed/status", ann, domain.StatusRequest{Status: "  "})
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "Status can not be empty.",
		},
	}

	for _, tt := range tests {
		status, body := tt.send()
		assert.Equal(t, tt.wantStatus, status, tt.name)

		if tt.wantMsg != "" {
			assert.Equal(t, tt.wantMsg, body["message"], tt.name)
		}
	}

	// None of the rejected requests changed the post.
	status, body = srv.do(t, http.MethodGet, "/feed/post/"+postID, bob, "", nil)
	require.Equal(t, http.StatusOK, status)

	got, _ := body["post"].(map[string]any)
	assert.Equal(t, "Hello World", got["title"])
	assert.Equal(t, imageURL, got["imageUrl"])
}

func TestHTTPTransport_UpdateKeepsImage(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	token := srv.login(t, "ann@x.com", "Ann")

	status, body := srv.doForm(t, http.MethodPost, "/feed/post", token, postFields("Hello World"), "image/png", pngData)
	require.Equal(t, http.StatusCreated, status)

	created, _ := body["post"].(map[string]any)
	postID, _ := created["id"].(string)
	imageURL, _ := created["imageUrl"].(string)

	status, body = srv.doJSON(t, http.MethodPut, "/feed/post/"+postID, token, map[string]string{
		"title":   "Updated title",
		"content": "Updated content",
		"image":   imageURL,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Post updated!", body["message"])

	updated, _ := body["post"].(map[string]any)
	assert.Equal(t, "Updated title", updated["title"])
	assert.Equal(t, imageURL, updated["imageUrl"])

	_, err := srv.blobs.Fetch(context.Background(), domain.BlobID(imageURL))
	require.NoError(t, err)

	status, body = srv.doForm(t, http.MethodPut, "/feed/post/"+postID, token, postFields("Second update"), "image/png", pngData)
	require.Equal(t, http.StatusOK, status)

	updated, _ = body["post"].(map[string]any)
	assert.NotEqual(t, imageURL, updated["imageUrl"])

	_, err = srv.blobs.Fetch(context.Background(), domain.BlobID(imageURL))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHTTPTransport_Status(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	token := srv.login(t, "ann@x.com", "Ann")

	status, body := srv.do(t, http.MethodGet, "/feed/status", token, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.DefaultUserStatus, body["status"])

	status, body = srv.doJSON(t, http.MethodPut, "/feed/status", token, domain.StatusRequest{Status: " Busy "})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Status updated!", body["message"])
	assert.Equal(t, "Busy", body["status"])

	status, body = srv.do(t, http.MethodGet, "/feed/status", token, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Busy", body["status"])
}

func TestHTTPTransport_Pagination(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	token := srv.login(t, "ann@x.com", "Ann")

	for _, title := range []string{"First post", "Second post", "Third post"} {
		status, _ := srv.doForm(t, http.MethodPost, "/feed/post", token, postFields(title), "image/png", pngData)
		require.Equal(t, http.StatusCreated, status)
	}

	tests := []struct {
		query     string
		wantCount int
	}{
		{query: "", wantCount: 2},
		{query: "?page=1", wantCount: 2},
		{query: "?page=2", wantCount: 1},
		{query: "?page=3", wantCount: 0},
		{query: "?page=0", wantCount: 0},
		{query: "?page=-1", wantCount: 0},
	}

	for _, tt := range tests {
		status, body := srv.do(t, http.MethodGet, "/feed/posts"+tt.query, "", "", nil)
		require.Equal(t, http.StatusOK, status, tt.query)
		assert.InDelta(t, 3, body["totalItems"], 0, tt.query)
		assert.Len(t, body["posts"], tt.wantCount, tt.query)
	}
}
