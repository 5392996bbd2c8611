package feedsvc

import (
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	http_ "github.com/mkrupp/feed/internal/infra/transport/http"
)

// HTTPTransportConfig contains configuration parameters for the feed endpoints.
type HTTPTransportConfig struct {
	// MultipartFileName is the form field name of the post image.
	MultipartFileName string `env:"MULTIPART_FILE_NAME" default:"image"`

	// MultipartFormMaxMemory is the part of a multipart form kept in memory, the rest spills to disk.
	// Default is 10MB.
	MultipartFormMaxMemory int64 `env:"MULTIPART_FORM_MAX_MEMORY" default:"10485760"`

	// MaxBodySize limits the size of a request body.
	// Default is 12MB.
	MaxBodySize int64 `env:"MAX_BODY_SIZE" default:"12582912"`
}

// UploadReader extracts an uploaded image from a parsed multipart form.
type UploadReader interface {
	ReadUpload(form *multipart.Form, field string) (*domain.Upload, error)
}

// postBody is the JSON form of a post input. Uploads require multipart.
type postBody struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Image   string `json:"image"`
}

// HTTPTransport handles HTTP requests for the feed.
type HTTPTransport struct {
	engine  *Engine
	auth    http_.Authenticator
	uploads UploadReader
	log     logging.Logger
	cfg     HTTPTransportConfig
}

var _ http_.HTTPTransport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a new HTTPTransport.
// Requests to protected endpoints are authenticated with auth.
func NewHTTPTransport(
	engine *Engine,
	auth http_.Authenticator,
	uploads UploadReader,
	cfg HTTPTransportConfig,
) *HTTPTransport {
	return &HTTPTransport{
		engine:  engine,
		auth:    auth,
		uploads: uploads,
		log:     logging.GetLogger("svc.feedsvc.http_transport"),
		cfg:     cfg,
	}
}

// Routes registers the feed endpoints:
// - GET /feed/posts?page=N: list posts (public)
// - POST /feed/post: create a post
// - GET /feed/post/{postId}: get a post
// - PUT /feed/post/{postId}: update a post
// - DELETE /feed/post/{postId}: delete a post
// - GET /feed/status: get own status
// - PUT /feed/status: update own status.
func (ht *HTTPTransport) Routes(r chi.Router) {
	r.Route("/feed", func(r chi.Router) {
		r.Get("/posts", ht.HandleList)

		r.Group(func(r chi.Router) {
			r.Use(http_.AuthenticatingMiddleware(ht.auth, ht.log))

			r.Post("/post", ht.HandleCreate)
			r.Get("/post/{postId}", ht.HandleGet)
			r.Put("/post/{postId}", ht.HandleUpdate)
			r.Delete("/post/{postId}", ht.HandleDelete)
			r.Get("/status", ht.HandleGetStatus)
			r.Put("/status", ht.HandleUpdateStatus)
		})
	})
}

// serve runs handle and writes its error, if any, as the response.
func (ht *HTTPTransport) serve(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	handle func(w http.ResponseWriter, r *http.Request) error,
) {
	log := ht.log.With(logging.Group("http", "method", r.Method, "url", r.URL.String()))

	if err := handle(w, r); err != nil {
		log.DebugContext(r.Context(), name+" request failed", "error", err)
		http_.WriteError(w, r, err)

		return
	}

	log.DebugContext(r.Context(), name+" request served")
}

// HandleList processes feed listing requests.
func (ht *HTTPTransport) HandleList(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "list", ht.handleList)
}

func (ht *HTTPTransport) handleList(w http.ResponseWriter, r *http.Request) error {
	page, err := parsePage(r.URL.Query().Get("page"))
	if err != nil {
		return err
	}

	result, err := ht.engine.List(r.Context(), page)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}

	http_.WriteJSON(w, r, http.StatusOK, domain.PostsResponse{
		Message:    "Fetched posts successfully.",
		Posts:      result.Posts,
		TotalItems: result.TotalItems,
	})

	return nil
}

// parsePage parses the page query parameter; a missing page is the first.
// Out of range pages are left to the engine.
func parsePage(value string) (int, error) {
	if value == "" {
		return 1, nil
	}

	page, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidPage, value)
	}

	return page, nil
}

// HandleCreate processes post creation requests.
// Expects a multipart form with title, content and an image file.
func (ht *HTTPTransport) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "create", ht.handleCreate)
}

func (ht *HTTPTransport) handleCreate(w http.ResponseWriter, r *http.Request) error {
	input, err := ht.readPostInput(w, r)
	if err != nil {
		return err
	}

	post, err := ht.engine.Create(r.Context(), input)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	creator := post.Creator

	http_.WriteJSON(w, r, http.StatusCreated, domain.PostResponse{
		Message: "Post created successfully!",
		Post:    post,
		Creator: &creator,
	})

	return nil
}

// HandleGet processes single post requests.
func (ht *HTTPTransport) HandleGet(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "get", ht.handleGet)
}

func (ht *HTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) error {
	post, err := ht.engine.Get(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}

	//nolint:exhaustruct
	http_.WriteJSON(w, r, http.StatusOK, domain.PostResponse{
		Message: "Post fetched.",
		Post:    post,
	})

	return nil
}

// HandleUpdate processes post update requests.
// Expects a multipart form with title, content and either a new image file
// or the current image ref in the image field.
func (ht *HTTPTransport) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "update", ht.handleUpdate)
}

func (ht *HTTPTransport) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	input, err := ht.readPostInput(w, r)
	if err != nil {
		return err
	}

	post, err := ht.engine.Update(r.Context(), chi.URLParam(r, "postId"), input)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	//nolint:exhaustruct
	http_.WriteJSON(w, r, http.StatusOK, domain.PostResponse{
		Message: "Post updated!",
		Post:    post,
	})

	return nil
}

// HandleDelete processes post deletion requests.
func (ht *HTTPTransport) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "delete", ht.handleDelete)
}

func (ht *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) error {
	if err := ht.engine.Delete(r.Context(), chi.URLParam(r, "postId")); err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	//nolint:exhaustruct
	http_.WriteJSON(w, r, http.StatusOK, domain.PostResponse{Message: "Deleted post."})

	return nil
}

// HandleGetStatus returns the status of the authenticated user.
func (ht *HTTPTransport) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "get status", ht.handleGetStatus)
}

func (ht *HTTPTransport) handleGetStatus(w http.ResponseWriter, r *http.Request) error {
	status, err := ht.engine.GetStatus(r.Context())
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}

	http_.WriteJSON(w, r, http.StatusOK, domain.StatusResponse{
		Message: "Fetched status.",
		Status:  status,
	})

	return nil
}

// HandleUpdateStatus replaces the status of the authenticated user.
// Expects a JSON body with a status field.
func (ht *HTTPTransport) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ht.serve(w, r, "update status", ht.handleUpdateStatus)
}

func (ht *HTTPTransport) handleUpdateStatus(w http.ResponseWriter, r *http.Request) error {
	var req domain.StatusRequest
	if err := http_.DecodeJSON(r, &req); err != nil {
		return err
	}

	status, err := ht.engine.UpdateStatus(r.Context(), req.Status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	http_.WriteJSON(w, r, http.StatusOK, domain.StatusResponse{
		Message: "Status updated!",
		Status:  status,
	})

	return nil
}

// readPostInput reads a post from a multipart form or, without an upload, from a JSON body.
func (ht *HTTPTransport) readPostInput(w http.ResponseWriter, r *http.Request) (PostInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, ht.cfg.MaxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "application/json" {
		var body postBody
		if err := http_.DecodeJSON(r, &body); err != nil {
			return PostInput{}, err
		}

		//nolint:exhaustruct
		return PostInput{Fields: domain.PostFields{
			Title:    body.Title,
			Content:  body.Content,
			ImageURL: domain.AssetRef(body.Image),
		}}, nil
	}

	if err := r.ParseMultipartForm(ht.cfg.MultipartFormMaxMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return PostInput{}, errors.Join(domain.ErrImageTooLarge, err)
		}

		return PostInput{}, errors.Join(http_.ErrMalformedBody, err)
	}

	upload, err := ht.uploads.ReadUpload(r.MultipartForm, ht.cfg.MultipartFileName)
	if err != nil {
		return PostInput{}, fmt.Errorf("read upload: %w", err)
	}

	return PostInput{
		Fields: domain.PostFields{
			Title:    r.FormValue("title"),
			Content:  r.FormValue("content"),
			ImageURL: domain.AssetRef(strings.TrimSpace(r.FormValue("image"))),
		},
		Upload: upload,
	}, nil
}
