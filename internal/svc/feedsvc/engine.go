package feedsvc

import (
	"context"
	"sync"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	"github.com/mkrupp/feed/internal/repo/post"
	"github.com/mkrupp/feed/internal/repo/user"
)

// FeedConfig holds configuration parameters for the feed engine.
type FeedConfig struct {
	// PageSize is the number of posts per feed page
	PageSize int `env:"PAGE_SIZE" default:"2"`
}

// Publisher delivers committed post events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// PostAuthorizer loads a post on behalf of the user allowed to mutate it.
type PostAuthorizer interface {
	AuthorizePost(ctx context.Context, userID, postID string) (*domain.Post, error)
}

// AssetStore stores post images.
type AssetStore interface {
	Save(ctx context.Context, data []byte, mimeType string) (domain.AssetRef, error)
	Delete(ctx context.Context, ref domain.AssetRef)
}

// PostInput is the client-supplied content of a created or updated post.
// Fields.ImageURL is the image ref echoed by the client, Upload a new image.
type PostInput struct {
	Fields domain.PostFields
	Upload *domain.Upload
}

// Engine runs the feed operations. Mutations are authorized against the
// post's creator and published to subscribers once committed.
// The acting user is taken from the context.
type Engine struct {
	posts  post.Repository
	users  user.Repository
	assets AssetStore
	guard  PostAuthorizer
	events Publisher
	cfg    FeedConfig
	log    logging.Logger

	// commitMu orders commits together with their events.
	commitMu sync.Mutex
}

// NewEngine creates a new Engine.
func NewEngine(
	posts post.Repository,
	users user.Repository,
	assets AssetStore,
	guard PostAuthorizer,
	events Publisher,
	cfg FeedConfig,
) *Engine {
	if cfg.PageSize < 1 {
		cfg.PageSize = 2
	}

	return &Engine{
		posts:  posts,
		users:  users,
		assets: assets,
		guard:  guard,
		events: events,
		cfg:    cfg,
		log:    logging.GetLogger("svc.feedsvc.engine"),
	}
}

// List returns a page of the feed, newest first. Pages start at 1; a page
// out of range is empty and still reports the total. Listing does not
// require authentication.
func (e *Engine) List(ctx context.Context, page int) (*domain.PostPage, error) {
	op := &operation{name: "list", page: page}

	if err := e.run(ctx, op, pipeline{
		steps: []step{e.listPosts},
	}); err != nil {
		return nil, err
	}

	return &domain.PostPage{Posts: op.posts, TotalItems: op.total}, nil
}

// Create stores a new post owned by the acting user. An image upload is required.
func (e *Engine) Create(ctx context.Context, input PostInput) (*domain.Post, error) {
	op := &operation{name: "create", input: input}

	if err := e.run(ctx, op, pipeline{
		steps:       []step{authenticate, validateFields, requireUpload, e.saveUpload},
		commit:      e.insertPost,
		publish:     e.publishCreated,
		afterCommit: []step{e.linkCreator},
	}); err != nil {
		return nil, err
	}

	return op.post, nil
}

// Get returns a single post.
func (e *Engine) Get(ctx context.Context, postID string) (*domain.Post, error) {
	op := &operation{name: "get", postID: postID}

	if err := e.run(ctx, op, pipeline{
		steps: []step{authenticate, e.getPost},
	}); err != nil {
		return nil, err
	}

	return op.post, nil
}

// Update replaces the content of a post owned by the acting user.
// The image is either a new upload or the unchanged stored ref.
func (e *Engine) Update(ctx context.Context, postID string, input PostInput) (*domain.Post, error) {
	op := &operation{name: "update", postID: postID, input: input}

	if err := e.run(ctx, op, pipeline{
		steps:       []step{authenticate, validateFields, e.authorizePost, e.resolveImage, e.saveUpload},
		commit:      e.updatePost,
		publish:     e.publishUpdated,
		afterCommit: []step{e.clearSupersededAsset},
	}); err != nil {
		return nil, err
	}

	return op.post, nil
}

// Delete removes a post owned by the acting user together with its image.
func (e *Engine) Delete(ctx context.Context, postID string) error {
	op := &operation{name: "delete", postID: postID}

	return e.run(ctx, op, pipeline{
		steps:       []step{authenticate, e.authorizePost},
		commit:      e.deletePost,
		publish:     e.publishDeleted,
		afterCommit: []step{e.clearSupersededAsset, e.unlinkCreator},
	})
}

// GetStatus returns the status of the acting user.
func (e *Engine) GetStatus(ctx context.Context) (string, error) {
	op := &operation{name: "get_status"}

	if err := e.run(ctx, op, pipeline{
		steps: []step{authenticate, e.getStatus},
	}); err != nil {
		return "", err
	}

	return op.status, nil
}

// UpdateStatus replaces the status of the acting user.
func (e *Engine) UpdateStatus(ctx context.Context, status string) (string, error) {
	op := &operation{name: "update_status", status: status}

	if err := e.run(ctx, op, pipeline{
		steps:  []step{authenticate, validateStatus},
		commit: e.updateStatus,
	}); err != nil {
		return "", err
	}

	return op.status, nil
}
