package feedsvc

import (
	"context"
	"fmt"

	"github.com/mkrupp/feed/internal/domain"
	context_ "github.com/mkrupp/feed/internal/infra/context"
	"github.com/mkrupp/feed/internal/infra/logging"
)

// operation is the state one engine operation threads through its steps.
type operation struct {
	name   string
	userID string
	postID string
	input  PostInput
	page   int
	status string

	// post is the loaded or resulting post, previous the post before an update.
	post     *domain.Post
	previous *domain.Post
	posts    []*domain.Post
	total    int

	// savedAsset is the asset stored by this operation, if any.
	savedAsset domain.AssetRef
}

// step is one stage of an operation. A failing step aborts the operation.
type step func(ctx context.Context, op *operation) error

// pipeline is the ordered step list of an operation. The steps decide the
// outcome, commit is the single repository write and publish announces it.
// Commit and publish run under the engine's commit lock, so events leave the
// process in commit order. After-commit steps run detached from request
// cancellation and their failures are only logged.
type pipeline struct {
	steps       []step
	commit      step
	publish     step
	afterCommit []step
}

func (e *Engine) run(ctx context.Context, op *operation, p pipeline) (err error) {
	log := e.log.With(logging.Group("op", "name", op.name))

	defer func() {
		attrs := logging.Group("op", "user_id", op.userID, "post_id", op.postID)

		if err != nil {
			log.DebugContext(ctx, "operation failed", attrs, "error", err)
		} else {
			log.DebugContext(ctx, "operation done", attrs)
		}
	}()

	for _, s := range p.steps {
		if err := s(ctx, op); err != nil {
			return err
		}
	}

	if p.commit == nil {
		return nil
	}

	detached := context.WithoutCancel(ctx)

	if err := e.commitAndPublish(ctx, detached, op, p); err != nil {
		return err
	}

	for _, s := range p.afterCommit {
		if err := s(detached, op); err != nil {
			log.ErrorContext(detached, "after commit step failed", "error", err)
		}
	}

	return nil
}

func (e *Engine) commitAndPublish(ctx, detached context.Context, op *operation, p pipeline) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if err := p.commit(ctx, op); err != nil {
		return err
	}

	if p.publish != nil {
		if err := p.publish(detached, op); err != nil {
			e.log.ErrorContext(detached, "publish failed", logging.Group("op", "name", op.name), "error", err)
		}
	}

	return nil
}

// authenticate requires an authenticated user on the context.
func authenticate(ctx context.Context, op *operation) error {
	userID, ok := context_.UserIDFromContext(ctx)
	if !ok {
		return domain.ErrNoAuthToken
	}

	op.userID = userID

	return nil
}

// validateFields normalizes and checks the text fields of the input.
func validateFields(_ context.Context, op *operation) error {
	op.input.Fields = op.input.Fields.Normalize()

	//nolint:wrapcheck
	return op.input.Fields.Validate()
}

// requireUpload fails unless the input carries an uploaded image.
func requireUpload(_ context.Context, op *operation) error {
	if op.input.Upload == nil {
		return domain.ErrMissingAsset
	}

	return nil
}

func (e *Engine) authorizePost(ctx context.Context, op *operation) error {
	post, err := e.guard.AuthorizePost(ctx, op.userID, op.postID)
	if err != nil {
		return fmt.Errorf("authorize post: %w", err)
	}

	op.previous = post

	return nil
}

// resolveImage decides the image of an updated post: a new upload wins,
// otherwise the client must echo the stored ref to keep it.
func (e *Engine) resolveImage(_ context.Context, op *operation) error {
	switch {
	case op.input.Upload != nil:
		return nil
	case op.input.Fields.ImageURL != "" && op.input.Fields.ImageURL == op.previous.ImageURL:
		return nil
	default:
		return domain.ErrNoFilePicked
	}
}

// saveUpload stores the uploaded image, if any, and points the input at it.
func (e *Engine) saveUpload(ctx context.Context, op *operation) error {
	if op.input.Upload == nil {
		return nil
	}

	ref, err := e.assets.Save(ctx, op.input.Upload.Data, op.input.Upload.MIMEType)
	if err != nil {
		return fmt.Errorf("save asset: %w", err)
	}

	op.savedAsset = ref
	op.input.Fields.ImageURL = ref

	return nil
}

// discardSavedAsset deletes the asset saved by a failed operation.
func (e *Engine) discardSavedAsset(ctx context.Context, op *operation) {
	if op.savedAsset != "" {
		e.assets.Delete(context.WithoutCancel(ctx), op.savedAsset)
	}
}

func (e *Engine) insertPost(ctx context.Context, op *operation) error {
	//nolint:exhaustruct
	post, err := e.posts.InsertPost(ctx, &domain.Post{
		Title:    op.input.Fields.Title,
		Content:  op.input.Fields.Content,
		ImageURL: op.input.Fields.ImageURL,
		Creator:  domain.CreatorSummary{ID: op.userID},
	})
	if err != nil {
		e.discardSavedAsset(ctx, op)

		return fmt.Errorf("insert post: %w", err)
	}

	op.post = post
	op.postID = post.ID

	return nil
}

func (e *Engine) updatePost(ctx context.Context, op *operation) error {
	post, err := e.posts.UpdatePost(ctx, op.postID, op.input.Fields)
	if err != nil {
		e.discardSavedAsset(ctx, op)

		return fmt.Errorf("update post: %w", err)
	}

	op.post = post

	return nil
}

func (e *Engine) deletePost(ctx context.Context, op *operation) error {
	if err := e.posts.DeletePost(ctx, op.postID); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	return nil
}

func (e *Engine) getPost(ctx context.Context, op *operation) error {
	post, err := e.posts.GetPost(ctx, op.postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}

	op.post = post

	return nil
}

// listPosts loads one page. Pages before the first are empty like pages past the last.
func (e *Engine) listPosts(ctx context.Context, op *operation) error {
	offset, limit := (op.page-1)*e.cfg.PageSize, e.cfg.PageSize
	if op.page < 1 {
		offset, limit = 0, 0
	}

	posts, total, err := e.posts.ListPosts(ctx, offset, limit)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	op.posts = posts
	op.total = total

	return nil
}

// linkCreator appends the new post to its creator's post list.
func (e *Engine) linkCreator(ctx context.Context, op *operation) error {
	if err := e.users.AddPost(ctx, op.userID, op.postID); err != nil {
		return fmt.Errorf("add post to user: %w", err)
	}

	return nil
}

// unlinkCreator removes the deleted post from its creator's post list.
func (e *Engine) unlinkCreator(ctx context.Context, op *operation) error {
	if err := e.users.RemovePost(ctx, op.previous.Creator.ID, op.postID); err != nil {
		return fmt.Errorf("remove post from user: %w", err)
	}

	return nil
}

// clearSupersededAsset deletes the previous image once the post no longer references it.
func (e *Engine) clearSupersededAsset(ctx context.Context, op *operation) error {
	if op.post == nil || op.previous.ImageURL != op.post.ImageURL {
		e.assets.Delete(ctx, op.previous.ImageURL)
	}

	return nil
}

func (e *Engine) publishCreated(ctx context.Context, op *operation) error {
	e.events.Publish(ctx, domain.NewPostCreatedEvent(op.post))

	return nil
}

func (e *Engine) publishUpdated(ctx context.Context, op *operation) error {
	e.events.Publish(ctx, domain.NewPostUpdatedEvent(op.post))

	return nil
}

func (e *Engine) publishDeleted(ctx context.Context, op *operation) error {
	e.events.Publish(ctx, domain.NewPostDeletedEvent(op.postID))

	return nil
}

func (e *Engine) getStatus(ctx context.Context, op *operation) error {
	account, ok, err := e.users.GetUserByID(ctx, op.userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	} else if !ok {
		return domain.ErrUserNotFound
	}

	op.status = account.Status

	return nil
}

func validateStatus(_ context.Context, op *operation) error {
	status, err := domain.NormalizeStatus(op.status)
	if err != nil {
		return err
	}

	op.status = status

	return nil
}

func (e *Engine) updateStatus(ctx context.Context, op *operation) error {
	if err := e.users.UpdateStatus(ctx, op.userID, op.status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	return nil
}
