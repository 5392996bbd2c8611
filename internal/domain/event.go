package domain

import "encoding/json"

// EventAction names the mutation an event describes.
type EventAction string

const (
	EventActionCreate EventAction = "create"
	EventActionUpdate EventAction = "update"
	EventActionDelete EventAction = "delete"
)

// Event notifies subscribers of a committed post mutation.
// Create and update events carry the post snapshot, delete events only the id.
type Event struct {
	Action EventAction
	Post   *Post
	PostID string
}

// NewPostCreatedEvent creates the event published after a post is created.
func NewPostCreatedEvent(post *Post) Event {
	return Event{Action: EventActionCreate, Post: post, PostID: post.ID}
}

// NewPostUpdatedEvent creates the event published after a post is updated.
func NewPostUpdatedEvent(post *Post) Event {
	return Event{Action: EventActionUpdate, Post: post, PostID: post.ID}
}

// NewPostDeletedEvent creates the event published after a post is deleted.
func NewPostDeletedEvent(postID string) Event {
	return Event{Action: EventActionDelete, PostID: postID}
}

// MarshalJSON encodes the event as {"action": ..., "post": snapshot-or-id}.
func (e Event) MarshalJSON() ([]byte, error) {
	var post any = e.Post
	if e.Action == EventActionDelete || e.Post == nil {
		post = e.PostID
	}

	//nolint:wrapcheck
	return json.Marshal(struct {
		Action EventAction `json:"action"`
		Post   any         `json:"post"`
	}{
		Action: e.Action,
		Post:   post,
	})
}
