package domain

import (
	"bytes"
	"io"
	"time"
)

// BlobID addresses an object in blob storage. For assets it is the asset ref.
type BlobID string

// String returns the string representation of the BlobID.
func (id BlobID) String() string {
	return string(id)
}

// Blob is a stored binary object.
type Blob struct {
	ID   BlobID
	Body []byte
}

// NewBlob creates a new Blob with the given ID and content.
func NewBlob(id BlobID, body []byte) *Blob {
	return &Blob{
		ID:   id,
		Body: body,
	}
}

// Size returns the size of the blob's content in bytes.
func (blob *Blob) Size() int64 {
	return int64(len(blob.Body))
}

// Reader returns a reader over the blob's content.
func (blob *Blob) Reader() io.Reader {
	return bytes.NewReader(blob.Body)
}

// BlobInfo describes a stored object without its content.
type BlobInfo struct {
	ID      BlobID
	Size    int64
	ModTime time.Time
}

var (
	// ErrBlobNotFound is returned when fetching or deleting a non-existent blob.
	ErrBlobNotFound = &Error{Kind: ErrNotFound, Message: "Could not find file."}
	// ErrInvalidBlobID is returned for blob IDs that are not clean relative paths.
	ErrInvalidBlobID = &Error{Kind: ErrValidation, Message: "Invalid file name."}
)
