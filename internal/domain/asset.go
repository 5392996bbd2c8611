package domain

import (
	"strings"

	"github.com/mkrupp/feed/internal/util/encoding"
)

// AssetPathPrefix is the namespace all image refs live under.
const AssetPathPrefix = "images/"

var (
	ErrImageTypeNotSupported = &Error{Kind: ErrUnsupportedMediaType, Message: "Image type not supported."}
	ErrImageTypeMismatch     = &Error{Kind: ErrUnsupportedMediaType, Message: "Image content does not match its type."}
	ErrImageTooLarge         = &Error{Kind: ErrValidation, Message: "Image too large."}
	// ErrMissingAsset is returned when a post is created without an accepted image.
	ErrMissingAsset = NewValidationError("No image provided.", FieldError{Field: "image", Message: "required"})
	// ErrNoFilePicked is returned when an update neither uploads nor keeps an image.
	ErrNoFilePicked = NewValidationError("No file picked.", FieldError{Field: "image", Message: "required"})
)

// AssetRef is the opaque storage path of a post image, e.g. "images/06F...Z.png".
type AssetRef string

// String returns the string representation of the AssetRef.
func (ref AssetRef) String() string {
	return string(ref)
}

// BlobID returns the storage key of the asset.
func (ref AssetRef) BlobID() BlobID {
	return BlobID(ref)
}

// Valid reports whether ref has the form images/<id>.<ext> as generated by the asset store.
func (ref AssetRef) Valid() bool {
	name, ok := strings.CutPrefix(string(ref), AssetPathPrefix)
	if !ok {
		return false
	}

	stem, ext, ok := strings.Cut(name, ".")
	if !ok || !encoding.IsCrockfordB32LC(stem) {
		return false
	}

	switch ext {
	case "png", "jpg", "jpeg":
		return true
	default:
		return false
	}
}

// Upload is an uploaded file as received from the client.
type Upload struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Size returns the size of the upload in bytes.
func (u *Upload) Size() int64 {
	return int64(len(u.Data))
}
