package assetsvc

import (
	"bytes"
	"fmt"
	"path"
	"strings"

	"github.com/mkrupp/feed/internal/domain"
)

const (
	MIMETypeJPEG = "image/jpeg"
	MIMETypeJPG  = "image/jpg"
	MIMETypePNG  = "image/png"
)

//nolint:gochecknoglobals
var (
	// assetTypeExts maps accepted upload MIME types to the extension of the stored asset.
	assetTypeExts = map[string]string{
		MIMETypeJPEG: "jpeg",
		MIMETypeJPG:  "jpg",
		MIMETypePNG:  "png",
	}

	assetExtTypes = map[string]string{
		".jpeg": MIMETypeJPEG,
		".jpg":  MIMETypeJPEG,
		".png":  MIMETypePNG,
	}

	assetTypeHeaders = map[string][]string{
		MIMETypeJPEG: {"\xFF\xD8\xFF"},
		MIMETypeJPG:  {"\xFF\xD8\xFF"},
		MIMETypePNG:  {"\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"},
	}
)

// normalizeMIMEType strips parameters and case from a Content-Type value.
func normalizeMIMEType(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")

	return strings.ToLower(strings.TrimSpace(mimeType))
}

// extByType returns the asset extension for an accepted MIME type.
func extByType(mimeType string) (string, error) {
	ext, ok := assetTypeExts[mimeType]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrImageTypeNotSupported, mimeType)
	}

	return ext, nil
}

// checkHeader verifies that data starts with a magic header of mimeType.
func checkHeader(mimeType string, data []byte) error {
	for _, header := range assetTypeHeaders[mimeType] {
		if bytes.HasPrefix(data, []byte(header)) {
			return nil
		}
	}

	return fmt.Errorf("%w: %q", domain.ErrImageTypeMismatch, mimeType)
}

// TypeByRef returns the Content-Type to serve a stored asset with.
func TypeByRef(ref domain.AssetRef) string {
	if mimeType, ok := assetExtTypes[strings.ToLower(path.Ext(ref.String()))]; ok {
		return mimeType
	}

	return "application/octet-stream"
}
