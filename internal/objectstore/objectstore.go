// Package objectstore keeps payment screenshots. Keys are
// "<prefix>/<uuid><ext>" regardless of the backend.
package objectstore

import (
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/victor5516/raffles-api-core/internal/app"
)

func objectKey(prefix string, upload app.Upload) string {
	return path.Join(strings.Trim(prefix, "/"), uuid.NewString()+extension(upload))
}

func extension(upload app.Upload) string {
	if ext := strings.ToLower(filepath.Ext(upload.Filename)); ext != "" {
		return ext
	}
	if upload.ContentType != "" {
		if exts, err := mime.ExtensionsByType(upload.ContentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ""
}

func contentType(upload app.Upload) string {
	if upload.ContentType != "" {
		return upload.ContentType
	}
	if ct := mime.TypeByExtension(extension(upload)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
