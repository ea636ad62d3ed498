package llm

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
)

// DataURI encodes bytes as a data: URI with the given media type.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// IsLocalPath reports whether a string looks like a local file path
// rather than a URL.
func IsLocalPath(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.Contains(s, "://") || strings.HasPrefix(s, "data:") {
		return false
	}
	return true
}

// ExpandTilde resolves a leading "~/" against the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
		}
	}
	return path
}

// InferMimeTypeFromPath maps common image extensions to media types.
func InferMimeTypeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	default:
		return ""
	}
}
