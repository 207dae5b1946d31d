// validation.go - Filename sanitization and upload content policy.
//
// The sanitized name is only a display-preserving basis for the generated
// storage name; it is never used as a disk path on its own.
package server

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"
)

// maxFilenameLen caps sanitized filenames, extension included.
const maxFilenameLen = 255

// allowedMimeTypes defines the declared content types permitted for upload.
var allowedMimeTypes = map[string]bool{
	// Documents
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         true,
	"application/vnd.ms-powerpoint":                                             true,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": true,
	"application/vnd.oasis.opendocument.text":                                   true,
	"application/vnd.oasis.opendocument.spreadsheet":                            true,
	"application/rtf":  true,
	"text/plain":       true,
	"text/csv":         true,
	"text/html":        true,
	"text/css":         true,
	"text/markdown":    true,
	"application/json": true,
	"application/xml":  true,
	"text/xml":         true,

	// Images
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
	"image/bmp":     true,
	"image/tiff":    true,
	"image/heic":    true,

	// Audio
	"audio/mpeg": true,
	"audio/ogg":  true,
	"audio/wav":  true,
	"audio/webm": true,
	"audio/flac": true,
	"audio/aac":  true,

	// Video
	"video/mp4":       true,
	"video/mpeg":      true,
	"video/ogg":       true,
	"video/webm":      true,
	"video/quicktime": true,
	"video/x-msvideo": true,

	// Archives
	"application/zip":              true,
	"application/x-tar":            true,
	"application/gzip":             true,
	"application/x-bzip2":          true,
	"application/x-7z-compressed":  true,
	"application/x-rar-compressed": true,

	// Code
	"application/x-python-code": true,
	"application/x-sh":          true,
	"application/javascript":    true,
	"text/javascript":           true,

	// Fonts
	"font/ttf":   true,
	"font/otf":   true,
	"font/woff":  true,
	"font/woff2": true,

	// 3-D models
	"model/stl":         true,
	"model/obj":         true,
	"model/gltf+json":   true,
	"model/gltf-binary": true,

	// E-books
	"application/epub+zip":           true,
	"application/x-mobipocket-ebook": true,

	// Generic binary fallback
	"application/octet-stream": true,
}

// deniedExtensions lists executable and installer extensions that are
// rejected regardless of the declared content type.
var deniedExtensions = map[string]bool{
	".exe":   true,
	".bat":   true,
	".cmd":   true,
	".com":   true,
	".pif":   true,
	".scr":   true,
	".vbs":   true,
	".js":    true,
	".jar":   true,
	".app":   true,
	".deb":   true,
	".pkg":   true,
	".dmg":   true,
	".rpm":   true,
	".msi":   true,
	".run":   true,
	".bin":   true,
	".dll":   true,
	".so":    true,
	".dylib": true,
}

// sanitizeFilename normalizes an untrusted upload filename: path-unsafe and
// control characters are stripped, whitespace runs collapse to a single
// underscore, leading/trailing dots are trimmed, and the result is capped at
// maxFilenameLen bytes with the extension preserved.
func sanitizeFilename(name string) string {
	// Keep only the final path element in case the client sent a full path.
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	b.Grow(len(name))
	inSpace := false
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			// control bytes dropped
		case strings.ContainsRune(`<>:"/\|?*`, r):
			// path-unsafe characters dropped
		case r == ' ' || r == '\t':
			if !inSpace {
				b.WriteRune('_')
			}
			inSpace = true
			continue
		default:
			b.WriteRune(r)
		}
		inSpace = false
	}

	name = strings.Trim(b.String(), ".")

	if len(name) > maxFilenameLen {
		ext := filepath.Ext(name)
		if len(ext) >= maxFilenameLen {
			ext = ""
		}
		base := name[:len(name)-len(filepath.Ext(name))]
		name = base[:maxFilenameLen-len(ext)] + ext
	}

	if name == "" {
		name = "unnamed"
	}
	return name
}

// extensionDenied reports whether the filename carries a deny-listed
// executable extension.
func extensionDenied(name string) bool {
	return deniedExtensions[strings.ToLower(filepath.Ext(name))]
}

// normalizeMimeType lowercases a declared content type and strips
// parameters (charset etc.). The normalized form is what gets stored.
func normalizeMimeType(contentType string) string {
	mt := strings.TrimSpace(strings.ToLower(contentType))
	if idx := strings.Index(mt, ";"); idx > 0 {
		mt = strings.TrimSpace(mt[:idx])
	}
	return mt
}

// mimeTypeAllowed checks a normalized content type against the allow-list.
func mimeTypeAllowed(mt string) bool {
	return allowedMimeTypes[mt]
}

// makeStorageName derives the on-disk name for a sanitized filename:
// base + "-" + unix-millis + "-" + random component + extension. The suffix
// makes concurrent uploads of identically named files collision-free.
func makeStorageName(sanitized string, now time.Time) string {
	ext := filepath.Ext(sanitized)
	base := sanitized[:len(sanitized)-len(ext)]
	if base == "" {
		base = "unnamed"
	}
	return fmt.Sprintf("%s-%d-%d%s", base, now.UnixMilli(), rand.IntN(1_000_000_000), ext)
}
