package mime

import "strings"

var imageMimeTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// Remote matrix files are plain text, but object stores and static servers
// label them inconsistently.
var matrixMimeTypes = []string{
	"text/plain",
	"text/csv",
	"application/csv",
	"application/octet-stream",
}

// ForFormat returns the content type of an encoded image format, or
// application/octet-stream for an unknown one.
func ForFormat(format string) string {
	if t, ok := imageMimeTypes[strings.ToLower(format)]; ok {
		return t
	}
	return "application/octet-stream"
}

func IsImageMime(mimeType string) bool {
	for _, t := range imageMimeTypes {
		if mimeType == t {
			return true
		}
	}

	return false
}

func IsMatrixMime(mimeType string) bool {
	for _, t := range matrixMimeTypes {
		if mimeType == t {
			return true
		}
	}

	return false
}
