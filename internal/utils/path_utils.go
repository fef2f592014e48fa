package utils

import (
	"path/filepath"
	"strings"

	"github.com/funvibe/duet/internal/config"
)

// HasSourceExt reports whether path has a recognized source extension.
func HasSourceExt(path string) bool {
	for _, ext := range config.SourceFileExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// TrimSourceExt removes a recognized source extension from path.
func TrimSourceExt(path string) string {
	for _, ext := range config.SourceFileExtensions {
		if trimmed, ok := strings.CutSuffix(path, ext); ok {
			return trimmed
		}
	}
	return path
}

// ExtractModuleName derives a program name from a file path.
// It takes the base filename and removes any recognized source extension.
func ExtractModuleName(path string) string {
	return TrimSourceExt(filepath.Base(path))
}

// BundlePath is where a compiled bundle of sourcePath is written by default:
// next to the source, with the bundle extension.
func BundlePath(sourcePath string) string {
	base := TrimSourceExt(sourcePath)
	if base == sourcePath {
		base = strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	}
	return base + config.BundleFileExt
}
