// Package extractor converts raw file bytes into indexable text. It is a
// thin, pure adapter: unsupported types yield no text, and malformed
// encodings degrade to an empty string so the item can still be indexed
// metadata-only.
package extractor

import (
	"bytes"
	"log"
	"strings"
	"unicode/utf8"
)

// textExtensions are the file types whose bytes are treated as text.
var textExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".markdown": {}, ".rst": {}, ".org": {},
	".json": {}, ".yaml": {}, ".yml": {}, ".toml": {}, ".ini": {}, ".cfg": {},
	".csv": {}, ".tsv": {}, ".xml": {}, ".html": {}, ".htm": {}, ".css": {},
	".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {}, ".go": {}, ".py": {},
	".rb": {}, ".rs": {}, ".java": {}, ".c": {}, ".h": {}, ".cpp": {},
	".hpp": {}, ".sh": {}, ".bash": {}, ".sql": {}, ".log": {}, ".tex": {},
}

// IsTextExtension reports whether ext (with leading dot, any case) is a
// supported text type.
func IsTextExtension(ext string) bool {
	_, ok := textExtensions[strings.ToLower(ext)]
	return ok
}

// Extract converts data into text for the declared extension. The second
// return value is false for unsupported/binary types. Malformed encodings
// return ("", true) with a logged warning rather than an error, keeping the
// index eventually consistent for unreadable files.
func Extract(data []byte, declaredExtension string) (string, bool) {
	if !IsTextExtension(declaredExtension) {
		return "", false
	}

	// NUL bytes mean a binary payload behind a text extension.
	if bytes.IndexByte(data, 0) >= 0 {
		log.Printf("extractor: binary content behind %s extension, indexing metadata only", declaredExtension)
		return "", true
	}

	if !utf8.Valid(data) {
		log.Printf("extractor: invalid UTF-8 in %s file, indexing metadata only", declaredExtension)
		return "", true
	}

	return string(data), true
}
