// Package policy holds the input rules applied to review submissions
// before any job is created.
package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	ErrSubmissionTooLarge  = errors.New("submission exceeds size limit")
)

// DefaultMaxCodeBytes bounds a single submission. Oversized files are
// rejected up front instead of being truncated silently.
const DefaultMaxCodeBytes = 1 << 20 // 1 MiB

var defaultAllowedExtensions = []string{
	"py", "js", "jsx", "ts", "tsx", "java", "cpp", "c", "html", "css", "sql",
}

type SubmissionRules struct {
	allowedExtensions map[string]struct{}
	maxCodeBytes      int
}

func NewSubmissionRules(extensions []string, maxCodeBytes int) *SubmissionRules {
	if len(extensions) == 0 {
		extensions = defaultAllowedExtensions
	}
	if maxCodeBytes <= 0 {
		maxCodeBytes = DefaultMaxCodeBytes
	}

	allowed := make(map[string]struct{}, len(extensions))
	for _, extension := range extensions {
		cleaned := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(extension, ".")))
		if cleaned == "" {
			continue
		}
		allowed[cleaned] = struct{}{}
	}

	return &SubmissionRules{
		allowedExtensions: allowed,
		maxCodeBytes:      maxCodeBytes,
	}
}

// CheckFilename validates an uploaded file's extension against the
// allow-list. Snippets submitted without an upload bypass this check.
func (r *SubmissionRules) CheckFilename(filename string) error {
	name := strings.TrimSpace(filename)
	index := strings.LastIndex(name, ".")
	if index < 0 || index == len(name)-1 {
		return fmt.Errorf("%w: %q has no extension", ErrExtensionNotAllowed, filename)
	}

	extension := strings.ToLower(name[index+1:])
	if _, ok := r.allowedExtensions[extension]; !ok {
		return fmt.Errorf("%w: .%s", ErrExtensionNotAllowed, extension)
	}
	return nil
}

func (r *SubmissionRules) CheckSize(code string) error {
	if len(code) > r.maxCodeBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrSubmissionTooLarge, len(code), r.maxCodeBytes)
	}
	return nil
}

func (r *SubmissionRules) MaxCodeBytes() int {
	return r.maxCodeBytes
}
