package policy

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckFilenameAllowsListedExtensions(t *testing.T) {
	rules := NewSubmissionRules(nil, 0)

	for _, filename := range []string{"main.py", "app.Js", "query.SQL", "index.html", "component.tsx"} {
		if err := rules.CheckFilename(filename); err != nil {
			t.Fatalf("expected %q allowed, got %v", filename, err)
		}
	}
}

func TestCheckFilenameRejectsUnlistedExtensions(t *testing.T) {
	rules := NewSubmissionRules(nil, 0)

	for _, filename := range []string{"binary.exe", "archive.tar.gz", "noextension", "trailingdot."} {
		err := rules.CheckFilename(filename)
		if !errors.Is(err, ErrExtensionNotAllowed) {
			t.Fatalf("expected rejection for %q, got %v", filename, err)
		}
	}
}

func TestCheckFilenameCustomAllowList(t *testing.T) {
	rules := NewSubmissionRules([]string{".go", "RS"}, 0)

	if err := rules.CheckFilename("main.go"); err != nil {
		t.Fatalf("expected .go allowed, got %v", err)
	}
	if err := rules.CheckFilename("lib.rs"); err != nil {
		t.Fatalf("expected .rs allowed, got %v", err)
	}
	if err := rules.CheckFilename("script.py"); !errors.Is(err, ErrExtensionNotAllowed) {
		t.Fatalf("expected .py rejected under custom list, got %v", err)
	}
}

func TestCheckSize(t *testing.T) {
	rules := NewSubmissionRules(nil, 100)

	if err := rules.CheckSize(strings.Repeat("a", 100)); err != nil {
		t.Fatalf("expected size at limit allowed, got %v", err)
	}
	if err := rules.CheckSize(strings.Repeat("a", 101)); !errors.Is(err, ErrSubmissionTooLarge) {
		t.Fatalf("expected oversized rejection, got %v", err)
	}
}
