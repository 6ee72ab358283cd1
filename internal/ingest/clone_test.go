package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeGitRunner writes a fixed tree into the clone directory instead of calling git.
type fakeGitRunner struct {
	ensureErr error
	cloneErr  error
	files     map[string]string
	input     *CloneInput
}

func (f *fakeGitRunner) EnsureBinary() error {
	return f.ensureErr
}

func (f *fakeGitRunner) Clone(ctx context.Context, input CloneInput) error {
	f.input = &input
	if f.cloneErr != nil {
		return f.cloneErr
	}
	for rel, content := range f.files {
		p := filepath.Join(input.Dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func TestNewGitRunner(t *testing.T) {
	cr, ok := NewGitRunner().(*CommandGitRunner)
	if !ok {
		t.Fatal("NewGitRunner should return a *CommandGitRunner")
	}
	if cr.Binary != "git" {
		t.Fatalf("expected binary name 'git', got %q", cr.Binary)
	}
}

func TestEnsureBinaryWhenMissing(t *testing.T) {
	runner := &CommandGitRunner{Binary: "nonexistent-binary-12345"}
	if err := runner.EnsureBinary(); err == nil {
		t.Fatal("EnsureBinary should fail for nonexistent binary")
	}
}

func TestCloneWithMissingBinary(t *testing.T) {
	runner := &CommandGitRunner{Binary: "nonexistent-binary-67890"}
	if err := runner.Clone(context.Background(), CloneInput{URL: "https://github.com/acme/app.git", Dir: t.TempDir()}); err == nil {
		t.Fatal("Clone should fail when binary is missing")
	}
}

func TestCloneFetcherCollectsSupportedFiles(t *testing.T) {
	runner := &fakeGitRunner{files: map[string]string{
		".git/config":        "[core]",
		"auth/login.go":      "package auth",
		"auth/secret.key":    "nope",
		"config/app.yaml":    "debug: true",
		"docs/big.md":        strings.Repeat("m", 64),
		"web/static/app.css": "body{}",
	}}

	f := NewCloneFetcher(runner, t.TempDir())
	f.MaxFileBytes = 32
	a, err := f.Fetch(context.Background(), "https://github.com/acme/app")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.input.URL != "https://github.com/acme/app.git" || runner.input.Depth != 1 || runner.input.Branch != "" {
		t.Fatalf("unexpected clone input: %+v", runner.input)
	}

	var paths []string
	for _, file := range a.Content.Files {
		paths = append(paths, file.Path)
	}
	want := "auth/login.go,config/app.yaml,docs/big.md,web/static/app.css"
	if got := strings.Join(paths, ","); got != want {
		t.Fatalf("files = %s, want %s", got, want)
	}
	if a.Metadata.Source != "github" || a.Metadata.Repo != "acme/app" || a.Metadata.Commit != "HEAD" {
		t.Fatalf("unexpected metadata: %+v", a.Metadata)
	}
	if a.Metadata.Extra["fetch"] != "clone" {
		t.Fatalf("expected clone fetch marker, got %v", a.Metadata.Extra)
	}
	if !strings.HasSuffix(a.Content.Files[2].Content, truncatedMarker) {
		t.Fatalf("expected truncated content, got %q", a.Content.Files[2].Content)
	}
}

func TestCloneFetcherTreeAndBranch(t *testing.T) {
	runner := &fakeGitRunner{files: map[string]string{
		"cmd/main.go":       "package main",
		"internal/db/db.go": "package db",
	}}

	a, err := NewCloneFetcher(runner, t.TempDir()).Fetch(context.Background(), "https://github.com/acme/app/tree/dev/internal")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if runner.input.Branch != "dev" {
		t.Fatalf("expected branch dev, got %q", runner.input.Branch)
	}
	if len(a.Content.Files) != 1 || a.Content.Files[0].Path != "internal/db/db.go" {
		t.Fatalf("unexpected files: %+v", a.Content.Files)
	}
	if a.Metadata.Commit != "dev" {
		t.Fatalf("expected commit dev, got %q", a.Metadata.Commit)
	}
}

func TestCloneFetcherFailures(t *testing.T) {
	tests := []struct {
		name      string
		runner    *fakeGitRunner
		url       string
		wantInput bool
	}{
		{"bad url", &fakeGitRunner{}, "https://example.com/x", true},
		{"no git", &fakeGitRunner{ensureErr: errors.New("git missing")}, "https://github.com/acme/app", false},
		{"clone fails", &fakeGitRunner{cloneErr: errors.New("auth required")}, "https://github.com/acme/app", true},
		{"empty repo", &fakeGitRunner{files: map[string]string{"image.png": "x"}}, "https://github.com/acme/app", true},
		{"whitespace only", &fakeGitRunner{files: map[string]string{"main.go": "  \n\t"}}, "https://github.com/acme/app", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCloneFetcher(tt.runner, t.TempDir()).Fetch(context.Background(), tt.url)
			if err == nil {
				t.Fatal("expected error")
			}
			if IsInputError(err) != tt.wantInput {
				t.Fatalf("IsInputError = %v, want %v (%v)", IsInputError(err), tt.wantInput, err)
			}
		})
	}
}

func TestCloneFetcherRejectsCommitAndPullRefs(t *testing.T) {
	for _, url := range []string{
		"https://github.com/acme/app/commit/abc123",
		"https://github.com/acme/app/pull/42",
	} {
		runner := &fakeGitRunner{files: map[string]string{"main.go": "package main"}}
		_, err := NewCloneFetcher(runner, t.TempDir()).Fetch(context.Background(), url)
		if !IsInputError(err) {
			t.Fatalf("%s: expected input error, got %v", url, err)
		}
		if !strings.Contains(err.Error(), "fetch mode api") {
			t.Fatalf("%s: expected hint about api mode, got %v", url, err)
		}
		if runner.input != nil {
			t.Fatalf("%s: nothing should be cloned", url)
		}
	}
}
