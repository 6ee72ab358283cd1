package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/example/sentinel/internal/model"
)

// GitRunner defines the git operations needed to fetch a repository locally.
type GitRunner interface {
	EnsureBinary() error
	Clone(ctx context.Context, input CloneInput) error
}

// CommandGitRunner executes the real git binary present on the host.
type CommandGitRunner struct {
	Binary string
}

// CloneInput describes a single shallow clone.
type CloneInput struct {
	URL    string
	Branch string
	Dir    string
	Depth  int
	Stdout io.Writer
	Stderr io.Writer
}

// NewGitRunner returns a runner for the git binary on PATH.
func NewGitRunner() GitRunner {
	return &CommandGitRunner{Binary: "git"}
}

// EnsureBinary verifies that git is discoverable on PATH.
func (r *CommandGitRunner) EnsureBinary() error {
	if _, err := exec.LookPath(r.Binary); err != nil {
		return fmt.Errorf("git binary not found: %w", err)
	}
	return nil
}

// Clone runs `git clone` into input.Dir.
func (r *CommandGitRunner) Clone(ctx context.Context, input CloneInput) error {
	args := []string{"clone", "--quiet", "--single-branch"}
	if input.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(input.Depth))
	}
	if input.Branch != "" {
		args = append(args, "--branch", input.Branch)
	}
	args = append(args, "--", input.URL, input.Dir)

	// URL and branch come from a parsed GitHub reference and are passed after "--".
	cmd := exec.CommandContext(ctx, r.Binary, args...) // #nosec G204
	cmd.Stdout = input.Stdout
	cmd.Stderr = input.Stderr
	return cmd.Run()
}

// CloneFetcher fetches repositories with a shallow git clone instead of the REST API.
type CloneFetcher struct {
	Runner       GitRunner
	WorkDir      string
	MaxFiles     int
	MaxFileBytes int
}

// NewCloneFetcher builds a fetcher cloning into temporary directories below workDir
// (the system temp dir when empty).
func NewCloneFetcher(runner GitRunner, workDir string) *CloneFetcher {
	if runner == nil {
		runner = NewGitRunner()
	}
	return &CloneFetcher{Runner: runner, WorkDir: workDir, MaxFiles: DefaultMaxFiles, MaxFileBytes: DefaultMaxFileBytes}
}

// Fetch implements RepositoryFetcher. A shallow clone only holds branch heads, so commit and
// pull request URLs are rejected.
func (f *CloneFetcher) Fetch(ctx context.Context, url string) (model.Artifact, error) {
	ref, err := ParseGitHubURL(url)
	if err != nil {
		return model.Artifact{}, err
	}
	if ref.Kind == RefCommit || ref.Kind == RefPull {
		return model.Artifact{}, inputErrorf("github", "%s URLs need fetch mode api: %s", ref.Kind, url)
	}
	if err := f.Runner.EnsureBinary(); err != nil {
		return model.Artifact{}, err
	}

	dir, err := os.MkdirTemp(f.WorkDir, "sentinel-clone-")
	if err != nil {
		return model.Artifact{}, err
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, ref.Repo)
	if err := f.Runner.Clone(ctx, CloneInput{
		URL:    ref.CloneURL(),
		Branch: ref.Branch,
		Dir:    target,
		Depth:  1,
		Stderr: io.Discard,
	}); err != nil {
		return model.Artifact{}, inputErrorf("github", "clone %s: %v", ref.Slug(), err)
	}

	files, err := f.collect(target, ref)
	if err != nil {
		return model.Artifact{}, err
	}
	if len(files) == 0 {
		return model.Artifact{}, inputErrorf("github", "no content fetched from %s", url)
	}
	log.Debug().Str("repo", ref.Slug()).Int("files", len(files)).Msg("repository cloned")

	commit := ref.Branch
	if commit == "" {
		commit = "HEAD"
	}
	return newArtifact("github", model.KindRepository, model.Content{Files: files}, model.Metadata{
		Source:    "github",
		Repo:      ref.Slug(),
		Commit:    commit,
		FileCount: len(files),
		Extra:     map[string]string{"fetch": "clone"},
	})
}

// collect walks the checkout in lexical order and reads supported files up to the caps.
func (f *CloneFetcher) collect(root string, ref GitHubRef) ([]model.File, error) {
	maxFiles := f.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	maxBytes := f.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	var files []model.File
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch ref.Kind {
		case RefFile:
			if rel != ref.Path {
				return nil
			}
		case RefTree:
			if !underDir(rel, ref.Path) {
				return nil
			}
		}
		if !supported(rel) {
			return nil
		}

		data, err := readCapped(p, maxBytes)
		if err != nil {
			return err
		}
		files = append(files, model.File{Path: rel, Language: languageOf(rel), Content: capContent(data, maxBytes)})
		if len(files) == maxFiles {
			return fs.SkipAll
		}
		return nil
	})
	return files, err
}

func readCapped(p string, limit int) ([]byte, error) {
	fh, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return io.ReadAll(io.LimitReader(fh, int64(limit)+1))
}
