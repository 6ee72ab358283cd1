package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/example/sentinel/internal/model"
)

const (
	DefaultMaxFiles     = 50
	DefaultMaxFileBytes = 500_000
	truncatedMarker     = "\n\n[TRUNCATED - file too large]"

	defaultAPIBase = "https://api.github.com"
	defaultRawBase = "https://raw.githubusercontent.com"
)

var supportedExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".ts": {}, ".jsx": {}, ".tsx": {}, ".go": {}, ".rs": {}, ".java": {}, ".kt": {},
	".rb": {}, ".php": {}, ".c": {}, ".cpp": {}, ".h": {}, ".cs": {}, ".json": {}, ".yaml": {}, ".yml": {},
	".md": {}, ".txt": {}, ".sh": {}, ".sql": {}, ".html": {}, ".css": {},
}

// Reference kinds of a GitHub URL.
const (
	RefRepo   = "repo"
	RefTree   = "tree"
	RefFile   = "file"
	RefCommit = "commit"
	RefPull   = "pull"
)

// GitHubRef is a parsed GitHub URL.
type GitHubRef struct {
	Org    string
	Repo   string
	Kind   string
	Branch string
	Path   string
	SHA    string
	PR     string
}

// Slug returns "org/repo".
func (r GitHubRef) Slug() string {
	return r.Org + "/" + r.Repo
}

// CloneURL returns the https clone address of the repository.
func (r GitHubRef) CloneURL() string {
	return "https://github.com/" + r.Slug() + ".git"
}

const ghPrefix = `(?i)^(?:https?://)?(?:www\.)?github\.com/([^/]+)/([^/]+?)`

var githubPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(ghPrefix + `/blob/([^/]+)/(.+)$`), RefFile},
	{regexp.MustCompile(ghPrefix + `/tree/([^/]+)/?(.*)$`), RefTree},
	{regexp.MustCompile(ghPrefix + `/commit/([a-fA-F0-9]+)`), RefCommit},
	{regexp.MustCompile(ghPrefix + `/pull/(\d+)`), RefPull},
	{regexp.MustCompile(ghPrefix + `(?:\.git)?$`), RefRepo},
}

// ParseGitHubURL recognises repository, tree, blob, commit and pull request URLs.
func ParseGitHubURL(raw string) (GitHubRef, error) {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	for _, p := range githubPatterns {
		m := p.re.FindStringSubmatch(url)
		if m == nil {
			continue
		}
		ref := GitHubRef{Org: m[1], Repo: strings.TrimSuffix(m[2], ".git"), Kind: p.kind}
		switch p.kind {
		case RefFile:
			ref.Branch, ref.Path = m[3], m[4]
		case RefTree:
			ref.Branch, ref.Path = m[3], m[4]
		case RefCommit:
			ref.SHA = m[3]
		case RefPull:
			ref.PR = m[3]
		}
		return ref, nil
	}
	return GitHubRef{}, inputErrorf("github", "invalid GitHub URL: %s", raw)
}

// RepositoryFetcher fetches a repository URL and normalizes it into a code_repository artifact.
type RepositoryFetcher interface {
	Fetch(ctx context.Context, url string) (model.Artifact, error)
}

// GitHubFetcher reads repository files through the GitHub REST API and raw content host.
type GitHubFetcher struct {
	Client       *http.Client
	APIBase      string
	RawBase      string
	Token        string
	MaxFiles     int
	MaxFileBytes int
	Concurrency  int
}

// NewGitHubFetcher builds a fetcher against the public GitHub endpoints.
func NewGitHubFetcher(client *http.Client) *GitHubFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GitHubFetcher{
		Client:       client,
		APIBase:      defaultAPIBase,
		RawBase:      defaultRawBase,
		MaxFiles:     DefaultMaxFiles,
		MaxFileBytes: DefaultMaxFileBytes,
		Concurrency:  8,
	}
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// Fetch implements RepositoryFetcher.
func (f *GitHubFetcher) Fetch(ctx context.Context, url string) (model.Artifact, error) {
	ref, err := ParseGitHubURL(url)
	if err != nil {
		return model.Artifact{}, err
	}

	var files []model.File
	branch := "main"

	switch ref.Kind {
	case RefFile:
		branch = ref.Branch
		if content, ok := f.fetchFile(ctx, ref, branch, ref.Path); ok {
			files = append(files, model.File{Path: ref.Path, Language: languageOf(ref.Path), Content: content})
		}
	default:
		switch {
		case ref.Branch != "":
			branch = ref.Branch
		case ref.SHA != "":
			branch = ref.SHA
		}
		prefix := ""
		if ref.Kind == RefTree {
			prefix = ref.Path
		}
		paths, used := f.fetchTree(ctx, ref, branch, prefix)
		branch = used
		files = f.fetchFiles(ctx, ref, branch, paths)
	}

	if len(files) == 0 {
		return model.Artifact{}, inputErrorf("github", "no content fetched from %s", url)
	}

	commit := branch
	if ref.SHA != "" {
		commit = ref.SHA
	}
	return newArtifact("github", model.KindRepository, model.Content{Files: files}, model.Metadata{
		Source:    "github",
		Repo:      ref.Slug(),
		Commit:    commit,
		FileCount: len(files),
	})
}

// fetchTree lists supported blobs of the branch below prefix, falling back to master.
// It returns the branch that answered.
func (f *GitHubFetcher) fetchTree(ctx context.Context, ref GitHubRef, branch, prefix string) ([]string, string) {
	candidates := []string{branch}
	if branch != "master" {
		candidates = append(candidates, "master")
	}

	for _, b := range candidates {
		endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", strings.TrimRight(f.APIBase, "/"), ref.Org, ref.Repo, b)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, branch
		}
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		if f.Token != "" {
			req.Header.Set("Authorization", "Bearer "+f.Token)
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			log.Error().Err(err).Str("repo", ref.Slug()).Msg("fetch tree failed")
			return nil, branch
		}
		var body struct {
			Tree []treeEntry `json:"tree"`
		}
		status := resp.StatusCode
		if status == http.StatusOK {
			err = json.NewDecoder(resp.Body).Decode(&body)
		}
		resp.Body.Close()
		if status != http.StatusOK {
			log.Debug().Int("status", status).Str("branch", b).Str("repo", ref.Slug()).Msg("tree not available")
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("repo", ref.Slug()).Msg("decode tree failed")
			return nil, b
		}

		var paths []string
		for _, t := range body.Tree {
			if t.Type != "blob" || !supported(t.Path) || !underDir(t.Path, prefix) {
				continue
			}
			paths = append(paths, t.Path)
			if len(paths) == f.maxFiles() {
				break
			}
		}
		return paths, b
	}
	return nil, branch
}

// fetchFiles downloads files concurrently, keeping tree order and skipping files that fail.
func (f *GitHubFetcher) fetchFiles(ctx context.Context, ref GitHubRef, branch string, paths []string) []model.File {
	slots := make([]*model.File, len(paths))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(max(1, f.Concurrency))
	for i, p := range paths {
		g.Go(func() error {
			content, ok := f.fetchFile(ctx, ref, branch, p)
			if !ok {
				return nil
			}
			file := model.File{Path: p, Language: languageOf(p), Content: content}
			mu.Lock()
			slots[i] = &file
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	files := make([]model.File, 0, len(paths))
	for _, s := range slots {
		if s != nil {
			files = append(files, *s)
		}
	}
	return files
}

func (f *GitHubFetcher) fetchFile(ctx context.Context, ref GitHubRef, branch, filePath string) (string, bool) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s/%s", strings.TrimRight(f.RawBase, "/"), ref.Org, ref.Repo, branch, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", false
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("path", filePath).Msg("fetch file failed")
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	limit := f.maxFileBytes()
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(limit)+1))
	if err != nil {
		return "", false
	}
	return capContent(data, limit), true
}

func (f *GitHubFetcher) maxFiles() int {
	if f.MaxFiles <= 0 {
		return DefaultMaxFiles
	}
	return f.MaxFiles
}

func (f *GitHubFetcher) maxFileBytes() int {
	if f.MaxFileBytes <= 0 {
		return DefaultMaxFileBytes
	}
	return f.MaxFileBytes
}

// capContent cuts data to limit bytes on a rune boundary and appends the truncation marker.
func capContent(data []byte, limit int) string {
	if len(data) <= limit {
		return string(data)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(data[cut]) {
		cut--
	}
	return string(data[:cut]) + truncatedMarker
}

func supported(p string) bool {
	_, ok := supportedExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

func languageOf(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return "plain"
	}
	return ext[1:]
}

func underDir(p, dir string) bool {
	dir = strings.Trim(dir, "/")
	return dir == "" || strings.HasPrefix(p, dir+"/")
}
