package gitresolve

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// Per-step timeouts. Resolution is advisory, so every external step is
// individually bounded and any failure falls back to the original object ID.
const (
	cloneTimeout   = 30 * time.Second
	fetchTimeout   = 30 * time.Second
	revListTimeout = 10 * time.Second
	apiTimeout     = 10 * time.Second
)

// maxTagChainDepth bounds annotated-tag chains when dereferencing via the
// GitHub API.
const maxTagChainDepth = 5

// Resolution sources.
const (
	SourceGitHubAPI = "github-api"
	SourceGitClone  = "git-clone"
	SourceFallback  = "fallback"
)

// Resolution is the outcome of dereferencing a tag. Resolved distinguishes a
// true commit SHA from the original object ID fallback so callers can render
// links correctly.
type Resolution struct {
	CommitSHA string `json:"commit_sha"`
	Resolved  bool   `json:"resolved"`
	Source    string `json:"source"`
}

// TagDereferencer resolves a tag ref to its commit SHA via a hosting API.
// nil disables the fast path.
type TagDereferencer interface {
	DereferenceTag(ctx context.Context, owner, repo, tag string) (string, error)
}

// Resolver dereferences annotated tags to commit SHAs, preferring the GitHub
// API and falling back to a local blobless clone.
type Resolver struct {
	git    GitRunner
	api    TagDereferencer
	logger *slog.Logger
}

// NewResolver creates a tag resolver. api may be nil to disable the API fast
// path; logger may be nil.
func NewResolver(git GitRunner, api TagDereferencer, logger *slog.Logger) *Resolver {
	return &Resolver{git: git, api: api, logger: logger}
}

// ResolveTag dereferences tagName in repoURL to its commit SHA. It never
// returns an error: on any failure the original objectID is returned with
// Resolved set to false.
func (r *Resolver) ResolveTag(ctx context.Context, repoURL, tagName, objectID string) Resolution {
	if sha := r.resolveViaAPI(ctx, repoURL, tagName); sha != "" {
		return Resolution{CommitSHA: sha, Resolved: true, Source: SourceGitHubAPI}
	}

	if sha := r.resolveViaClone(ctx, repoURL, tagName); sha != "" {
		return Resolution{CommitSHA: sha, Resolved: true, Source: SourceGitClone}
	}

	if r.logger != nil {
		r.logger.Warn("failed to resolve tag to commit, using original object id",
			"repo", repoURL, "tag", tagName)
	}
	return Resolution{CommitSHA: objectID, Resolved: false, Source: SourceFallback}
}

// resolveViaAPI dereferences the tag through the hosting API when the
// repository lives on github.com. Returns "" on any failure.
func (r *Resolver) resolveViaAPI(ctx context.Context, repoURL, tagName string) string {
	if r.api == nil {
		return ""
	}
	owner, repo, err := parseGitHubRepo(repoURL)
	if err != nil {
		return ""
	}

	apiCtx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()

	sha, err := r.api.DereferenceTag(apiCtx, owner, repo, tagName)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("api tag dereference failed, falling back to clone",
				"repo", repoURL, "tag", tagName, "error", err)
		}
		return ""
	}
	return sha
}

// resolveViaClone performs a blobless, checkout-less clone into an ephemeral
// workspace, fetches the single tag ref, and lists the commit it points to.
// Returns "" on any failure.
func (r *Resolver) resolveViaClone(ctx context.Context, repoURL, tagName string) string {
	ws, err := NewWorkspace()
	if err != nil {
		return ""
	}
	defer func() {
		// Cleanup failure must not surface; the OS reaps temp dirs eventually.
		_ = ws.Remove()
	}()

	cloneCtx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()
	if _, err := r.git.Run(cloneCtx, "", "clone", "--filter=blob:none", "--no-checkout", repoURL, ws.Root()); err != nil {
		return ""
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	refspec := fmt.Sprintf("refs/tags/%s:refs/tags/%s", tagName, tagName)
	if _, err := r.git.Run(fetchCtx, ws.Root(), "fetch", "origin", refspec); err != nil {
		return ""
	}

	listCtx, cancel := context.WithTimeout(ctx, revListTimeout)
	defer cancel()
	out, err := r.git.Run(listCtx, ws.Root(), "rev-list", "-n", "1", "refs/tags/"+tagName)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(out))
}

// parseGitHubRepo extracts owner and repo from a github.com URL.
func parseGitHubRepo(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid repo URL %q: %w", repoURL, err)
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return "", "", fmt.Errorf("not a github.com repository: %s", repoURL)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repo URL %q missing owner/repo path", repoURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// GitHubDereferencer implements TagDereferencer with the GitHub git-data API,
// following annotated tag objects down to the commit they point to.
type GitHubDereferencer struct {
	client *github.Client
}

// NewGitHubDereferencer creates an unauthenticated GitHub API dereferencer.
// Public repositories need no token for ref lookups.
func NewGitHubDereferencer() *GitHubDereferencer {
	return &GitHubDereferencer{client: github.NewClient(nil)}
}

// DereferenceTag resolves refs/tags/{tag} and follows tag objects until a
// commit SHA is reached.
func (g *GitHubDereferencer) DereferenceTag(ctx context.Context, owner, repo, tag string) (string, error) {
	ref, _, err := g.client.Git.GetRef(ctx, owner, repo, "tags/"+tag)
	if err != nil {
		return "", fmt.Errorf("failed to get ref for tag %s: %w", tag, err)
	}

	objType := ref.GetObject().GetType()
	sha := ref.GetObject().GetSHA()

	for depth := 0; objType == "tag" && depth < maxTagChainDepth; depth++ {
		tagObj, _, err := g.client.Git.GetTag(ctx, owner, repo, sha)
		if err != nil {
			return "", fmt.Errorf("failed to dereference tag object %s: %w", sha, err)
		}
		objType = tagObj.GetObject().GetType()
		sha = tagObj.GetObject().GetSHA()
	}

	if objType != "commit" {
		return "", fmt.Errorf("tag %s does not resolve to a commit (got %s)", tag, objType)
	}
	return sha, nil
}
