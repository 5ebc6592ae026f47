package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v74/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/aethra/keybot/engine/infra/registry"
	"github.com/aethra/keybot/pkg/logger"
	"github.com/aethra/keybot/pkg/strmap"
)

type Config struct {
	Token         string
	Owner         string
	Repo          string
	Path          string
	Branch        string
	BaseURL       string
	WriteInterval time.Duration
	Timeout       time.Duration
}

// Document is a registry.Document stored as a JSON file in a GitHub
// repository through the contents API. The revision is the blob SHA.
type Document struct {
	client *gogithub.Client
	owner  string
	repo   string
	path   string
	branch string
	writes *rate.Limiter
}

var _ registry.Document = (*Document)(nil)

func NewDocument(cfg *Config) (*Document, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("github token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" || cfg.Path == "" {
		return nil, errors.New("github owner, repo and path are required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	client := gogithub.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid github api url: %w", err)
		}
		client.BaseURL = base
	}
	return newDocument(client, cfg), nil
}

func newDocument(client *gogithub.Client, cfg *Config) *Document {
	limit := rate.Inf
	if cfg.WriteInterval > 0 {
		limit = rate.Every(cfg.WriteInterval)
	}
	return &Document{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		path:   cfg.Path,
		branch: cfg.Branch,
		writes: rate.NewLimiter(limit, 1),
	}
}

func (d *Document) Name() string {
	return fmt.Sprintf("github:%s/%s/%s", d.owner, d.repo, d.path)
}

func (d *Document) Read(ctx context.Context) (*strmap.Map, string, error) {
	var opts *gogithub.RepositoryContentGetOptions
	if d.branch != "" {
		opts = &gogithub.RepositoryContentGetOptions{Ref: d.branch}
	}
	file, _, resp, err := d.client.Repositories.GetContents(ctx, d.owner, d.repo, d.path, opts)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return strmap.New(), "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("get contents: %w", err)
	}
	if file == nil {
		return nil, "", fmt.Errorf("%s is a directory", d.path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("decode contents: %w", err)
	}
	sha := file.GetSHA()
	if strings.TrimSpace(content) == "" {
		return strmap.New(), sha, nil
	}
	records, err := strmap.Decode([]byte(content))
	if err != nil {
		logger.FromContext(ctx).Warn("Ignoring corrupt registry document", "document", d.Name(), "error", err)
		return strmap.New(), sha, nil
	}
	return records, sha, nil
}

// Write commits records with message. An empty revision creates the file.
func (d *Document) Write(ctx context.Context, records *strmap.Map, revision, message string) error {
	if err := d.writes.Wait(ctx); err != nil {
		return err
	}
	data, err := strmap.Encode(records)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	opts := &gogithub.RepositoryContentFileOptions{
		Message: gogithub.Ptr(message),
		Content: data,
	}
	if d.branch != "" {
		opts.Branch = gogithub.Ptr(d.branch)
	}
	if revision == "" {
		_, _, err = d.client.Repositories.CreateFile(ctx, d.owner, d.repo, d.path, opts)
	} else {
		opts.SHA = gogithub.Ptr(revision)
		_, _, err = d.client.Repositories.UpdateFile(ctx, d.owner, d.repo, d.path, opts)
	}
	if isConflict(err) {
		return fmt.Errorf("%w: %v", registry.ErrConflict, err)
	}
	if err != nil {
		return fmt.Errorf("commit %q: %w", message, err)
	}
	logger.FromContext(ctx).Debug("Registry commit created", "document", d.Name(), "message", message)
	return nil
}

// isConflict reports a stale blob SHA. GitHub answers 409 for a mismatched
// sha and 422 when creating a file that already exists.
func isConflict(err error) bool {
	var ghErr *gogithub.ErrorResponse
	if !errors.As(err, &ghErr) || ghErr.Response == nil {
		return false
	}
	switch ghErr.Response.StatusCode {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return true
	}
	return false
}
