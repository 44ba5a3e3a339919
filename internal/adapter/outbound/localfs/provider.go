// Package localfs implements the concrete tool handlers backing the
// gateway's dispatch registry: filesystem reads and writes, directory
// listings, shell execution, and web fetches. Policy has already allowed
// the call by the time a handler runs; handlers only do the work.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/farm-gate/farmgate/internal/domain/scan"
	"github.com/farm-gate/farmgate/internal/domain/tool"
)

// maxFetchBody caps the bytes read from a fetched URL.
const maxFetchBody = 1 << 20

// defaultShellTimeout bounds one shell_run invocation.
const defaultShellTimeout = 30 * time.Second

// Provider executes tool calls against a local root directory. Workspace
// paths from grants ("/projects/dev") resolve under Root, so agents never
// see host paths.
type Provider struct {
	// Root is the host directory workspace paths resolve under.
	Root string
	// Detector flags injection content in reads and fetches; nil disables
	// scanning.
	Detector scan.Detector
	// Client performs web fetches. Nil selects a client with a sane timeout.
	Client *http.Client
	// ShellTimeout bounds shell execution; zero selects the default.
	ShellTimeout time.Duration
	Log          *slog.Logger
}

// NewProvider creates a Provider rooted at root.
func NewProvider(root string, detector scan.Detector, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		Root:     root,
		Detector: detector,
		Client:   &http.Client{Timeout: 30 * time.Second},
		Log:      log,
	}
}

// ReadResult is the payload of a successful fs_read.
type ReadResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Size    int64  `json:"size"`
	// Warning is the injection category detected in the content, if any.
	// Detection is advisory; the content is returned regardless.
	Warning string `json:"warning,omitempty"`
}

// InjectionWarning implements tool.Warner.
func (r ReadResult) InjectionWarning() string { return r.Warning }

// WriteResult is the payload of a successful fs_write.
type WriteResult struct {
	Path         string `json:"path"`
	BytesWritten int    `json:"bytes_written"`
}

// DirEntry is one row of an fs_list payload.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// ShellResult is the payload of a successful shell_run. A non-zero exit
// code is still a successful dispatch; the command ran.
type ShellResult struct {
	Command  string `json:"command"`
	ExitCode int    `json:"exit_code"`
	Output   string `json:"output"`
}

// FetchResult is the payload of a successful web_fetch.
type FetchResult struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
	Warning    string `json:"warning,omitempty"`
}

// InjectionWarning implements tool.Warner.
func (r FetchResult) InjectionWarning() string { return r.Warning }

// ReadFile reads the file at params["path"] and scans it for injection
// content.
func (p *Provider) ReadFile(ctx context.Context, req tool.Request) (any, error) {
	wsPath, err := tool.StringParam(req.Params, "path")
	if err != nil {
		return nil, err
	}
	full, err := p.resolve(wsPath)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", wsPath, err)
	}
	res := ReadResult{
		Path:    wsPath,
		Content: string(raw),
		Size:    int64(len(raw)),
	}
	if p.Detector != nil {
		if cat, found := p.Detector.Detect(res.Content); found {
			res.Warning = string(cat)
			p.Log.Warn("injection content detected",
				"path", wsPath,
				"category", cat,
				"actor_id", req.ActorID)
		}
	}
	return res, nil
}

// WriteFile writes params["content"] to params["path"], creating parent
// directories as needed.
func (p *Provider) WriteFile(ctx context.Context, req tool.Request) (any, error) {
	wsPath, err := tool.StringParam(req.Params, "path")
	if err != nil {
		return nil, err
	}
	content, err := tool.StringParam(req.Params, "content")
	if err != nil {
		return nil, err
	}
	full, err := p.resolve(wsPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir for %s: %w", wsPath, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", wsPath, err)
	}
	return WriteResult{Path: wsPath, BytesWritten: len(content)}, nil
}

// ListDir lists the directory at params["path"].
func (p *Provider) ListDir(ctx context.Context, req tool.Request) (any, error) {
	wsPath, err := tool.StringParam(req.Params, "path")
	if err != nil {
		return nil, err
	}
	full, err := p.resolve(wsPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", wsPath, err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	return out, nil
}

// RunShell executes params["cmd"] through the shell with a bounded timeout.
func (p *Provider) RunShell(ctx context.Context, req tool.Request) (any, error) {
	cmdline, err := tool.StringParam(req.Params, "cmd")
	if err != nil {
		return nil, err
	}
	timeout := p.ShellTimeout
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	cmd.Dir = p.Root
	out, err := cmd.CombinedOutput()
	res := ShellResult{Command: cmdline, Output: string(out)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("run %q: %w", cmdline, err)
	}
	return res, nil
}

// FetchURL fetches params["url"], capping the body and scanning it for
// injection content.
func (p *Provider) FetchURL(ctx context.Context, req tool.Request) (any, error) {
	rawURL, err := tool.StringParam(req.Params, "url")
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := p.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	res := FetchResult{URL: rawURL, StatusCode: resp.StatusCode, Body: string(body)}
	if p.Detector != nil {
		if cat, found := p.Detector.Detect(res.Body); found {
			res.Warning = string(cat)
			p.Log.Warn("injection content detected",
				"url", rawURL,
				"category", cat,
				"actor_id", req.ActorID)
		}
	}
	return res, nil
}

// resolve maps a workspace path to a host path under Root, rejecting
// escapes.
func (p *Provider) resolve(wsPath string) (string, error) {
	if !strings.HasPrefix(wsPath, "/") {
		return "", fmt.Errorf("path must be absolute: %s", wsPath)
	}
	clean := filepath.Clean(wsPath)
	if clean != wsPath && clean+"/" != wsPath {
		return "", fmt.Errorf("path not in canonical form: %s", wsPath)
	}
	return filepath.Join(p.Root, clean), nil
}
