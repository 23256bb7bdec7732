package ingest

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

type (
	// FilesystemLoader walks Root recursively, loading files whose
	// extension is in Extensions (when non-empty) and whose path matches
	// Include (when non-empty) but none of Exclude.
	FilesystemLoader struct {
		FS         fs.FS
		Root       string
		Extensions []string
		Include    []string
		Exclude    []string
	}

	// URLLoader fetches one or more URLs over HTTP, carrying Headers on
	// every request and bounding each fetch by Timeout.
	URLLoader struct {
		Client  *http.Client
		URLs    []string
		Headers map[string]string
		Timeout time.Duration
	}

	// CompositeLoader unions the output of several loaders, preserving
	// each source's own metadata untouched.
	CompositeLoader struct {
		Loaders []DocumentLoader
	}
)

// Load implements DocumentLoader.
func (l FilesystemLoader) Load(_ context.Context) ([]LoadedDocument, error) {
	var docs []LoadedDocument
	walkErr := fs.WalkDir(l.FS, l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(l.Extensions) > 0 && !hasAnyExt(path, l.Extensions) {
			return nil
		}
		if len(l.Include) > 0 && !matchesAny(path, l.Include) {
			return nil
		}
		if matchesAny(path, l.Exclude) {
			return nil
		}
		data, readErr := fs.ReadFile(l.FS, path)
		if readErr != nil {
			return readErr
		}
		docs = append(docs, LoadedDocument{
			ID:    path,
			Bytes: data,
			Metadata: map[string]any{
				"source": path,
				"loader": "filesystem",
			},
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("ingest: filesystem load %q: %w", l.Root, walkErr)
	}
	return docs, nil
}

func hasAnyExt(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func matchesAny(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Load implements DocumentLoader.
func (l URLLoader) Load(ctx context.Context) ([]LoadedDocument, error) {
	client := l.Client
	if client == nil {
		timeout := l.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	docs := make([]LoadedDocument, 0, len(l.URLs))
	for _, u := range l.URLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("ingest: build request for %q: %w", u, err)
		}
		for k, v := range l.Headers {
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ingest: fetch %q: %w", u, err)
		}
		body, err := readAllAndClose(resp)
		if err != nil {
			return nil, fmt.Errorf("ingest: read %q: %w", u, err)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("ingest: fetch %q: status %d", u, resp.StatusCode)
		}
		docs = append(docs, LoadedDocument{
			ID:    u,
			Bytes: body,
			Metadata: map[string]any{
				"source":      u,
				"loader":      "url",
				"contentType": resp.Header.Get("Content-Type"),
			},
		})
	}
	return docs, nil
}

func readAllAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Load implements DocumentLoader, unioning every configured loader's
// output while leaving per-source metadata untouched.
func (l CompositeLoader) Load(ctx context.Context) ([]LoadedDocument, error) {
	var all []LoadedDocument
	for _, loader := range l.Loaders {
		docs, err := loader.Load(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, docs...)
	}
	return all, nil
}
