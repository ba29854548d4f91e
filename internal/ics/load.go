package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "weekcal/internal/log"
)

// Loader failure categories. A source that does not exist (missing
// file, HTTP 404/410) is distinct from one that exists but could not be
// read; callers rely on the two never being conflated.
var (
	ErrSourceNotFound   = errors.New("ics: source not found")
	ErrSourceUnreadable = errors.New("ics: source unreadable")
)

// Source identifies a single ICS subscription.
type Source struct {
	// ID is an internal identifier (e.g., config source ID).
	ID string
	// Location is a filesystem path, "-" for stdin, or an http(s) URL.
	Location string
}

// LoadResult contains the outcome of loading a single ICS source.
type LoadResult struct {
	Source    Source
	Body      string // ICS payload (freshly read or from cache)
	FromCache bool   // true if the disk-cached body was reused
}

// cacheEntry holds HTTP cache metadata for a single ICS source.
type cacheEntry struct {
	Location     string    `json:"location"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HTTPDoer is the client seam behind URL loads. *http.Client satisfies
// it; tests substitute fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Loader reads ICS documents from files, stdin, or HTTP(S) endpoints.
// URL sources are fetched with conditional GET (ETag / Last-Modified)
// against a disk-backed cache and fall back to the cached body when the
// network fails.
type Loader struct {
	client   HTTPDoer
	cacheDir string

	// Stdin backs the "-" location; defaults to os.Stdin.
	Stdin io.Reader
}

// NewLoader creates a Loader.
//
// cacheDir is the base directory for per-source cache subdirectories
// and metadata. Example: "/var/lib/weekcal/ics-cache". timeout bounds
// each HTTP fetch; zero picks a default.
func NewLoader(cacheDir string, timeout time.Duration) *Loader {
	if cacheDir == "" {
		// Caller should set this explicitly; fall back to a relative dir
		// so that development runs without root permissions.
		cacheDir = "./var/ics-cache"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Loader{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
		Stdin:    os.Stdin,
	}
}

// LoadAll loads all given sources and returns the individual results.
// Errors for individual sources are logged and collected; the returned
// results contain only sources that produced a body (network, file, or
// cache).
func (l *Loader) LoadAll(ctx context.Context, sources []Source) ([]LoadResult, []error) {
	results := make([]LoadResult, 0, len(sources))
	errs := make([]error, 0)

	for _, src := range sources {
		res, err := l.Load(ctx, src)
		if err != nil {
			errs = append(errs, err)
			appLog.Error("ics load failed", err, "id", src.ID, "location", redactLocation(src.Location))
			continue
		}
		results = append(results, res)
	}

	return results, errs
}

// Load reads one source. A missing source (file does not exist, HTTP
// 404/410) returns ErrSourceNotFound; any other failure returns
// ErrSourceUnreadable. Both wrap detail text.
func (l *Loader) Load(ctx context.Context, src Source) (LoadResult, error) {
	switch {
	case src.Location == "":
		return LoadResult{}, fmt.Errorf("%w: %s: empty location", ErrSourceUnreadable, src.ID)
	case src.Location == "-":
		return l.loadStdin(src)
	case strings.HasPrefix(src.Location, "http://"), strings.HasPrefix(src.Location, "https://"):
		return l.loadURL(ctx, src)
	default:
		return l.loadFile(src)
	}
}

func (l *Loader) loadFile(src Source) (LoadResult, error) {
	data, err := os.ReadFile(src.Location)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceNotFound, src.Location, err)
		}
		return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.Location, err)
	}
	return LoadResult{Source: src, Body: string(data)}, nil
}

func (l *Loader) loadStdin(src Source) (LoadResult, error) {
	r := l.Stdin
	if r == nil {
		r = os.Stdin
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: stdin: %v", ErrSourceUnreadable, err)
	}
	return LoadResult{Source: src, Body: string(data)}, nil
}

// loadURL fetches one http(s) source, honoring ETag and Last-Modified
// from the disk cache under l.cacheDir.
func (l *Loader) loadURL(ctx context.Context, src Source) (LoadResult, error) {
	cachePath, err := l.cachePath(src)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.ID, err)
	}
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.ID, err)
	}

	meta, _ := l.loadCacheMeta(cachePath)
	cachedBody, _ := l.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Location, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.ID, err)
	}

	// Conditional headers from cache metadata.
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Debug("ics load start", "id", src.ID, "location", redactLocation(src.Location))

	resp, err := l.client.Do(req)
	if err != nil {
		// Network error; if we have a cached body, fall back to it.
		if len(cachedBody) > 0 {
			appLog.Warn("ics load network error, using cached body",
				"err", err, "id", src.ID, "location", redactLocation(src.Location))
			return LoadResult{Source: src, Body: string(cachedBody), FromCache: true}, nil
		}
		return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.ID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Fresh content.
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return LoadResult{}, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, src.ID, readErr)
		}

		newMeta := cacheEntry{
			Location:     src.Location,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := l.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("ics cache save failed", err, "id", src.ID)
		}

		appLog.Info("ics load success", "id", src.ID, "location", redactLocation(src.Location), "from_cache", false)
		return LoadResult{Source: src, Body: string(body)}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			// 304 but no cached body: treat as unreadable.
			return LoadResult{}, fmt.Errorf("%w: %s: 304 Not Modified with no cached body", ErrSourceUnreadable, src.ID)
		}
		appLog.Info("ics load not modified; using cache", "id", src.ID, "location", redactLocation(src.Location))
		return LoadResult{Source: src, Body: string(cachedBody), FromCache: true}, nil

	case http.StatusNotFound, http.StatusGone:
		// The source is authoritatively absent; a cached body does not
		// mask that.
		return LoadResult{}, fmt.Errorf("%w: %s: %s", ErrSourceNotFound, src.ID, resp.Status)

	default:
		// Other non-OK status: if we have cached data, fall back to it.
		if len(cachedBody) > 0 {
			appLog.Warn("ics load non-OK, using cached body",
				"id", src.ID, "location", redactLocation(src.Location), "status", resp.StatusCode)
			return LoadResult{Source: src, Body: string(cachedBody), FromCache: true}, nil
		}
		return LoadResult{}, fmt.Errorf("%w: %s: %s", ErrSourceUnreadable, src.ID, resp.Status)
	}
}

func (l *Loader) cachePath(src Source) (string, error) {
	key := src.ID
	if key == "" {
		key = src.Location
	}
	if key == "" {
		return "", errors.New("empty cache key")
	}
	sum := sha256.Sum256([]byte(key))
	// Use first 16 hex chars as directory name.
	dir := hex.EncodeToString(sum[:8])
	return filepath.Join(l.cacheDir, dir), nil
}

func (l *Loader) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	metaFile := filepath.Join(cachePath, "meta.json")

	data, err := os.ReadFile(metaFile)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (l *Loader) loadCacheBody(cachePath string) ([]byte, error) {
	bodyFile := filepath.Join(cachePath, "body.ics")
	return os.ReadFile(bodyFile)
}

func (l *Loader) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	metaFile := filepath.Join(cachePath, "meta.json")
	bodyFile := filepath.Join(cachePath, "body.ics")

	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(bodyFile, body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(metaFile, data, 0o600); err != nil {
		return err
	}

	return nil
}

// redactLocation hides the path and query of URL locations for logging;
// plain file paths pass through unchanged.
func redactLocation(loc string) string {
	i := strings.Index(loc, "://")
	if i < 0 {
		return loc
	}

	// Keep scheme and host, drop the rest.
	j := i + 3
	for j < len(loc) && loc[j] != '/' {
		j++
	}
	return loc[:j] + "/...(redacted)"
}
