package ics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }

func okResponse(body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func statusResponse(code int) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Header:     make(http.Header),
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func newTestLoader(t *testing.T, doer HTTPDoer) *Loader {
	t.Helper()
	l := NewLoader(t.TempDir(), time.Second)
	if doer != nil {
		l.client = doer
	}
	return l
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cal.ics")
	if err := os.WriteFile(path, []byte("BEGIN:VCALENDAR\nEND:VCALENDAR\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := newTestLoader(t, nil)
	res, err := l.Load(context.Background(), Source{ID: "f", Location: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.FromCache || !strings.Contains(res.Body, "VCALENDAR") {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLoadFileMissing(t *testing.T) {
	l := newTestLoader(t, nil)
	_, err := l.Load(context.Background(), Source{ID: "f", Location: filepath.Join(t.TempDir(), "nope.ics")})
	if !errors.Is(err, ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
}

func TestLoadStdin(t *testing.T) {
	l := newTestLoader(t, nil)
	l.Stdin = strings.NewReader("BEGIN:VEVENT\nEND:VEVENT\n")

	res, err := l.Load(context.Background(), Source{ID: "stdin", Location: "-"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(res.Body, "VEVENT") {
		t.Fatalf("unexpected body: %q", res.Body)
	}
}

func TestLoadEmptyLocation(t *testing.T) {
	l := newTestLoader(t, nil)
	_, err := l.Load(context.Background(), Source{ID: "x"})
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("err = %v, want ErrSourceUnreadable", err)
	}
}

func TestLoadURLFreshAndConditional(t *testing.T) {
	src := Source{ID: "remote", Location: "https://example.test/cal.ics"}

	var calls int
	l := newTestLoader(t, doerFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		switch calls {
		case 1:
			if req.Header.Get("If-None-Match") != "" {
				t.Fatalf("first request must not be conditional")
			}
			h := make(http.Header)
			h.Set("ETag", `"v1"`)
			return okResponse("BODY-1", h), nil
		default:
			if got := req.Header.Get("If-None-Match"); got != `"v1"` {
				t.Fatalf("If-None-Match = %q, want %q", got, `"v1"`)
			}
			return statusResponse(http.StatusNotModified), nil
		}
	}))

	res, err := l.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if res.Body != "BODY-1" || res.FromCache {
		t.Fatalf("unexpected first result: %+v", res)
	}

	res, err = l.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if res.Body != "BODY-1" || !res.FromCache {
		t.Fatalf("unexpected second result: %+v", res)
	}
}

func TestLoadURLNetworkErrorFallsBackToCache(t *testing.T) {
	src := Source{ID: "remote", Location: "https://example.test/cal.ics"}

	var fail bool
	l := newTestLoader(t, doerFunc(func(*http.Request) (*http.Response, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return okResponse("BODY-1", nil), nil
	}))

	if _, err := l.Load(context.Background(), src); err != nil {
		t.Fatalf("seed Load: %v", err)
	}

	fail = true
	res, err := l.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("Load with network error: %v", err)
	}
	if res.Body != "BODY-1" || !res.FromCache {
		t.Fatalf("unexpected fallback result: %+v", res)
	}
}

func TestLoadURLNetworkErrorNoCache(t *testing.T) {
	l := newTestLoader(t, doerFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	_, err := l.Load(context.Background(), Source{ID: "remote", Location: "https://example.test/cal.ics"})
	if !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("err = %v, want ErrSourceUnreadable", err)
	}
}

func TestLoadURLGoneIsNotFound(t *testing.T) {
	src := Source{ID: "remote", Location: "https://example.test/cal.ics"}

	var status int
	l := newTestLoader(t, doerFunc(func(*http.Request) (*http.Response, error) {
		if status != 0 {
			return statusResponse(status), nil
		}
		return okResponse("BODY-1", nil), nil
	}))

	// Even with a warm cache, 404/410 must surface as not-found rather
	// than serving stale data for a source that no longer exists.
	if _, err := l.Load(context.Background(), src); err != nil {
		t.Fatalf("seed Load: %v", err)
	}
	for _, status = range []int{http.StatusNotFound, http.StatusGone} {
		_, err := l.Load(context.Background(), src)
		if !errors.Is(err, ErrSourceNotFound) {
			t.Fatalf("status %d: err = %v, want ErrSourceNotFound", status, err)
		}
	}
}

func TestLoadURLServerErrorFallsBack(t *testing.T) {
	src := Source{ID: "remote", Location: "https://example.test/cal.ics"}

	var fail bool
	l := newTestLoader(t, doerFunc(func(*http.Request) (*http.Response, error) {
		if fail {
			return statusResponse(http.StatusInternalServerError), nil
		}
		return okResponse("BODY-1", nil), nil
	}))

	if _, err := l.Load(context.Background(), src); err != nil {
		t.Fatalf("seed Load: %v", err)
	}

	fail = true
	res, err := l.Load(context.Background(), src)
	if err != nil {
		t.Fatalf("Load with 500: %v", err)
	}
	if !res.FromCache {
		t.Fatalf("expected cache fallback, got %+v", res)
	}

	// Cold cache: same status becomes unreadable.
	cold := newTestLoader(t, doerFunc(func(*http.Request) (*http.Response, error) {
		return statusResponse(http.StatusInternalServerError), nil
	}))
	if _, err := cold.Load(context.Background(), src); !errors.Is(err, ErrSourceUnreadable) {
		t.Fatalf("err = %v, want ErrSourceUnreadable", err)
	}
}

func TestLoadAllCollectsErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.ics")
	if err := os.WriteFile(good, []byte("BEGIN:VEVENT\nEND:VEVENT\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := newTestLoader(t, nil)
	results, errs := l.LoadAll(context.Background(), []Source{
		{ID: "good", Location: good},
		{ID: "bad", Location: filepath.Join(dir, "missing.ics")},
	})
	if len(results) != 1 || results[0].Source.ID != "good" {
		t.Fatalf("unexpected results: %+v", results)
	}
	if len(errs) != 1 || !errors.Is(errs[0], ErrSourceNotFound) {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestRedactLocation(t *testing.T) {
	if got := redactLocation("https://example.test/secret.ics?token=1"); got != "https://example.test/...(redacted)" {
		t.Fatalf("redactLocation = %q", got)
	}
	if got := redactLocation("/etc/weekcal/cal.ics"); got != "/etc/weekcal/cal.ics" {
		t.Fatalf("file path changed: %q", got)
	}
}
