package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRouteLabel(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"/health", "/health"},
		{"/api/schedule", "/api/schedule"},
		{"/api/events", "/api/events"},
		{"/api/export.ics", "/api/export.ics"},
		{"/api/refresh", "/api/refresh"},
		{"/metrics", "/metrics"},
		{"/", "other"},
		{"/wp-login.php", "other"},
		{"/api/schedule/extra", "other"},
	}
	for _, tc := range cases {
		if got := routeLabel(tc.path); got != tc.want {
			t.Fatalf("routeLabel(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestMiddlewareFoldsUnknownPaths(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	for _, path := range []string{"/wp-login.php", "/nope", "/api/schedule/extra"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	if !strings.Contains(body, `route="other"`) {
		t.Fatalf("no folded route label in metrics output:\n%s", body)
	}
	if strings.Contains(body, "wp-login") {
		t.Fatalf("raw unknown path leaked into metrics output:\n%s", body)
	}
	if !strings.Contains(body, `route="/health"`) {
		t.Fatalf("known route label missing from metrics output:\n%s", body)
	}
}
