package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Embedded(t *testing.T) {
	handler := Handler("")

	tests := []struct {
		path string
		want string
	}{
		{"/", "<!DOCTYPE html>"},
		{"/app.js", "state.changed"},
		{"/style.css", ".device"},
		{"/rooms/kitchen", "<!DOCTYPE html>"},
		{"/missing.js", "<!DOCTYPE html>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, handler, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: status %d, want 200", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("GET %s: body does not contain %q", tt.path, tt.want)
			}
			if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-cache") {
				t.Errorf("Cache-Control = %q", got)
			}
		})
	}
}

func TestHandler_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<!DOCTYPE html><p>local panel</p>`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "extra.js"), []byte("console.log('extra')"), 0o644); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	if w := get(t, handler, "/"); !strings.Contains(w.Body.String(), "local panel") {
		t.Errorf("GET / = %q, want the directory's index.html", w.Body.String())
	}
	if w := get(t, handler, "/extra.js"); !strings.Contains(w.Body.String(), "extra") {
		t.Errorf("GET /extra.js = %q", w.Body.String())
	}
	if w := get(t, handler, "/deep/route"); !strings.Contains(w.Body.String(), "local panel") {
		t.Error("fallback did not serve the directory's index.html")
	}
}

func TestHandler_MissingDirectoryUsesEmbedded(t *testing.T) {
	w := get(t, Handler("/nonexistent/panel"), "/app.js")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "state.changed") {
		t.Errorf("GET /app.js: status %d", w.Code)
	}
}
