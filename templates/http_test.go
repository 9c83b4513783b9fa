package templates

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/templio/kit"
	"github.com/hazyhaar/templio/shield"
)

// testRouter mounts the routes behind a stand-in for the session
// middleware: X-Test-User becomes the context user.
func testRouter(svc *Service, rl *shield.RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if u := req.Header.Get("X-Test-User"); u != "" {
				req = req.WithContext(kit.WithUserID(req.Context(), u))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/templates", svc.Routes(rl))
	return r
}

func do(h http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_CreateGetDelete(t *testing.T) {
	svc, _ := testService(t, &fakeRenderer{err: errors.New("no browser")})
	h := testRouter(svc, nil)

	rec := do(h, "POST", "/api/templates", "alice", `{"title":"My Page","description":"","html_code":"<div>Hi</div>"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body)
	}
	var saved struct {
		ID         string `json:"id"`
		HTMLCode   string `json:"html_code"`
		IsFavorite bool   `json:"is_favorite"`
		Warning    string `json:"warning"`
	}
	json.NewDecoder(rec.Body).Decode(&saved)
	if saved.ID == "" || saved.HTMLCode != "<div>Hi</div>" || saved.Warning != ThumbnailWarning {
		t.Fatalf("saved = %+v", saved)
	}

	rec = do(h, "GET", "/api/templates/"+saved.ID, "alice", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"created_at"`) {
		t.Fatalf("get: %d %s", rec.Code, rec.Body)
	}

	rec = do(h, "GET", "/api/templates?sort=newest&page=1", "alice", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("list: %d %s", rec.Code, rec.Body)
	}

	rec = do(h, "POST", "/api/templates/"+saved.ID+"/favorite", "alice", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"is_favorite":true`) {
		t.Fatalf("favorite: %d %s", rec.Code, rec.Body)
	}

	rec = do(h, "PATCH", "/api/templates/"+saved.ID+"/title", "alice", `{"title":"Renamed"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"title":"Renamed"`) {
		t.Fatalf("rename: %d %s", rec.Code, rec.Body)
	}

	if rec = do(h, "DELETE", "/api/templates/"+saved.ID, "bob", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: %d", rec.Code)
	}
	if rec = do(h, "DELETE", "/api/templates/"+saved.ID, "alice", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", rec.Code)
	}
	if rec = do(h, "GET", "/api/templates/"+saved.ID, "alice", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", rec.Code)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	svc, _ := testService(t, nil)
	h := testRouter(svc, nil)

	rec := do(h, "GET", "/api/templates", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: %d", rec.Code)
	}

	rec = do(h, "POST", "/api/templates", "alice", `{"title":"","html_code":"<p>x</p>"}`)
	var ve ValidationError
	json.NewDecoder(rec.Body).Decode(&ve)
	if rec.Code != http.StatusBadRequest || ve.Field != "title" || ve.Message == "" {
		t.Fatalf("validation: %d %+v", rec.Code, ve)
	}

	if rec = do(h, "POST", "/api/templates", "alice", `{not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: %d", rec.Code)
	}
	if rec = do(h, "GET", "/api/templates/nope/markdown", "alice", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing markdown: %d", rec.Code)
	}
}

func TestHTTP_PreviewHeaders(t *testing.T) {
	svc, _ := testService(t, nil)
	h := testRouter(svc, nil)
	saved, _ := svc.Create(as("alice"), CreateInput{Title: "P", HTMLCode: "<p onmouseover=\"x()\">ok</p>"})

	rec := do(h, "GET", "/api/templates/"+saved.ID+"/preview", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Header().Get("Content-Security-Policy") != shield.PreviewCSP {
		t.Fatalf("csp = %q", rec.Header().Get("Content-Security-Policy"))
	}
	if strings.Contains(rec.Body.String(), "onmouseover") {
		t.Fatal("handler attribute served in preview")
	}

	rec = do(h, "POST", "/api/templates/preview", "alice", `{"title":"Draft","html_code":"<script>alert(1)</script><p>ok</p>"}`)
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "<script") || !strings.Contains(rec.Body.String(), "<p>ok</p>") {
		t.Fatalf("draft preview: %d %s", rec.Code, rec.Body)
	}

	rec = do(h, "GET", "/api/templates/"+saved.ID+"/markdown", "alice", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "# P") {
		t.Fatalf("markdown: %d %q", rec.Code, rec.Body)
	}
}

func TestHTTP_RateLimitedCreate(t *testing.T) {
	svc, _ := testService(t, nil)
	rl := shield.NewRateLimiter(map[string]shield.RateLimitConfig{
		RateLimitRule: {MaxRequests: 1, WindowSeconds: 60, Enabled: true},
	})
	h := testRouter(svc, rl)

	body := `{"title":"t","html_code":"<p>x</p>"}`
	if rec := do(h, "POST", "/api/templates", "alice", body); rec.Code != http.StatusCreated {
		t.Fatalf("first: %d", rec.Code)
	}
	if rec := do(h, "POST", "/api/templates", "alice", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second: %d", rec.Code)
	}
	// WHY: reads are not limited.
	if rec := do(h, "GET", "/api/templates", "alice", ""); rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
}

func TestHTTP_Activity(t *testing.T) {
	svc, _ := testService(t, nil)
	h := testRouter(svc, nil)
	svc.Create(as("alice"), CreateInput{Title: "t", HTMLCode: "<p>x</p>"})

	rec := do(h, "GET", "/api/templates/activity?limit=5", "alice", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "template.created") {
		t.Fatalf("activity: %d %s", rec.Code, rec.Body)
	}
}
