package inline

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func allowAll(string) error { return nil }

// imageServer serves pngBytes on /ok.png, HTML on /page.html, 404 elsewhere,
// and counts requests.
func imageServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(pngBytes)
		case "/page.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<p>nope</p>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestInline_MixedResults(t *testing.T) {
	srv, hits := imageServer(t)
	in := New(Config{ProxyURL: "off", URLValidator: allowAll})

	doc := `<div>` +
		`<img src="` + srv.URL + `/ok.png" alt="a">` +
		`<img src="` + srv.URL + `/ok.png" alt="same">` +
		`<img src="` + srv.URL + `/missing.png">` +
		`<img src="` + srv.URL + `/page.html">` +
		`<img src="data:image/gif;base64,R0lGOD">` +
		`<img src="/local/relative.png">` +
		`</div>`

	out, rep := in.Inline(context.Background(), doc)

	want := Report{Total: 6, Inlined: 2, Failed: 2, Skipped: 2}
	if rep != want {
		t.Fatalf("report = %+v, want %+v", rep, want)
	}
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	if strings.Count(out, dataURI) != 2 {
		t.Fatalf("expected 2 inlined images in %s", out)
	}
	// WHAT: failures keep their original src.
	if !strings.Contains(out, srv.URL+"/missing.png") || !strings.Contains(out, srv.URL+"/page.html") {
		t.Fatalf("failed images lost their src: %s", out)
	}
	if !strings.Contains(out, `src="/local/relative.png"`) {
		t.Fatalf("relative src rewritten: %s", out)
	}
	// WHY: duplicate srcs are fetched once.
	if got := hits.Load(); got != 3 {
		t.Fatalf("server hits = %d, want 3", got)
	}
	if strings.Contains(out, "<html") {
		t.Fatalf("fragment rendered as a document: %s", out)
	}
}

func TestInline_FullDocumentKeepsShape(t *testing.T) {
	srv, _ := imageServer(t)
	in := New(Config{ProxyURL: "off", URLValidator: allowAll})

	doc := `<!DOCTYPE html><html><head><title>T</title></head><body><img src="` + srv.URL + `/ok.png"></body></html>`
	out, rep := in.Inline(context.Background(), doc)
	if rep.Inlined != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !strings.HasPrefix(out, "<!DOCTYPE html>") || !strings.Contains(out, "<title>T</title>") {
		t.Fatalf("document structure lost: %s", out)
	}
}

func TestInline_SameOriginSkipped(t *testing.T) {
	srv, hits := imageServer(t)
	in := New(Config{Origin: srv.URL, ProxyURL: "off", URLValidator: allowAll})

	_, rep := in.Inline(context.Background(), `<img src="`+srv.URL+`/ok.png">`)
	if rep.Skipped != 1 || hits.Load() != 0 {
		t.Fatalf("same-origin image fetched: %+v hits=%d", rep, hits.Load())
	}
}

func TestInline_RelayFallback(t *testing.T) {
	direct := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer direct.Close()

	var relayed atomic.Value
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		relayed.Store(r.URL.Query().Get("url"))
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte{0xff, 0xd8, 0xff})
	}))
	defer relay.Close()

	in := New(Config{ProxyURL: relay.URL + "/raw?url=%s", URLValidator: allowAll})
	src := direct.URL + "/photo.jpg?w=10&h=5"
	out, rep := in.Inline(context.Background(), `<p><img src="`+src+`"></p>`)

	if rep.Inlined != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if !strings.Contains(out, "data:image/jpeg;base64,") {
		t.Fatalf("relay result not used: %s", out)
	}
	if got, _ := relayed.Load().(string); got != src {
		t.Fatalf("relay received %q, want %q", got, src)
	}
}

func TestInline_SSRFGuardBlocksDirect(t *testing.T) {
	srv, hits := imageServer(t)
	// Default validator: httptest listens on 127.0.0.1.
	in := New(Config{ProxyURL: "off"})

	out, rep := in.Inline(context.Background(), `<img src="`+srv.URL+`/ok.png">`)
	if rep.Failed != 1 || hits.Load() != 0 {
		t.Fatalf("loopback image fetched: %+v hits=%d", rep, hits.Load())
	}
	if !strings.Contains(out, srv.URL+"/ok.png") {
		t.Fatalf("src changed: %s", out)
	}
}

func TestInline_BoundedCompletion(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	in := New(Config{ProxyURL: "off", DirectTimeout: 100 * time.Millisecond, URLValidator: allowAll})
	doc := `<img src="` + slow.URL + `/a.png"><img src="` + slow.URL + `/b.png"><img src="` + slow.URL + `/c.png">`

	start := time.Now()
	_, rep := in.Inline(context.Background(), doc)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Inline took %v; fetches should run concurrently under the timeout", elapsed)
	}
	if rep.Failed != 3 {
		t.Fatalf("report = %+v", rep)
	}
}

func TestInline_NoImages(t *testing.T) {
	in := New(Config{ProxyURL: "off"})
	doc := `<div class="x">Hello</div>`
	out, rep := in.Inline(context.Background(), doc)
	if out != doc || rep.Total != 0 {
		t.Fatalf("got %q %+v", out, rep)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := newBreaker(2, time.Minute)
	b.now = func() time.Time { return now }

	b.record(errTest)
	if !b.allow() {
		t.Fatal("one failure should not open")
	}
	b.record(errTest)
	if b.allow() {
		t.Fatal("threshold reached, breaker should be open")
	}
	now = now.Add(time.Minute)
	if !b.allow() {
		t.Fatal("reset timeout elapsed, a trial request should be allowed")
	}
	b.record(nil)
	if !b.allow() || b.state != breakerClosed {
		t.Fatal("successful trial should close the breaker")
	}
}

func TestRelayURL(t *testing.T) {
	got := relayURL("https://relay.example/raw?url=%s", "https://a.b/c d.png?x=1&y=2")
	want := "https://relay.example/raw?url=https%3A%2F%2Fa.b%2Fc+d.png%3Fx%3D1%26y%3D2"
	if got != want {
		t.Fatalf("relayURL = %q, want %q", got, want)
	}
	if got := relayURL("https://relay.example/?u=", "https://a.b/"); !strings.HasSuffix(got, "?u=https%3A%2F%2Fa.b%2F") {
		t.Fatalf("append form = %q", got)
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

const errTest = testErr("boom")
