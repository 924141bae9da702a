package attachment

import (
	"errors"
	"net/http"
	"net/netip"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetch_WritesFileWithExtension(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	f := NewFetcher(dir)

	p, err := f.Fetch(t.Context(), srv.URL+"/files/photo.JPG?sig=abc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if filepath.Dir(p) != dir {
		t.Errorf("file written to %q, want under %q", p, dir)
	}
	if !strings.HasSuffix(p, ".jpg") {
		t.Errorf("path %q does not keep the extension", p)
	}
	got, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "jpeg-bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestFetch_Non2xxIsDownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	_, err := NewFetcher(dir).Fetch(t.Context(), srv.URL+"/x.png")
	if !errors.Is(err, ErrDownloadFailure) {
		t.Fatalf("err = %v, want ErrDownloadFailure", err)
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error %q should carry the status", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no files left behind, got %d", len(entries))
	}
}

func TestFetch_TooLarge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	f := NewFetcher(dir)
	f.MaxBytes = 16

	if _, err := f.Fetch(t.Context(), srv.URL+"/big.png"); !errors.Is(err, ErrDownloadFailure) {
		t.Fatalf("err = %v, want ErrDownloadFailure", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("oversized file not removed")
	}
}

func TestFetch_RejectsNonHTTP(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"file:///etc/passwd", "ftp://host/a.png", "::not a url"} {
		if _, err := NewFetcher(t.TempDir()).Fetch(t.Context(), u); !errors.Is(err, ErrDownloadFailure) {
			t.Errorf("Fetch(%q) err = %v, want ErrDownloadFailure", u, err)
		}
	}
}

func TestRestrictedFetcher_BlocksLoopback(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	_, err := NewRestrictedFetcher(dir, nil).Fetch(t.Context(), srv.URL+"/photo.jpg")
	if !errors.Is(err, ErrDownloadFailure) {
		t.Fatalf("err = %v, want ErrDownloadFailure", err)
	}
	if n := hits.Load(); n != 0 {
		t.Errorf("loopback server hit %d times", n)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("left %d files behind", len(entries))
	}
}

func TestFetch_AllowedHosts(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/redirect" {
			// Same server under a different host name.
			to := strings.Replace(srvURL(r), "127.0.0.1", "localhost", 1) + "/photo.jpg"
			http.Redirect(w, r, to, http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(srv.Close)

	f := NewFetcher(t.TempDir())
	f.AllowedHosts = []string{"127.0.0.1"}

	if _, err := f.Fetch(t.Context(), srv.URL+"/photo.jpg"); err != nil {
		t.Fatalf("allowed host: %v", err)
	}

	other := strings.Replace(srv.URL, "127.0.0.1", "localhost", 1)
	if _, err := f.Fetch(t.Context(), other+"/photo.jpg"); !errors.Is(err, ErrDownloadFailure) {
		t.Errorf("other host err = %v, want ErrDownloadFailure", err)
	}

	before := hits.Load()
	if _, err := f.Fetch(t.Context(), srv.URL+"/redirect"); !errors.Is(err, ErrDownloadFailure) {
		t.Errorf("redirect err = %v, want ErrDownloadFailure", err)
	}
	if n := hits.Load() - before; n != 1 {
		t.Errorf("redirect target fetched: %d requests, want 1", n)
	}
}

func srvURL(r *http.Request) string { return "http://" + r.Host }

func TestPublicAddr(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"93.184.216.34":    true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"::1":              false,
		"10.1.2.3":         false,
		"172.16.0.1":       false,
		"192.168.1.10":     false,
		"169.254.169.254":  false,
		"100.64.0.1":       false,
		"0.0.0.0":          false,
		"fe80::1":          false,
		"fd00::1":          false,
		"::ffff:127.0.0.1": false,
		"224.0.0.1":        false,
	}
	for in, want := range cases {
		if got := PublicAddr(netip.MustParseAddr(in)); got != want {
			t.Errorf("PublicAddr(%s) = %v, want %v", in, got, want)
		}
	}
}

func TestSanitizeExt(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		".png":      ".png",
		".JPEG":     ".jpeg",
		"":          "",
		".":         "",
		"./../x":    "",
		".toolong1": "",
		".we bp":    "",
	}
	for in, want := range cases {
		if got := sanitizeExt(in); got != want {
			t.Errorf("sanitizeExt(%q) = %q, want %q", in, got, want)
		}
	}
}
