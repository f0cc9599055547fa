package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body>
			<a href="data/head.dcm?download=1">head</a>
			<a href="/data/preview.gif#top">preview</a>
			<a href="/data/head.dcm">duplicate</a>
			<a href="notes.txt">notes</a>
			<a href="/data/">folder</a>
			<a href="http://elsewhere.example/other.dcm">external</a>
			<a href="">empty</a>
		</body></html>`)
	})
	mux.HandleFunc("/data/head.dcm", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("DICM-bytes"))
	})
	mux.HandleFunc("/data/preview.gif", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("GIF89a"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestLinks(t *testing.T) {
	server := newTestServer(t)

	links, err := NewFetcher(nil, nil).Links(context.Background(), server.URL+"/")
	if err != nil {
		t.Fatalf("Links failed: %v", err)
	}

	want := []string{
		server.URL + "/data/",
		server.URL + "/data/head.dcm",
		server.URL + "/data/preview.gif",
		server.URL + "/notes.txt",
	}
	if len(links) != len(want) {
		t.Fatalf("Expected %v, got %v", want, links)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("Link %d: expected %s, got %s", i, want[i], links[i])
		}
	}
}

func TestFetch(t *testing.T) {
	server := newTestServer(t)
	dir := filepath.Join(t.TempDir(), "downloads")

	files, err := NewFetcher(nil, nil).Fetch(context.Background(), server.URL+"/", dir)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 downloads, got %v", files)
	}

	data, err := os.ReadFile(filepath.Join(dir, "head.dcm"))
	if err != nil {
		t.Fatalf("Missing downloaded DICOM: %v", err)
	}
	if string(data) != "DICM-bytes" {
		t.Errorf("Unexpected content %q", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); !os.IsNotExist(err) {
		t.Error("Links without a matching extension must not be downloaded")
	}
}

func TestFetchOnlyDICOM(t *testing.T) {
	server := newTestServer(t)

	files, err := NewFetcher([]string{".dcm"}, nil).Fetch(context.Background(), server.URL+"/", t.TempDir())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "head.dcm" {
		t.Errorf("Expected only head.dcm, got %v", files)
	}
}

func TestFetchErrors(t *testing.T) {
	server := newTestServer(t)

	if _, err := NewFetcher(nil, nil).Fetch(context.Background(), server.URL+"/missing", t.TempDir()); err == nil {
		t.Error("Expected error for a missing page")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFetcher(nil, nil).Links(ctx, server.URL+"/"); err == nil {
		t.Error("Expected error for a cancelled context")
	}
}

func TestFetchRemovesPartialDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="/scan.dcm">scan</a>`)
	})
	mux.HandleFunc("/scan.dcm", func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than are sent so the body ends early
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("DICM"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	if _, err := NewFetcher([]string{".dcm"}, nil).Fetch(context.Background(), server.URL+"/", dir); err == nil {
		t.Fatal("Expected error for a truncated download")
	}
	if _, err := os.Stat(filepath.Join(dir, "scan.dcm")); !os.IsNotExist(err) {
		t.Errorf("Partial download must be removed, stat returned %v", err)
	}
}
