// Package fetch downloads the volume files linked from a web page.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/net/html"

	"mramip/pkg/logging"
)

// DefaultExtensions are the link suffixes downloaded when none are configured
var DefaultExtensions = []string{".dcm", ".gif"}

// Fetcher scrapes a page for links and downloads the matching ones
type Fetcher struct {
	Client *http.Client

	// Extensions selects links whose path contains one of them
	Extensions []string

	Logger *slog.Logger
}

// NewFetcher creates a fetcher using http.DefaultClient
func NewFetcher(extensions []string, logger *slog.Logger) *Fetcher {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Fetcher{
		Client:     http.DefaultClient,
		Extensions: extensions,
		Logger:     logging.OrNop(logger),
	}
}

// Fetch downloads every matching same-host link of the page at baseURL into
// destDir and returns the written file paths in link order.
func (f *Fetcher) Fetch(ctx context.Context, baseURL, destDir string) ([]string, error) {
	logger := logging.OrNop(f.Logger)
	logger.Info("scraping page", "url", baseURL)

	links, err := f.Links(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("scraping done", "links", len(links))

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating download directory: %w", err)
	}

	var files []string
	for _, link := range links {
		if !f.matches(link) {
			continue
		}
		file, err := f.download(ctx, link, destDir)
		if err != nil {
			return files, err
		}
		files = append(files, file)
	}
	return files, nil
}

// Links returns the distinct anchor targets of the page at pageURL that
// live on the same host. Links are resolved against the page and stripped
// of query and fragment.
func (f *Fetcher) Links(ctx context.Context, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	resp, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error parsing %s: %w", pageURL, err)
	}

	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" || attr.Val == "" {
					continue
				}
				ref, err := base.Parse(attr.Val)
				if err != nil || ref.Scheme == "" || ref.Host == "" || ref.Host != base.Host {
					continue
				}
				ref.RawQuery, ref.Fragment = "", ""
				seen[ref.String()] = true
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	links := make([]string, 0, len(seen))
	for l := range seen {
		links = append(links, l)
	}
	sort.Strings(links)
	return links, nil
}

func (f *Fetcher) matches(link string) bool {
	if strings.HasSuffix(link, "/") {
		return false
	}
	l := strings.ToLower(link)
	for _, ext := range f.Extensions {
		if strings.Contains(l, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

func (f *Fetcher) download(ctx context.Context, link, destDir string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid link %s: %w", link, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", fmt.Errorf("link %s has no file name", link)
	}

	resp, err := f.get(ctx, link)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	target := filepath.Join(destDir, name)
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("error creating %s: %w", target, err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// A partial file would be picked up as input by the next run
		os.Remove(target)
		return "", fmt.Errorf("error downloading %s: %w", link, err)
	}

	logging.OrNop(f.Logger).Info("downloaded file", "file", target, "size", humanize.Bytes(uint64(n)))
	return target, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error requesting %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("error requesting %s: %s", rawURL, resp.Status)
	}
	return resp, nil
}
