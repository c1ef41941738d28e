package analyzer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

type resourceKind int

const (
	kindScript resourceKind = iota
	kindStylesheet
	kindImage
)

type resource struct {
	kind resourceKind
	url  string
}

type resources []resource

func (rs resources) count(k resourceKind) int {
	n := 0
	for _, r := range rs {
		if r.kind == k {
			n++
		}
	}
	return n
}

type sizeTotals map[resourceKind]int64

func (s sizeTotals) total() int64 {
	var t int64
	for _, v := range s {
		t += v
	}
	return t
}

// extractResources walks the document for external scripts, stylesheets and
// images. Each tag counts, even if two tags share a URL.
func extractResources(body []byte, base *url.URL) (resources, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out resources
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script:
				if src, ok := attr(n, "src"); ok {
					out = append(out, resource{kind: kindScript, url: resolve(base, src)})
				}
			case atom.Link:
				if rel, _ := attr(n, "rel"); hasToken(rel, "stylesheet") {
					href, _ := attr(n, "href")
					out = append(out, resource{kind: kindStylesheet, url: resolve(base, href)})
				}
			case atom.Img:
				src, _ := attr(n, "src")
				out = append(out, resource{kind: kindImage, url: resolve(base, src)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return out, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val), true
		}
	}
	return "", false
}

func hasToken(list, token string) bool {
	for _, f := range strings.Fields(strings.ToLower(list)) {
		if f == token {
			return true
		}
	}
	return false
}

// resolve returns "" for references that cannot be fetched over HTTP
// (data: URIs, empty src, javascript: and friends).
func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(u)
	if !hasScheme(abs) {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

// measure sizes every fetchable resource with bounded concurrency. Failures
// are logged and count as zero bytes.
func (a *Analyzer) measure(ctx context.Context, refs resources) sizeTotals {
	totals := sizeTotals{}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	measured := 0
	for _, r := range refs {
		if r.url == "" {
			continue
		}
		if a.maxResources > 0 && measured >= a.maxResources {
			a.logger.Debug("resource limit reached", zap.Int("limit", a.maxResources))
			break
		}
		measured++

		g.Go(func() error {
			size, err := a.resourceSize(ctx, r.url)
			if err != nil {
				a.logger.Debug("resource not measured", zap.String("url", r.url), zap.Error(err))
				return nil
			}
			mu.Lock()
			totals[r.kind] += size
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return totals
}

// resourceSize prefers a HEAD Content-Length and falls back to counting a
// capped GET body.
func (a *Analyzer) resourceSize(ctx context.Context, rawURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			if n, perr := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); perr == nil && n >= 0 {
				return n, nil
			}
		}
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err = a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return io.Copy(io.Discard, io.LimitReader(resp.Body, a.maxDocument))
}
