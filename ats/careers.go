package ats

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
)

const maxPageBody = 2 << 20

// careerPaths are probed, in order, below a company website.
var careerPaths = []string{"", "/careers", "/jobs"}

// BoardLink is an ATS board referenced from a company's own site.
type BoardLink struct {
	Page     string
	Link     string
	FeedURL  string
	Provider Provider
}

// FindBoardLinks looks for links, iframes and embed scripts that point at a
// Greenhouse, Lever or Ashby board on the company website. It stops at the
// first page that yields any.
func (a *Adapter) FindBoardLinks(ctx context.Context, website string) ([]BoardLink, error) {
	base, err := normalizeWebsite(website)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var lastErr error
	for _, path := range careerPaths {
		page := base.ResolveReference(&url.URL{Path: path}).String()
		links, err := a.scanPage(ctx, page)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(links) > 0 {
			return links, nil
		}
	}

	if lastErr != nil && ctx.Err() != nil {
		return nil, a.transportErr(base.String(), lastErr)
	}
	return nil, nil
}

func (a *Adapter) scanPage(ctx context.Context, page string) ([]BoardLink, error) {
	if a.limiter != nil {
		if err := a.limiter.WaitURL(ctx, page); err != nil {
			return nil, err
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxPageBody))
		return nil, &StatusError{URL: page, Code: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBody))
	if err != nil {
		return nil, &ParseError{Provider: Unknown, Err: err}
	}

	pageURL, _ := url.Parse(page)
	seen := map[string]bool{}
	var out []BoardLink

	doc.Find("a[href], iframe[src], script[src]").Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("href")
		if !ok {
			ref, ok = s.Attr("src")
		}
		if !ok || strings.TrimSpace(ref) == "" {
			return
		}

		abs := ref
		if u, err := url.Parse(strings.TrimSpace(ref)); err == nil && pageURL != nil {
			abs = pageURL.ResolveReference(u).String()
		}

		feed, p, ok := BoardLinkToFeedURL(abs)
		if !ok || seen[feed] {
			return
		}
		seen[feed] = true
		out = append(out, BoardLink{Page: page, Link: abs, FeedURL: feed, Provider: p})
	})

	return out, nil
}

func normalizeWebsite(website string) (*url.URL, error) {
	website = strings.TrimSpace(website)
	if website == "" {
		return nil, fmt.Errorf("empty website")
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}

	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid website %q", website)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""

	return u, nil
}
