package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// LinkDiscoverer finds the pages one path segment below the site root.
type LinkDiscoverer struct {
	session *Session
	logger  *slog.Logger
}

// NewLinkDiscoverer returns a discoverer fetching through session.
func NewLinkDiscoverer(session *Session, logger *slog.Logger) *LinkDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkDiscoverer{session: session, logger: logger}
}

// DiscoverNextLevel fetches baseURL and returns the distinct same-site URLs
// exactly one segment below the domain root, sorted.
func (d *LinkDiscoverer) DiscoverNextLevel(ctx context.Context, baseURL string) ([]string, error) {
	page, err := d.session.Get(ctx, StageLinks, baseURL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	urls := NextLevelLinks(doc, baseURL)
	d.logger.Info("found URLs one level deeper", slog.Int("count", len(urls)))
	for _, u := range urls {
		d.logger.Debug("next level url", slog.String("url", u))
	}
	return urls, nil
}

// NextLevelLinks applies the link filters to every anchor and to every button
// wrapped in an anchor. Buttons outside an anchor are ignored.
//
// Depth is measured from the domain root, not from baseURL's own path.
func NextLevelLinks(doc *goquery.Document, baseURL string) []string {
	domain, root := siteRoot(baseURL)
	if domain == "" {
		return nil
	}

	seen := make(map[string]struct{})
	doc.Find("a, button").Each(func(_ int, el *goquery.Selection) {
		var href string
		if goquery.NodeName(el) == "button" {
			parent := el.Closest("a")
			if parent.Length() == 0 {
				return
			}
			href, _ = parent.Attr("href")
		} else {
			href, _ = el.Attr("href")
		}

		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		if strings.HasPrefix(href, "http") && !strings.Contains(href, baseURL) {
			return
		}

		full := href
		switch {
		case strings.HasPrefix(href, "http"):
		case strings.HasPrefix(href, "/"):
			full = root + href
		default:
			full = strings.TrimRight(baseURL, "/") + "/" + href
		}

		if oneLevelDeep(full, domain) {
			seen[full] = struct{}{}
		}
	})

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// siteRoot returns the host of baseURL and its scheme://host prefix.
func siteRoot(baseURL string) (domain, root string) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", ""
	}
	return u.Host, u.Scheme + "://" + u.Host
}

func oneLevelDeep(full, domain string) bool {
	idx := strings.LastIndex(full, domain)
	if idx < 0 {
		return false
	}
	path := strings.TrimLeft(full[idx+len(domain):], "/")
	return path != "" && !strings.Contains(path, "/")
}
