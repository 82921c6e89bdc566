package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/AutoHarvest/internal/config"
	"github.com/IshaanNene/AutoHarvest/internal/types"
)

// ListingParser extracts candidates from a listing page using CSS selectors.
type ListingParser struct {
	base         *url.URL
	cardSelector string
	linkSelector string
	logger       *slog.Logger
}

// NewListingParser creates a listing parser for the configured site.
func NewListingParser(site *config.SiteConfig, logger *slog.Logger) (*ListingParser, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidURL, site.BaseURL)
	}
	return &ListingParser{
		base:         base,
		cardSelector: site.CardSelector,
		linkSelector: site.LinkSelector,
		logger:       logger.With("component", "listing_parser"),
	}, nil
}

// Parse returns the candidates on a listing page in document order. A page
// without cards yields an empty slice and no error.
func (p *ListingParser) Parse(resp *types.Response) ([]types.Candidate, error) {
	doc, err := resp.Document()
	if err != nil {
		return nil, &types.ParseError{URL: resp.Request.URLString(), Selector: p.cardSelector, Err: err}
	}
	return p.ParseDocument(doc), nil
}

// ParseDocument extracts candidates from an already parsed document.
func (p *ListingParser) ParseDocument(doc *goquery.Document) []types.Candidate {
	candidates := make([]types.Candidate, 0)
	seen := make(map[string]bool)

	doc.Find(p.cardSelector).Each(func(_ int, card *goquery.Selection) {
		card.Find(p.linkSelector).Each(func(_ int, link *goquery.Selection) {
			href, ok := link.Attr("href")
			href = strings.TrimSpace(href)
			if !ok || href == "" {
				return
			}

			abs, ok := p.resolve(href)
			if !ok || seen[abs] {
				return
			}
			seen[abs] = true

			candidates = append(candidates, types.Candidate{
				Title: SelectionText(link),
				URL:   abs,
			})
		})
	})

	p.logger.Debug("listing parsed", "candidates", len(candidates))
	return candidates
}

func (p *ListingParser) resolve(href string) (string, bool) {
	if strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := p.base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	resolved.Fragment = ""
	return resolved.String(), true
}

// ListingURL builds the address of listing page n, e.g.
// https://mado.group/statistic-china/?PAGE=2.
func ListingURL(baseURL, path, param string, page int) string {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return fmt.Sprintf("%s%s?%s=%d", baseURL, path, param, page)
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
