package discovery

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/vehicle-listing-crawler/internal/listing"
)

// DefaultLinkSelectors match detail-page anchors on result pages.
var DefaultLinkSelectors = []string{
	"a[href*='detalles.html?id=']",
	"a[href*='details.html?id=']",
	"a[href*='?id=']",
}

// Harvest returns the sorted, deduplicated canonical detail URLs linked from
// html. Relative hrefs resolve against pageURL. When allowedHosts is
// non-empty, links to other hosts are dropped.
func Harvest(html, pageURL string, selectors, allowedHosts []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}
	if len(selectors) == 0 {
		selectors = DefaultLinkSelectors
	}
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}

	seen := make(map[string]struct{})
	doc.Find(strings.Join(selectors, ", ")).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		canonical, ok := listing.Normalize(base.ResolveReference(ref).String())
		if !ok {
			return
		}
		if len(hosts) > 0 && !hostAllowed(canonical, hosts) {
			return
		}
		seen[canonical] = struct{}{}
	})

	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func hostAllowed(raw string, hosts map[string]struct{}) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := hosts[strings.ToLower(u.Hostname())]
	return ok
}

// SearchInfo is what a result page says about the size of its search.
// Unknown values are -1.
type SearchInfo struct {
	Total   int
	MaxPage int
}

// Capped reports whether the search is larger than the site will paginate.
func (i SearchInfo) Capped(ceiling, pageSize int) bool {
	if i.MaxPage >= ceiling {
		return true
	}
	return pageSize > 0 && i.Total > ceiling*pageSize
}

var (
	totalPattern     = regexp.MustCompile(`(?i)(\d{1,3}(?:[.,\x{00A0}]\d{3})+|\d+)\s*(?:resultados|ofertas|angebote|results)`)
	pageOfPattern    = regexp.MustCompile(`\b\d+\s*/\s*(\d+)\b`)
	pageLabelPattern = regexp.MustCompile(`^\d{1,4}$`)
)

const paginationSelector = "nav[aria-label*='Pagin'], [data-testid*='pagination'], [class*='pagination']"

// ParseSearchInfo reads the result count from body text and the highest page
// number from the pagination controls in html.
func ParseSearchInfo(body, html string) (SearchInfo, error) {
	info := SearchInfo{Total: -1, MaxPage: -1}
	if m := totalPattern.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(stripSeparators(m[1])); err == nil {
			info.Total = n
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return info, fmt.Errorf("parse result page: %w", err)
	}
	pagination := doc.Find(paginationSelector).First()
	if m := pageOfPattern.FindStringSubmatch(pagination.Text()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.MaxPage = n
			return info, nil
		}
	}
	doc.Find("nav a, nav button, [data-testid*='pagination'] a, [data-testid*='pagination'] button").
		Each(func(_ int, s *goquery.Selection) {
			label := strings.TrimSpace(s.Text())
			if !pageLabelPattern.MatchString(label) {
				return
			}
			if n, err := strconv.Atoi(label); err == nil && n > info.MaxPage {
				info.MaxPage = n
			}
		})
	return info, nil
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
