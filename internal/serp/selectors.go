package serp

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultSelectors is the version used when none is configured.
const DefaultSelectors = "google-2024"

// Selectors is one versioned set of CSS rules for pulling results out of a
// results page. Search-engine markup drifts, so a set is looked up by
// version and can be replaced from configuration.
type Selectors struct {
	Version     string `mapstructure:"version"`
	Container   string `mapstructure:"container"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Link        string `mapstructure:"link"`
}

var builtinSelectors = map[string]Selectors{
	"google-2024": {
		Version:     "google-2024",
		Container:   "div.g",
		Title:       "h3",
		Description: "div.VwiC3b, span.aCOpRe",
		Link:        "a[href]",
	},
	"google-2023": {
		Version:     "google-2023",
		Container:   "div.tF2Cxc",
		Title:       "h3",
		Description: "div.VwiC3b, div.IsZvec",
		Link:        "div.yuRUbf a[href]",
	},
	// Served to clients without JavaScript or with legacy User-Agents.
	"google-basic": {
		Version:     "google-basic",
		Container:   "div.ezO2md",
		Title:       "span.CVA68e",
		Description: "span.FrIlee",
		Link:        "a.fuLhoc[href]",
	},
	"duckduckgo-html": {
		Version:     "duckduckgo-html",
		Container:   "div.result",
		Title:       "a.result__a",
		Description: ".result__snippet",
		Link:        "a.result__a[href]",
	},
}

// LookupSelectors returns the built-in selector set for version.
func LookupSelectors(version string) (Selectors, error) {
	if version == "" {
		version = DefaultSelectors
	}
	s, ok := builtinSelectors[version]
	if !ok {
		return Selectors{}, fmt.Errorf("serp: unknown selector version %q (known: %s)", version, strings.Join(SelectorVersions(), ", "))
	}
	return s, nil
}

// SelectorVersions lists the built-in versions in sorted order.
func SelectorVersions() []string {
	out := make([]string, 0, len(builtinSelectors))
	for v := range builtinSelectors {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Validate reports missing rules.
func (s Selectors) Validate() error {
	var errs []error
	if s.Container == "" {
		errs = append(errs, errors.New("container selector is empty"))
	}
	if s.Link == "" {
		errs = append(errs, errors.New("link selector is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("serp: selectors %q: %w", s.Version, err)
	}
	return nil
}

// ParseResults extracts one record per container. A container yields an
// advanced record only when advanced is set and title, description and link
// are all present; otherwise it yields a simple record if it has a link, and
// nothing if it does not.
func ParseResults(r io.Reader, base *url.URL, sel Selectors, advanced bool) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("serp: parse html: %w", err)
	}

	var records []Record
	doc.Find(sel.Container).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Find(sel.Link).First().Attr("href")
		link := resolveLink(base, href)
		if link == "" {
			return
		}

		rec := Record{Shape: ShapeSimple, Rank: len(records) + 1, URL: link}
		if advanced {
			title := collapse(firstText(s, sel.Title))
			desc := collapse(firstText(s, sel.Description))
			if title != "" && desc != "" {
				rec.Shape = ShapeAdvanced
				rec.Title = title
				rec.Description = desc
			}
		}
		records = append(records, rec)
	})

	return records, nil
}

func firstText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return s.Find(selector).First().Text()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// redirectHosts serve the engines' outbound click-through redirects. They
// are matched exactly; other hosts under the same domain (docs.google.com,
// drive.google.com) are ordinary results.
var redirectHosts = map[string]bool{
	"google.com":     true,
	"www.google.com": true,
	"duckduckgo.com": true,
}

// resolveLink turns a result href into an absolute http(s) URL, unwrapping
// Google (/url?q=) and DuckDuckGo (/l/?uddg=) redirect links. It returns ""
// for anything that is not a navigable result link. Only the exact results
// host counts as engine navigation.
func resolveLink(base *url.URL, href string) string {
	u := parseHref(base, href)
	if u == nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	sameHost := base != nil && host == strings.ToLower(base.Hostname())
	if sameHost || redirectHosts[host] {
		if target := unwrapRedirect(u); target != "" {
			// The target is the result itself and is never an engine link.
			if t := parseHref(nil, target); t != nil {
				return t.String()
			}
			return ""
		}
	}

	if sameHost {
		// Navigation, related searches and other links back into the engine.
		return ""
	}
	return u.String()
}

// parseHref returns href as an absolute http(s) URL, or nil.
func parseHref(base *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil
	}
	return u
}

func unwrapRedirect(u *url.URL) string {
	q := u.Query()
	switch {
	case u.Path == "/url" && q.Get("q") != "":
		return q.Get("q")
	case u.Path == "/url" && q.Get("url") != "":
		return q.Get("url")
	case strings.HasPrefix(u.Path, "/l/") && q.Get("uddg") != "":
		return q.Get("uddg")
	}
	return ""
}
