package bypass

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Response is the part of a search-engine reply the detectors look at.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// FinalURL is the URL after redirects; Google sends blocked clients to
	// /sorry/index.
	FinalURL string

	doc    *goquery.Document
	parsed bool
}

// document parses Body once. Challenge checks match page elements rather
// than raw text, since results pages echo the query into the title and the
// search box.
func (r *Response) document() *goquery.Document {
	if !r.parsed {
		r.parsed = true
		if len(r.Body) > 0 {
			r.doc, _ = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		}
	}
	return r.doc
}

func (r *Response) has(selector string) bool {
	doc := r.document()
	return doc != nil && doc.Find(selector).Length() > 0
}

// Detector reports whether a response is a block or challenge page instead
// of a results page, and names the mechanism.
type Detector func(res *Response) (detected bool, source string)

// DefaultDetectors returns the detectors applied to every scraped results page.
func DefaultDetectors() []Detector {
	return []Detector{
		detectGoogleSorry,
		detectRecaptcha,
		detectCloudflare,
		detectRateLimited,
	}
}

// Analyze runs the detectors in order and returns the first match.
func Analyze(res *Response, detectors []Detector) (source string, blocked bool) {
	if res == nil {
		return "", false
	}
	for _, d := range detectors {
		if detected, src := d(res); detected {
			return src, true
		}
	}
	return "", false
}

// detectGoogleSorry matches Google's "unusual traffic" interstitial: the
// /sorry/ redirect or its captcha form.
func detectGoogleSorry(res *Response) (bool, string) {
	if strings.Contains(res.FinalURL, "/sorry/") {
		return true, "GoogleSorry"
	}
	if res.has(`form#captcha-form, form[action*="/sorry/"]`) {
		return true, "GoogleSorry"
	}
	return false, ""
}

// detectRecaptcha matches pages that embed a reCAPTCHA widget or load its
// script.
func detectRecaptcha(res *Response) (bool, string) {
	if res.has(`div.g-recaptcha, [data-sitekey], script[src*="recaptcha/api.js"]`) {
		return true, "reCAPTCHA"
	}
	return false, ""
}

// detectCloudflare looks for Cloudflare challenge signatures, seen in front
// of alternative engines.
func detectCloudflare(res *Response) (bool, string) {
	if res.StatusCode != http.StatusForbidden && res.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(res.Header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if bytes.Contains(res.Body, []byte("cf-browser-verification")) ||
		bytes.Contains(res.Body, []byte("cf-turnstile")) ||
		bytes.Contains(res.Body, []byte("Attention Required! | Cloudflare")) {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectRateLimited treats a bare 429 as a block.
func detectRateLimited(res *Response) (bool, string) {
	if res.StatusCode == http.StatusTooManyRequests {
		return true, "RateLimited"
	}
	return false, ""
}
