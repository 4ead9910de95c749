package bypass

import (
	"net/http"
	"testing"
)

func TestAnalyze(t *testing.T) {
	tests := []struct {
		name    string
		res     *Response
		blocked bool
		src     string
	}{
		{
			name: "results page",
			res: &Response{
				StatusCode: http.StatusOK,
				Body:       []byte(`<div class="g"><a href="https://example.com">x</a></div>`),
				FinalURL:   "https://www.google.com/search?q=x",
			},
		},
		{
			name: "sorry redirect",
			res: &Response{
				StatusCode: http.StatusOK,
				FinalURL:   "https://www.google.com/sorry/index?continue=x",
			},
			blocked: true,
			src:     "GoogleSorry",
		},
		{
			name: "sorry captcha form",
			res: &Response{
				StatusCode: http.StatusOK,
				Body:       []byte(`<p>Our systems have detected unusual traffic from your computer network.</p><form id="captcha-form" action="index" method="post"></form>`),
			},
			blocked: true,
			src:     "GoogleSorry",
		},
		{
			name: "query echoing challenge markers",
			res: &Response{
				StatusCode: http.StatusOK,
				Body: []byte(`<html><head><title>intext:&quot;g-recaptcha&quot; inurl:/sorry/index recaptcha/api.js - Google Search</title></head>` +
					`<body><input name="q" value="intext:&quot;g-recaptcha&quot; inurl:/sorry/index recaptcha/api.js">` +
					`<div class="g"><a href="https://example.com/login">Login</a></div></body></html>`),
				FinalURL: "https://www.google.com/search?q=x",
			},
		},
		{
			name: "recaptcha script",
			res: &Response{
				StatusCode: http.StatusOK,
				Body:       []byte(`<script src="https://www.google.com/recaptcha/api.js" async defer></script>`),
			},
			blocked: true,
			src:     "reCAPTCHA",
		},
		{
			name: "recaptcha form",
			res: &Response{
				StatusCode: http.StatusOK,
				Body:       []byte(`<form><div class="g-recaptcha" data-sitekey="k"></div></form>`),
			},
			blocked: true,
			src:     "reCAPTCHA",
		},
		{
			name: "cloudflare header",
			res: &Response{
				StatusCode: http.StatusForbidden,
				Header:     http.Header{"Server": {"cloudflare"}},
			},
			blocked: true,
			src:     "Cloudflare",
		},
		{
			name: "cloudflare body on 200 is ignored",
			res: &Response{
				StatusCode: http.StatusOK,
				Body:       []byte("cf-turnstile"),
			},
		},
		{
			name:    "rate limited",
			res:     &Response{StatusCode: http.StatusTooManyRequests},
			blocked: true,
			src:     "RateLimited",
		},
		{
			name: "plain server error",
			res:  &Response{StatusCode: http.StatusInternalServerError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, blocked := Analyze(tt.res, DefaultDetectors())
			if blocked != tt.blocked {
				t.Errorf("expected blocked=%v, got %v", tt.blocked, blocked)
			}
			if src != tt.src {
				t.Errorf("expected source %q, got %q", tt.src, src)
			}
		})
	}
}

func TestAnalyze_Nil(t *testing.T) {
	if _, blocked := Analyze(nil, DefaultDetectors()); blocked {
		t.Errorf("nil response must not be reported as blocked")
	}
}
