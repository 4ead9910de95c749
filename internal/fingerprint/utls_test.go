package fingerprint

import (
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	roots := x509.NewCertPool()
	roots.AddCert(ts.Certificate())

	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom} {
		t.Run(string(p), func(t *testing.T) {
			rt, err := Transport(p, Options{RootCAs: roots})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}

			if _, ok := rt.(*http.Transport); !ok {
				t.Fatalf("expected *http.Transport, got %T", rt)
			}

			client := &http.Client{Transport: rt}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	cases := map[string]Profile{
		"":        ProfileGo,
		"go":      ProfileGo,
		"Chrome":  ProfileChrome,
		" safari": ProfileSafari,
		"random":  ProfileRandom,
	}
	for in, want := range cases {
		got, err := ParseProfile(in)
		if err != nil {
			t.Errorf("ParseProfile(%q): unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProfile(%q) = %q, want %q", in, got, want)
		}
	}

	if _, err := ParseProfile("netscape"); err == nil {
		t.Errorf("expected error for unknown profile")
	}
}
