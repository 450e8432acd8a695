package servex

import (
	"strings"
	"testing"
	"time"
)

func TestSerializeCookie_AttributeOrder(t *testing.T) {
	maxAge := 3600
	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	opts := &CookieOptions{
		MaxAge:      &maxAge,
		Domain:      "example.com",
		Expires:     &expires,
		HttpOnly:    true,
		Partitioned: true,
		Path:        "/",
		SameSite:    "Lax",
		Priority:    "High",
		Secure:      true,
	}

	got, err := SerializeCookie("session", "abc123", opts)
	if err != nil {
		t.Fatalf("SerializeCookie: %v", err)
	}

	want := "session=abc123; Max-Age=3600; Domain=example.com; Expires=" +
		expires.UTC().Format(time.RFC1123) +
		"; HttpOnly; Partitioned; Path=/; SameSite=Lax; Priority=High; Secure"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestSerializeCookie_NoOptions(t *testing.T) {
	got, err := SerializeCookie("k", "v", nil)
	if err != nil {
		t.Fatalf("SerializeCookie: %v", err)
	}
	if got != "k=v" {
		t.Errorf("got %q, want %q", got, "k=v")
	}
}

func TestSerializeCookie_ValueNeedingEscape(t *testing.T) {
	got, err := SerializeCookie("k", "needs escaping; value", nil)
	if err != nil {
		t.Fatalf("SerializeCookie: %v", err)
	}
	if !strings.HasPrefix(got, "k=") {
		t.Fatalf("expected k= prefix, got %q", got)
	}
	if strings.Contains(got[2:], ";") {
		t.Errorf("escaped value should not contain a bare semicolon: %q", got)
	}
}

func TestSerializeCookie_InvalidName(t *testing.T) {
	if _, err := SerializeCookie("bad name", "v", nil); err != ErrInvalidCookieName {
		t.Errorf("expected ErrInvalidCookieName, got %v", err)
	}
}

func TestSerializeCookie_InvalidSameSite(t *testing.T) {
	_, err := SerializeCookie("k", "v", &CookieOptions{SameSite: "Bogus"})
	if err != ErrInvalidCookieOption {
		t.Errorf("expected ErrInvalidCookieOption, got %v", err)
	}
}

func TestParseCookies_RoundTrip(t *testing.T) {
	header := `a=1; b="two words"; c=three`
	got := ParseCookies(header)

	want := map[string]string{"a": "1", "b": "two words", "c": "three"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ParseCookies[%q] = %q, want %q", k, got[k], v)
		}
		serialized, err := SerializeCookie(k, v, nil)
		if err != nil {
			t.Fatalf("SerializeCookie(%q): %v", k, err)
		}
		if back := ParseCookies(serialized)[k]; back != v {
			t.Errorf("round trip of %q = %q, want %q", k, back, v)
		}
	}
}

func TestParseCookies_FirstOccurrenceWins(t *testing.T) {
	got := ParseCookies("dup=first; dup=second")
	if got["dup"] != "first" {
		t.Errorf("expected first occurrence to win, got %q", got["dup"])
	}
}

func TestParseCookies_IgnoresMalformedSegments(t *testing.T) {
	got := ParseCookies("good=1; noequalsign; =emptyname; good2=2")
	if len(got) != 2 {
		t.Fatalf("expected 2 valid cookies, got %d: %v", len(got), got)
	}
	if got["good"] != "1" || got["good2"] != "2" {
		t.Errorf("unexpected values: %v", got)
	}
}
