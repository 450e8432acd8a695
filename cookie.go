package servex

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Cookie validation/registration errors, per spec.md §4.6 and §7.
var (
	ErrInvalidCookieName   = errors.New("servex: invalid cookie name")
	ErrInvalidCookieValue  = errors.New("servex: invalid cookie value")
	ErrInvalidCookieDomain = errors.New("servex: invalid cookie domain")
	ErrInvalidCookiePath   = errors.New("servex: invalid cookie path")
	ErrInvalidCookieOption = errors.New("servex: invalid cookie option")
)

// cookieNameRe matches RFC 6265's token character class used for names.
var cookieNameRe = regexp.MustCompile(`^[!#$%&'*+\-.^_` + "`" + `|~0-9A-Za-z]+$`)

// cookieValueRe matches an unquoted cookie-octet run.
var cookieValueRe = regexp.MustCompile(`^[\x21\x23-\x2B\x2D-\x3A\x3C-\x5B\x5D-\x7E]*$`)

// domainRe/pathRe are permissive character-class checks: RFC 6265 leaves
// Domain/Path validation to the user agent; servex rejects control
// characters, whitespace, and the attribute separator ';'.
var domainRe = regexp.MustCompile(`^[A-Za-z0-9.\-]*$`)
var pathRe = regexp.MustCompile(`^[^\x00-\x1F;]*$`)

var validSameSite = map[string]bool{"Strict": true, "Lax": true, "None": true}
var validPriority = map[string]bool{"Low": true, "Medium": true, "High": true}

// CookieOptions carries the optional attributes of a Set-Cookie header.
// Nil/zero fields are omitted from serialization.
type CookieOptions struct {
	MaxAge      *int
	Domain      string
	Expires     *time.Time
	HttpOnly    bool
	Partitioned bool
	Path        string
	SameSite    string // "Strict", "Lax", "None" — case sensitive per spec.md §4.6
	Priority    string // "Low", "Medium", "High"
	Secure      bool
}

// SerializeCookie renders name=value plus its attributes in the fixed
// order spec.md §4.6 mandates: Max-Age, Domain, Expires, HttpOnly,
// Partitioned, Path, SameSite, Priority, Secure. Value is URL-encoded
// unless it already satisfies the bare cookie-octet grammar.
func SerializeCookie(name, value string, opts *CookieOptions) (string, error) {
	if !cookieNameRe.MatchString(name) {
		return "", ErrInvalidCookieName
	}

	encoded := value
	if !cookieValueRe.MatchString(value) {
		encoded = url.QueryEscape(value)
	}
	if !cookieValueRe.MatchString(encoded) {
		return "", ErrInvalidCookieValue
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(encoded)

	if opts == nil {
		return b.String(), nil
	}

	if opts.MaxAge != nil {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(*opts.MaxAge))
	}
	if opts.Domain != "" {
		if !domainRe.MatchString(opts.Domain) {
			return "", ErrInvalidCookieDomain
		}
		b.WriteString("; Domain=")
		b.WriteString(opts.Domain)
	}
	if opts.Expires != nil {
		b.WriteString("; Expires=")
		b.WriteString(opts.Expires.UTC().Format(time.RFC1123))
	}
	if opts.HttpOnly {
		b.WriteString("; HttpOnly")
	}
	if opts.Partitioned {
		b.WriteString("; Partitioned")
	}
	if opts.Path != "" {
		if !pathRe.MatchString(opts.Path) {
			return "", ErrInvalidCookiePath
		}
		b.WriteString("; Path=")
		b.WriteString(opts.Path)
	}
	if opts.SameSite != "" {
		if !validSameSite[opts.SameSite] {
			return "", ErrInvalidCookieOption
		}
		b.WriteString("; SameSite=")
		b.WriteString(opts.SameSite)
	}
	if opts.Priority != "" {
		if !validPriority[opts.Priority] {
			return "", ErrInvalidCookieOption
		}
		b.WriteString("; Priority=")
		b.WriteString(opts.Priority)
	}
	if opts.Secure {
		b.WriteString("; Secure")
	}

	return b.String(), nil
}

// ParseCookies splits a Cookie header on ';', trims whitespace, strips one
// layer of matching surrounding double quotes, and URL-decodes values.
// Malformed segments (no '=') are ignored; the first occurrence of a name
// wins, per spec.md §4.6.
func ParseCookies(header string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(part[:eq])
		value := strings.TrimSpace(part[eq+1:])
		if name == "" {
			continue
		}
		if _, exists := out[name]; exists {
			continue
		}
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		if decoded, err := url.QueryUnescape(value); err == nil {
			value = decoded
		}
		out[name] = value
	}
	return out
}
