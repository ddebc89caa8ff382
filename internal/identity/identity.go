// Package identity derives stable item ids from navigation and heading nodes.
package identity

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// Prefix is prepended to every id.
const Prefix = "item-"

// maxHeadingText bounds the heading text folded into a composite id.
const maxHeadingText = 60

// timeNow is replaced in tests.
var timeNow = time.Now

// Identity is the derived address and id of one node.
type Identity struct {
	Address string
	ID      string
	// Link is the absolute link target, empty for placeholders.
	Link string
	// Stable is false when the address is a placeholder that will differ on
	// the next extraction.
	Stable bool
}

// Sanitize replaces every character outside [A-Za-z0-9_-] with '_'.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if isSafe(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		i += size
	}
	return b.String()
}

func isSafe(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

// FromAddress returns the id for a normalized address.
func FromAddress(address string) string {
	return Prefix + Sanitize(address)
}

// NormalizeLink resolves href against pageURL and collapses the result to
// path + query + fragment.
func NormalizeLink(href, pageURL string) (string, error) {
	u, err := resolve(href, pageURL)
	if err != nil {
		return "", err
	}
	return collapse(u), nil
}

func resolve(href, pageURL string) (*url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("parse href %q: %w", href, err)
	}
	return base.ResolveReference(ref), nil
}

func collapse(u *url.URL) string {
	var b strings.Builder
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteByte('#')
		b.WriteString(u.EscapedFragment())
	}
	return b.String()
}

// ForLink derives the identity of a link-bearing node. A link that cannot be
// resolved gets a timestamped placeholder instead of failing the extraction.
func ForLink(href, pageURL string) Identity {
	u, err := resolve(href, pageURL)
	if err != nil {
		addr := fmt.Sprintf("#error-creating-url-%d", timeNow().UnixMilli())
		return Identity{Address: addr, ID: FromAddress(addr)}
	}
	addr := collapse(u)
	return Identity{Address: addr, ID: FromAddress(addr), Link: u.String(), Stable: true}
}

// PageKey returns origin + path of a page URL, without query or fragment.
func PageKey(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		if i := strings.IndexAny(pageURL, "?#"); i >= 0 {
			return pageURL[:i]
		}
		return pageURL
	}
	if u.Scheme == "" && u.Host == "" {
		return u.Path
	}
	return u.Scheme + "://" + u.Host + u.Path
}

// ForHeading derives the identity of a heading without a navigable target
// from the page, the heading tag, its text and its position among headings
// with the same tag.
func ForHeading(pageKey, tag, text string, ordinal int) Identity {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxHeadingText {
		text = string([]rune(text)[:maxHeadingText])
	}
	addr := fmt.Sprintf("%s|%s|%s|%d", pageKey, strings.ToLower(tag), text, ordinal)
	return Identity{Address: addr, ID: FromAddress(addr), Stable: true}
}
