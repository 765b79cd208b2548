package webapi

import (
	"net/url"
	"strings"
)

// URL is a parsed absolute URL.
type URL struct {
	u      *url.URL
	params *URLSearchParams
}

// NewURL parses an absolute URL.
func NewURL(raw string) (*URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "" && !strings.HasPrefix(u.Scheme, "file")) {
		return nil, Errorf(TypeErrorName, "Failed to construct 'URL': Invalid URL '%s'", raw)
	}
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}
	return &URL{u: u}, nil
}

// Href returns the serialized URL.
func (u *URL) Href() string {
	return u.u.String()
}

// String implements fmt.Stringer.
func (u *URL) String() string {
	return u.Href()
}

// Origin returns scheme://host.
func (u *URL) Origin() string {
	return u.u.Scheme + "://" + u.u.Host
}

// Pathname returns the path.
func (u *URL) Pathname() string {
	return u.u.EscapedPath()
}

// Search returns the query with its leading '?', or "".
func (u *URL) Search() string {
	if u.u.RawQuery == "" {
		return ""
	}
	return "?" + u.u.RawQuery
}

// Hash returns the fragment with its leading '#', or "".
func (u *URL) Hash() string {
	if u.u.Fragment == "" {
		return ""
	}
	return "#" + u.u.EscapedFragment()
}

// SearchParams returns the live query parameters. Changes write back to the URL.
func (u *URL) SearchParams() *URLSearchParams {
	if u.params == nil {
		u.params = ParseSearchParams(u.u.RawQuery)
		u.params.owner = u
	}
	return u.params
}

// Resolve resolves ref against u.
func (u *URL) Resolve(ref string) (*URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, Errorf(TypeErrorName, "Invalid URL '%s'", ref)
	}
	return &URL{u: u.u.ResolveReference(r)}, nil
}

// Property implements PropertyGetter.
func (u *URL) Property(name string) (any, bool) {
	switch name {
	case "href":
		return u.Href(), true
	case "origin":
		return u.Origin(), true
	case "pathname":
		return u.Pathname(), true
	case "search":
		return u.Search(), true
	case "hash":
		return u.Hash(), true
	case "searchParams":
		return u.SearchParams(), true
	}
	return nil, false
}

// ConstructorName names the object for diagnostics.
func (u *URL) ConstructorName() string {
	return "URL"
}

func (u *URL) syncQuery() {
	u.u.RawQuery = u.params.String()
}

// URLSearchParams is an ordered list of query pairs.
type URLSearchParams struct {
	pairs [][2]string
	owner *URL
}

// ParseSearchParams parses a query string with or without its leading '?'.
func ParseSearchParams(query string) *URLSearchParams {
	query = strings.TrimPrefix(query, "?")
	p := &URLSearchParams{}
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, "=")
		p.pairs = append(p.pairs, [2]string{unescapeQuery(name), unescapeQuery(value)})
	}
	return p
}

func unescapeQuery(s string) string {
	out, err := url.QueryUnescape(s)
	if err != nil {
		return strings.ReplaceAll(s, "+", " ")
	}
	return out
}

// Get returns the first value for name.
func (p *URLSearchParams) Get(name string) (string, bool) {
	for _, kv := range p.pairs {
		if kv[0] == name {
			return kv[1], true
		}
	}
	return "", false
}

// GetAll returns every value for name.
func (p *URLSearchParams) GetAll(name string) []string {
	var out []string
	for _, kv := range p.pairs {
		if kv[0] == name {
			out = append(out, kv[1])
		}
	}
	return out
}

// Set replaces the first value for name and drops the others, or appends.
func (p *URLSearchParams) Set(name, value string) {
	found := false
	kept := p.pairs[:0]
	for _, kv := range p.pairs {
		if kv[0] == name {
			if found {
				continue
			}
			kv[1] = value
			found = true
		}
		kept = append(kept, kv)
	}
	p.pairs = kept
	if !found {
		p.pairs = append(p.pairs, [2]string{name, value})
	}
	p.changed()
}

// Append adds a pair.
func (p *URLSearchParams) Append(name, value string) {
	p.pairs = append(p.pairs, [2]string{name, value})
	p.changed()
}

// Delete removes every pair named name.
func (p *URLSearchParams) Delete(name string) {
	kept := p.pairs[:0]
	for _, kv := range p.pairs {
		if kv[0] != name {
			kept = append(kept, kv)
		}
	}
	p.pairs = kept
	p.changed()
}

// Len returns the number of pairs.
func (p *URLSearchParams) Len() int {
	return len(p.pairs)
}

// String serializes as application/x-www-form-urlencoded.
func (p *URLSearchParams) String() string {
	parts := make([]string, len(p.pairs))
	for i, kv := range p.pairs {
		parts[i] = url.QueryEscape(kv[0]) + "=" + url.QueryEscape(kv[1])
	}
	return strings.Join(parts, "&")
}

// ConstructorName names the object for diagnostics.
func (p *URLSearchParams) ConstructorName() string {
	return "URLSearchParams"
}

func (p *URLSearchParams) changed() {
	if p.owner != nil {
		p.owner.syncQuery()
	}
}

// Location is window.location.
type Location struct {
	url *URL
}

// Href returns the current URL.
func (l *Location) Href() string {
	return l.url.Href()
}

// Search returns the current query with its leading '?'.
func (l *Location) Search() string {
	return l.url.Search()
}

// URL returns the current URL.
func (l *Location) URL() *URL {
	return l.url
}

// Property implements PropertyGetter.
func (l *Location) Property(name string) (any, bool) {
	if name == "searchParams" {
		return nil, false
	}
	return l.url.Property(name)
}

// ConstructorName names the object for diagnostics.
func (l *Location) ConstructorName() string {
	return "Location"
}

// HistoryEntry is one session history record.
type HistoryEntry struct {
	State any
	Title string
	URL   string
}

// History is window.history.
type History struct {
	location *Location
	entries  []HistoryEntry
}

// PushState appends an entry and moves the location. The URL must share the
// current origin.
func (h *History) PushState(state any, title, rawURL string) error {
	target := h.location.url
	if rawURL != "" {
		next, err := h.location.url.Resolve(rawURL)
		if err != nil {
			return Errorf(SecurityErrorName, "Failed to execute 'pushState' on 'History': %v", err)
		}
		if next.Origin() != h.location.url.Origin() {
			return Errorf(SecurityErrorName,
				"Failed to execute 'pushState' on 'History': A history state object with URL '%s' cannot be created in a document with origin '%s'.",
				next.Href(), h.location.url.Origin())
		}
		target = next
	}

	h.location.url = target
	h.entries = append(h.entries, HistoryEntry{State: state, Title: title, URL: target.Href()})
	return nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Entries returns a copy of the session history.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// State returns the current entry's state, or nil.
func (h *History) State() any {
	if len(h.entries) == 0 {
		return nil
	}
	return h.entries[len(h.entries)-1].State
}

// ConstructorName names the object for diagnostics.
func (h *History) ConstructorName() string {
	return "History"
}
