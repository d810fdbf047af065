package domain

import (
	"regexp"
	"sort"
	"strings"
)

var (
	// canonicalMention matches "@<url>" and "@<nick url>".
	canonicalMention = regexp.MustCompile(`@<(?:([^\s<>]+?)\s+)?([^\s<>]+?://[^\s<>]*)>`)

	// shortMention matches "@nick".
	shortMention = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)
)

// Directory resolves nicks to feed URLs and back. It is a snapshot of the
// known sources and must be rebuilt whenever the follow list changes.
type Directory struct {
	byNick map[string]string
	byURL  map[string]string
}

// NewDirectory builds a directory from the follow list and, when self has a
// nick and URL, the user's own source. When several nicks share a URL the
// reverse lookup keeps the last one applied: follows in nick order, then self.
func NewDirectory(following map[string]string, self Source) *Directory {
	d := &Directory{
		byNick: make(map[string]string, len(following)+1),
		byURL:  make(map[string]string, len(following)+1),
	}

	nicks := make([]string, 0, len(following))
	for nick := range following {
		nicks = append(nicks, nick)
	}
	sort.Strings(nicks)

	for _, nick := range nicks {
		d.add(nick, following[nick])
	}
	if self.Nick != "" && self.URL != "" {
		d.add(self.Nick, self.URL)
	}
	return d
}

func (d *Directory) add(nick, url string) {
	d.byNick[nick] = url
	d.byURL[url] = nick
}

// URL returns the feed URL known for nick.
func (d *Directory) URL(nick string) (string, bool) {
	url, ok := d.byNick[nick]
	return url, ok
}

// Nick returns the nick known for url.
func (d *Directory) Nick(url string) (string, bool) {
	nick, ok := d.byURL[url]
	return nick, ok
}

// Collapse rewrites canonical mentions of known sources to "@nick".
// Mentions of unknown URLs are left untouched.
func (d *Directory) Collapse(text string) string {
	return rewrite(text, func(m mention) string {
		if m.kind != mentionCanonical {
			return m.raw
		}
		if nick, ok := d.byURL[m.url]; ok {
			return "@" + nick
		}
		return m.raw
	})
}

// Expand rewrites "@nick" mentions of known sources to their canonical
// form, "@<nick url>" when embedNames is set and "@<url>" otherwise.
// Unknown nicks and existing canonical mentions are left untouched.
func (d *Directory) Expand(text string, embedNames bool) string {
	return rewrite(text, func(m mention) string {
		if m.kind != mentionShort {
			return m.raw
		}
		url, ok := d.byNick[m.nick]
		if !ok {
			return m.raw
		}
		if embedNames {
			return "@<" + m.nick + " " + url + ">"
		}
		return "@<" + url + ">"
	})
}

// Mention is a canonical mention found in tweet text.
type Mention struct {
	Nick string
	URL  string
}

// Mentions returns the canonical mentions in text in order of appearance.
func Mentions(text string) []Mention {
	var out []Mention
	for _, m := range tokenize(text) {
		if m.kind == mentionCanonical {
			out = append(out, Mention{Nick: m.nick, URL: m.url})
		}
	}
	return out
}

type mentionKind int

const (
	literal mentionKind = iota
	mentionShort
	mentionCanonical
)

// mention is one span of tokenized text.
type mention struct {
	kind mentionKind
	raw  string
	nick string
	url  string
}

func rewrite(text string, resolve func(mention) string) string {
	spans := tokenize(text)
	var sb strings.Builder
	sb.Grow(len(text))
	for _, s := range spans {
		if s.kind == literal {
			sb.WriteString(s.raw)
			continue
		}
		sb.WriteString(resolve(s))
	}
	return sb.String()
}

// tokenize splits text into literal, short mention and canonical mention
// spans. Canonical mentions are found first so that nothing inside them is
// read as a short mention.
func tokenize(text string) []mention {
	var spans []mention
	pos := 0
	for _, loc := range canonicalMention.FindAllStringSubmatchIndex(text, -1) {
		spans = appendShort(spans, text[pos:loc[0]])
		m := mention{kind: mentionCanonical, raw: text[loc[0]:loc[1]], url: text[loc[4]:loc[5]]}
		if loc[2] >= 0 {
			m.nick = text[loc[2]:loc[3]]
		}
		spans = append(spans, m)
		pos = loc[1]
	}
	return appendShort(spans, text[pos:])
}

func appendShort(spans []mention, text string) []mention {
	pos := 0
	for _, loc := range shortMention.FindAllStringSubmatchIndex(text, -1) {
		// "user@host" is not a mention.
		if loc[0] > 0 && isNickByte(text[loc[0]-1]) {
			continue
		}
		if loc[0] > pos {
			spans = append(spans, mention{kind: literal, raw: text[pos:loc[0]]})
		}
		spans = append(spans, mention{kind: mentionShort, raw: text[loc[0]:loc[1]], nick: text[loc[2]:loc[3]]})
		pos = loc[1]
	}
	if pos < len(text) {
		spans = append(spans, mention{kind: literal, raw: text[pos:]})
	}
	return spans
}

func isNickByte(b byte) bool {
	return b == '_' || b == '-' || b == '.' ||
		('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
