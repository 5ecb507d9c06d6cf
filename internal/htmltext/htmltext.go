// Package htmltext flattens HTML into plain text. Parsing is permissive:
// broken markup yields best-effort text, never an error. Block-level
// elements become paragraphs separated by exactly one blank line; runs of
// whitespace inside a paragraph collapse to a single space.
package htmltext

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// Render decodes htmlBytes using encodingHint (falling back to UTF-8, then
// Latin-1) and flattens the markup into plain text.
func Render(htmlBytes []byte, encodingHint string) (string, error) {
	text, err := decodeText(htmlBytes, encodingHint)
	if err != nil {
		return "", err
	}
	node, err := html.Parse(strings.NewReader(text))
	if err != nil {
		// x/net/html recovers from malformed markup; an error here means
		// the reader failed, which cannot happen for an in-memory string,
		// or the nesting depth limit was hit.
		return "", fmt.Errorf("htmltext: parse: %w", err)
	}

	var r renderer
	r.walk(node, walkState{})
	r.flush()
	return strings.Join(r.paras, "\n\n"), nil
}

// decodeText converts raw bytes to a UTF-8 string. The hint is tried
// strictly first; mis-declared encodings fall back to UTF-8 validation and
// finally Latin-1, which maps every byte sequence.
func decodeText(b []byte, hint string) (string, error) {
	if hint != "" {
		if enc, err := htmlindex.Get(hint); err == nil {
			if s, err := enc.NewDecoder().Bytes(b); err == nil && !strings.ContainsRune(string(s), utf8.RuneError) {
				return string(s), nil
			}
		}
	}
	if utf8.Valid(b) {
		return string(b), nil
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("htmltext: undecodable byte sequence: %w", err)
	}
	return string(s), nil
}

// walkState carries per-subtree rendering context.
type walkState struct {
	pre       bool // inside pre/code: keep whitespace verbatim
	listIndex *int // inside ol: 1-based item counter, nil for ul
	inList    bool
	rowCells  *int // inside tr: rendered cell count
}

type renderer struct {
	paras     []string
	cur       strings.Builder
	lastSpace bool
}

// flush closes the current paragraph, dropping it when empty so that
// consecutive block boundaries collapse into a single separator.
func (r *renderer) flush() {
	p := strings.TrimSpace(r.cur.String())
	r.cur.Reset()
	r.lastSpace = false
	if p != "" {
		r.paras = append(r.paras, p)
	}
}

func (r *renderer) walk(n *html.Node, st walkState) {
	switch n.Type {
	case html.TextNode:
		if st.pre {
			r.cur.WriteString(n.Data)
			r.lastSpace = false
			return
		}
		r.writeCollapsed(n.Data)
		return
	case html.ElementNode:
		// Non-content subtrees are dropped entirely.
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Head,
			atom.Nav, atom.Header, atom.Footer,
			atom.Iframe, atom.Frame, atom.Object, atom.Embed:
			return
		}
		if isBoilerplate(n) {
			return
		}

		switch n.DataAtom {
		case atom.Br, atom.Hr:
			r.flush()
			return
		case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Div, atom.Blockquote, atom.Section, atom.Article,
			atom.Table, atom.Pre:
			r.flush()
		case atom.Ul:
			r.flush()
			st.inList = true
			st.listIndex = nil
		case atom.Ol:
			r.flush()
			idx := 0
			st.inList = true
			st.listIndex = &idx
		case atom.Li:
			r.flush()
			if st.inList {
				if st.listIndex != nil {
					*st.listIndex++
					r.cur.WriteString(strconv.Itoa(*st.listIndex) + ". ")
				} else {
					r.cur.WriteString("• ")
				}
				r.lastSpace = true
			}
		case atom.Tr:
			r.flush()
			cells := 0
			st.rowCells = &cells
		case atom.Td, atom.Th:
			if st.rowCells != nil {
				if *st.rowCells > 0 {
					r.cur.WriteString(" | ")
					r.lastSpace = true
				}
				*st.rowCells++
			}
		case atom.Code:
			st.pre = true
		}
		if n.DataAtom == atom.Pre {
			st.pre = true
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c, st)
	}

	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
			atom.Div, atom.Blockquote, atom.Section, atom.Article,
			atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Li, atom.Pre:
			r.flush()
		}
	}
}

// writeCollapsed appends text with whitespace runs collapsed to a single
// space. Zero-width characters are dropped and exotic Unicode spaces count
// as whitespace.
func (r *renderer) writeCollapsed(s string) {
	for _, c := range s {
		switch c {
		case '\u200b', '\ufeff':
			continue
		}
		if isSpaceRune(c) {
			if !r.lastSpace && r.cur.Len() > 0 {
				r.cur.WriteByte(' ')
				r.lastSpace = true
			}
			continue
		}
		r.cur.WriteRune(c)
		r.lastSpace = false
	}
}

func isSpaceRune(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f',
		'\u00a0', '\u1680', '\u202f', '\u205f', '\u3000':
		return true
	}
	return c >= '\u2000' && c <= '\u200a'
}

// boilerplateMarkers flag navigation and advertising containers by their
// id or class, the same heuristic browsers' reader modes use.
var boilerplateMarkers = []string{"nav", "menu", "sidebar", "advert"}

func isBoilerplate(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key != "id" && attr.Key != "class" {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, m := range boilerplateMarkers {
			if strings.Contains(val, m) {
				return true
			}
		}
		for _, tok := range strings.Fields(val) {
			if tok == "ad" || tok == "ads" {
				return true
			}
		}
	}
	return false
}
