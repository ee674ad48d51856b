package m3u

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// extinf is the decoded body of an #EXTINF directive.
type extinf struct {
	duration string
	attrs    map[string]string
	name     string
}

// parseExtinf splits the text after "#EXTINF:" into duration, key="value"
// attributes and display name. The name is whatever follows the last comma
// outside a quoted value. Problems are returned as human readable strings;
// they never abort the line.
func parseExtinf(body string) (extinf, []string) {
	info := extinf{
		attrs: make(map[string]string, 4),
		name:  UnknownName,
	}

	section := body

	if sep := nameSeparator(body); sep >= 0 {
		section = body[:sep]

		if name := strings.TrimSpace(body[sep+1:]); name != "" {
			info.name = name
		}
	}

	t := &attrTokenizer{src: section}
	if w := t.word(); strings.Contains(w, "=") {
		t.pos = 0 // no duration, attributes start right away
	} else {
		info.duration = w
	}

	var problems []string

	for {
		key, value, problem, ok := t.next()
		if !ok {
			break
		}

		if problem != "" {
			problems = append(problems, problem)
		}

		if key != "" {
			info.attrs[key] = value
		}
	}

	return info, problems
}

// nameSeparator returns the index of the last comma outside double quotes.
// When the quotes never balance the literal last comma is used instead.
func nameSeparator(body string) int {
	last := -1
	inQuote := false

	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			inQuote = !inQuote
		case ',':
			if !inQuote {
				last = i
			}
		}
	}

	if inQuote {
		return strings.LastIndexByte(body, ',')
	}

	return last
}

// attrTokenizer recognises key="value" pairs in any order.
type attrTokenizer struct {
	src string
	pos int
}

func (t *attrTokenizer) skipSpace() {
	for t.pos < len(t.src) && isSpace(t.src[t.pos]) {
		t.pos++
	}
}

func (t *attrTokenizer) skipToken() {
	for t.pos < len(t.src) && !isSpace(t.src[t.pos]) {
		t.pos++
	}
}

// word consumes the next whitespace-delimited token.
func (t *attrTokenizer) word() string {
	t.skipSpace()

	start := t.pos
	t.skipToken()

	return t.src[start:t.pos]
}

// next returns the next attribute. ok is false once the input is exhausted.
// An unterminated quote yields an empty value and consumes the rest of the input.
func (t *attrTokenizer) next() (key, value, problem string, ok bool) {
	t.skipSpace()

	if t.pos >= len(t.src) {
		return "", "", "", false
	}

	start := t.pos
	for t.pos < len(t.src) && isKeyChar(t.src[t.pos]) {
		t.pos++
	}

	rawKey := t.src[start:t.pos]

	if t.pos >= len(t.src) || t.src[t.pos] != '=' {
		// Not an attribute: skip the stray token.
		t.skipToken()

		return "", "", "", true
	}

	key = strings.ToLower(rawKey)
	t.pos++ // '='

	if t.pos >= len(t.src) || t.src[t.pos] != '"' {
		raw := t.word()

		return "", "", fmt.Sprintf("attribute %s=%s is not double-quoted, ignored", rawKey, raw), true
	}

	t.pos++ // opening quote

	rest := t.src[t.pos:]
	end := strings.IndexByte(rest, '"')

	// A following key="..." before the closing quote means this value was
	// never closed; parsing resumes at that key.
	if next := attrStart(rest); next >= 0 && (end < 0 || next < end) {
		t.pos += next

		return key, "", fmt.Sprintf("attribute %s has an unterminated quote", rawKey), true
	}

	if end < 0 {
		t.pos = len(t.src)

		return key, "", fmt.Sprintf("attribute %s has an unterminated quote", rawKey), true
	}

	value = t.src[t.pos : t.pos+end]
	t.pos += end + 1

	return key, strings.TrimSpace(value), "", true
}

// attrStart returns the offset of the first whitespace-preceded key="
// in s, or -1.
func attrStart(s string) int {
	for i := 0; i < len(s); i++ {
		if !isSpace(s[i]) {
			continue
		}

		j := i
		for j < len(s) && isSpace(s[j]) {
			j++
		}

		k := j
		for k < len(s) && isKeyChar(s[k]) {
			k++
		}

		if k > j && k+1 < len(s) && s[k] == '=' && s[k+1] == '"' {
			return j
		}

		i = j - 1
	}

	return -1
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

func isKeyChar(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// NormalizeName derives a channel id from a display name: NFC, lowercase,
// whitespace collapsed. The result is deterministic for a given name.
func NormalizeName(name string) string {
	name = strings.ToLower(norm.NFC.String(name))

	return strings.Join(strings.Fields(name), " ")
}
