package icy

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var errInvalidText = errors.New("metadata block is not valid UTF-8")

// Field is one key/value pair of an ICY metadata block, e.g. StreamTitle.
type Field struct {
	Key   string
	Value string
}

// ParseMetadata decodes a metadata block such as
// "StreamTitle='Artist - Track';StreamUrl='';". Trailing NUL padding and
// whitespace are dropped. Fields with an empty key, an empty value, no '=' or
// a second '=' outside quotes are skipped one by one; only undecodable bytes
// fail the whole block.
func ParseMetadata(block []byte) ([]Field, error) {
	if !utf8.Valid(block) {
		return nil, errInvalidText
	}

	text := strings.TrimSpace(strings.TrimRight(string(block), "\x00"))
	var fields []Field
	for text != "" {
		eq := strings.IndexByte(text, '=')
		semi := strings.IndexByte(text, ';')
		if eq < 0 || (semi >= 0 && semi < eq) {
			if semi < 0 {
				break
			}
			text = text[semi+1:]
			continue
		}

		key := strings.TrimSpace(text[:eq])
		value, rest, ok := splitValue(strings.TrimLeft(text[eq+1:], " \t"))
		text = rest
		if !ok || key == "" || value == "" {
			continue
		}
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields, nil
}

// splitValue cuts the value at the start of s and returns it with the rest of
// the block. A quoted value ends at the matching quote followed by ';' or the
// end of the block, so titles like 'JANE'S ADDICTION' survive. An unquoted
// value containing '=' is malformed and reported with ok false.
func splitValue(s string) (value, rest string, ok bool) {
	if s != "" && (s[0] == '\'' || s[0] == '"') {
		quote := s[0]
		for i := 1; i < len(s); i++ {
			if s[i] != quote {
				continue
			}
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			if j == len(s) {
				return s[1:i], "", true
			}
			if s[j] == ';' {
				return s[1:i], s[j+1:], true
			}
		}
	}

	raw := s
	if semi := strings.IndexByte(s, ';'); semi >= 0 {
		raw, rest = s[:semi], s[semi+1:]
	}
	if strings.ContainsRune(raw, '=') {
		return "", rest, false
	}
	return trimQuotes(raw), rest, true
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 0 && (s[0] == '\'' || s[0] == '"') {
		s = s[1:]
	}
	if len(s) > 0 && (s[len(s)-1] == '\'' || s[len(s)-1] == '"') {
		s = s[:len(s)-1]
	}
	return s
}
