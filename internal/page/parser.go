package page

import (
	"fmt"
	"regexp"
	"strings"
)

// ShortcodeTag opens a form shortcode: [basicform schema="signup"].
const ShortcodeTag = "[basicform"

type nodeType int

const (
	nodeText nodeType = iota
	nodeExpr
	nodeShortcode
)

type node struct {
	typ   nodeType
	text  string            // literal text or expression source
	attrs map[string]string // shortcode attributes
}

var attrPattern = regexp.MustCompile(`([A-Za-z_][\w-]*)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'\]]+))`)

// parse splits page content into literal text, {{ expr }} expressions and
// form shortcodes. {# comments #} are dropped.
func parse(src string) ([]node, error) {
	var nodes []node
	remaining := src

	for len(remaining) > 0 {
		next := len(remaining)
		tag := ""
		for _, candidate := range []string{"{#", "{{", ShortcodeTag} {
			if i := indexTag(remaining, candidate); i >= 0 && i < next {
				next, tag = i, candidate
			}
		}

		if next > 0 {
			nodes = appendText(nodes, remaining[:next])
			remaining = remaining[next:]
		}
		if tag == "" {
			break
		}

		switch tag {
		case "{#":
			end := strings.Index(remaining, "#}")
			if end < 0 {
				return nil, fmt.Errorf("unclosed comment")
			}
			remaining = remaining[end+2:]

		case "{{":
			end := strings.Index(remaining, "}}")
			if end < 0 {
				return nil, fmt.Errorf("unclosed expression tag")
			}
			expr := strings.TrimSpace(remaining[2:end])
			if expr == "" {
				return nil, fmt.Errorf("empty expression tag")
			}
			nodes = append(nodes, node{typ: nodeExpr, text: expr})
			remaining = remaining[end+2:]

		case ShortcodeTag:
			end := closingBracket(remaining)
			if end < 0 {
				return nil, fmt.Errorf("unclosed %s shortcode", ShortcodeTag)
			}
			nodes = append(nodes, node{typ: nodeShortcode, attrs: parseAttrs(remaining[len(ShortcodeTag):end])})
			remaining = remaining[end+1:]
		}
	}

	return nodes, nil
}

// indexTag finds tag in s. The shortcode tag only matches when followed by
// whitespace or the closing bracket so [basicformx] stays literal.
func indexTag(s, tag string) int {
	if tag != ShortcodeTag {
		return strings.Index(s, tag)
	}
	offset := 0
	for {
		i := strings.Index(s[offset:], tag)
		if i < 0 {
			return -1
		}
		i += offset
		after := i + len(tag)
		if after < len(s) && (s[after] == ']' || s[after] == ' ' || s[after] == '\t' || s[after] == '\n') {
			return i
		}
		offset = after
	}
}

// closingBracket returns the index of the first ']' in s that is outside a
// quoted attribute value, or -1.
func closingBracket(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

func appendText(nodes []node, text string) []node {
	if n := len(nodes); n > 0 && nodes[n-1].typ == nodeText {
		nodes[n-1].text += text
		return nodes
	}
	return append(nodes, node{typ: nodeText, text: text})
}

func parseAttrs(s string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		attrs[strings.ToLower(m[1])] = m[2] + m[3] + m[4]
	}
	return attrs
}
