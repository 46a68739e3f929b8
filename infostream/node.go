package infostream

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// plainScalar is an unquoted scalar: map keys, timestamps, and
// anything else printed bare rather than through the string-escaping
// path.
func plainScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: s}
}

// quoted is a double-quoted scalar, used for every string value:
// backslash, double-quote, newline, tab, and carriage return are
// escaped by the encoder, and non-printable bytes come out as \xHH.
func quoted(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
}

// intScalar renders n as a bare integer scalar.
func intScalar(n int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n)}
}

// floatScalar renders a pre-formatted decimal (the "%d.%06d" elapsed
// time fields) as a bare float scalar.
func floatScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: s}
}

// nullScalar renders as "~", the marker for "field has no value"
// (unresolved PID, disabled unwinder, no mappings).
func nullScalar() *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "~"}
}

// literalScalar renders s as a YAML block literal ("|"), preserving
// embedded newlines verbatim for multi-line /proc file contents.
func literalScalar(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.LiteralStyle}
}
