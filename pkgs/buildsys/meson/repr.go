package meson

import (
	"fmt"
	"strings"
	"unicode"
)

// pyListRepr formats args the way Python's repr() formats a list of str,
// which is what "meson compile --ninja-args" parses.
func pyListRepr(args []string) string {
	sb := new(strings.Builder)
	sb.WriteByte('[')
	for i, arg := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		pyStrRepr(sb, arg)
	}
	sb.WriteByte(']')
	return sb.String()
}

func pyStrRepr(sb *strings.Builder, s string) {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	sb.WriteRune(quote)
	for _, r := range s {
		switch {
		case r == quote || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r == '\t':
			sb.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(sb, `\x%02x`, r)
		case r < 0x80 || unicode.IsPrint(r):
			sb.WriteRune(r)
		case r < 0x100:
			fmt.Fprintf(sb, `\x%02x`, r)
		case r < 0x10000:
			fmt.Fprintf(sb, `\u%04x`, r)
		default:
			fmt.Fprintf(sb, `\U%08x`, r)
		}
	}
	sb.WriteRune(quote)
}
