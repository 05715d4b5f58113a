package cli

import (
	"fmt"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/term"
)

var isTerminal = term.IsTerminal

// renderPalette prints each color as a truecolor block followed by its hex
// code. Without color support only the codes are printed.
func renderPalette(colors []string, color bool) string {
	var b strings.Builder
	for i, hex := range colors {
		if i > 0 {
			b.WriteByte(' ')
		}
		c, err := colorful.Hex(hex)
		if !color || err != nil {
			b.WriteString(hex)
			continue
		}
		r, g, bl := c.RGB255()
		fmt.Fprintf(&b, "\x1b[48;2;%d;%d;%dm    \x1b[0m %s", r, g, bl, hex)
	}
	return b.String()
}
