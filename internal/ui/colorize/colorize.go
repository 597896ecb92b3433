// Package colorize highlights signature definition JSON and match
// context assembly for terminal output.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// getJSONLexer returns a JSON lexer, or nil when unavailable.
func getJSONLexer() chroma.Lexer {
	return lexers.Get("json")
}

// getAssemblyLexer returns an appropriate assembly lexer with fallbacks.
func getAssemblyLexer() chroma.Lexer {
	candidates := []string{"armasm", "gas", "GAS", "Gas", "nasm"}
	for _, name := range candidates {
		if lexer := lexers.Get(name); lexer != nil {
			return lexer
		}
	}
	return nil
}

// getStyle returns the highlight style with fallbacks.
func getStyle() *chroma.Style {
	candidates := []string{"cryptoscan-dark", "dracula", "monokai"}
	for _, name := range candidates {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter.
func getTerminalFormatter() chroma.Formatter {
	candidates := []string{"terminal16m", "terminal256"}
	for _, name := range candidates {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

func highlight(code string, lexer chroma.Lexer) (string, error) {
	// Check if colors are disabled
	if os.Getenv("CRYPTOSCAN_NO_COLOR") != "" {
		return code, nil
	}
	if lexer == nil {
		return code, nil
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getStyle(), iterator); err != nil {
		return code, err
	}
	return buf.String(), nil
}

// JSON highlights a signature definition for terminal display.
func JSON(code string) (string, error) {
	return highlight(code, getJSONLexer())
}

// Assembly highlights disassembly context for terminal display.
func Assembly(code string) (string, error) {
	return highlight(code, getAssemblyLexer())
}
