package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const banner = `
  ____             _              ____       _ 
 |  _ \ __ _ _ __ | |_ _ __ _   _|  _ \ __ _| |
 | |_) / _` + "`" + ` | '_ \| __| '__| | | | |_) / _` + "`" + ` | |
 |  __/ (_| | | | | |_| |  | |_| |  __/ (_| | |
 |_|   \__,_|_| |_|\__|_|   \__, |_|   \__,_|_|
                            |___/              
`

// isTerminal reports whether v is an *os.File attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func printBanner(w io.Writer, subtitle string) {
	if !isTerminal(w) {
		fmt.Fprintf(w, "PantryPal %s - %s\n", Version, subtitle)
		return
	}
	fmt.Fprintf(w, "\x1b[33m%s\x1b[0m", banner)
	fmt.Fprintf(w, "\x1b[32m  %s - Version %s\x1b[0m\n\n", subtitle, Version)
}
