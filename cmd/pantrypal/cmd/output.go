package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

// render prints v as indented JSON under --json, otherwise calls table with
// a tab-aligned writer.
func (a *app) render(v any, table func(w io.Writer)) error {
	if a.flags.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// prompt reads one line from the command's input, printing label first
// when the input is a terminal.
func (a *app) prompt(r *bufio.Reader, label string) (string, error) {
	if isTerminal(a.in) {
		fmt.Fprint(a.errOut, label)
	}
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return id, nil
}

func checkMark(b bool) string {
	if b {
		return "[x]"
	}
	return "[ ]"
}
