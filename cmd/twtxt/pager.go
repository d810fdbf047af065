package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

const defaultPager = "less -R"

// writeLines prints lines, through $PAGER when usePager is set and out is
// a terminal.
func writeLines(out io.Writer, lines []string, usePager bool) error {
	text := strings.Join(lines, "\n")
	if text != "" {
		text += "\n"
	}

	if !usePager || !isTerminal(out) {
		_, err := io.WriteString(out, text)
		return err
	}

	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = defaultPager
	}
	cmd := exec.Command("sh", "-c", pager)
	cmd.Stdin = strings.NewReader(text)
	cmd.Stdout = out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run pager %q: %w", pager, err)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
