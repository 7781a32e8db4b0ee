package tui

import (
	"io"

	"golang.org/x/term"
)

// fdWriter is implemented by *os.File.
type fdWriter interface {
	Fd() uintptr
}

// IsTerminal reports whether v is backed by a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(fdWriter)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readSecret reads a line without echo when in is a terminal.
func readSecret(in io.Reader) (string, bool, error) {
	f, ok := in.(fdWriter)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", false, nil
	}
	b, err := term.ReadPassword(int(f.Fd()))
	return string(b), true, err
}
