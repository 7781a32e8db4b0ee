package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the authtree ASCII banner to w.
func PrintBanner(w io.Writer) {
	out := NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{`              _   _     _                 `, "#818cf8"},
		{`   __ _ _   _| |_| |__ | |_ _ __ ___  ___ `, "#a78bfa"},
		{`  / _' | | | | __| '_ \| __| '__/ _ \/ _ \`, "#c084fc"},
		{` | (_| | |_| | |_| | | | |_| | |  __/  __/`, "#e879f9"},
		{`  \__,_|\__,_|\__|_| |_|\__|_|  \___|\___|`, "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// NewOutput returns a termenv output for w. Colors are only used when w is a terminal.
func NewOutput(w io.Writer) *termenv.Output {
	if !IsTerminal(w) {
		return termenv.NewOutput(w, termenv.WithProfile(termenv.Ascii))
	}
	return termenv.NewOutput(w)
}
