package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// Printer writes styled status lines.
type Printer struct {
	out *termenv.Output
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: NewOutput(w)}
}

func (p *Printer) line(symbol, color, format string, args ...any) {
	prefix := p.out.String(symbol).Foreground(p.out.Color(color)).Bold()
	fmt.Fprintf(p.out, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Success prints a green check line.
func (p *Printer) Success(format string, args ...any) {
	p.line("✔", "#22c55e", format, args...)
}

// Failure prints a red cross line.
func (p *Printer) Failure(format string, args ...any) {
	p.line("✘", "#ef4444", format, args...)
}

// Info prints a neutral line.
func (p *Printer) Info(format string, args ...any) {
	p.line("•", "#818cf8", format, args...)
}

// Faint prints dimmed text, for details under a status line.
func (p *Printer) Faint(format string, args ...any) {
	fmt.Fprintln(p.out, p.out.String(fmt.Sprintf(format, args...)).Faint())
}
