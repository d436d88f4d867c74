package main

import (
	"io"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/mattn/go-isatty"
)

var (
	nameStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")) // blue
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // gray
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // green
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// palette styles output. The zero value leaves text alone.
type palette struct {
	styled bool
}

// paletteFor styles output only for terminals.
func paletteFor(w io.Writer) palette {
	f, ok := w.(*os.File)
	if !ok {
		return palette{}
	}
	fd := f.Fd()
	return palette{styled: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)}
}

func (p palette) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p palette) name(s string) string { return p.render(nameStyle, s) }
func (p palette) dim(s string) string  { return p.render(dimStyle, s) }
func (p palette) ok(s string) string   { return p.render(okStyle, s) }
func (p palette) fail(s string) string { return p.render(failStyle, s) }

// candidate renders a candidate by its label, followed by its signature
// when the two differ.
func (p palette) candidate(label, signature string) string {
	if label == signature {
		return signature
	}
	return p.render(labelStyle, label) + " " + signature
}
