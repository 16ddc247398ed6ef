// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders CLI output. Styled output is used on terminals and
// plain, line-oriented output everywhere else.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")
	ColorWarning     = lipgloss.Color("#F4D03F")
	ColorError       = lipgloss.Color("#E74C3C")
)

// Styles are the lipgloss styles used by Printer.
var Styles = struct {
	Title   lipgloss.Style
	Key     lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Key:     lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorTealBright),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// Render returns the icon in its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// Mode selects how a Printer renders.
type Mode string

const (
	ModeStyled Mode = "styled"
	ModePlain  Mode = "plain"
)

// DetectMode returns ModePlain when PROMPTFUSION_OUTPUT=plain or w is not a
// terminal, ModeStyled otherwise.
func DetectMode(w io.Writer) Mode {
	switch strings.ToLower(os.Getenv("PROMPTFUSION_OUTPUT")) {
	case "plain", "machine":
		return ModePlain
	case "styled":
		return ModeStyled
	}
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return ModePlain
	}
	return ModeStyled
}

// Printer writes human-facing output.
type Printer struct {
	out  io.Writer
	errw io.Writer
	mode Mode
}

// NewPrinter returns a Printer writing results to out and problems to errw.
func NewPrinter(out, errw io.Writer, mode Mode) *Printer {
	return &Printer{out: out, errw: errw, mode: mode}
}

// Stdout returns a Printer on the process streams with a detected mode.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, os.Stderr, DetectMode(os.Stdout))
}

func (p *Printer) Plain() bool { return p.mode == ModePlain }

// Title prints a heading. Plain output omits it.
func (p *Printer) Title(text string) {
	if p.Plain() {
		return
	}
	fmt.Fprintln(p.out, Styles.Title.Render(text))
}

func (p *Printer) Success(text string) {
	if p.Plain() {
		fmt.Fprintf(p.out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

func (p *Printer) Warning(text string) {
	if p.Plain() {
		fmt.Fprintf(p.errw, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.errw, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

func (p *Printer) Error(text string) {
	if p.Plain() {
		fmt.Fprintf(p.errw, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.errw, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// KeyValues prints aligned key/value pairs. kv alternates keys and values.
func (p *Printer) KeyValues(kv ...string) {
	width := 0
	for i := 0; i+1 < len(kv); i += 2 {
		width = max(width, len(kv[i]))
	}
	for i := 0; i+1 < len(kv); i += 2 {
		if p.Plain() {
			fmt.Fprintf(p.out, "%s=%s\n", kv[i], kv[i+1])
			continue
		}
		pad := strings.Repeat(" ", width-len(kv[i]))
		fmt.Fprintf(p.out, "%s%s  %s\n", Styles.Key.Render(kv[i]), pad, kv[i+1])
	}
}

// Box prints content under a title, boxed on terminals.
func (p *Printer) Box(title, content string) {
	if p.Plain() {
		fmt.Fprintln(p.out, content)
		return
	}
	fmt.Fprintln(p.out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+strings.TrimRight(content, "\n")))
}

// Raw writes text unchanged, adding a trailing newline if missing.
func (p *Printer) Raw(text string) {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	fmt.Fprint(p.out, text)
}
