// Package ui formats terminal output for the registry CLI.
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// Successf prints a success line.
func Successf(w io.Writer, format string, args ...interface{}) {
	successColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Errorf prints an error line.
func Errorf(w io.Writer, format string, args ...interface{}) {
	errorColor.Fprint(w, "✗ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Warnf prints a warning line.
func Warnf(w io.Writer, format string, args ...interface{}) {
	warnColor.Fprint(w, "! ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Infof prints an informational line.
func Infof(w io.Writer, format string, args ...interface{}) {
	infoColor.Fprint(w, "• ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Header prints an underlined section header.
func Header(w io.Writer, title string) {
	fmt.Fprintf(w, "%s\n%s\n", title, strings.Repeat("─", len([]rune(title))))
}
