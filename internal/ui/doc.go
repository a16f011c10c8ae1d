// Package ui styles human-readable CLI output with lipgloss.
//
// Styles degrade to plain text when the output is not a terminal, so rendered strings are safe to
// compare in tests.
package ui
