// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// StringWidth returns the number of terminal columns s occupies. Wide
// characters count as two.
func StringWidth(s string) int {
	return runewidth.StringWidth(s)
}

// TruncateWidth cuts s to at most maxWidth columns, ending in Ellipsis
// when anything was dropped.
func TruncateWidth(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(Ellipsis) {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, Ellipsis)
}

// PadRight pads s with spaces to width columns.
func PadRight(s string, width int) string {
	return runewidth.FillRight(s, width)
}

// SingleLine collapses every run of whitespace, newlines included, into one
// space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WrapWidth wraps plain text to width columns, breaking at spaces where
// possible. Existing newlines are kept.
func WrapWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	var out strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			out.WriteByte('\n')
		}
		if runewidth.StringWidth(line) <= width {
			out.WriteString(line)
			continue
		}
		out.WriteString(wrapLine(line, width))
	}
	return out.String()
}

func wrapLine(line string, width int) string {
	var out, current strings.Builder
	currentWidth := 0

	flush := func() {
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(strings.TrimRight(current.String(), " "))
		current.Reset()
		currentWidth = 0
	}

	for _, word := range strings.SplitAfter(line, " ") {
		textWidth := runewidth.StringWidth(strings.TrimRight(word, " "))
		if currentWidth > 0 && currentWidth+textWidth > width {
			flush()
		}
		if textWidth <= width {
			current.WriteString(word)
			currentWidth += runewidth.StringWidth(word)
			continue
		}
		// A word longer than the line is cut by columns.
		for _, r := range word {
			rw := runewidth.RuneWidth(r)
			if currentWidth+rw > width {
				if r == ' ' {
					continue
				}
				flush()
			}
			current.WriteRune(r)
			currentWidth += rw
		}
	}
	if current.Len() > 0 {
		flush()
	}
	return out.String()
}
