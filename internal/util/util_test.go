// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestWriteFileAtomic_PrivateCreatesParents(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "agentlz", "state")
	path := filepath.Join(dir, "config.toml")

	if err := WriteFileAtomic(path, []byte("token = \"x\"\n"), PrivatePerms); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "token = \"x\"\n" {
		t.Errorf("Content mismatch: got %q", content)
	}

	if runtime.GOOS != "windows" {
		assertMode(t, path, 0600)
		assertMode(t, dir, 0700)
	}
}

func TestWriteFileAtomic_SharedExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "agentlz_chat.md")

	if err := WriteFileAtomic(path, []byte("# chat\n"), SharedPerms); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	if runtime.GOOS != "windows" {
		assertMode(t, path, 0644)
	}
}

func TestWriteFileAtomic_ReplacesWithoutLeftovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_history")

	for _, content := range []string{"first prompt", "second prompt"} {
		if err := WriteFileAtomic(path, []byte(content), PrivatePerms); err != nil {
			t.Fatalf("write %q failed: %v", content, err)
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "second prompt" {
		t.Errorf("Content not updated: got %q", content)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestWriteFileAtomic_ParentIsFile(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(parent, nil, 0600); err != nil {
		t.Fatal(err)
	}

	err := WriteFileAtomic(filepath.Join(parent, "config.toml"), []byte("x"), PrivatePerms)
	if err == nil {
		t.Fatal("expected an error when the parent is a file")
	}
	if !strings.Contains(err.Error(), "not-a-dir") {
		t.Errorf("error does not name the path: %v", err)
	}
}

func assertMode(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != want {
		t.Errorf("%s mode = %v, want %v", filepath.Base(path), info.Mode().Perm(), want)
	}
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		input string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 0, ""},
		{"hello", 2, "he"},
		{"你好世界你好", 7, "你好..."},
		{"deploy", 6, "deploy"},
	}
	for _, tc := range tests {
		if got := TruncateWidth(tc.input, tc.width); got != tc.want {
			t.Errorf("TruncateWidth(%q, %d) = %q, want %q", tc.input, tc.width, got, tc.want)
		}
		if got := StringWidth(TruncateWidth(tc.input, tc.width)); got > tc.width && tc.width > 0 {
			t.Errorf("TruncateWidth(%q, %d) is %d columns wide", tc.input, tc.width, got)
		}
	}
}

func TestStringWidth(t *testing.T) {
	if got := StringWidth("abc"); got != 3 {
		t.Errorf("StringWidth(abc) = %d", got)
	}
	if got := StringWidth("你好"); got != 4 {
		t.Errorf("StringWidth(你好) = %d", got)
	}
}

func TestPadRight(t *testing.T) {
	if got := PadRight("ab", 4); got != "ab  " {
		t.Errorf("PadRight() = %q", got)
	}
	if got := PadRight("你", 4); StringWidth(got) != 4 {
		t.Errorf("PadRight() = %q", got)
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine("  release\n notes\t2024 "); got != "release notes 2024" {
		t.Errorf("SingleLine() = %q", got)
	}
}

func TestWrapWidth(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"fits", "short line", 20, "short line"},
		{"word boundary", "hello world again", 11, "hello world\nagain"},
		{"keeps newlines", "a b\nc d", 3, "a b\nc d"},
		{"long word", "abcdefghij", 4, "abcd\nefgh\nij"},
		{"wide runes", "你好 世界", 4, "你好\n世界"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := WrapWidth(tc.input, tc.width)
			if got != tc.want {
				t.Errorf("WrapWidth(%q, %d) = %q, want %q", tc.input, tc.width, got, tc.want)
			}
			for _, line := range strings.Split(got, "\n") {
				if StringWidth(line) > tc.width {
					t.Errorf("line %q exceeds %d columns", line, tc.width)
				}
			}
		})
	}
}
