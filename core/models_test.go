package core

import (
	"testing"
)

func TestChannelOf(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		want     string
	}{
		{name: "root level file", identity: "a.txt", want: ""},
		{name: "channel folder", identity: "@talks/ep1.txt", want: "@talks"},
		{name: "nested folders", identity: "@talks/2024/ep1.txt", want: "@talks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ChannelOf(tt.identity); got != tt.want {
				t.Errorf("ChannelOf(%q) = %q, want %q", tt.identity, got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want string
	}{
		{name: "short text untouched", text: "hello", max: 10, want: "hello"},
		{name: "ascii cut", text: "hello world", max: 5, want: "hello"},
		{name: "no limit", text: "hello", max: 0, want: "hello"},
		{name: "rune boundary", text: "héllo", max: 2, want: "h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Excerpt(tt.text, tt.max); got != tt.want {
				t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.text, tt.max, got, tt.want)
			}
		})
	}
}
