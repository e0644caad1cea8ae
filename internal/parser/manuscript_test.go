package parser

import (
	"strings"
	"testing"
)

func TestParseManuscriptChapters(t *testing.T) {
	content := `---
title: Harbor Season
project: novel
---

# Chapter 1: The Pier

Mira walked to the harbor.

# Chapter 2 - Storm

The storm broke at dusk.

# Epilogue

Years later the pier still stood.
`

	m, err := ParseManuscript(content)
	if err != nil {
		t.Fatalf("ParseManuscript() error = %v", err)
	}

	if m.Title != "Harbor Season" {
		t.Errorf("Title = %q, want %q", m.Title, "Harbor Season")
	}
	if len(m.Chapters) != 3 {
		t.Fatalf("got %d chapters, want 3", len(m.Chapters))
	}

	tests := []struct {
		number  int
		title   string
		content string
	}{
		{1, "The Pier", "Mira walked to the harbor."},
		{2, "Storm", "The storm broke at dusk."},
		{3, "Epilogue", "Years later the pier still stood."},
	}
	for i, want := range tests {
		ch := m.Chapters[i]
		if ch.Number != want.number {
			t.Errorf("chapter[%d].Number = %d, want %d", i, ch.Number, want.number)
		}
		if ch.Title != want.title {
			t.Errorf("chapter[%d].Title = %q, want %q", i, ch.Title, want.title)
		}
		if ch.Content != want.content {
			t.Errorf("chapter[%d].Content = %q, want %q", i, ch.Content, want.content)
		}
	}
}

func TestParseManuscriptProseWithoutHeadings(t *testing.T) {
	m, err := ParseManuscript("Just prose.\n\nMore prose.")
	if err != nil {
		t.Fatalf("ParseManuscript() error = %v", err)
	}
	if len(m.Chapters) != 1 {
		t.Fatalf("got %d chapters, want 1", len(m.Chapters))
	}
	if m.Chapters[0].Number != 1 {
		t.Errorf("implicit chapter number = %d, want 1", m.Chapters[0].Number)
	}
	if !strings.Contains(m.Chapters[0].Content, "More prose.") {
		t.Errorf("implicit chapter lost prose: %q", m.Chapters[0].Content)
	}
}

func TestParseManuscriptExplicitNumbering(t *testing.T) {
	content := "# Chapter 7: Late Start\n\nSeven.\n\n# Interlude\n\nEight.\n"
	m, err := ParseManuscript(content)
	if err != nil {
		t.Fatalf("ParseManuscript() error = %v", err)
	}
	if len(m.Chapters) != 2 {
		t.Fatalf("got %d chapters, want 2", len(m.Chapters))
	}
	if m.Chapters[0].Number != 7 {
		t.Errorf("chapter[0].Number = %d, want 7", m.Chapters[0].Number)
	}
	// Unnumbered headings continue from the highest explicit number.
	if m.Chapters[1].Number != 8 {
		t.Errorf("chapter[1].Number = %d, want 8", m.Chapters[1].Number)
	}
}

func TestExtractEntityRefs(t *testing.T) {
	content := "When [[character:mira]] reached the [[location:harbor]], " +
		"[[character:mira]] remembered the [[rule:no_fire_magic]] rule. " +
		"A [[widget:thing]] link with an unknown type is ignored."

	refs := ExtractEntityRefs(content)
	want := []string{"character:mira", "location:harbor", "rule:no_fire_magic"}
	if len(refs) != len(want) {
		t.Fatalf("got %d refs %v, want %d", len(refs), refs, len(want))
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %q, want %q", i, refs[i], want[i])
		}
	}
}

func TestStripEntityRefs(t *testing.T) {
	got := StripEntityRefs("Then [[character:mira]] left the [[location:harbor]].")
	want := "Then mira left the harbor."
	if got != want {
		t.Errorf("StripEntityRefs() = %q, want %q", got, want)
	}
}
