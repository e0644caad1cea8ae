package parser

import (
	"strings"
	"testing"
)

func testSegmentConfig() SegmentConfig {
	return SegmentConfig{
		Threshold:  50,
		TargetSize: 40,
		MinSize:    10,
		MaxSize:    60,
	}
}

func TestSegmentProseShortContent(t *testing.T) {
	segments := SegmentProse("Short chapter.", testSegmentConfig())
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if segments[0].Text != "Short chapter." {
		t.Errorf("short content should pass through unchanged, got %q", segments[0].Text)
	}
}

func TestSegmentProseEmpty(t *testing.T) {
	if got := SegmentProse("   \n\n\t ", testSegmentConfig()); len(got) != 0 {
		t.Errorf("got %d segments for whitespace input, want 0", len(got))
	}
}

func TestSegmentProseParagraphBoundaries(t *testing.T) {
	content := "Mira walked along the old pier.\n\n" +
		"The gulls wheeled over the bay.\n\n" +
		"Far out, the storm was building."

	segments := SegmentProse(content, testSegmentConfig())
	if len(segments) < 2 {
		t.Fatalf("got %d segments, want at least 2", len(segments))
	}
	for i, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			t.Errorf("segment[%d] is empty", i)
		}
		if s.Position != i {
			t.Errorf("segment[%d].Position = %d", i, s.Position)
		}
	}
}

func TestSegmentProseSplitsLongParagraphAtSentences(t *testing.T) {
	para := "One two three four five six. Seven eight nine ten eleven. " +
		"Twelve thirteen fourteen fifteen sixteen."

	segments := SegmentProse(para, testSegmentConfig())
	if len(segments) < 2 {
		t.Fatalf("got %d segments, want at least 2", len(segments))
	}
	for i, s := range segments {
		text := strings.TrimSpace(s.Text)
		if !strings.HasSuffix(text, ".") {
			t.Errorf("segment[%d] breaks mid-sentence: %q", i, text)
		}
	}
}

func TestSegmentProseMergesTinyTail(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("ab ", 20))
	content := long + "\n\nEnd."

	segments := SegmentProse(content, testSegmentConfig())
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1 (tiny tail merged)", len(segments))
	}
	if !strings.Contains(segments[0].Text, "End.") {
		t.Errorf("tail was dropped instead of merged: %q", segments[0].Text)
	}
}
