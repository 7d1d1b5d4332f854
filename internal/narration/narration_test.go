package narration

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bobarin/codereel/internal/schema"
)

const rotatedSearch = `{
  "version": "1.0",
  "input": {"nums": [4, 5, 6, 7, 0, 1, 2], "target": 0},
  "scenes": [
    {"t": "TitleCard", "text": "Search in Rotated Sorted Array"},
    {"t": "ArrayTape", "array": [4, 5, 6, 7, 0, 1, 2], "left": 0, "mid": 3, "right": 6},
    {"t": "Callout", "text": "Left half is sorted: 4..7"},
    {"t": "MovePointer", "which": "left", "to": 4},
    {"t": "ArrayTape", "left": 4, "mid": 5, "right": 6},
    {"t": "MovePointer", "which": "right", "to": 5},
    {"t": "ArrayTape", "left": 4, "mid": 4, "right": 5},
    {"t": "ComplexityCard", "time": "O(log n)", "space": "O(1)"},
    {"t": "ResultCard", "text": "Found 0 at index 4", "index": 4}
  ]
}`

func mustStoryboard(t *testing.T, raw string) *schema.Storyboard {
	t.Helper()
	sb, err := schema.ValidateStoryboard([]byte(raw))
	if err != nil {
		t.Fatalf("fixture storyboard rejected: %v", err)
	}
	return sb
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello world", "Hello world."},
		{"  spaced   out\ttext  ", "spaced out text."},
		{"Note: watch this", "Note — watch this."},
		{"first ,second;third", "first, second; third."},
		{"Wait . Really...", "Wait. Really."},
		{"Is it sorted?", "Is it sorted?"},
		{"Yes !", "Yes!"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFallbackRotatedSearch(t *testing.T) {
	sb := mustStoryboard(t, rotatedSearch)
	lines := Fallback(sb)

	want := []string{
		"Let us walk through Search in Rotated Sorted Array, searching for target 0.",
		"We examine the window from index 0 to 6, midpoint 3 with value 7 while searching for 0.",
		"Left half is sorted — 4.7.",
		"Move left pointer to index 4 because the target is not in the left half.",
		"We examine the window from index 4 to 6, midpoint 5 with value 1 while searching for 0.",
		"Move right pointer to index 5 because the target is smaller than mid.",
		"We examine the window from index 4 to 5, midpoint 4 with value 0 while searching for 0.",
		"This runs in time O(log n) and space O(1).",
		"Answer — found target 0 at index 4.",
	}
	if len(lines) != len(sb.Scenes) {
		t.Fatalf("expected %d lines, got %d", len(sb.Scenes), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d:\n got %q\nwant %q", i, lines[i], want[i])
		}
	}
	if err := schema.CheckNarration(&schema.Narration{Lines: lines}); err != nil {
		t.Errorf("fallback narration does not validate: %v", err)
	}
}

func TestFallbackWithoutExampleInput(t *testing.T) {
	sb := mustStoryboard(t, `{"scenes": [
		{"t": "TitleCard", "text": "Two pointers"},
		{"t": "MovePointer", "which": "left", "to": 2},
		{"t": "ArrayTape", "mid": 1},
		{"t": "ComplexityCard"},
		{"t": "StackPanel", "items": [1, 2]},
		{"t": "ResultCard", "text": "Done"}
	]}`)

	want := []string{
		"Let us walk through Two pointers.",
		"Move left pointer to index 2.",
		"We examine the array, midpoint 1.",
		"Let us look at the time and space cost.",
		"Proceed to the next step.",
		"Answer — found at index 1.",
	}
	lines := Fallback(sb)
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d", len(want), len(lines))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d:\n got %q\nwant %q", i, lines[i], want[i])
		}
	}
}

func TestFallbackResultWithoutIndex(t *testing.T) {
	sb := mustStoryboard(t, `{"scenes": [{"t": "ResultCard", "text": "No answer exists"}]}`)
	lines := Fallback(sb)
	if len(lines) != 1 || lines[0] != "No answer exists." {
		t.Errorf("unexpected lines %q", lines)
	}
}

func TestFallbackOneLinePerScene(t *testing.T) {
	kinds := []string{
		`{"t": "HashMapPanel", "ops": [{"op": "insert", "key": 1, "value": 2}]}`,
		`{"t": "LLNodes", "values": [1, 2, 3], "highlight": 1}`,
		`{"t": "RewireEdge", "src": 0, "dst": 1}`,
		`{"t": "QueuePanel", "items": ["a"]}`,
		`{"t": "CodePanel", "code": "x = 1", "highlight": [1, 1]}`,
		`{"t": "Callout", "text": "Pay attention"}`,
	}
	sb := mustStoryboard(t, `{"scenes": [`+strings.Join(kinds, ",")+`]}`)
	lines := Fallback(sb)
	if len(lines) != len(kinds) {
		t.Fatalf("expected %d lines, got %d", len(kinds), len(lines))
	}
	for i, line := range lines {
		if line == "" {
			t.Errorf("line %d is empty", i)
		}
	}
}

func TestFallbackUsesLatestArray(t *testing.T) {
	sb := mustStoryboard(t, `{"input": {"nums": [9, 9, 9], "target": 3}, "scenes": [
		{"t": "ArrayTape", "array": [1, 3, 5], "left": 0, "mid": 1, "right": 2}
	]}`)
	lines := Fallback(sb)
	if !strings.Contains(lines[0], "with value 3") {
		t.Errorf("expected value from the scene array, got %q", lines[0])
	}
}

func TestFallbackLinesFitNarrationLimit(t *testing.T) {
	longBound := strings.Repeat("O(n log n) amortized: ", 10) + "worst case"
	raw := fmt.Sprintf(`{"scenes": [
		{"t": "TitleCard", "text": "Merge Sort"},
		{"t": "ComplexityCard", "time": %q, "space": "O(n)"}
	]}`, longBound)
	sb := mustStoryboard(t, raw)

	lines := Fallback(sb)
	if err := schema.CheckNarration(&schema.Narration{Version: schema.DefaultVersion, Lines: lines}); err != nil {
		t.Fatalf("fallback narration rejected: %v", err)
	}
	got := lines[1]
	if n := utf8.RuneCountInString(got); n > schema.MaxLineRunes {
		t.Errorf("line has %d runes", n)
	}
	if !strings.HasPrefix(got, "This runs in time O(n log n) amortized") || !strings.HasSuffix(got, ".") {
		t.Errorf("unexpected line %q", got)
	}
	if strings.HasSuffix(got, " .") || strings.HasSuffix(got, "—.") {
		t.Errorf("line cut mid-pause: %q", got)
	}
}

func TestFitKeepsShortLines(t *testing.T) {
	if got := fit("Short line."); got != "Short line." {
		t.Errorf("fit = %q", got)
	}
	if got := fit(strings.Repeat("x", 250)); utf8.RuneCountInString(got) != schema.MaxLineRunes {
		t.Errorf("unbroken line fit to %d runes", utf8.RuneCountInString(got))
	}
}
