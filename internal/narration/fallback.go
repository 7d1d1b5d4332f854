// Package narration derives spoken lines from a storyboard without a model.
package narration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bobarin/codereel/internal/schema"
)

// cursor is the last pointer state seen while scanning scenes. Values is the
// most recent backing array, used to resolve the value under a pointer.
type cursor struct {
	left, mid, right *int
	values           []float64
	target           *float64
}

func (c cursor) valueAt(idx *int) (float64, bool) {
	if idx == nil || *idx < 0 || *idx >= len(c.values) {
		return 0, false
	}
	return c.values[*idx], true
}

// Fallback returns exactly one normalized line per scene, in scene order.
func Fallback(sb *schema.Storyboard) []string {
	if sb == nil {
		return nil
	}
	line := liner{c: cursor{values: sb.ExampleArray()}}
	if t, ok := sb.Target(); ok {
		line.c.target = &t
	}

	lines := make([]string, 0, len(sb.Scenes))
	for _, scene := range sb.Scenes {
		lines = append(lines, fit(Normalize(schema.Visit[string](scene, &line))))
	}
	return lines
}

// fit shortens a normalized line to schema.MaxLineRunes, cutting at the last
// word boundary and ending it with a period. Scene text such as a long
// ComplexityCard bound can otherwise push a line past the narration limit.
func fit(line string) string {
	r := []rune(line)
	if len(r) <= schema.MaxLineRunes {
		return line
	}
	cut := string(r[:schema.MaxLineRunes-1])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	cut = strings.TrimRight(cut, " ,;:!?.—")
	if cut == "" {
		cut = string(r[:schema.MaxLineRunes-1])
	}
	return cut + "."
}

// liner emits one sentence per scene and advances the cursor.
type liner struct {
	c cursor
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func (l *liner) VisitTitleCard(s *schema.TitleCard) string {
	if l.c.target != nil {
		return fmt.Sprintf("Let us walk through %s, searching for target %s.", s.Text, num(*l.c.target))
	}
	return fmt.Sprintf("Let us walk through %s.", s.Text)
}

func (l *liner) VisitArrayTape(s *schema.ArrayTape) string {
	if s.Array != nil {
		l.c.values = s.Array
	}
	if s.Left != nil {
		l.c.left = s.Left
	}
	if s.Mid != nil {
		l.c.mid = s.Mid
	}
	if s.Right != nil {
		l.c.right = s.Right
	}

	var b strings.Builder
	if l.c.left != nil && l.c.right != nil {
		fmt.Fprintf(&b, "We examine the window from index %d to %d", *l.c.left, *l.c.right)
	} else {
		b.WriteString("We examine the array")
	}
	if s.Mid != nil {
		fmt.Fprintf(&b, ", midpoint %d", *s.Mid)
		if v, ok := l.c.valueAt(s.Mid); ok {
			fmt.Fprintf(&b, " with value %s", num(v))
		}
	}
	if l.c.target != nil {
		fmt.Fprintf(&b, " while searching for %s", num(*l.c.target))
	}
	b.WriteString(".")
	return b.String()
}

func (l *liner) VisitCallout(s *schema.Callout) string {
	return s.Text
}

func (l *liner) VisitMovePointer(s *schema.MovePointer) string {
	var why string
	if mv, ok := l.c.valueAt(l.c.mid); ok && l.c.target != nil {
		target := *l.c.target
		switch s.Which {
		case "left":
			if target > mv {
				why = " because the target is greater than mid"
			} else {
				why = " because the target is not in the left half"
			}
		case "right":
			if target < mv {
				why = " because the target is smaller than mid"
			} else {
				why = " to narrow the right boundary"
			}
		}
	}

	to := s.To
	if s.Which == "left" {
		l.c.left = &to
	} else {
		l.c.right = &to
	}
	return fmt.Sprintf("Move %s pointer to index %d%s.", s.Which, s.To, why)
}

func (l *liner) VisitComplexityCard(s *schema.ComplexityCard) string {
	switch {
	case s.Time != "" && s.Space != "":
		return fmt.Sprintf("This runs in time %s and space %s.", s.Time, s.Space)
	case s.Time != "":
		return fmt.Sprintf("This runs in time %s.", s.Time)
	case s.Space != "":
		return fmt.Sprintf("This uses space %s.", s.Space)
	}
	return "Let us look at the time and space cost."
}

func (l *liner) VisitResultCard(s *schema.ResultCard) string {
	idx := s.Index
	for _, candidate := range []*int{l.c.mid, l.c.left, l.c.right} {
		if idx != nil {
			break
		}
		idx = candidate
	}
	switch {
	case idx != nil && l.c.target != nil:
		return fmt.Sprintf("Answer: found target %s at index %d.", num(*l.c.target), *idx)
	case idx != nil:
		return fmt.Sprintf("Answer: found at index %d.", *idx)
	}
	return s.Text
}

const neutral = "Proceed to the next step."

func (*liner) VisitHashMapPanel(*schema.HashMapPanel) string { return neutral }
func (*liner) VisitLLNodes(*schema.LLNodes) string           { return neutral }
func (*liner) VisitRewireEdge(*schema.RewireEdge) string     { return neutral }
func (*liner) VisitStackPanel(*schema.StackPanel) string     { return neutral }
func (*liner) VisitQueuePanel(*schema.QueuePanel) string     { return neutral }
func (*liner) VisitCodePanel(*schema.CodePanel) string       { return neutral }
