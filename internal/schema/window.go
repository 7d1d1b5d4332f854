package schema

import "fmt"

// PointerWindow is the left-to-right accumulator of array/pointer state used
// by the semantic pass. It is a plain value: Advance returns the next state
// and never mutates the receiver.
type PointerWindow struct {
	ArrayLen int
	Left     int
	Right    int

	HasArrayLen bool
	HasLeft     bool
	HasRight    bool
}

// Advance folds one scene into the window, failing on the first violated
// pointer invariant.
func (w PointerWindow) Advance(s Scene) (PointerWindow, error) {
	step := windowStep{w: w}
	if err := Visit[error](s, &step); err != nil {
		return w, err
	}
	return step.w, nil
}

func (w PointerWindow) inBounds(v int) bool {
	return !w.HasArrayLen || (v >= 0 && v < w.ArrayLen)
}

type windowStep struct {
	w PointerWindow
}

func (st *windowStep) VisitArrayTape(s *ArrayTape) error {
	w := st.w
	if s.Array != nil {
		w.ArrayLen, w.HasArrayLen = len(s.Array), true
	}
	if s.Left != nil {
		w.Left, w.HasLeft = *s.Left, true
	}
	if s.Right != nil {
		w.Right, w.HasRight = *s.Right, true
	}

	if s.Left != nil && s.Right != nil && *s.Left > *s.Right {
		return fmt.Errorf("left %d exceeds right %d", *s.Left, *s.Right)
	}
	if s.Mid != nil {
		mid := *s.Mid
		if w.HasLeft && w.HasRight && (mid < w.Left || mid > w.Right) {
			return fmt.Errorf("mid %d must be between left %d and right %d", mid, w.Left, w.Right)
		}
		if !w.inBounds(mid) {
			return fmt.Errorf("mid %d out of bounds for array of length %d", mid, w.ArrayLen)
		}
	}
	if w.HasLeft && !w.inBounds(w.Left) {
		return fmt.Errorf("left %d out of bounds for array of length %d", w.Left, w.ArrayLen)
	}
	if w.HasRight && !w.inBounds(w.Right) {
		return fmt.Errorf("right %d out of bounds for array of length %d", w.Right, w.ArrayLen)
	}
	if s.Window != nil && (!w.inBounds(s.Window[0]) || !w.inBounds(s.Window[1])) {
		return fmt.Errorf("window [%d, %d] out of bounds for array of length %d", s.Window[0], s.Window[1], w.ArrayLen)
	}

	st.w = w
	return nil
}

func (st *windowStep) VisitMovePointer(s *MovePointer) error {
	w := st.w
	switch s.Which {
	case "left":
		if w.HasLeft && s.To < w.Left {
			return fmt.Errorf("left pointer moved backwards from %d to %d", w.Left, s.To)
		}
	case "right":
		if w.HasRight && s.To > w.Right {
			return fmt.Errorf("right pointer moved outwards from %d to %d", w.Right, s.To)
		}
	}
	if !w.inBounds(s.To) {
		return fmt.Errorf("%s pointer target %d out of bounds for array of length %d", s.Which, s.To, w.ArrayLen)
	}

	if s.Which == "left" {
		w.Left, w.HasLeft = s.To, true
	} else {
		w.Right, w.HasRight = s.To, true
	}
	st.w = w
	return nil
}

func (*windowStep) VisitTitleCard(*TitleCard) error           { return nil }
func (*windowStep) VisitResultCard(*ResultCard) error         { return nil }
func (*windowStep) VisitComplexityCard(*ComplexityCard) error { return nil }
func (*windowStep) VisitCallout(*Callout) error               { return nil }
func (*windowStep) VisitHashMapPanel(*HashMapPanel) error     { return nil }
func (*windowStep) VisitLLNodes(*LLNodes) error               { return nil }
func (*windowStep) VisitRewireEdge(*RewireEdge) error         { return nil }
func (*windowStep) VisitStackPanel(*StackPanel) error         { return nil }
func (*windowStep) VisitQueuePanel(*QueuePanel) error         { return nil }
func (*windowStep) VisitCodePanel(*CodePanel) error           { return nil }
