package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// newScene returns an empty variant for a tag. Unknown tags return nil.
func newScene(kind SceneKind) Scene {
	switch kind {
	case KindTitleCard:
		return &TitleCard{}
	case KindResultCard:
		return &ResultCard{}
	case KindComplexityCard:
		return &ComplexityCard{}
	case KindCallout:
		return &Callout{}
	case KindArrayTape:
		return &ArrayTape{}
	case KindMovePointer:
		return &MovePointer{}
	case KindHashMapPanel:
		return &HashMapPanel{}
	case KindLLNodes:
		return &LLNodes{}
	case KindRewireEdge:
		return &RewireEdge{}
	case KindStackPanel:
		return &StackPanel{}
	case KindQueuePanel:
		return &QueuePanel{}
	case KindCodePanel:
		return &CodePanel{}
	}
	return nil
}

var requiredFields = map[SceneKind][]string{
	KindTitleCard:    {"text"},
	KindResultCard:   {"text"},
	KindCallout:      {"text"},
	KindMovePointer:  {"which", "to"},
	KindHashMapPanel: {"ops"},
	KindLLNodes:      {"values"},
	KindRewireEdge:   {"src", "dst"},
	KindStackPanel:   {"items"},
	KindQueuePanel:   {"items"},
	KindCodePanel:    {"code"},
}

// decodeScene matches one raw scene object against exactly one tagged shape.
func decodeScene(raw json.RawMessage) (Scene, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("scene must be a JSON object")
	}

	tagRaw, ok := fields["t"]
	if !ok {
		return nil, fmt.Errorf(`scene is missing its "t" tag`)
	}
	if _, dup := fields["type"]; dup {
		return nil, fmt.Errorf(`scene carries both "t" and "type" tags`)
	}
	var tag string
	if err := json.Unmarshal(tagRaw, &tag); err != nil {
		return nil, fmt.Errorf(`scene tag "t" must be a string`)
	}

	scene := newScene(SceneKind(tag))
	if scene == nil {
		return nil, fmt.Errorf("unknown scene type %q", tag)
	}

	for _, name := range requiredFields[scene.Kind()] {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, fmt.Errorf("%s requires field %q", tag, name)
		}
	}

	delete(fields, "t")
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("re-encode %s: %w", tag, err)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(scene); err != nil {
		return nil, fmt.Errorf("%s does not match its shape: %v", tag, err)
	}

	if err := scene.checkShape(); err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	return scene, nil
}

func checkText(field, s string, maxRunes int) error {
	n := utf8.RuneCountInString(s)
	if n < 1 || n > maxRunes {
		return fmt.Errorf("%s must be 1-%d characters, got %d", field, maxRunes, n)
	}
	return nil
}

func checkIndex(field string, v int) error {
	if v < 0 {
		return fmt.Errorf("%s must be a non-negative integer, got %d", field, v)
	}
	return nil
}

func checkOptIndex(field string, v *int) error {
	if v == nil {
		return nil
	}
	return checkIndex(field, *v)
}

func (s *TitleCard) checkShape() error { return checkText("text", s.Text, 80) }
func (s *Callout) checkShape() error { return checkText("text", s.Text, 160) }
func (s *ComplexityCard) checkShape() error { return nil }

func (s *ResultCard) checkShape() error {
	if err := checkText("text", s.Text, 140); err != nil {
		return err
	}
	return checkOptIndex("index", s.Index)
}

func (s *ArrayTape) checkShape() error {
	for _, f := range []struct {
		name string
		v    *int
	}{{"left", s.Left}, {"mid", s.Mid}, {"right", s.Right}} {
		if err := checkOptIndex(f.name, f.v); err != nil {
			return err
		}
	}
	if s.Window != nil {
		if s.Window[0] < 0 || s.Window[1] < 0 {
			return fmt.Errorf("window bounds must be non-negative, got [%d, %d]", s.Window[0], s.Window[1])
		}
		if s.Window[0] > s.Window[1] {
			return fmt.Errorf("window start %d exceeds end %d", s.Window[0], s.Window[1])
		}
	}
	return nil
}

func (s *MovePointer) checkShape() error {
	if s.Which != "left" && s.Which != "right" {
		return fmt.Errorf(`which must be "left" or "right", got %q`, s.Which)
	}
	return checkIndex("to", s.To)
}

func (s *HashMapPanel) checkShape() error {
	if len(s.Ops) == 0 {
		return fmt.Errorf("ops must contain at least one operation")
	}
	for i, op := range s.Ops {
		if op.Key == nil {
			return fmt.Errorf("ops[%d] requires key", i)
		}
		switch op.Op {
		case "insert":
			if op.Value == nil || op.Found != nil {
				return fmt.Errorf("ops[%d] insert requires key and value only", i)
			}
		case "check":
			if op.Found == nil || op.Value != nil {
				return fmt.Errorf("ops[%d] check requires key and found only", i)
			}
		default:
			return fmt.Errorf(`ops[%d] op must be "insert" or "check", got %q`, i, op.Op)
		}
	}
	return nil
}

func (s *LLNodes) checkShape() error {
	if len(s.Values) == 0 {
		return fmt.Errorf("values must contain at least one node")
	}
	return checkOptIndex("highlight", s.Highlight)
}

func (s *RewireEdge) checkShape() error {
	if err := checkIndex("src", s.Src); err != nil {
		return err
	}
	return checkIndex("dst", s.Dst)
}

func (s *StackPanel) checkShape() error {
	if s.Items == nil {
		return fmt.Errorf("items must be an array")
	}
	if s.Op != "" && s.Op != "push" && s.Op != "pop" {
		return fmt.Errorf(`op must be "push" or "pop", got %q`, s.Op)
	}
	return nil
}

func (s *QueuePanel) checkShape() error {
	if s.Items == nil {
		return fmt.Errorf("items must be an array")
	}
	if s.Op != "" && s.Op != "enqueue" && s.Op != "dequeue" {
		return fmt.Errorf(`op must be "enqueue" or "dequeue", got %q`, s.Op)
	}
	return nil
}

func (s *CodePanel) checkShape() error {
	if s.Highlight != nil {
		start, end := s.Highlight[0], s.Highlight[1]
		if start < 1 || end < 1 {
			return fmt.Errorf("highlight lines must be positive, got [%d, %d]", start, end)
		}
		if start > end {
			return fmt.Errorf("highlight start %d exceeds end %d", start, end)
		}
	}
	return nil
}
