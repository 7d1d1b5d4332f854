package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// SceneKind is the "t" tag that discriminates scene variants.
type SceneKind string

const (
	KindTitleCard      SceneKind = "TitleCard"
	KindResultCard     SceneKind = "ResultCard"
	KindComplexityCard SceneKind = "ComplexityCard"
	KindCallout        SceneKind = "Callout"
	KindArrayTape      SceneKind = "ArrayTape"
	KindMovePointer    SceneKind = "MovePointer"
	KindHashMapPanel   SceneKind = "HashMapPanel"
	KindLLNodes        SceneKind = "LLNodes"
	KindRewireEdge     SceneKind = "RewireEdge"
	KindStackPanel     SceneKind = "StackPanel"
	KindQueuePanel     SceneKind = "QueuePanel"
	KindCodePanel      SceneKind = "CodePanel"
)

// AllKinds lists every recognized scene kind in catalog order.
var AllKinds = []SceneKind{
	KindTitleCard, KindResultCard, KindComplexityCard, KindCallout,
	KindArrayTape, KindMovePointer, KindHashMapPanel, KindLLNodes,
	KindRewireEdge, KindStackPanel, KindQueuePanel, KindCodePanel,
}

// Scene is one visual beat of a storyboard. The set of implementations is
// closed to this package; consumers branch on it through Visit.
type Scene interface {
	Kind() SceneKind
	// checkShape validates per-variant field constraints after decoding.
	checkShape() error
}

// Visitor handles every scene variant. Adding a variant adds a method here,
// which breaks every consumer until it handles the new case.
type Visitor[T any] interface {
	VisitTitleCard(*TitleCard) T
	VisitResultCard(*ResultCard) T
	VisitComplexityCard(*ComplexityCard) T
	VisitCallout(*Callout) T
	VisitArrayTape(*ArrayTape) T
	VisitMovePointer(*MovePointer) T
	VisitHashMapPanel(*HashMapPanel) T
	VisitLLNodes(*LLNodes) T
	VisitRewireEdge(*RewireEdge) T
	VisitStackPanel(*StackPanel) T
	VisitQueuePanel(*QueuePanel) T
	VisitCodePanel(*CodePanel) T
}

// Visit dispatches s to the matching Visitor method.
func Visit[T any](s Scene, v Visitor[T]) T {
	switch s := s.(type) {
	case *TitleCard:
		return v.VisitTitleCard(s)
	case *ResultCard:
		return v.VisitResultCard(s)
	case *ComplexityCard:
		return v.VisitComplexityCard(s)
	case *Callout:
		return v.VisitCallout(s)
	case *ArrayTape:
		return v.VisitArrayTape(s)
	case *MovePointer:
		return v.VisitMovePointer(s)
	case *HashMapPanel:
		return v.VisitHashMapPanel(s)
	case *LLNodes:
		return v.VisitLLNodes(s)
	case *RewireEdge:
		return v.VisitRewireEdge(s)
	case *StackPanel:
		return v.VisitStackPanel(s)
	case *QueuePanel:
		return v.VisitQueuePanel(s)
	case *CodePanel:
		return v.VisitCodePanel(s)
	}
	panic(fmt.Sprintf("schema: unhandled scene type %T", s))
}

type TitleCard struct {
	Text string `json:"text"`
}

type ResultCard struct {
	Text  string `json:"text"`
	Index *int   `json:"index,omitempty"`
}

type ComplexityCard struct {
	Time  string `json:"time,omitempty"`
	Space string `json:"space,omitempty"`
}

type Callout struct {
	Text string `json:"text"`
}

// ArrayTape shows an array with optional left/mid/right pointers. Array may be
// omitted when unchanged from the previous ArrayTape.
type ArrayTape struct {
	Array  []float64 `json:"array,omitempty"`
	Left   *int      `json:"left,omitempty"`
	Mid    *int      `json:"mid,omitempty"`
	Right  *int      `json:"right,omitempty"`
	Window *[2]int   `json:"window,omitempty"`
}

type MovePointer struct {
	Which string `json:"which"`
	To    int    `json:"to"`
}

type HashMapOp struct {
	Op    string   `json:"op"`
	Key   *float64 `json:"key,omitempty"`
	Value *float64 `json:"value,omitempty"`
	Found *bool    `json:"found,omitempty"`
}

type HashMapPanel struct {
	Ops []HashMapOp `json:"ops"`
}

type LLNodes struct {
	Values    []float64 `json:"values"`
	Highlight *int      `json:"highlight,omitempty"`
}

type RewireEdge struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

type StackPanel struct {
	Items []Item `json:"items"`
	Op    string `json:"op,omitempty"`
	Value *Item  `json:"value,omitempty"`
}

type QueuePanel struct {
	Items []Item `json:"items"`
	Op    string `json:"op,omitempty"`
	Value *Item  `json:"value,omitempty"`
}

// CodePanel shows source with an optional 1-based inclusive line range.
type CodePanel struct {
	Code      string  `json:"code"`
	Highlight *[2]int `json:"highlight,omitempty"`
}

func (*TitleCard) Kind() SceneKind      { return KindTitleCard }
func (*ResultCard) Kind() SceneKind     { return KindResultCard }
func (*ComplexityCard) Kind() SceneKind { return KindComplexityCard }
func (*Callout) Kind() SceneKind        { return KindCallout }
func (*ArrayTape) Kind() SceneKind      { return KindArrayTape }
func (*MovePointer) Kind() SceneKind    { return KindMovePointer }
func (*HashMapPanel) Kind() SceneKind   { return KindHashMapPanel }
func (*LLNodes) Kind() SceneKind        { return KindLLNodes }
func (*RewireEdge) Kind() SceneKind     { return KindRewireEdge }
func (*StackPanel) Kind() SceneKind     { return KindStackPanel }
func (*QueuePanel) Kind() SceneKind     { return KindQueuePanel }
func (*CodePanel) Kind() SceneKind      { return KindCodePanel }

// Each variant marshals with its "t" tag so persisted storyboards round-trip.

func (s TitleCard) MarshalJSON() ([]byte, error) {
	type alias TitleCard
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindTitleCard, alias(s)})
}

func (s ResultCard) MarshalJSON() ([]byte, error) {
	type alias ResultCard
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindResultCard, alias(s)})
}

func (s ComplexityCard) MarshalJSON() ([]byte, error) {
	type alias ComplexityCard
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindComplexityCard, alias(s)})
}

func (s Callout) MarshalJSON() ([]byte, error) {
	type alias Callout
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindCallout, alias(s)})
}

func (s ArrayTape) MarshalJSON() ([]byte, error) {
	type alias ArrayTape
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindArrayTape, alias(s)})
}

func (s MovePointer) MarshalJSON() ([]byte, error) {
	type alias MovePointer
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindMovePointer, alias(s)})
}

func (s HashMapPanel) MarshalJSON() ([]byte, error) {
	type alias HashMapPanel
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindHashMapPanel, alias(s)})
}

func (s LLNodes) MarshalJSON() ([]byte, error) {
	type alias LLNodes
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindLLNodes, alias(s)})
}

func (s RewireEdge) MarshalJSON() ([]byte, error) {
	type alias RewireEdge
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindRewireEdge, alias(s)})
}

func (s StackPanel) MarshalJSON() ([]byte, error) {
	type alias StackPanel
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindStackPanel, alias(s)})
}

func (s QueuePanel) MarshalJSON() ([]byte, error) {
	type alias QueuePanel
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindQueuePanel, alias(s)})
}

func (s CodePanel) MarshalJSON() ([]byte, error) {
	type alias CodePanel
	return json.Marshal(struct {
		T SceneKind `json:"t"`
		alias
	}{KindCodePanel, alias(s)})
}

// Item is a stack/queue element: either a number or a string.
type Item struct {
	Num   float64
	Str   string
	IsNum bool
}

func NumItem(v float64) Item { return Item{Num: v, IsNum: true} }
func StrItem(s string) Item  { return Item{Str: s} }

func (i Item) MarshalJSON() ([]byte, error) {
	if i.IsNum {
		return json.Marshal(i.Num)
	}
	return json.Marshal(i.Str)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*i = NumItem(num)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*i = StrItem(str)
		return nil
	}
	return fmt.Errorf("item must be a number or a string, got %s", string(data))
}

func (i Item) String() string {
	if i.IsNum {
		return strconv.FormatFloat(i.Num, 'f', -1, 64)
	}
	return i.Str
}
