package schema

import "encoding/json"

// CatalogVersion changes whenever a scene type or field is added or altered.
const CatalogVersion = "1.0.0"

// SceneTemplate lists the fields a model may emit for one scene type. Values
// are compact type hints, not a formal grammar.
type SceneTemplate struct {
	Required map[string]string `json:"required"`
	Optional map[string]string `json:"optional"`
}

// TemplateCatalog is the model-facing description of the scene vocabulary.
type TemplateCatalog struct {
	Version     string                      `json:"version"`
	GlobalRules []string                    `json:"global_rules"`
	Scenes      map[SceneKind]SceneTemplate `json:"scenes"`
}

var none = map[string]string{}

// Templates is the catalog embedded in storyboard prompts and served over HTTP.
var Templates = TemplateCatalog{
	Version: CatalogVersion,
	GlobalRules: []string{
		"Keep total scenes <= 150.",
		"Prefer arrays with <= 12 items for clarity.",
		"Indices must be integers >= 0.",
		"In ArrayTape frames, maintain 0 <= left <= mid <= right < array.length when those fields are present.",
		"MovePointer never moves left backwards or right outwards.",
		"Emit ComplexityCard exactly once near the end.",
		"ResultCard should be the last scene.",
	},
	Scenes: map[SceneKind]SceneTemplate{
		KindTitleCard: {Required: map[string]string{"text": "string[1..80]"}, Optional: none},
		KindCallout:   {Required: map[string]string{"text": "string[1..160]"}, Optional: none},
		KindComplexityCard: {
			Required: none,
			Optional: map[string]string{"time": "string", "space": "string"},
		},
		KindResultCard: {
			Required: map[string]string{"text": "string[1..140]"},
			Optional: map[string]string{"index": "int"},
		},
		KindCodePanel: {
			Required: map[string]string{"code": "string"},
			Optional: map[string]string{"highlight": "tuple[int startLine, int endLine] (1-based, inclusive)"},
		},
		KindArrayTape: {
			Required: none,
			Optional: map[string]string{
				"array":  "int[] (may omit if unchanged from previous ArrayTape)",
				"left":   "int",
				"right":  "int",
				"mid":    "int",
				"window": "tuple[int start, int end] (inclusive indices for sliding window)",
			},
		},
		KindMovePointer: {
			Required: map[string]string{"which": "'left'|'right'", "to": "int"},
			Optional: none,
		},
		KindHashMapPanel: {
			Required: map[string]string{
				"ops": "[ {op:'insert', key:int, value:int} | {op:'check', key:int, found:boolean} ]+",
			},
			Optional: none,
		},
		KindLLNodes: {
			Required: map[string]string{"values": "int[]"},
			Optional: map[string]string{"highlight": "int"},
		},
		KindRewireEdge: {
			Required: map[string]string{"src": "int", "dst": "int"},
			Optional: none,
		},
		KindStackPanel: {
			Required: map[string]string{"items": "(int|string)[]"},
			Optional: map[string]string{"op": "'push'|'pop'", "value": "int|string"},
		},
		KindQueuePanel: {
			Required: map[string]string{"items": "(int|string)[]"},
			Optional: map[string]string{"op": "'enqueue'|'dequeue'", "value": "int|string"},
		},
	},
}

// TemplatesJSON renders the catalog. Map keys are emitted sorted, so the
// output is stable across calls.
func TemplatesJSON(indent bool) []byte {
	var (
		b   []byte
		err error
	)
	if indent {
		b, err = json.MarshalIndent(Templates, "", "  ")
	} else {
		b, err = json.Marshal(Templates)
	}
	if err != nil {
		// Templates holds only strings and maps of strings.
		panic(err)
	}
	return b
}
