package schema

const (
	DefaultVersion      = "1.0"
	DefaultBreathGapSec = 0.12

	MinScenes       = 1
	MaxScenes       = 150
	MinLines        = 1
	MaxLines        = 80
	MaxLineRunes    = 200
	MaxExplanation  = 300
	MaxBreathGapSec = 2.0
)

// Storyboard is the validated event trace: the example input plus the
// ordered scene sequence, in playback order.
type Storyboard struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
	Scenes  []Scene        `json:"scenes"`
}

// Target returns the example input's search target when it is numeric.
func (sb *Storyboard) Target() (float64, bool) {
	if sb == nil || sb.Input == nil {
		return 0, false
	}
	v, ok := sb.Input["target"].(float64)
	return v, ok
}

// ExampleArray returns the example input's "nums" array, or nil when it is
// absent or holds a non-numeric element.
func (sb *Storyboard) ExampleArray() []float64 {
	if sb == nil || sb.Input == nil {
		return nil
	}
	raw, ok := sb.Input["nums"].([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, f)
	}
	return out
}

type Narration struct {
	Version string   `json:"version"`
	Lines   []string `json:"lines"`
}

type TimeComplexity struct {
	Best  string `json:"best"`
	Avg   string `json:"avg"`
	Worst string `json:"worst"`
}

type SpaceComplexity struct {
	Aux string `json:"aux"`
}

type Complexity struct {
	Time        TimeComplexity  `json:"time"`
	Space       SpaceComplexity `json:"space"`
	Explanation string          `json:"explanation"`
}

// SyncPlan pairs each scene (by position) with the narration line indices
// spoken over it. An empty pair means silence.
type SyncPlan struct {
	Version      string  `json:"version"`
	Pairs        [][]int `json:"pairs"`
	BreathGapSec float64 `json:"breath_gap_sec"`
}
