package schema

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/bobarin/codereel/internal/apperr"
)

func violation(format string, args ...any) error {
	return apperr.Newf(apperr.KindSchemaViolation, format, args...)
}

// ValidateStoryboard parses untrusted storyboard JSON. The structural pass
// matches every scene to exactly one variant; the semantic pass folds the
// scenes through a PointerWindow and stops at the first violation.
func ValidateStoryboard(raw []byte) (*Storyboard, error) {
	var envelope struct {
		Version *string           `json:"version"`
		Input   map[string]any    `json:"input"`
		Scenes  []json.RawMessage `json:"scenes"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, violation("storyboard is not a valid JSON object: %v", err)
	}

	n := len(envelope.Scenes)
	if n < MinScenes || n > MaxScenes {
		return nil, violation("storyboard must contain %d-%d scenes, got %d", MinScenes, MaxScenes, n)
	}

	sb := &Storyboard{
		Version: DefaultVersion,
		Input:   envelope.Input,
		Scenes:  make([]Scene, 0, n),
	}
	if envelope.Version != nil {
		sb.Version = *envelope.Version
	}
	if sb.Input == nil {
		sb.Input = map[string]any{}
	}

	for i, rawScene := range envelope.Scenes {
		scene, err := decodeScene(rawScene)
		if err != nil {
			return nil, violation("scene %d: %v", i, err)
		}
		sb.Scenes = append(sb.Scenes, scene)
	}

	if err := CheckStoryboard(sb); err != nil {
		return nil, err
	}
	return sb, nil
}

// CheckStoryboard runs the semantic pass over an already-decoded storyboard.
func CheckStoryboard(sb *Storyboard) error {
	if sb == nil {
		return violation("storyboard is missing")
	}
	if n := len(sb.Scenes); n < MinScenes || n > MaxScenes {
		return violation("storyboard must contain %d-%d scenes, got %d", MinScenes, MaxScenes, n)
	}

	var window PointerWindow
	for i, scene := range sb.Scenes {
		next, err := window.Advance(scene)
		if err != nil {
			return violation("scene %d (%s): %v", i, scene.Kind(), err)
		}
		window = next
	}
	return nil
}

// ValidateNarration parses untrusted narration JSON.
func ValidateNarration(raw []byte) (*Narration, error) {
	var envelope struct {
		Version *string  `json:"version"`
		Lines   []string `json:"lines"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, violation("narration is not valid: %v", err)
	}
	n := &Narration{Version: DefaultVersion, Lines: envelope.Lines}
	if envelope.Version != nil {
		n.Version = *envelope.Version
	}
	if err := CheckNarration(n); err != nil {
		return nil, err
	}
	return n, nil
}

// CheckNarration enforces line-count and line-length bounds.
func CheckNarration(n *Narration) error {
	if n == nil {
		return violation("narration is missing")
	}
	if c := len(n.Lines); c < MinLines || c > MaxLines {
		return violation("narration must contain %d-%d lines, got %d", MinLines, MaxLines, c)
	}
	for i, line := range n.Lines {
		if line == "" {
			return violation("narration line %d is empty", i)
		}
		if c := utf8.RuneCountInString(line); c > MaxLineRunes {
			return violation("narration line %d exceeds %d characters (%d)", i, MaxLineRunes, c)
		}
	}
	return nil
}

// ValidateComplexity parses untrusted complexity JSON. Every bound must be
// present; an empty bound is allowed.
func ValidateComplexity(raw []byte) (*Complexity, error) {
	var envelope struct {
		Time struct {
			Best  *string `json:"best"`
			Avg   *string `json:"avg"`
			Worst *string `json:"worst"`
		} `json:"time"`
		Space struct {
			Aux *string `json:"aux"`
		} `json:"space"`
		Explanation string `json:"explanation"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, violation("complexity is not valid: %v", err)
	}

	fields := []struct {
		name  string
		value *string
	}{
		{"time.best", envelope.Time.Best},
		{"time.avg", envelope.Time.Avg},
		{"time.worst", envelope.Time.Worst},
		{"space.aux", envelope.Space.Aux},
	}
	for _, f := range fields {
		if f.value == nil {
			return nil, violation("complexity %s is required", f.name)
		}
	}
	if n := utf8.RuneCountInString(envelope.Explanation); n < 1 || n > MaxExplanation {
		return nil, violation("complexity explanation must be 1-%d characters, got %d", MaxExplanation, n)
	}
	return &Complexity{
		Time: TimeComplexity{
			Best:  *envelope.Time.Best,
			Avg:   *envelope.Time.Avg,
			Worst: *envelope.Time.Worst,
		},
		Space:       SpaceComplexity{Aux: *envelope.Space.Aux},
		Explanation: envelope.Explanation,
	}, nil
}

// ValidateSyncPlan parses an untrusted sync plan and checks it against the
// storyboard's scene count and the narration's line count.
func ValidateSyncPlan(raw []byte, sceneCount, lineCount int) (*SyncPlan, error) {
	var envelope struct {
		Version      *string  `json:"version"`
		Pairs        [][]int  `json:"pairs"`
		BreathGapSec *float64 `json:"breath_gap_sec"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, violation("sync plan is not valid: %v", err)
	}
	plan := &SyncPlan{
		Version:      DefaultVersion,
		Pairs:        envelope.Pairs,
		BreathGapSec: DefaultBreathGapSec,
	}
	if envelope.Version != nil {
		plan.Version = *envelope.Version
	}
	if envelope.BreathGapSec != nil {
		plan.BreathGapSec = *envelope.BreathGapSec
	}
	if err := CheckSyncPlan(plan, sceneCount, lineCount); err != nil {
		return nil, err
	}
	return plan, nil
}

// CheckSyncPlan requires one pair per scene, indices that exist, and line
// indices that strictly increase across the whole plan. A line is never
// reordered, and never assigned twice since fusion would voice it twice.
func CheckSyncPlan(p *SyncPlan, sceneCount, lineCount int) error {
	if p == nil {
		return violation("sync plan is missing")
	}
	if len(p.Pairs) != sceneCount {
		return violation("sync plan has %d pairs for %d scenes", len(p.Pairs), sceneCount)
	}
	if p.BreathGapSec < 0 || p.BreathGapSec > MaxBreathGapSec {
		return violation("breath_gap_sec must be within [0, %g], got %g", MaxBreathGapSec, p.BreathGapSec)
	}

	last := -1
	for scene, pair := range p.Pairs {
		for _, idx := range pair {
			if idx < 0 || idx >= lineCount {
				return violation("sync pair %d references line %d, narration has %d lines", scene, idx, lineCount)
			}
			if idx <= last {
				return violation("sync pair %d reorders or repeats line %d", scene, idx)
			}
			last = idx
		}
	}
	return nil
}

// DecodeError describes why raw content could not be treated as JSON at all.
func DecodeError(what string, err error) error {
	return apperr.Wrap(apperr.KindUpstreamGeneration, fmt.Sprintf("%s is not parsable", what), err)
}
