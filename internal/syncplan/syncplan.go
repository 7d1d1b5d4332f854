// Package syncplan pairs narration lines with storyboard scenes.
package syncplan

import (
	"strings"

	"github.com/bobarin/codereel/internal/narration"
	"github.com/bobarin/codereel/internal/schema"
)

// Result is a resolved plan together with the text spoken over each scene.
// Fused[i] is empty when scene i is silent.
type Result struct {
	Plan  *schema.SyncPlan
	Fused []string

	// Rejected is set when a candidate was supplied but could not be used.
	Rejected error
}

// UsedFallback reports whether the identity plan was substituted.
func (r Result) UsedFallback() bool { return r.Rejected != nil }

// Plan resolves the sync plan. A candidate is used only if it validates
// against sb and narr; otherwise the identity plan is built. A nil candidate
// goes straight to the identity plan.
func Plan(sb *schema.Storyboard, narr *schema.Narration, candidate []byte) Result {
	sceneCount := len(sb.Scenes)
	lineCount := len(narr.Lines)

	var res Result
	if len(candidate) > 0 {
		plan, err := schema.ValidateSyncPlan(candidate, sceneCount, lineCount)
		if err == nil {
			res.Plan = plan
		} else {
			res.Rejected = err
		}
	}
	if res.Plan == nil {
		res.Plan = Identity(sceneCount, lineCount)
	}
	res.Fused = Fuse(res.Plan, narr.Lines)
	return res
}

// Identity pairs scene i with line i while lines last; later scenes are silent.
func Identity(sceneCount, lineCount int) *schema.SyncPlan {
	pairs := make([][]int, sceneCount)
	for i := range pairs {
		if i < lineCount {
			pairs[i] = []int{i}
		} else {
			pairs[i] = []int{}
		}
	}
	return &schema.SyncPlan{
		Version:      schema.DefaultVersion,
		Pairs:        pairs,
		BreathGapSec: schema.DefaultBreathGapSec,
	}
}

// Fuse joins each scene's paired lines and re-normalizes them for speech.
func Fuse(plan *schema.SyncPlan, lines []string) []string {
	fused := make([]string, len(plan.Pairs))
	for i, pair := range plan.Pairs {
		parts := make([]string, 0, len(pair))
		for _, idx := range pair {
			parts = append(parts, lines[idx])
		}
		fused[i] = narration.Normalize(strings.Join(parts, " "))
	}
	return fused
}
