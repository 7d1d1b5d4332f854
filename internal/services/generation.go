package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/bobarin/codereel/internal/apperr"
	"github.com/bobarin/codereel/internal/models"
)

// Detection defaults apply when the model omits or mistypes a field.
const (
	DefaultAlgoID     = "rotated_binary_search"
	DefaultConfidence = 0.7
)

var DefaultDS = []string{"array"}

// Completer sends one prompt to a language model and returns its raw text.
type Completer interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Generation proposes algorithm ids, storyboards, narration, complexity and
// sync plans. Everything it returns is untrusted JSON for the validator.
type Generation struct {
	model Completer
}

func NewGeneration(model Completer) *Generation {
	return &Generation{model: model}
}

func (g *Generation) run(ctx context.Context, stage string, p Prompt) ([]byte, error) {
	text, err := g.model.Complete(ctx, p)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamGeneration, stage+" generation failed", err)
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		log.Printf("[%s] %s response unusable: %v (preview: %s)", g.model.Name(), stage, err, apperr.Truncate(text, 400))
		return nil, apperr.Wrap(apperr.KindUpstreamGeneration, stage+" response is not JSON", err)
	}
	return raw, nil
}

// Detect identifies the algorithm. Missing fields fall back to defaults
// rather than failing.
func (g *Generation) Detect(ctx context.Context, code, language string) (*models.Detection, error) {
	raw, err := g.run(ctx, "detect", BuildDetectPrompt(code, language))
	if err != nil {
		return nil, err
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamGeneration, "detect response is not an object", err)
	}

	det := &models.Detection{AlgoID: DefaultAlgoID, Confidence: DefaultConfidence, DS: DefaultDS}
	if id, ok := obj["algo_id"].(string); ok && strings.TrimSpace(id) != "" {
		det.AlgoID = id
	}
	if c, ok := obj["confidence"].(float64); ok && !math.IsNaN(c) && !math.IsInf(c, 0) {
		det.Confidence = c
	}
	if list, ok := obj["ds"].([]any); ok && len(list) > 0 {
		ds := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				ds = append(ds, s)
			}
		}
		if len(ds) > 0 {
			det.DS = ds
		}
	}
	return det, nil
}

func (g *Generation) Storyboard(ctx context.Context, algoID, code, language string) ([]byte, error) {
	return g.run(ctx, "storyboard", BuildStoryboardPrompt(algoID, code, language))
}

func (g *Generation) Narration(ctx context.Context, algoID string, storyboard []byte) ([]byte, error) {
	return g.run(ctx, "narration", BuildNarrationPrompt(algoID, storyboard))
}

func (g *Generation) Complexity(ctx context.Context, algoID string) ([]byte, error) {
	return g.run(ctx, "complexity", BuildComplexityPrompt(algoID))
}

func (g *Generation) SyncPlan(ctx context.Context, storyboard, narration []byte) ([]byte, error) {
	return g.run(ctx, "sync", BuildSyncPrompt(storyboard, narration))
}

// ExtractJSON returns the first JSON object in model output, tolerating code
// fences and leading or trailing prose.
func ExtractJSON(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("empty response")
	}

	for start := strings.IndexByte(s, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		var obj json.RawMessage
		if err := dec.Decode(&obj); err == nil && bytes.HasPrefix(bytes.TrimSpace(obj), []byte("{")) {
			return obj, nil
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return nil, fmt.Errorf("no JSON object found (preview: %s)", apperr.Truncate(s, 200))
}
