package services

import (
	"fmt"
	"unicode/utf8"

	"github.com/bobarin/codereel/internal/schema"
)

// Prompt is a system/user pair. Every prompt asks for a single JSON object.
type Prompt struct {
	System string
	User   string
}

// previewLimit bounds how much of a storyboard or narration is echoed back to
// the model in follow-up prompts.
const previewLimit = 4000

// KnownAlgorithms is the vocabulary offered to the detector.
var KnownAlgorithms = []string{
	"two_sum_map", "two_sum_two_pointers", "three_sum", "binary_search",
	"rotated_binary_search", "stock_profit", "kadane", "sliding_window_k",
	"remove_dupes_sorted", "reverse_ll", "ll_detect_cycle", "ll_merge_sorted",
	"ll_middle", "valid_parentheses", "min_stack", "next_greater",
	"queue_with_two_stacks", "sliding_window_max",
}

// preview keeps at most previewLimit bytes, backing off so a multi-byte
// rune is never split.
func preview(b []byte) string {
	if len(b) <= previewLimit {
		return string(b)
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut])
}

func BuildDetectPrompt(code, language string) Prompt {
	algos := ""
	for i, a := range KnownAlgorithms {
		if i > 0 {
			algos += " | "
		}
		algos += a
	}
	return Prompt{
		System: "You identify the primary algorithm in short code snippets and return a minimal JSON object.",
		User: fmt.Sprintf("Language: %s\nCode:\n```\n%s\n```\n\n"+
			"Return JSON only:\n{\n"+
			"  \"algo_id\": \"<one of: %s>\",\n"+
			"  \"confidence\": 0.0-1.0,\n"+
			"  \"ds\": [\"array\"|\"arraylist\"|\"linkedlist\"|\"stack\"|\"queue\"|\"deque\"]\n}",
			language, code, algos),
	}
}

func BuildStoryboardPrompt(algoID, code, language string) Prompt {
	return Prompt{
		System: "You produce a storyboard for an educational video as a list of SCENES following this CATALOG.\n" +
			"STRICTLY obey the CATALOG. Output JSON only. Do NOT invent fields.\n\n" +
			"CATALOG:\n" + string(schema.TemplatesJSON(false)) + "\n\n" +
			"Global rules to respect:\n" +
			"- Total scenes <= 150.\n" +
			"- Prefer arrays with <= 12 items.\n" +
			"- Indices are integers >= 0.\n" +
			"- For ArrayTape frames: ensure 0 <= left <= mid <= right < array.length when present.\n" +
			"- MovePointer never moves left backwards or right outwards.\n" +
			"- Emit exactly ONE ComplexityCard near the end.\n" +
			"- ResultCard must be the final scene.\n" +
			"- If data is unchanged across frames, you may omit \"array\" in later ArrayTape scenes.\n" +
			"- Every scene object carries its type in the \"t\" field.",
		User: fmt.Sprintf("Algorithm: %s\nLanguage: %s\nOriginal code (for context only):\n```\n%s\n```\n\n"+
			"Return JSON only with:\n{\n"+
			"  \"version\": \"1.0\",\n"+
			"  \"input\": { ... tiny example inputs you will demonstrate ... },\n"+
			"  \"scenes\": [ ... list of Scene objects as per CATALOG ... ]\n}",
			algoID, language, code),
	}
}

func BuildNarrationPrompt(algoID string, storyboard []byte) Prompt {
	return Prompt{
		System: "You are a calm, friendly teacher. Write short, natural sentences that sound like human speech.\n" +
			"Constraints:\n" +
			"- Output JSON only: { \"version\":\"1.0\", \"lines\":[ \"...\", ... ] }\n" +
			"- 6-14 sentences total. Prefer 8-12 for typical problems.\n" +
			"- No line > 180 chars. Avoid jargon. Use \"we\", \"let's\".\n" +
			"- Use punctuation to create natural pauses. Spell out big-O as \"O(log n)\".",
		User: fmt.Sprintf("Algorithm: %s\nStoryboard (truncated if long):\n%s\n\n"+
			"Return JSON only with { \"version\":\"1.0\", \"lines\":[ ... ] }",
			algoID, preview(storyboard)),
	}
}

func BuildComplexityPrompt(algoID string) Prompt {
	return Prompt{
		System: "You explain Big-O time and space for the given algorithm.\n" +
			"Output JSON only as:\n{\n" +
			"  \"time\": {\"best\":\"O(...)\", \"avg\":\"O(...)\", \"worst\":\"O(...)\"},\n" +
			"  \"space\": {\"aux\":\"O(...)\"},\n" +
			"  \"explanation\": \"<= 200 chars one-liner\"\n}",
		User: fmt.Sprintf("Algorithm: %s\nReturn JSON only.", algoID),
	}
}

func BuildSyncPrompt(storyboard, narration []byte) Prompt {
	return Prompt{
		System: "You align narration lines to storyboard scenes.\n" +
			"Output JSON only:\n" +
			"{ \"version\":\"1.0\", \"pairs\":[ lineIdx[] per scene ], \"breath_gap_sec\": 0.12 }\n" +
			"Rules:\n" +
			"- pairs.length MUST equal scenes.length.\n" +
			"- Do NOT reorder lines; use original indices.\n" +
			"- A scene may have 0, 1, or many lines.\n" +
			"- Prefer combining short lines on meaningful visuals (e.g., pointer moves).\n" +
			"- For very brief visuals (decorative Callout), use [] to keep silence.",
		User: fmt.Sprintf("SCENES (truncated):\n%s\n\nNARRATION:\n%s\n\n"+
			"Return JSON only with {version,pairs,breath_gap_sec}.",
			preview(storyboard), preview(narration)),
	}
}
