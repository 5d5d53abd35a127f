package gateway

import (
	"fmt"
	"strings"
)

// Prompt templates for the four gateway tasks. Placeholders are replaced
// verbatim; templates never receive untrusted format verbs.

const extractTemplate = `You are an expert memory extraction system. Your task is to identify and extract "user memories" from the provided text.

A "user memory" is a concise, actionable piece of information about the user's goal, preference, state, or an ongoing topic worth remembering for future interactions. Exclude conversational filler, acknowledgments, and trivial statements.

Output a JSON array of objects, each with:
- "content": a brief, clear statement of the memory
- "relevance": how important the memory is, a number between 0.0 and 1.0
- "category": one of "personal", "work", "health", "financial", "other"

If no relevant memories are found, output an empty JSON array [].

Examples:

Text: "Thanks for that, I really appreciate it."
Output: []

Text: "My favorite color is blue, and I live in London."
Output: [{"content": "User's favorite color is blue", "relevance": 0.6, "category": "personal"}, {"content": "User lives in London", "relevance": 0.8, "category": "personal"}]

Text:
{INPUT}

Output:`

const summarizeTemplate = `You are an expert memory summarization assistant. Condense the content below into a concise summary that preserves all essential facts, decisions, and actionable information. Do not introduce new information or interpretations.

Preservation requirement: {PRESERVE}

Aim for approximately {MAX_TOKENS} tokens or less. Be as succinct as possible without sacrificing critical information.

Content:
{CONTENT}

Summary:`

const classifyTemplate = `You are a memory classification assistant. Classify the memory content into the most appropriate category.

Categories:
- personal: personal life, relationships, hobbies, preferences
- work: professional tasks, meetings, projects, career
- health: medical information, fitness, wellness, appointments
- financial: money, investments, bills, purchases, budgets
- other: anything that does not fit the above

Memory content:
{CONTENT}

Respond with the category name only.

Category:`

const resolveTemplate = `You are a memory conflict resolution assistant. Two similar memories have been detected (similarity: {SIMILARITY}). Determine the best action.

Existing memory:
{EXISTING}

New memory:
{NEW}

Choose one action:
- REPLACE: the new memory strictly supersedes the existing one with no information loss (e.g. an updated phone number)
- MERGE: both contain non-overlapping facts worth combining
- KEEP_BOTH: the memories are temporally distinct events despite high textual similarity (e.g. two separate meetings)
- DISCARD: the new memory is a strict subset of the existing one and adds no value

Respond in JSON format:
{"action": "MERGE|REPLACE|KEEP_BOTH|DISCARD", "reason": "brief explanation", "result": "final memory content (required when merging)"}

JSON Response:`

// DefaultPreservationHint is applied when the caller supplies no
// preservation hint for summarization.
const DefaultPreservationHint = "preserve all proper nouns and dates"

func buildExtractPrompt(text string) string {
	return strings.Replace(extractTemplate, "{INPUT}", text, 1)
}

func buildSummarizePrompt(content, hint string, maxTokens int) string {
	if hint == "" {
		hint = DefaultPreservationHint
	}
	p := strings.Replace(summarizeTemplate, "{PRESERVE}", hint, 1)
	p = strings.Replace(p, "{MAX_TOKENS}", fmt.Sprintf("%d", maxTokens), 1)
	return strings.Replace(p, "{CONTENT}", content, 1)
}

func buildClassifyPrompt(content string) string {
	return strings.Replace(classifyTemplate, "{CONTENT}", content, 1)
}

func buildResolvePrompt(existing, candidate string, similarity float64) string {
	p := strings.Replace(resolveTemplate, "{SIMILARITY}", fmt.Sprintf("%.2f", similarity), 1)
	p = strings.Replace(p, "{EXISTING}", existing, 1)
	return strings.Replace(p, "{NEW}", candidate, 1)
}

// stripCodeFence removes a surrounding markdown code fence from a model
// response, if present. Models routinely wrap JSON in fences despite
// instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
