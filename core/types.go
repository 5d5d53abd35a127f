package core

import "time"

// Segment is an ordered unit of conversation text produced by the
// preprocessor. Segments are immutable once produced.
type Segment struct {
	Text      string    `json:"text"`
	Source    string    `json:"source"` // speaker or origin tag
	Timestamp time.Time `json:"timestamp"`
	Index     int       `json:"index"` // sequence index within the conversation
}

// MemoryCandidate is a not-yet-committed memory produced by extraction or
// manual input. Summarization replaces Content in place; the original
// content is preserved in Context when Context is not already set.
type MemoryCandidate struct {
	Content   string      `json:"content"`
	Relevance float64     `json:"relevance"` // 0-1
	Class     MemoryClass `json:"class"`
	Context   string      `json:"context,omitempty"`
	Tags      []string    `json:"tags,omitempty"`
	Manual    bool        `json:"manual,omitempty"` // manual inputs skip extraction
}

// StoredMemory is a read-only view of a memory owned by the storage
// engine. The pipeline never mutates it directly; it issues write intents
// to the store.
type StoredMemory struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Class     MemoryClass `json:"class"`
	Tags      []string    `json:"tags,omitempty"`
	KeyID     string      `json:"key_id,omitempty"` // encryption key identifier
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DuplicateCandidate pairs a candidate with its most similar existing
// memory. It exists only within one pipeline run.
type DuplicateCandidate struct {
	Candidate  MemoryCandidate `json:"candidate"`
	Existing   StoredMemory    `json:"existing"`
	Similarity float64         `json:"similarity"` // 0-1
}

// ResolutionAction is the terminal decision for a duplicate pair.
type ResolutionAction string

// Resolution actions.
const (
	ActionMerge    ResolutionAction = "merge"
	ActionReplace  ResolutionAction = "replace"
	ActionKeepBoth ResolutionAction = "keep_both"
	ActionDiscard  ResolutionAction = "discard"
)

// Valid reports whether a is a known resolution action.
func (a ResolutionAction) Valid() bool {
	switch a {
	case ActionMerge, ActionReplace, ActionKeepBoth, ActionDiscard:
		return true
	}
	return false
}

// Resolution is the terminal output of the conflict resolver.
// Result carries the merged content and is required for ActionMerge;
// a Merge without Result is downgraded to KeepBoth before it gets here.
type Resolution struct {
	Action ResolutionAction `json:"action"`
	Reason string           `json:"reason"`
	Result string           `json:"result,omitempty"`
}

// RawMemoryInput is a manually supplied memory. Manual inputs bypass
// extraction but still pass through summarization, similarity detection,
// and conflict resolution.
type RawMemoryInput struct {
	Content string      `json:"content"`
	Class   MemoryClass `json:"class,omitempty"` // empty: classified by the gateway
	Tags    []string    `json:"tags,omitempty"`
}

// ItemFailure records a single failed item within a batch. Reason never
// contains memory content, only identifiers and error categories.
type ItemFailure struct {
	Index  int    `json:"index"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Result is the outcome of one ingestion call. Failures are per-item;
// a partially successful batch is the designed behavior.
type Result struct {
	Stored    []string      `json:"stored"` // committed memory IDs
	Discarded int           `json:"discarded"`
	Failed    []ItemFailure `json:"failed,omitempty"`
}
