package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/embedding"
	"github.com/mnemolabs/mnemo/gateway"
	"github.com/mnemolabs/mnemo/pipeline/preprocess"
	"github.com/mnemolabs/mnemo/store"
	"github.com/mnemolabs/mnemo/vector"
)

// harness wires a Pipeline over mocks with helpers for seeding and
// pinning embeddings.
type harness struct {
	gw       *gateway.MockGateway
	embedder *embedding.MockService
	index    *vector.MockIndex
	memories *store.MemoryStore
	pipe     *Pipeline
}

func newHarness() *harness {
	h := &harness{
		gw:       gateway.NewMockGateway(),
		embedder: embedding.NewMockService(8),
		index:    vector.NewMockIndex(),
		memories: store.NewMemoryStore(),
	}
	h.pipe = New(h.gw, h.embedder, h.index, h.memories, nil)
	return h
}

// seed stores a memory and indexes it under vec, pinning the content's
// embedding to the same vector.
func (h *harness) seed(t *testing.T, content string, class core.MemoryClass, vec []float32) string {
	t.Helper()
	ctx := context.Background()
	id, err := h.memories.Add(ctx, core.StoredMemory{Content: content, Class: class})
	require.NoError(t, err)
	require.NoError(t, h.index.Upsert(ctx, id, class, vec))
	h.embedder.Pin(content, vec)
	return id
}

func extractionsOf(exts ...gateway.Extraction) func(string) ([]gateway.Extraction, error) {
	return func(string) ([]gateway.Extraction, error) { return exts, nil }
}

func TestIngestTextStoresExtractedMemory(t *testing.T) {
	h := newHarness()
	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "User is allergic to penicillin",
		Relevance: 0.95,
		Class:     core.ClassHealth,
	})

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("I found out I'm allergic to penicillin."),
		"chat", "", core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	assert.Empty(t, result.Failed)
	assert.Zero(t, result.Discarded)

	mem, err := h.memories.Get(context.Background(), result.Stored[0])
	require.NoError(t, err)
	assert.Equal(t, "User is allergic to penicillin", mem.Content)
	assert.Equal(t, core.ClassHealth, mem.Class)
	assert.Equal(t, 1, h.index.Count(core.ClassHealth), "committed memory is indexed")

	snap := h.pipe.Metrics()
	assert.EqualValues(t, 1, snap.Candidates)
	assert.EqualValues(t, 1, snap.Stored)
}

func TestIngestTextReplaceUpdatesExisting(t *testing.T) {
	h := newHarness()
	existingID := h.seed(t, "Meeting with Sarah on Tuesday", core.ClassWork, []float32{1, 0, 0, 0, 0, 0, 0, 0})

	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "Meeting with Sarah moved to Friday",
		Relevance: 0.9,
		Class:     core.ClassWork,
	})
	h.embedder.Pin("Meeting with Sarah moved to Friday", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	h.gw.ResolveFunc = func(existing, candidate string, similarity float64) (*core.Resolution, error) {
		return &core.Resolution{Action: core.ActionReplace, Reason: "rescheduled", Result: candidate}, nil
	}

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("the meeting with Sarah moved to Friday"),
		"chat", "", core.DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, []string{existingID}, result.Stored)
	assert.Equal(t, 1, h.memories.Len(), "no new memory is created")

	mem, err := h.memories.Get(context.Background(), existingID)
	require.NoError(t, err)
	assert.Equal(t, "Meeting with Sarah moved to Friday", mem.Content)

	snap := h.pipe.Metrics()
	assert.EqualValues(t, 1, snap.DuplicatesFound)
	assert.EqualValues(t, 1, snap.Replaced)
}

func TestIngestTextKeepBothDistinctEvents(t *testing.T) {
	h := newHarness()
	h.seed(t, "Standup at 9am on Monday", core.ClassWork, []float32{1, 0, 0, 0, 0, 0, 0, 0})

	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "Standup at 9am on Wednesday",
		Relevance: 0.9,
		Class:     core.ClassWork,
	})
	h.embedder.Pin("Standup at 9am on Wednesday", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	h.gw.ResolveFunc = func(existing, candidate string, similarity float64) (*core.Resolution, error) {
		return &core.Resolution{Action: core.ActionKeepBoth, Reason: "distinct events"}, nil
	}

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("standup happened again"),
		"chat", "", core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	assert.Equal(t, 2, h.memories.Len(), "both memories survive")
	assert.Equal(t, 2, h.index.Count(core.ClassWork))
	assert.EqualValues(t, 1, h.pipe.Metrics().KeptBoth)
}

func TestIngestTextDiscardsSubset(t *testing.T) {
	h := newHarness()
	h.seed(t, "User lives in London with her partner", core.ClassPersonal, []float32{0, 1, 0, 0, 0, 0, 0, 0})

	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "User lives in London",
		Relevance: 0.8,
		Class:     core.ClassPersonal,
	})
	h.embedder.Pin("User lives in London", []float32{0, 1, 0, 0, 0, 0, 0, 0})
	h.gw.ResolveFunc = func(existing, candidate string, similarity float64) (*core.Resolution, error) {
		return &core.Resolution{Action: core.ActionDiscard, Reason: "subset"}, nil
	}

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("she lives in London"),
		"chat", "", core.DefaultConfig())
	require.NoError(t, err)

	assert.Empty(t, result.Stored)
	assert.Equal(t, 1, result.Discarded)
	assert.Equal(t, 1, h.memories.Len())
	assert.EqualValues(t, 1, h.pipe.Metrics().Discarded)
}

func TestIngestTextMergeRefreshesVector(t *testing.T) {
	h := newHarness()
	existingID := h.seed(t, "Takes ibuprofen for headaches", core.ClassHealth, []float32{1, 0, 0, 0, 0, 0, 0, 0})

	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "Takes 400mg ibuprofen",
		Relevance: 0.9,
		Class:     core.ClassHealth,
	})
	h.embedder.Pin("Takes 400mg ibuprofen", []float32{1, 0, 0, 0, 0, 0, 0, 0})
	h.gw.ResolveFunc = func(existing, candidate string, similarity float64) (*core.Resolution, error) {
		return &core.Resolution{
			Action: core.ActionMerge,
			Reason: "dosage detail",
			Result: "Takes 400mg ibuprofen for headaches",
		}, nil
	}

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("ibuprofen dosage is 400mg"),
		"chat", "", core.DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, []string{existingID}, result.Stored)
	mem, err := h.memories.Get(context.Background(), existingID)
	require.NoError(t, err)
	assert.Equal(t, "Takes 400mg ibuprofen for headaches", mem.Content)
	assert.Equal(t, 1, h.index.Count(core.ClassHealth), "merged memory keeps one index entry")
	assert.EqualValues(t, 1, h.pipe.Metrics().Merged)
}

func TestIngestTextAutoResolveDisabled(t *testing.T) {
	h := newHarness()
	h.seed(t, "existing fact", core.ClassOther, []float32{1, 0, 0, 0, 0, 0, 0, 0})

	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "near duplicate fact",
		Relevance: 0.9,
		Class:     core.ClassOther,
	})
	h.embedder.Pin("near duplicate fact", []float32{1, 0, 0, 0, 0, 0, 0, 0})

	cfg := core.DefaultConfig()
	cfg.AutoResolve = false

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("some text"), "chat", "", cfg)
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	assert.Equal(t, 2, h.memories.Len(), "duplicates keep both when auto-resolution is off")
	assert.Equal(t, 0, h.gw.CallCount("resolve"))
}

func TestIngestTextPreprocessFailureIsReported(t *testing.T) {
	h := newHarness()

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.Messages{}, "chat", "", core.DefaultConfig())
	require.NoError(t, err, "item failures never fail the call")

	require.Len(t, result.Failed, 1)
	assert.Equal(t, StagePreprocessed, result.Failed[0].Stage)
	assert.Empty(t, result.Stored)
}

func TestIngestTextConfigErrorFailsFast(t *testing.T) {
	h := newHarness()
	cfg := core.DefaultConfig()
	cfg.SimilarityThreshold = 1.5

	_, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("text"), "chat", "", cfg)
	require.Error(t, err)
	assert.True(t, core.IsConfigError(err))
	assert.Equal(t, 0, h.gw.CallCount("extract"), "nothing runs on invalid config")
}

func TestIngestTextPartialCandidateFailure(t *testing.T) {
	h := newHarness()
	long := strings.Repeat("every detail of the quarterly planning discussion ", 20)
	h.gw.ExtractFunc = extractionsOf(
		gateway.Extraction{Content: "short healthy fact", Relevance: 0.9, Class: core.ClassOther},
		gateway.Extraction{Content: long, Relevance: 0.9, Class: core.ClassWork},
	)
	h.gw.SummarizeFunc = func(text string, maxTokens int, hint string) (string, error) {
		return "", gateway.ErrUnavailable
	}

	result, err := h.pipe.IngestText(context.Background(),
		preprocess.RawText("text"), "chat", "", core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1, "healthy candidate commits despite the sibling failure")
	require.Len(t, result.Failed, 1)
	assert.Equal(t, StageSummarized, result.Failed[0].Stage)
	assert.EqualValues(t, 1, h.pipe.Metrics().Failed)
}

func TestIngestBatchPartialFailure(t *testing.T) {
	h := newHarness()
	h.gw.ExtractFunc = extractionsOf(gateway.Extraction{
		Content:   "a fine memory",
		Relevance: 0.9,
		Class:     core.ClassOther,
	})

	contents := []preprocess.Content{
		preprocess.RawText("good input"),
		preprocess.ChatLog("not a chat log line"),
	}
	result, err := h.pipe.IngestBatch(context.Background(), contents, "import", "", core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index, "failure names the malformed input")
	assert.Equal(t, StagePreprocessed, result.Failed[0].Stage)
}

func TestAddMemoriesSkipsExtraction(t *testing.T) {
	h := newHarness()

	inputs := []core.RawMemoryInput{
		{Content: "prefers window seats", Class: core.ClassPersonal, Tags: []string{"travel"}},
	}
	result, err := h.pipe.AddMemories(context.Background(), inputs, "api", "",
		true, true, core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	assert.Equal(t, 0, h.gw.CallCount("extract"))
	assert.Equal(t, 0, h.gw.CallCount("classify"), "provided class is trusted")
	assert.Equal(t, 0, h.gw.CallCount("summarize"), "short content is not summarized")

	mem, err := h.memories.Get(context.Background(), result.Stored[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"travel"}, mem.Tags)
}

func TestAddMemoriesClassifiesWhenClassMissing(t *testing.T) {
	h := newHarness()
	h.gw.ClassifyFunc = func(text string) (core.MemoryClass, error) {
		return core.ClassFinancial, nil
	}

	result, err := h.pipe.AddMemories(context.Background(),
		[]core.RawMemoryInput{{Content: "pays rent on the 1st"}}, "api", "",
		true, true, core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	assert.Equal(t, 1, h.gw.CallCount("classify"))

	mem, err := h.memories.Get(context.Background(), result.Stored[0])
	require.NoError(t, err)
	assert.Equal(t, core.ClassFinancial, mem.Class)
}

func TestAddMemoriesEmptyContentFailsItemOnly(t *testing.T) {
	h := newHarness()

	inputs := []core.RawMemoryInput{
		{Content: "   "},
		{Content: "a real memory", Class: core.ClassOther},
	}
	result, err := h.pipe.AddMemories(context.Background(), inputs, "api", "",
		true, true, core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 0, result.Failed[0].Index)
	assert.Equal(t, StageReceived, result.Failed[0].Stage)
}

func TestAddMemoriesWithoutConflictCheck(t *testing.T) {
	h := newHarness()
	h.seed(t, "exact duplicate", core.ClassOther, []float32{1, 0, 0, 0, 0, 0, 0, 0})

	result, err := h.pipe.AddMemories(context.Background(),
		[]core.RawMemoryInput{{Content: "exact duplicate", Class: core.ClassOther}},
		"bulk-import", "", true, false, core.DefaultConfig())
	require.NoError(t, err)

	require.Len(t, result.Stored, 1)
	assert.Equal(t, 2, h.memories.Len(), "bulk import never deduplicates")
	assert.Equal(t, 0, h.gw.CallCount("resolve"))
}

// Two near-duplicates of the same existing memory arriving concurrently
// must resolve one after the other, each against the freshest content.
func TestConcurrentResolutionsSerialize(t *testing.T) {
	h := newHarness()
	shared := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	existingID := h.seed(t, "base fact", core.ClassOther, shared)

	h.embedder.Pin("detail one", shared)
	h.embedder.Pin("detail two", shared)

	var mu sync.Mutex
	var seenExisting []string
	h.gw.ResolveFunc = func(existing, candidate string, similarity float64) (*core.Resolution, error) {
		mu.Lock()
		seenExisting = append(seenExisting, existing)
		mu.Unlock()
		return &core.Resolution{
			Action: core.ActionMerge,
			Reason: "accumulate",
			Result: existing + " + " + candidate,
		}, nil
	}

	cfg := core.DefaultConfig()
	cfg.Concurrency = 4

	result, err := h.pipe.AddMemories(context.Background(),
		[]core.RawMemoryInput{
			{Content: "detail one", Class: core.ClassOther},
			{Content: "detail two", Class: core.ClassOther},
		},
		"api", "", false, true, cfg)
	require.NoError(t, err)

	require.Equal(t, []string{existingID, existingID}, result.Stored)
	assert.Equal(t, 1, h.memories.Len())

	mem, err := h.memories.Get(context.Background(), existingID)
	require.NoError(t, err)
	assert.Contains(t, mem.Content, "detail one")
	assert.Contains(t, mem.Content, "detail two")
	assert.Contains(t, mem.Content, "base fact")

	// The second resolution observed the first one's merged content.
	require.Len(t, seenExisting, 2)
	assert.Equal(t, "base fact", seenExisting[0])
	assert.Contains(t, seenExisting[1], " + ")
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.addSegments(3)
	m.addCandidates(2)
	m.incDuplicate()
	m.incAction("merge")
	m.incAction("keep_both")
	m.incAction("discard")
	m.incStored()
	m.incFailed()

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.Segments)
	assert.EqualValues(t, 2, snap.Candidates)
	assert.EqualValues(t, 1, snap.DuplicatesFound)
	assert.EqualValues(t, 1, snap.Merged)
	assert.EqualValues(t, 1, snap.KeptBoth)
	assert.EqualValues(t, 1, snap.Discarded)
	assert.EqualValues(t, 1, snap.Stored)
	assert.EqualValues(t, 1, snap.Failed)
}
