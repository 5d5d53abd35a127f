package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemolabs/mnemo/core"
)

func TestParseExtractions(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    []Extraction
		wantErr bool
	}{
		{
			name: "plain array",
			resp: `[{"content": "User lives in London", "relevance": 0.8, "category": "personal"}]`,
			want: []Extraction{{Content: "User lives in London", Relevance: 0.8, Class: core.ClassPersonal}},
		},
		{
			name: "fenced array",
			resp: "```json\n[{\"content\": \"Prefers tea\", \"relevance\": 0.5, \"category\": \"personal\"}]\n```",
			want: []Extraction{{Content: "Prefers tea", Relevance: 0.5, Class: core.ClassPersonal}},
		},
		{
			name: "empty array",
			resp: `[]`,
			want: []Extraction{},
		},
		{
			name: "missing category maps to empty class",
			resp: `[{"content": "Something", "relevance": 0.4}]`,
			want: []Extraction{{Content: "Something", Relevance: 0.4}},
		},
		{
			name: "unknown category maps to custom",
			resp: `[{"content": "Plays chess", "relevance": 0.4, "category": "hobbies"}]`,
			want: []Extraction{{Content: "Plays chess", Relevance: 0.4, Class: core.ClassCustom}},
		},
		{
			name:    "free text is malformed",
			resp:    "I could not find any memories.",
			wantErr: true,
		},
		{
			name:    "object instead of array",
			resp:    `{"content": "x", "relevance": 0.5}`,
			wantErr: true,
		},
		{
			name:    "empty content entry",
			resp:    `[{"content": "  ", "relevance": 0.5}]`,
			wantErr: true,
		},
		{
			name:    "relevance above one",
			resp:    `[{"content": "x", "relevance": 1.5}]`,
			wantErr: true,
		},
		{
			name:    "negative relevance",
			resp:    `[{"content": "x", "relevance": -0.1}]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExtractions(tt.resp)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsMalformed(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    *core.Resolution
		wantErr bool
	}{
		{
			name: "merge with result",
			resp: `{"action": "MERGE", "reason": "combine facts", "result": "merged content"}`,
			want: &core.Resolution{Action: core.ActionMerge, Reason: "combine facts", Result: "merged content"},
		},
		{
			name: "lowercase action accepted",
			resp: `{"action": "keep_both", "reason": "distinct events"}`,
			want: &core.Resolution{Action: core.ActionKeepBoth, Reason: "distinct events"},
		},
		{
			name: "fenced replace",
			resp: "```\n{\"action\": \"REPLACE\", \"reason\": \"newer\", \"result\": \"new content\"}\n```",
			want: &core.Resolution{Action: core.ActionReplace, Reason: "newer", Result: "new content"},
		},
		{
			name: "discard",
			resp: `{"action": "DISCARD", "reason": "subset"}`,
			want: &core.Resolution{Action: core.ActionDiscard, Reason: "subset"},
		},
		{
			name:    "unknown action",
			resp:    `{"action": "UPSERT", "reason": "?"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			resp:    "keep both of them",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResolution(tt.resp)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsMalformed(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
	assert.Equal(t, "plain text", stripCodeFence("  plain text  "))
}

func TestBuildPrompts(t *testing.T) {
	extract := buildExtractPrompt("some conversation")
	assert.Contains(t, extract, "some conversation")
	assert.NotContains(t, extract, "{INPUT}")

	summarize := buildSummarizePrompt("long content", "", 128)
	assert.Contains(t, summarize, "long content")
	assert.Contains(t, summarize, DefaultPreservationHint)
	assert.Contains(t, summarize, "128")

	summarize = buildSummarizePrompt("long content", "keep the dosage", 64)
	assert.Contains(t, summarize, "keep the dosage")
	assert.NotContains(t, summarize, DefaultPreservationHint)

	classify := buildClassifyPrompt("took 500mg amoxicillin")
	assert.Contains(t, classify, "took 500mg amoxicillin")

	resolve := buildResolvePrompt("old memory", "new memory", 0.87)
	assert.Contains(t, resolve, "old memory")
	assert.Contains(t, resolve, "new memory")
	assert.Contains(t, resolve, "0.87")
}

func TestRetryOnce(t *testing.T) {
	ctx := context.Background()
	malformed := &MalformedResponseError{Op: "extract", Detail: "not a JSON array"}

	t.Run("success is not retried", func(t *testing.T) {
		calls := 0
		out, err := RetryOnce(ctx, func(context.Context) (string, error) {
			calls++
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", out)
		assert.Equal(t, 1, calls)
	})

	t.Run("malformed retried exactly once", func(t *testing.T) {
		calls := 0
		out, err := RetryOnce(ctx, func(context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", malformed
			}
			return "second", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "second", out)
		assert.Equal(t, 2, calls)
	})

	t.Run("second malformed failure is fatal", func(t *testing.T) {
		calls := 0
		_, err := RetryOnce(ctx, func(context.Context) (string, error) {
			calls++
			return "", malformed
		})
		require.Error(t, err)
		assert.True(t, IsMalformed(err))
		assert.Equal(t, 2, calls)
	})

	t.Run("transient errors are not retried", func(t *testing.T) {
		calls := 0
		_, err := RetryOnce(ctx, func(context.Context) (string, error) {
			calls++
			return "", ErrTimeout
		})
		require.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, 1, calls)
	})
}

func TestIsMalformed(t *testing.T) {
	assert.True(t, IsMalformed(&MalformedResponseError{Op: "extract"}))
	assert.False(t, IsMalformed(ErrUnavailable))
	assert.False(t, IsMalformed(errors.New("other")))
	assert.False(t, IsMalformed(nil))
}

func TestWithCallTimeout(t *testing.T) {
	t.Run("positive timeout sets a deadline", func(t *testing.T) {
		ctx, cancel := WithCallTimeout(context.Background(), time.Minute)
		defer cancel()
		_, ok := ctx.Deadline()
		assert.True(t, ok)
	})

	t.Run("expired budget cancels the call", func(t *testing.T) {
		ctx, cancel := WithCallTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})

	t.Run("non-positive timeout leaves ctx unchanged", func(t *testing.T) {
		ctx, cancel := WithCallTimeout(context.Background(), 0)
		defer cancel()
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		assert.NoError(t, ctx.Err())
	})
}
