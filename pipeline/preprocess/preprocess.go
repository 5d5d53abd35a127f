// Package preprocess turns raw conversation input into cleaned,
// redacted, ordered segments. It accepts plain text, structured message
// lists, and tagged chat-log blobs; only structured input can fail.
package preprocess

import (
	"fmt"
	"strings"
	"time"

	"github.com/mnemolabs/mnemo/core"
	"github.com/mnemolabs/mnemo/redact"
)

// Content is one of the accepted conversation input forms: RawText,
// Messages, or ChatLog.
type Content interface {
	isContent()
}

// RawText is free-form conversation text. Parsing it never fails; it
// always yields at least one segment.
type RawText string

func (RawText) isContent() {}

// Message is one structured conversation message.
type Message struct {
	Speaker   string
	Text      string
	Timestamp time.Time
}

// Messages is a structured message list.
type Messages []Message

func (Messages) isContent() {}

// ChatLog is a tagged chat-log blob: one message per line in the form
// "[<timestamp>] <speaker>: <text>".
type ChatLog string

func (ChatLog) isContent() {}

// Preprocessor parses conversation content into segments, applying PII
// redaction to each segment before it leaves this stage.
type Preprocessor struct {
	redactor redact.Redactor
	now      func() time.Time
}

// New creates a Preprocessor. A nil redactor disables redaction.
func New(redactor redact.Redactor) *Preprocessor {
	if redactor == nil {
		redactor = redact.Noop{}
	}
	return &Preprocessor{redactor: redactor, now: time.Now}
}

// chatLogTimeLayouts are accepted timestamp formats in chat-log lines.
var chatLogTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"15:04",
}

// Parse converts content into ordered segments. Structured input
// (Messages, ChatLog) fails with *core.PreprocessError when malformed;
// RawText always succeeds.
func (p *Preprocessor) Parse(content Content) ([]core.Segment, error) {
	switch c := content.(type) {
	case RawText:
		return p.parseRaw(string(c)), nil
	case Messages:
		return p.parseMessages(c)
	case ChatLog:
		return p.parseChatLog(string(c))
	default:
		return nil, &core.PreprocessError{Detail: "unsupported content type"}
	}
}

// parseRaw splits free text on blank lines into paragraph segments. Empty
// input still produces one (empty) segment: raw text never fails.
func (p *Preprocessor) parseRaw(text string) []core.Segment {
	now := p.now()
	paragraphs := splitParagraphs(text)
	if len(paragraphs) == 0 {
		paragraphs = []string{normalizeWhitespace(text)}
	}

	segments := make([]core.Segment, 0, len(paragraphs))
	for i, para := range paragraphs {
		segments = append(segments, core.Segment{
			Text:      p.redactor.Redact(para),
			Source:    "raw",
			Timestamp: now,
			Index:     i,
		})
	}
	return segments
}

func (p *Preprocessor) parseMessages(msgs Messages) ([]core.Segment, error) {
	if len(msgs) == 0 {
		return nil, &core.PreprocessError{Detail: "empty message list"}
	}

	segments := make([]core.Segment, 0, len(msgs))
	for _, msg := range msgs {
		text := normalizeWhitespace(msg.Text)
		if text == "" {
			continue
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = p.now()
		}
		segments = append(segments, core.Segment{
			Text:      p.redactor.Redact(text),
			Source:    msg.Speaker,
			Timestamp: ts,
			Index:     len(segments),
		})
	}
	if len(segments) == 0 {
		return nil, &core.PreprocessError{Detail: "message list contains no text"}
	}
	return segments, nil
}

func (p *Preprocessor) parseChatLog(blob string) ([]core.Segment, error) {
	lines := strings.Split(blob, "\n")
	var segments []core.Segment

	for lineNo, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		msg, err := parseChatLogLine(line)
		if err != nil {
			return nil, &core.PreprocessError{Detail: fmt.Sprintf("%s (line %d)", err, lineNo+1)}
		}
		ts := msg.Timestamp
		if ts.IsZero() {
			ts = p.now()
		}
		segments = append(segments, core.Segment{
			Text:      p.redactor.Redact(msg.Text),
			Source:    msg.Speaker,
			Timestamp: ts,
			Index:     len(segments),
		})
	}
	if len(segments) == 0 {
		return nil, &core.PreprocessError{Detail: "chat log contains no messages"}
	}
	return segments, nil
}

// parseChatLogLine parses "[<timestamp>] <speaker>: <text>".
func parseChatLogLine(line string) (Message, error) {
	if !strings.HasPrefix(line, "[") {
		return Message{}, errLine("missing timestamp tag")
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return Message{}, errLine("unterminated timestamp tag")
	}

	tsText := strings.TrimSpace(line[1:end])
	var ts time.Time
	var parsed bool
	for _, layout := range chatLogTimeLayouts {
		if t, err := time.Parse(layout, tsText); err == nil {
			ts = t
			parsed = true
			break
		}
	}
	if !parsed {
		return Message{}, errLine("unrecognized timestamp")
	}

	rest := strings.TrimSpace(line[end+1:])
	colon := strings.Index(rest, ":")
	if colon <= 0 {
		return Message{}, errLine("missing speaker tag")
	}

	speaker := strings.TrimSpace(rest[:colon])
	text := normalizeWhitespace(rest[colon+1:])
	if text == "" {
		return Message{}, errLine("empty message text")
	}
	return Message{Speaker: speaker, Text: text, Timestamp: ts}, nil
}

type errLine string

func (e errLine) Error() string { return string(e) }

// splitParagraphs splits on blank lines and normalizes each paragraph.
func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := normalizeWhitespace(block); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// normalizeWhitespace collapses runs of whitespace into single spaces.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
