package enrichment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
	"github.com/nextlevelbuilder/chatbridge/internal/enrichment"
)

type fakeMedia struct {
	desc string
	err  error
}

func (f fakeMedia) Describe(ctx context.Context, chatID string, messageID int) (string, error) {
	return f.desc, f.err
}

type fakeYouTube struct{ transcript string }

func (f fakeYouTube) Transcribe(ctx context.Context, url string) (string, error) {
	return f.transcript, nil
}

type fakeLinks struct{ summary string }

func (f fakeLinks) Summarize(ctx context.Context, url string) (string, error) {
	return f.summary, nil
}

type fakeReplyChain struct{ chain []bus.InboundEvent }

func (f fakeReplyChain) FetchChain(ctx context.Context, chatID string, replyToID, maxDepth int) ([]bus.InboundEvent, error) {
	return f.chain, nil
}

func TestEnrich_AllStepsFailReturnsOriginalText(t *testing.T) {
	stage := enrichment.New(
		fakeMedia{err: errors.New("boom")},
		nil, nil, nil,
		time.Second,
	)

	job := bus.Job{Text: "hello", HasMedia: true}
	result := stage.Enrich(context.Background(), job, time.Second)
	require.Equal(t, "hello", result)
}

func TestEnrich_MediaPrefixesDescription(t *testing.T) {
	stage := enrichment.New(fakeMedia{desc: "a photo of a cat"}, nil, nil, nil, time.Second)

	job := bus.Job{Text: "check this out", HasMedia: true}
	result := stage.Enrich(context.Background(), job, time.Second)
	require.Equal(t, "a photo of a cat\n\ncheck this out", result)
}

func TestEnrich_YouTubeTranscriptSplicedInPlace(t *testing.T) {
	stage := enrichment.New(nil, fakeYouTube{transcript: "a video about cats"}, nil, nil, time.Second)

	url := "https://youtube.com/watch?v=abc123"
	job := bus.Job{Text: "check this out " + url, URLs: bus.URLSet{YouTube: []string{url}}}
	result := stage.Enrich(context.Background(), job, time.Second)

	require.Equal(t, "check this out "+url+"\na video about cats", result)
}

func TestEnrich_LinkSummariesAppendedUnderMarker(t *testing.T) {
	stage := enrichment.New(nil, nil, fakeLinks{summary: "a great article"}, nil, time.Second)

	job := bus.Job{Text: "look at this", URLs: bus.URLSet{Other: []string{"https://example.com"}}}
	result := stage.Enrich(context.Background(), job, time.Second)
	require.Contains(t, result, "--- LINK SUMMARIES ---")
	require.Contains(t, result, "https://example.com: a great article")
}

func TestEnrich_ReplyChainPrependedWithCurrentMessageMarker(t *testing.T) {
	chain := []bus.InboundEvent{
		{Sender: "Alice", Text: "first message"},
		{Sender: "Alice", Text: "second message"},
		{Sender: "Bob", Text: "third message"},
	}
	stage := enrichment.New(nil, nil, nil, fakeReplyChain{chain: chain}, time.Second)

	job := bus.Job{Text: "my reply", ReplyToID: 5}
	result := stage.Enrich(context.Background(), job, time.Second)

	require.Contains(t, result, "CURRENT MESSAGE:\nmy reply")
	require.Contains(t, result, "Alice: first message")
	require.Contains(t, result, "Bob: third message")
}

func TestFormatReplyChain_CollapsesConsecutiveSameAuthorLines(t *testing.T) {
	chain := []bus.InboundEvent{
		{Sender: "Alice", Text: "line one"},
		{Sender: "Alice", Text: "line two"},
	}
	formatted := enrichment.FormatReplyChain(chain)
	require.Equal(t, "Alice: line one\nline two", formatted)
}
