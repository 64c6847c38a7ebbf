// Package enrichment runs the four independent, best-effort sub-steps
// that turn a job's raw text into the text handed to the agent: media
// description, YouTube transcription, link summaries, and reply-chain
// context. Each sub-step is guarded so a single failure never prevents
// the others from running.
package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
)

// MediaDescriber turns the media attached to (chatID, messageID) into a
// short text description.
type MediaDescriber interface {
	Describe(ctx context.Context, chatID string, messageID int) (string, error)
}

// YouTubeTranscriber fetches a transcript/caption summary for a video URL.
type YouTubeTranscriber interface {
	Transcribe(ctx context.Context, url string) (string, error)
}

// LinkSummarizer produces a short summary for a non-YouTube URL.
type LinkSummarizer interface {
	Summarize(ctx context.Context, url string) (string, error)
}

// ReplyChainFetcher walks up to maxDepth parent messages via the
// transport.
type ReplyChainFetcher interface {
	FetchChain(ctx context.Context, chatID string, replyToID int, maxDepth int) ([]bus.InboundEvent, error)
}

const maxReplyChainDepth = 20

// Stage wires the four sub-step collaborators. Any of them may be nil,
// in which case that sub-step is skipped.
type Stage struct {
	Media       MediaDescriber
	YouTube     YouTubeTranscriber
	Links       LinkSummarizer
	ReplyChain  ReplyChainFetcher
	StepTimeout time.Duration
}

// New builds a Stage with the given collaborators and a per-step timeout.
func New(media MediaDescriber, youtube YouTubeTranscriber, links LinkSummarizer, replyChain ReplyChainFetcher, stepTimeout time.Duration) *Stage {
	return &Stage{Media: media, YouTube: youtube, Links: links, ReplyChain: replyChain, StepTimeout: stepTimeout}
}

// Enrich runs all four sub-steps in their fixed splice order (media,
// YouTube, links, reply chain) against a budget for the stage as a
// whole. If every sub-step fails or is skipped, job.Text is returned
// unchanged.
func (s *Stage) Enrich(ctx context.Context, job bus.Job, budget time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	text := job.Text

	if job.HasMedia && s.Media != nil {
		if desc, err := s.runWithTimeout(ctx, func(stepCtx context.Context) (string, error) {
			return s.Media.Describe(stepCtx, job.ChatID, job.MessageID)
		}); err != nil {
			slog.Warn("enrichment.media_failed", "chat_id", job.ChatID, "error", err)
		} else if desc != "" {
			text = spliceMedia(text, desc)
		}
	}

	if len(job.URLs.YouTube) > 0 && s.YouTube != nil {
		successCount := 0
		for _, url := range job.URLs.YouTube {
			transcript, err := s.runWithTimeout(ctx, func(stepCtx context.Context) (string, error) {
				return s.YouTube.Transcribe(stepCtx, url)
			})
			if err != nil {
				slog.Warn("enrichment.youtube_failed", "url", url, "error", err)
				continue
			}
			if transcript != "" {
				text = strings.Replace(text, url, fmt.Sprintf("%s\n%s", url, transcript), 1)
				successCount++
			}
		}
		if successCount > 0 {
			slog.Info("enrichment.youtube_transcribed", "count", successCount, "total", len(job.URLs.YouTube))
		}
	}

	if len(job.URLs.Other) > 0 && s.Links != nil {
		var summaries []string
		for _, url := range job.URLs.Other {
			summary, err := s.runWithTimeout(ctx, func(stepCtx context.Context) (string, error) {
				return s.Links.Summarize(stepCtx, url)
			})
			if err != nil {
				slog.Warn("enrichment.link_summary_failed", "url", url, "error", err)
				continue
			}
			if summary != "" {
				summaries = append(summaries, fmt.Sprintf("%s: %s", url, summary))
			}
		}
		if len(summaries) > 0 {
			text = fmt.Sprintf("%s\n\n--- LINK SUMMARIES ---\n%s", text, strings.Join(summaries, "\n"))
			slog.Info("enrichment.link_summaries_added", "count", len(summaries))
		}
	}

	if job.ReplyToID != 0 && s.ReplyChain != nil {
		chain, err := s.runChainWithTimeout(ctx, job.ChatID, job.ReplyToID)
		if err != nil {
			slog.Warn("enrichment.reply_chain_failed", "chat_id", job.ChatID, "error", err)
		} else if len(chain) > 0 {
			formatted := FormatReplyChain(chain)
			if formatted != "" {
				text = fmt.Sprintf("%s\n\nCURRENT MESSAGE:\n%s", formatted, text)
				slog.Info("enrichment.reply_chain_fetched", "depth", len(chain))
			}
		}
	}

	return text
}

func (s *Stage) runWithTimeout(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	stepCtx := ctx
	if s.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, s.StepTimeout)
		defer cancel()
	}
	return fn(stepCtx)
}

func (s *Stage) runChainWithTimeout(ctx context.Context, chatID string, replyToID int) ([]bus.InboundEvent, error) {
	stepCtx := ctx
	if s.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, s.StepTimeout)
		defer cancel()
	}
	return s.ReplyChain.FetchChain(stepCtx, chatID, replyToID, maxReplyChainDepth)
}

// spliceMedia prefixes description to text, following the original's
// rule that an empty or placeholder greeting text is replaced outright
// rather than prefixed.
func spliceMedia(text, description string) string {
	if text == "" || text == "Hello" {
		return description
	}
	return fmt.Sprintf("%s\n\n%s", description, text)
}

// FormatReplyChain renders a parent-message chain as compact "Name: ..."
// lines, collapsing consecutive lines from the same author rather than
// repeating their name on every line.
func FormatReplyChain(chain []bus.InboundEvent) string {
	var lines []string
	lastSender := ""
	for _, ev := range chain {
		if ev.Sender == lastSender {
			lines = append(lines, ev.Text)
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", ev.Sender, ev.Text))
		lastSender = ev.Sender
	}
	return strings.Join(lines, "\n")
}
