package ingest_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatbridge/internal/bus"
	"github.com/nextlevelbuilder/chatbridge/internal/ingest"
)

type fakeEnqueuer struct {
	jobs []bus.Job
	err  error
}

func (f *fakeEnqueuer) Enqueue(job bus.Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func TestHandleEvent_StripsBotMentionAndPartitionsURLs(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := ingest.New([]string{"mybot"}, enq)

	h.HandleEvent(bus.InboundEvent{
		ChatID: "100",
		Sender: "Tom",
		Text:   "@mybot check https://youtu.be/abc123 and https://example.com/page",
	})

	require.Len(t, enq.jobs, 1)
	job := enq.jobs[0]
	require.Equal(t, "check https://youtu.be/abc123 and https://example.com/page", job.Text)
	require.Equal(t, []string{"https://youtu.be/abc123"}, job.URLs.YouTube)
	require.Equal(t, []string{"https://example.com/page"}, job.URLs.Other)
}

func TestHandleEvent_NoURLsYieldsEmptySets(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := ingest.New(nil, enq)

	h.HandleEvent(bus.InboundEvent{ChatID: "100", Text: "hello"})

	require.Len(t, enq.jobs, 1)
	require.Empty(t, enq.jobs[0].URLs.YouTube)
	require.Empty(t, enq.jobs[0].URLs.Other)
}

func TestHandleEvent_DoesNotPanicOnEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("queue full")}
	h := ingest.New(nil, enq)

	require.NotPanics(t, func() {
		h.HandleEvent(bus.InboundEvent{ChatID: "100", Text: "hello"})
	})
}
