// Package sessionregistry decides, for each enriched job, whether to
// resume an existing agent session or spawn a new one, and owns every
// status transition on AgentSession records.
package sessionregistry

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/chatbridge/internal/kvstore"
	"github.com/nextlevelbuilder/chatbridge/internal/records"
)

// SilenceThreshold is the default window within which a dormant session
// for the same (project_key, chat_id) is still eligible for resume.
const SilenceThreshold = 600 * time.Second

// Registry wraps the AgentSession collection with the resume/spawn
// decision and the registry's exclusive transition responsibility.
type Registry struct {
	col             *kvstore.Collection[records.AgentSession]
	classifier      Classifier
	silenceWindow   time.Duration
}

// New builds a Registry over client with classifier as the default
// classification collaborator.
func New(client *kvstore.Client, classifier Classifier, silenceWindow time.Duration) *Registry {
	if classifier == nil {
		classifier = HeuristicClassifier{}
	}
	if silenceWindow <= 0 {
		silenceWindow = SilenceThreshold
	}
	return &Registry{col: records.NewAgentSessionCollection(client), classifier: classifier, silenceWindow: silenceWindow}
}

// Resolve decides whether to resume an existing session for
// (projectKey, chatID) or spawn a new one, per spec.md §4.5. now is
// passed explicitly so callers control the clock (and tests can too).
func (r *Registry) Resolve(ctx context.Context, projectKey, chatID, sender, messageText string, now float64) (*records.AgentSession, error) {
	candidates, err := r.col.Query().Filter("ProjectKey", projectKey).Filter("ChatID", chatID).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("sessionregistry: resolve: %w", err)
	}

	for _, s := range candidates {
		if s.Status != records.StatusActive && s.Status != records.StatusDormant {
			continue
		}
		if now-s.LastActivity <= r.silenceWindow.Seconds() {
			s.LastActivity = now
			if err := r.col.Save(ctx, s); err != nil {
				return nil, fmt.Errorf("sessionregistry: bump last_activity: %w", err)
			}
			return s, nil
		}
	}

	return r.spawn(ctx, projectKey, chatID, sender, messageText, now)
}

func (r *Registry) spawn(ctx context.Context, projectKey, chatID, sender, messageText string, now float64) (*records.AgentSession, error) {
	classification, err := r.classifier.Classify(ctx, messageText)
	var classType records.ClassificationType
	var confidence float64
	if err == nil {
		classType = classification.Type
		confidence = classification.Confidence
	}

	session := &records.AgentSession{
		ProjectKey:               projectKey,
		ChatID:                   chatID,
		Sender:                   sender,
		Status:                   records.StatusActive,
		StartedAt:                now,
		LastActivity:             now,
		MessageText:              messageText,
		ClassificationType:       classType,
		ClassificationConfidence: confidence,
	}
	session.TruncateMessageText()

	if err := r.col.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("sessionregistry: create: %w", err)
	}

	slug := BuildWorkItemSlug(messageText)
	session.WorkItemSlug = slug
	session.BranchName = BuildBranchName(slug, session.SessionID)
	if err := r.col.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("sessionregistry: save slug/branch: %w", err)
	}

	return session, nil
}

// Transition atomically moves session to newStatus. Status is a
// key-typed field, so this must go through the collection's atomic
// swap, never a direct field assignment followed by Save.
func (r *Registry) Transition(ctx context.Context, session *records.AgentSession, newStatus records.SessionStatus) error {
	return r.col.Transition(ctx, session, func(s *records.AgentSession) {
		s.Status = newStatus
	})
}

// IncrementToolCallCount bumps a session's tool call counter and
// last_activity. Neither field is key-typed, so a plain Save suffices.
func (r *Registry) IncrementToolCallCount(ctx context.Context, session *records.AgentSession, now float64) error {
	session.ToolCallCount++
	session.LastActivity = now
	return r.col.Save(ctx, session)
}

// ListActive returns every session with status=active, for the
// watchdog's read-only view.
func (r *Registry) ListActive(ctx context.Context) ([]*records.AgentSession, error) {
	return r.col.Query().Filter("Status", string(records.StatusActive)).All(ctx)
}
