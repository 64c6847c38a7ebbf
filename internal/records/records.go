// Package records defines the closed set of record types persisted in the
// KV store adapter (internal/kvstore): the Message mirror, bridge events,
// dead letters, and agent sessions described in the bridge's data model.
// Each type is a tagged variant in the sense that kvstore dispatches on
// the caller's chosen Collection[T], not on a runtime type switch — the
// "closed set, tagged by type" design note is satisfied by one Collection
// per Go type rather than a shared polymorphic table.
package records

import "github.com/nextlevelbuilder/chatbridge/internal/kvstore"

// MaxContentChars is the hard cap on Message.Content and DeadLetter.Text
// length. Callers truncate; they never reject on this limit.
const MaxContentChars = 20_000

// Direction distinguishes inbound from outbound messages.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// MessageType classifies a Message mirror record.
type MessageType string

const (
	MessageTypeText          MessageType = "text"
	MessageTypeMedia         MessageType = "media"
	MessageTypeResponse      MessageType = "response"
	MessageTypeAcknowledgment MessageType = "acknowledgment"
)

// Message mirrors one inbound or outbound chat message. The archive store
// holds the durable copy; this KV record is the queryable mirror kept in
// sync by the archive's Store() call.
type Message struct {
	MsgID       string      `json:"msg_id"`
	ChatID      string      `json:"chat_id"`
	MessageID   int         `json:"message_id"`
	Direction   Direction   `json:"direction"`
	Sender      string      `json:"sender"`
	Content     string      `json:"content"`
	Timestamp   float64     `json:"timestamp"`
	MessageType MessageType `json:"message_type"`
	SessionID   string      `json:"session_id,omitempty"`
}

// TruncateContent caps Content at MaxContentChars in place.
func (m *Message) TruncateContent() {
	if len(m.Content) > MaxContentChars {
		m.Content = m.Content[:MaxContentChars]
	}
}

// MessageSchema declares the Message collection's indices. chat_id is
// indexed (Filter); timestamp is the sorted field so history can be
// range-queried in chat order.
var MessageSchema = kvstore.Schema{
	TypeTag:       "message",
	IDField:       "MsgID",
	IndexedFields: []string{"ChatID", "Direction"},
	SortedField:   "Timestamp",
}

// NewMessageCollection binds a Message collection to client.
func NewMessageCollection(client *kvstore.Client) *kvstore.Collection[Message] {
	return kvstore.NewCollection[Message](client, MessageSchema)
}

// BridgeEvent is a structured analytics/debugging event, subject to
// age-based cleanup.
type BridgeEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	ChatID     string         `json:"chat_id,omitempty"`
	ProjectKey string         `json:"project_key,omitempty"`
	Timestamp  float64        `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
}

var BridgeEventSchema = kvstore.Schema{
	TypeTag:       "bridge_event",
	IDField:       "EventID",
	IndexedFields: []string{"EventType", "ChatID", "ProjectKey"},
	SortedField:   "Timestamp",
}

// NewBridgeEventCollection binds a BridgeEvent collection to client.
func NewBridgeEventCollection(client *kvstore.Client) *kvstore.Collection[BridgeEvent] {
	return kvstore.NewCollection[BridgeEvent](client, BridgeEventSchema)
}

// DeadLetter is an outbound message whose transport delivery failed after
// retries. Owned exclusively by the delivery subsystem.
type DeadLetter struct {
	LetterID  string  `json:"letter_id"`
	ChatID    string  `json:"chat_id"`
	ReplyTo   int     `json:"reply_to,omitempty"`
	Text      string  `json:"text"`
	CreatedAt float64 `json:"created_at"`
	Attempts  int     `json:"attempts"`
}

// TruncateText caps Text at MaxContentChars in place.
func (d *DeadLetter) TruncateText() {
	if len(d.Text) > MaxContentChars {
		d.Text = d.Text[:MaxContentChars]
	}
}

var DeadLetterSchema = kvstore.Schema{
	TypeTag:       "dead_letter",
	IDField:       "LetterID",
	IndexedFields: []string{"ChatID"},
	SortedField:   "CreatedAt",
}

// NewDeadLetterCollection binds a DeadLetter collection to client.
func NewDeadLetterCollection(client *kvstore.Client) *kvstore.Collection[DeadLetter] {
	return kvstore.NewCollection[DeadLetter](client, DeadLetterSchema)
}

// SessionStatus is the lifecycle state of an AgentSession. It is a
// key-typed field: transitioning it requires Collection.Transition, never
// a direct field mutation followed by Save.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusDormant   SessionStatus = "dormant"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// ClassificationType buckets a message's inferred work category.
type ClassificationType string

const (
	ClassificationBug     ClassificationType = "bug"
	ClassificationFeature ClassificationType = "feature"
	ClassificationChore   ClassificationType = "chore"
)

// AgentSession tracks one conversational thread's agent invocation
// context. ProjectKey and Status are both key-typed fields (see package
// doc); mutating either must go through Collection.Transition.
type AgentSession struct {
	SessionID              string              `json:"session_id"`
	ProjectKey             string              `json:"project_key"`
	Status                 SessionStatus       `json:"status"`
	ChatID                 string              `json:"chat_id"`
	Sender                 string              `json:"sender"`
	StartedAt              float64             `json:"started_at"`
	LastActivity           float64             `json:"last_activity"`
	ToolCallCount          int                 `json:"tool_call_count"`
	BranchName             string              `json:"branch_name,omitempty"`
	WorkItemSlug           string              `json:"work_item_slug,omitempty"`
	MessageText            string              `json:"message_text,omitempty"`
	ClassificationType     ClassificationType  `json:"classification_type,omitempty"`
	ClassificationConfidence float64           `json:"classification_confidence,omitempty"`
}

// TruncateMessageText caps MessageText at MaxContentChars in place.
func (s *AgentSession) TruncateMessageText() {
	if len(s.MessageText) > MaxContentChars {
		s.MessageText = s.MessageText[:MaxContentChars]
	}
}

var AgentSessionSchema = kvstore.Schema{
	TypeTag:       "agent_session",
	IDField:       "SessionID",
	IndexedFields: []string{"ProjectKey", "Status", "ChatID"},
	SortedField:   "LastActivity",
	UniqueFields:  []string{"SessionID"},
}

// NewAgentSessionCollection binds an AgentSession collection to client.
func NewAgentSessionCollection(client *kvstore.Client) *kvstore.Collection[AgentSession] {
	return kvstore.NewCollection[AgentSession](client, AgentSessionSchema)
}
