// Package watchdog detects stuck, looping, or failing agent sessions on
// a fixed interval and sends alerts without ever mutating session state.
package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chatbridge/internal/records"
	"github.com/nextlevelbuilder/chatbridge/internal/toollog"
)

const (
	DefaultInterval        = 300 * time.Second
	DefaultSilenceThreshold = 600 * time.Second
	DefaultDurationThreshold = 7200 * time.Second
	DefaultLoopThreshold    = 5
	DefaultCascadeThreshold = 5
	DefaultCascadeWindow    = 20
	DefaultAlertCooldown    = 1800 * time.Second

	toolCallHistoryLimit = 50
)

var errorIndicators = []string{
	"error", "exception", "failed", "traceback", "fatal",
	"cannot", "not found", "permission denied",
}

// SessionLister is the registry's read-only view the watchdog depends on.
type SessionLister interface {
	ListActive(ctx context.Context) ([]*records.AgentSession, error)
}

// Alerter is the narrow capability the watchdog needs to send an alert —
// a small capability struct, not a full delivery subsystem reference.
type Alerter interface {
	SendAlert(ctx context.Context, chatID, text string) error
}

// Config holds the watchdog's tunable thresholds.
type Config struct {
	Interval         time.Duration
	SilenceThreshold time.Duration
	DurationThreshold time.Duration
	LoopThreshold    int
	CascadeThreshold int
	CascadeWindow    int
	AlertCooldown    time.Duration
	LogBaseDir       string
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig(logBaseDir string) Config {
	return Config{
		Interval:          DefaultInterval,
		SilenceThreshold:  DefaultSilenceThreshold,
		DurationThreshold: DefaultDurationThreshold,
		LoopThreshold:     DefaultLoopThreshold,
		CascadeThreshold:  DefaultCascadeThreshold,
		CascadeWindow:     DefaultCascadeWindow,
		AlertCooldown:     DefaultAlertCooldown,
		LogBaseDir:        logBaseDir,
	}
}

// Watchdog periodically assesses every active session's health.
type Watchdog struct {
	sessions SessionLister
	alerter  Alerter
	cfg      Config
	now      func() time.Time

	mu        sync.Mutex
	cooldowns map[string]time.Time
}

// New builds a Watchdog.
func New(sessions SessionLister, alerter Alerter, cfg Config) *Watchdog {
	return &Watchdog{
		sessions:  sessions,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		cooldowns: make(map[string]time.Time),
	}
}

// Run blocks, checking all active sessions on cfg.Interval until ctx is
// cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.CheckAll(ctx)
		}
	}
}

// CheckAll assesses every active session once and sends alerts for any
// showing signs of distress, subject to the per-session cooldown.
func (w *Watchdog) CheckAll(ctx context.Context) {
	sessions, err := w.sessions.ListActive(ctx)
	if err != nil {
		slog.Error("watchdog.list_active_failed", "error", err)
		return
	}

	healthy, issueCount := 0, 0
	for _, s := range sessions {
		assessment := w.assess(s)
		if assessment.Healthy() {
			healthy++
			continue
		}
		issueCount++
		w.maybeAlert(ctx, s, assessment)
	}
	slog.Info("watchdog.check_complete", "checked", len(sessions), "healthy", healthy, "issues", issueCount)
}

// Assessment is the result of evaluating one session's health signals.
type Assessment struct {
	Issues []string
}

// Healthy reports whether no signal fired.
func (a Assessment) Healthy() bool { return len(a.Issues) == 0 }

// Severity is "critical" when two or more signals fired, else "warning".
func (a Assessment) Severity() string {
	if len(a.Issues) >= 2 {
		return "critical"
	}
	return "warning"
}

func (w *Watchdog) assess(s *records.AgentSession) Assessment {
	now := float64(w.now().Unix())
	var issues []string

	if silence := now - s.LastActivity; silence > w.cfg.SilenceThreshold.Seconds() {
		issues = append(issues, fmt.Sprintf("Silent for %d minutes", int(silence/60)))
	}
	if duration := now - s.StartedAt; duration > w.cfg.DurationThreshold.Seconds() {
		issues = append(issues, fmt.Sprintf("Running for %d hours", int(duration/3600)))
	}

	events, err := toollog.ReadRecent(w.cfg.LogBaseDir, s.SessionID, toolCallHistoryLimit)
	if err != nil {
		slog.Debug("watchdog.read_tool_calls_failed", "session_id", s.SessionID, "error", err)
	} else if len(events) > 0 {
		if looping, tool, count := detectRepetition(events, w.cfg.LoopThreshold); looping {
			issues = append(issues, fmt.Sprintf("Looping: %s called %d times consecutively", tool, count))
		}
		if cascading, errCount := detectErrorCascade(events, w.cfg.CascadeThreshold, w.cfg.CascadeWindow); cascading {
			issues = append(issues, fmt.Sprintf("Error cascade: %d errors in last %d calls", errCount, w.cfg.CascadeWindow))
		}
	}

	return Assessment{Issues: issues}
}

func (w *Watchdog) maybeAlert(ctx context.Context, s *records.AgentSession, assessment Assessment) {
	w.mu.Lock()
	last, seen := w.cooldowns[s.SessionID]
	ready := !seen || w.now().Sub(last) >= w.cfg.AlertCooldown
	if ready {
		w.cooldowns[s.SessionID] = w.now()
	}
	w.mu.Unlock()

	if !ready {
		return
	}

	text := formatAlert(s, assessment)
	if err := w.alerter.SendAlert(ctx, s.ChatID, text); err != nil {
		slog.Error("watchdog.send_alert_failed", "session_id", s.SessionID, "error", err)
	}
}

func formatAlert(s *records.AgentSession, a Assessment) string {
	return fmt.Sprintf("[%s] Session %s: %s", strings.ToUpper(a.Severity()), s.SessionID, strings.Join(a.Issues, "; "))
}

type fingerprint struct {
	tool  string
	items string
}

func buildFingerprint(ev toollog.Event) fingerprint {
	keys := make([]string, 0, len(ev.ToolInput))
	for k := range ev.ToolInput {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ev.ToolInput[k]))
	}
	return fingerprint{tool: ev.ToolName, items: strings.Join(parts, ",")}
}

// detectRepetition counts consecutive identical pre_tool_use fingerprints
// from the end of the log.
func detectRepetition(events []toollog.Event, threshold int) (bool, string, int) {
	var pre []toollog.Event
	for _, ev := range events {
		if ev.Event == toollog.EventPreToolUse {
			pre = append(pre, ev)
		}
	}
	if len(pre) < threshold {
		return false, "", 0
	}

	last := buildFingerprint(pre[len(pre)-1])
	count := 1
	for i := len(pre) - 2; i >= 0; i-- {
		if buildFingerprint(pre[i]) != last {
			break
		}
		count++
	}

	if count < threshold {
		return false, "", count
	}
	return true, last.tool, count
}

// detectErrorCascade counts post_tool_use events in the last window whose
// output preview matches any error indicator.
func detectErrorCascade(events []toollog.Event, threshold, window int) (bool, int) {
	var post []toollog.Event
	for _, ev := range events {
		if ev.Event == toollog.EventPostToolUse {
			post = append(post, ev)
		}
	}
	if len(post) > window {
		post = post[len(post)-window:]
	}
	if len(post) == 0 {
		return false, 0
	}

	count := 0
	for _, ev := range post {
		output := strings.ToLower(ev.ToolOutputPreview)
		for _, indicator := range errorIndicators {
			if strings.Contains(output, indicator) {
				count++
				break
			}
		}
	}
	return count >= threshold, count
}
