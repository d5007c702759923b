package checks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pgilab/pgilab/pkg/types"
)

// Webhook types accepted in Webhook.Type.
const (
	WebhookSlack = "slack"
	WebhookTeams = "teams"
	WebhookHTTP  = "http"
)

// Event states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Webhook is one notification target as it appears in the config file.
type Webhook struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w Webhook) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Event reports that a rule started or stopped matching an isolate/fungus
// pair. Replicates of one pair share a single event.
type Event struct {
	Rule     string    `json:"rule"`
	Severity string    `json:"severity"`
	Isolate  string    `json:"isolate"`
	Fungus   string    `json:"fungus"`
	Value    float64   `json:"value"`
	Message  string    `json:"message"`
	State    string    `json:"state"` // "firing" | "resolved"
	At       time.Time `json:"at"`
}

// Notifier compares successive evaluations of a dataset and delivers an
// Event to every webhook when a finding appears or disappears.
//
// Notifier is safe for concurrent use.
type Notifier struct {
	engine   *Engine
	webhooks []Webhook
	client   *http.Client
	now      func() time.Time

	mu     sync.Mutex
	firing map[string]Finding // key: rule, isolate, fungus
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier for engine. With no webhooks, Evaluate
// still tracks state and returns events.
func NewNotifier(engine *Engine, webhooks []Webhook) *Notifier {
	return &Notifier{
		engine:   engine,
		webhooks: webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		firing:   make(map[string]Finding),
	}
}

// Baseline records the current findings without delivering anything, so a
// restart does not re-announce known problems.
func (n *Notifier) Baseline(records []types.Record) {
	cur := n.current(records)
	n.mu.Lock()
	n.firing = cur
	n.mu.Unlock()
}

// Evaluate runs the engine over records and returns the state changes since
// the previous call, firing events first. Webhook delivery is asynchronous.
func (n *Notifier) Evaluate(records []types.Record) []Event {
	cur := n.current(records)
	now := n.now()

	n.mu.Lock()
	var events []Event
	for _, k := range sortedKeys(cur) {
		if _, ok := n.firing[k]; !ok {
			events = append(events, newEvent(cur[k], StateFiring, now))
		}
	}
	for _, k := range sortedKeys(n.firing) {
		if _, ok := cur[k]; !ok {
			events = append(events, newEvent(n.firing[k], StateResolved, now))
		}
	}
	n.firing = cur
	n.mu.Unlock()

	for _, ev := range events {
		if ev.State == StateFiring {
			slog.Warn("check fired", "rule", ev.Rule, "isolate", ev.Isolate, "fungus", ev.Fungus, "value", ev.Value)
		} else {
			slog.Info("check resolved", "rule", ev.Rule, "isolate", ev.Isolate, "fungus", ev.Fungus)
		}
		if len(n.webhooks) > 0 {
			n.wg.Add(1)
			go func(ev Event) {
				defer n.wg.Done()
				n.deliver(ev)
			}(ev)
		}
	}
	return events
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) current(records []types.Record) map[string]Finding {
	out := make(map[string]Finding)
	for _, f := range n.engine.Evaluate(records) {
		k := f.Rule + "\x00" + f.Isolate + "\x00" + f.Fungus
		if _, ok := out[k]; !ok {
			out[k] = f
		}
	}
	return out
}

func newEvent(f Finding, state string, at time.Time) Event {
	msg := fmt.Sprintf("[%s] %s fired on %s vs %s, value %.2f", f.Severity, f.Rule, f.Isolate, f.Fungus, f.Value)
	if state == StateResolved {
		msg = fmt.Sprintf("[%s] %s resolved on %s vs %s", f.Severity, f.Rule, f.Isolate, f.Fungus)
	}
	return Event{
		Rule:     f.Rule,
		Severity: f.Severity,
		Isolate:  f.Isolate,
		Fungus:   f.Fungus,
		Value:    f.Value,
		Message:  msg,
		State:    state,
		At:       at,
	}
}

func sortedKeys(m map[string]Finding) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deliver sends ev to all configured targets.
// Errors are logged but do not affect the caller.
func (n *Notifier) deliver(ev Event) {
	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case WebhookSlack:
			body, _ = json.Marshal(map[string]string{
				"text": fmt.Sprintf("*%s* %s", severityLabel(ev.Severity), ev.Message),
			})
		case WebhookTeams:
			body, _ = json.Marshal(map[string]interface{}{
				"@type":      "MessageCard",
				"@context":   "http://schema.org/extensions",
				"themeColor": severityColor(ev.Severity),
				"summary":    ev.Rule,
				"title":      fmt.Sprintf("PGI check: %s", ev.Rule),
				"text":       ev.Message,
			})
		case WebhookHTTP:
			body, _ = json.Marshal(map[string]interface{}{"event": ev})
		default:
			slog.Warn("checks: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := n.post(url, body); err != nil {
			slog.Error("checks: webhook delivery failed", "type", wh.Type, "rule", ev.Rule, "err", err)
		} else {
			slog.Debug("checks: webhook delivered", "type", wh.Type, "rule", ev.Rule, "state", ev.State)
		}
	}
}

func (n *Notifier) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	if s == SeverityWarning {
		return "[WARNING]"
	}
	return "[INFO]"
}

func severityColor(s string) string {
	if s == SeverityWarning {
		return "FFAB40"
	}
	return "00D4FF"
}
