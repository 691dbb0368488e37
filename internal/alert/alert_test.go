package alert

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loykin/pipeflow/internal/event"
)

// fakeChannel records delivered alerts.
type fakeChannel struct {
	name     string
	err      error
	received []Alert
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Notify(a Alert) error {
	c.received = append(c.received, a)
	return c.err
}

func TestSend_DeliversToAllChannels(t *testing.T) {
	first := &fakeChannel{name: "first"}
	second := &fakeChannel{name: "second"}
	a := NewAlerter(nil, first, second)

	a.Send(SeverityWarning, "disk filling up", "85% used", map[string]string{"host": "ci-1"})

	for _, c := range []*fakeChannel{first, second} {
		if len(c.received) != 1 {
			t.Fatalf("channel %s: expected 1 alert, got %d", c.name, len(c.received))
		}
		got := c.received[0]
		if got.Severity != SeverityWarning || got.Title != "disk filling up" {
			t.Errorf("channel %s: unexpected alert %+v", c.name, got)
		}
		if got.Metadata["host"] != "ci-1" {
			t.Errorf("channel %s: metadata lost", c.name)
		}
	}
}

func TestSend_FailingChannelDoesNotBlockOthers(t *testing.T) {
	bad := &fakeChannel{name: "bad", err: fmt.Errorf("delivery refused")}
	good := &fakeChannel{name: "good"}
	a := NewAlerter(nil, bad, good)

	a.Send(SeverityError, "build failed", "exit 1", nil)

	if len(good.received) != 1 {
		t.Error("a failing channel must not stop later channels")
	}
}

func TestHistory_Filtering(t *testing.T) {
	a := NewAlerter(nil)
	a.Send(SeverityInfo, "one", "", nil)
	a.Send(SeverityError, "two", "", nil)
	a.Send(SeverityInfo, "three", "", nil)

	if got := a.History(""); len(got) != 3 {
		t.Errorf("expected full history, got %d entries", len(got))
	}
	infos := a.History(SeverityInfo)
	if len(infos) != 2 {
		t.Fatalf("expected 2 info alerts, got %d", len(infos))
	}
	if infos[0].Title != "one" || infos[1].Title != "three" {
		t.Error("history must preserve order")
	}
	if got := a.History(SeverityCritical); len(got) != 0 {
		t.Errorf("expected no critical alerts, got %d", len(got))
	}
}

func TestHandleEvent_SeverityMapping(t *testing.T) {
	tests := []struct {
		name     string
		event    event.Event
		severity Severity
	}{
		{
			name:     "succeeded",
			event:    event.Event{Type: event.PipelineSucceeded, RunID: "r1", Pipeline: "build", Duration: time.Second},
			severity: SeverityInfo,
		},
		{
			name:     "failed",
			event:    event.Event{Type: event.PipelineFailed, RunID: "r1", Pipeline: "build", Error: "compile error"},
			severity: SeverityError,
		},
		{
			name:     "resolved",
			event:    event.Event{Type: event.FixResolved, RunID: "r2", Pipeline: "build", Attempt: 2},
			severity: SeverityInfo,
		},
		{
			name:     "exhausted",
			event:    event.Event{Type: event.FixExhausted, RunID: "r1", Pipeline: "build", Attempt: 3, Error: "compile error"},
			severity: SeverityCritical,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{name: "test"}
			a := NewAlerter(nil, ch)

			a.HandleEvent(tt.event)

			if len(ch.received) != 1 {
				t.Fatalf("expected 1 alert, got %d", len(ch.received))
			}
			if ch.received[0].Severity != tt.severity {
				t.Errorf("expected severity %s, got %s", tt.severity, ch.received[0].Severity)
			}
			if ch.received[0].Metadata["run_id"] != tt.event.RunID {
				t.Error("run id missing from metadata")
			}
		})
	}
}

func TestHandleEvent_FailureDowngradedDuringRecovery(t *testing.T) {
	ch := &fakeChannel{name: "test"}
	a := NewAlerter(nil, ch)

	// Original failure, then an auto-fix cycle with a failed retry.
	a.HandleEvent(event.Event{Type: event.PipelineFailed, RunID: "r1", Pipeline: "build", Error: "boom"})
	a.HandleEvent(event.Event{Type: event.FixAttemptStarted, RunID: "r1", Pipeline: "build", Attempt: 1})
	a.HandleEvent(event.Event{Type: event.PipelineFailed, RunID: "r2", Pipeline: "build", Error: "still boom"})
	a.HandleEvent(event.Event{Type: event.FixResolved, RunID: "r3", Pipeline: "build", Attempt: 2})
	// After the cycle ends, failures are loud again.
	a.HandleEvent(event.Event{Type: event.PipelineFailed, RunID: "r4", Pipeline: "build", Error: "new failure"})

	severities := make([]Severity, 0, len(ch.received))
	for _, al := range ch.received {
		severities = append(severities, al.Severity)
	}
	want := []Severity{SeverityError, SeverityWarning, SeverityInfo, SeverityError}
	if len(severities) != len(want) {
		t.Fatalf("expected %d alerts, got %v", len(want), severities)
	}
	for i := range want {
		if severities[i] != want[i] {
			t.Errorf("alert %d: expected %s, got %s", i, want[i], severities[i])
		}
	}
}

func TestHandleEvent_AttemptStartedIsSilent(t *testing.T) {
	ch := &fakeChannel{name: "test"}
	a := NewAlerter(nil, ch)

	a.HandleEvent(event.Event{Type: event.FixAttemptStarted, RunID: "r1", Pipeline: "test", Attempt: 1})

	if len(ch.received) != 0 {
		t.Errorf("attempt start must not alert, got %d alerts", len(ch.received))
	}
}

func TestConsoleChannel_Notify(t *testing.T) {
	c := NewConsoleChannel(nil)
	err := c.Notify(Alert{
		Severity: SeverityInfo,
		Title:    "build succeeded",
		Message:  "run r1 completed",
		Metadata: map[string]string{"pipeline": "build"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWebhookChannel_Notify(t *testing.T) {
	var gotSecret string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(srv.URL, "hook-secret")
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Notify(Alert{Severity: SeverityCritical, Title: "auto-fix exhausted", Message: "3 attempts failed"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotSecret != "hook-secret" {
		t.Errorf("expected secret header, got %q", gotSecret)
	}
	if gotBody["severity"] != "critical" || gotBody["title"] != "auto-fix exhausted" {
		t.Errorf("unexpected payload: %v", gotBody)
	}
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch, err := NewWebhookChannel(srv.URL, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.Notify(Alert{Severity: SeverityError, Title: "t"}); err == nil {
		t.Error("expected error for a 5xx response")
	}
}

func TestNewWebhookChannel_RequiresURL(t *testing.T) {
	if _, err := NewWebhookChannel("", "secret"); err == nil {
		t.Error("expected error without url")
	}
}
