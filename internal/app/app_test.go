package app_test

import (
	"strings"
	"testing"
	"time"

	"github.com/vocatutor/vocatutor/internal/app"
	"github.com/vocatutor/vocatutor/internal/chat"
	"github.com/vocatutor/vocatutor/internal/clock"
	"github.com/vocatutor/vocatutor/internal/config"
	"github.com/vocatutor/vocatutor/internal/lesson"
	"github.com/vocatutor/vocatutor/internal/llmgateway"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider"
	"github.com/vocatutor/vocatutor/internal/llmgateway/provider/mock"
	"github.com/vocatutor/vocatutor/internal/progression"
	"github.com/vocatutor/vocatutor/internal/validator"
	"github.com/vocatutor/vocatutor/internal/vocab/memstore"
)

const translatePayload = `{"translations":["perro"],"examples":[{"src":"dog","tgt":"perro"}],"forms":{}}`

func testApp(t *testing.T) (*app.App, *mock.Provider) {
	t.Helper()
	store := memstore.New()
	backend := &mock.Provider{Response: &provider.CompletionResponse{Content: translatePayload}}
	gw := llmgateway.New(backend, store, llmgateway.Config{
		RatePerMinute: 6000,
		MaxConcurrent: 4,
		CallTimeout:   time.Second,
		Retries:       1,
	})
	v := validator.New(gw, validator.WithFuzzyThreshold(2))
	c := clock.NewFixed(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	lessons := lesson.New(store, v, c, lesson.Config{
		SelectionCount: 10,
		Progression: progression.Config{
			ChoiceToInputThreshold: 3,
			MasteryThreshold:       30,
		},
	})
	cfg := &config.Config{DefaultTZ: "UTC"}
	return app.New(cfg, store, gw, lessons, c), backend
}

func firstText(t *testing.T, actions []chat.ReplyAction) string {
	t.Helper()
	if len(actions) == 0 {
		t.Fatalf("expected at least one reply action, got none")
	}
	switch actions[0].Kind {
	case chat.ActionSendText:
		return actions[0].Text
	case chat.ActionShowOptions:
		return actions[0].Prompt
	default:
		t.Fatalf("unexpected first action kind %v", actions[0].Kind)
		return ""
	}
}

func TestStartRegistersUserAndProfile(t *testing.T) {
	a, _ := testApp(t)

	actions, err := a.OnMessage("u1", "/start en es", 0)
	if err != nil {
		t.Fatalf("OnMessage(/start): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "Welcome") {
		t.Fatalf("expected a welcome reply, got %q", got)
	}

	// Re-sending /start for the same language is idempotent.
	actions, err = a.OnMessage("u1", "/start en es", 0)
	if err != nil {
		t.Fatalf("second OnMessage(/start): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "Welcome") {
		t.Fatalf("expected a second welcome reply, got %q", got)
	}
}

func TestAddWordRejectsWithoutRegistration(t *testing.T) {
	a, _ := testApp(t)

	actions, err := a.OnMessage("stranger", "/add perro", 0)
	if err != nil {
		t.Fatalf("OnMessage(/add): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "/start") {
		t.Fatalf("expected a not-registered reply, got %q", got)
	}
}

func TestAddWordThenDuplicateConflict(t *testing.T) {
	a, _ := testApp(t)
	mustOK(t, a.OnMessage("u1", "/start en es", 0))

	actions, err := a.OnMessage("u1", "/add dog", 0)
	if err != nil {
		t.Fatalf("OnMessage(/add): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "Added") {
		t.Fatalf("expected an Added reply, got %q", got)
	}

	actions, err = a.OnMessage("u1", "/add dog", 0)
	if err != nil {
		t.Fatalf("OnMessage(/add duplicate): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "already in your list") {
		t.Fatalf("expected a conflict reply, got %q", got)
	}
}

func TestLessonRoundTripToCompletion(t *testing.T) {
	a, _ := testApp(t)
	mustOK(t, a.OnMessage("u1", "/start en es", 0))
	mustOK(t, a.OnMessage("u1", "/add dog", 0))

	actions, err := a.OnMessage("u1", "/lesson", 0)
	if err != nil {
		t.Fatalf("OnMessage(/lesson): %v", err)
	}
	if len(actions) == 0 || actions[0].Kind != chat.ActionShowOptions {
		t.Fatalf("expected a ShowOptions action, got %#v", actions)
	}
	correct := actions[0].Options[0]

	actions, err = a.OnChoice("u1", chat.OptionPrefix+"0", 0)
	if err != nil {
		t.Fatalf("OnChoice: %v", err)
	}
	got := firstText(t, actions)
	if !strings.Contains(got, "Correct") {
		t.Fatalf("expected a Correct reply for option %q, got %q", correct, got)
	}
	if !strings.Contains(strings.Join(textsOf(actions), " "), "Lesson complete") {
		t.Fatalf("expected the single-word lesson to complete, got %#v", actions)
	}
}

func TestAnswerWithoutPendingQuestion(t *testing.T) {
	a, _ := testApp(t)
	mustOK(t, a.OnMessage("u1", "/start en es", 0))

	actions, err := a.OnMessage("u1", "some random text", 0)
	if err != nil {
		t.Fatalf("OnMessage(answer): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "No question is pending") {
		t.Fatalf("expected a no-pending-question reply, got %q", got)
	}
}

func TestToggleNotifications(t *testing.T) {
	a, _ := testApp(t)
	mustOK(t, a.OnMessage("u1", "/start en es", 0))

	actions, err := a.OnMessage("u1", "/notify", 0)
	if err != nil {
		t.Fatalf("OnMessage(/notify): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "disabled") {
		t.Fatalf("expected notifications to toggle off, got %q", got)
	}

	actions, err = a.OnMessage("u1", "/notify", 0)
	if err != nil {
		t.Fatalf("second OnMessage(/notify): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "enabled") {
		t.Fatalf("expected notifications to toggle back on, got %q", got)
	}
}

func TestShowStatsBeforeAnyAttempts(t *testing.T) {
	a, _ := testApp(t)
	mustOK(t, a.OnMessage("u1", "/start en es", 0))
	mustOK(t, a.OnMessage("u1", "/add dog", 0))

	actions, err := a.OnMessage("u1", "/stats", 0)
	if err != nil {
		t.Fatalf("OnMessage(/stats): %v", err)
	}
	if got := firstText(t, actions); !strings.Contains(got, "no attempts yet") {
		t.Fatalf("expected no-attempts stats, got %q", got)
	}
}

func mustOK(t *testing.T, actions []chat.ReplyAction, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(actions) == 0 {
		t.Fatalf("expected at least one reply action")
	}
}

func textsOf(actions []chat.ReplyAction) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Text)
	}
	return out
}
