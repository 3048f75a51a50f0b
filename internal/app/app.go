// Package app wires the vocabulary-training engine's components — the
// Store, the LLM Gateway, the Lesson Engine, the Notifier, and a chat
// transport — into one running application and implements chat.Transport
// itself, the same wiring role internal/app.New plays in the teacher repo
// (there: entity store, memory, MCP host, agents, transcript pipeline;
// here: vocab store, gateway, lesson engine, notifier, Discord).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vocatutor/vocatutor/internal/chat"
	"github.com/vocatutor/vocatutor/internal/clock"
	"github.com/vocatutor/vocatutor/internal/config"
	"github.com/vocatutor/vocatutor/internal/discord"
	"github.com/vocatutor/vocatutor/internal/health"
	"github.com/vocatutor/vocatutor/internal/lesson"
	"github.com/vocatutor/vocatutor/internal/llmgateway"
	"github.com/vocatutor/vocatutor/internal/notifier"
	"github.com/vocatutor/vocatutor/internal/observe"
	"github.com/vocatutor/vocatutor/internal/scheduler"
	"github.com/vocatutor/vocatutor/internal/validator"
	"github.com/vocatutor/vocatutor/internal/vocab"
)

// App owns every long-lived component of the running process and is itself
// the [chat.Transport] the Discord bot drives — the engine stays ignorant
// of Discord specifics, the way internal/engine.VoiceEngine in the teacher
// repo never imports discordgo directly.
type App struct {
	cfg     *config.Config
	store   vocab.Store
	gateway *llmgateway.Gateway
	lessons *lesson.Engine
	clock   clock.Clock
	health  *health.Handler

	bot        *discord.Bot
	httpServer *http.Server

	mu       sync.Mutex
	sessions map[string]*session

	closers []func(context.Context) error
}

// session tracks the one in-flight question a user is currently answering.
// buildQuestion in internal/lesson picks its direction at random on every
// call, so the exact Question shown must be cached here rather than
// recomputed when the user's answer comes back.
type session struct {
	profileID string
	question  vocab.Question
}

var _ chat.Transport = (*App)(nil)

// New assembles an App from its already-configured collaborators. The
// Discord bot and the HTTP health server are started later, by Run,
// since the bot needs a live App to hand incoming messages to.
func New(cfg *config.Config, store vocab.Store, gateway *llmgateway.Gateway, lessons *lesson.Engine, c clock.Clock) *App {
	a := &App{
		cfg:      cfg,
		store:    store,
		gateway:  gateway,
		lessons:  lessons,
		clock:    c,
		sessions: make(map[string]*session),
	}
	a.health = health.New(
		health.Checker{Name: "store", Check: a.checkStore},
		health.Checker{Name: "gateway", Check: a.checkGateway, Optional: true},
	)
	return a
}

func (a *App) checkStore(ctx context.Context) error {
	_, err := a.store.ListInactiveUsers(ctx, time.Now())
	return err
}

func (a *App) checkGateway(context.Context) error {
	if !a.gateway.Healthy() {
		return errors.New("llm gateway circuit breaker open")
	}
	return nil
}

// Run connects the Discord bot, starts the notification sweep and the
// health HTTP server (/healthz, /readyz; no /metrics route is registered),
// and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	bot, err := discord.New(ctx, discord.Config{Token: a.cfg.Discord.BotToken}, a)
	if err != nil {
		return fmt.Errorf("app: start discord bot: %w", err)
	}
	a.bot = bot
	a.addCloser(func(context.Context) error { return bot.Close() })

	notifyCtx, cancelNotify := context.WithCancel(ctx)
	a.addCloser(func(context.Context) error { cancelNotify(); return nil })

	n := notifier.New(a.store, discordSender{bot: bot}, a.clock, notifier.Config{
		SweepPeriod:   a.cfg.SweepPeriod(),
		InactiveAfter: a.cfg.InactiveAfter(),
		WindowStart:   a.cfg.Notify.WindowStart,
		WindowEnd:     a.cfg.Notify.WindowEnd,
	})
	go n.Run(notifyCtx)

	mux := http.NewServeMux()
	a.health.Register(mux)
	a.httpServer = &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(observe.DefaultMetrics())(mux),
	}
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("app: health server failed", "error", err)
		}
	}()
	a.addCloser(func(shutdownCtx context.Context) error { return a.httpServer.Shutdown(shutdownCtx) })

	slog.Info("vocatutor ready", "listen_addr", a.cfg.Server.ListenAddr)
	<-ctx.Done()
	return nil
}

// Shutdown runs every closer registered by Run, in reverse order, and joins
// any errors encountered.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) addCloser(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// discordSender adapts discord.Bot to notifier.Sender, translating Discord's
// "user blocked the bot" REST error into notifier.ErrBlockedByUser and
// recording the outcome.
type discordSender struct {
	bot *discord.Bot
}

func (s discordSender) SendReminder(ctx context.Context, userID string) error {
	err := s.bot.SendDM(ctx, userID, "Still there? You have vocabulary waiting for review — send /lesson to continue.")
	metrics := observe.DefaultMetrics()
	switch {
	case err == nil:
		metrics.RecordNotification(ctx, "sent")
		return nil
	case discord.IsBlockedError(err):
		metrics.RecordNotification(ctx, "blocked")
		return notifier.ErrBlockedByUser
	default:
		metrics.RecordNotification(ctx, "error")
		return err
	}
}

// ── chat.Transport ───────────────────────────────────────────────────────

// OnMessage implements chat.Transport.
func (a *App) OnMessage(userID, text string, _ int64) ([]chat.ReplyAction, error) {
	return a.dispatch(userID, parseCommand(text))
}

// OnChoice implements chat.Transport.
func (a *App) OnChoice(userID, callbackPayload string, _ int64) ([]chat.ReplyAction, error) {
	idx, ok := parseOptionIndex(callbackPayload)
	if !ok {
		return nil, fmt.Errorf("app: unrecognized component payload %q", callbackPayload)
	}
	return a.dispatch(userID, chat.Command{Kind: chat.CmdAnswer, IsChoice: true, ChoiceIndex: idx})
}

func parseOptionIndex(payload string) (int, bool) {
	if !strings.HasPrefix(payload, chat.OptionPrefix) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimPrefix(payload, chat.OptionPrefix))
	if err != nil {
		return 0, false
	}
	return idx, true
}

// parseCommand turns free-form chat text into a [chat.Command]. Anything
// that doesn't match a recognised slash command is treated as an answer to
// whatever question is currently pending for the user.
func parseCommand(text string) chat.Command {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return chat.Command{Kind: chat.CmdAnswer}
	}
	switch strings.ToLower(fields[0]) {
	case "/start":
		cmd := chat.Command{Kind: chat.CmdStart}
		if len(fields) > 1 {
			cmd.Text = strings.ToLower(fields[1])
		}
		if len(fields) > 2 {
			cmd.TargetLang = strings.ToLower(fields[2])
		}
		return cmd
	case "/add":
		return chat.Command{Kind: chat.CmdAddWord, Text: strings.Join(fields[1:], " ")}
	case "/lesson":
		return chat.Command{Kind: chat.CmdStartLesson}
	case "/stats":
		return chat.Command{Kind: chat.CmdShowStats}
	case "/notify":
		return chat.Command{Kind: chat.CmdToggleNotifications}
	case "/lang":
		cmd := chat.Command{Kind: chat.CmdSwitchLanguage}
		if len(fields) > 1 {
			cmd.TargetLang = strings.ToLower(fields[1])
		}
		return cmd
	default:
		return chat.Command{Kind: chat.CmdAnswer, AnswerText: text}
	}
}

func (a *App) dispatch(userID string, cmd chat.Command) ([]chat.ReplyAction, error) {
	ctx := context.Background()
	if cmd.Kind != chat.CmdStart {
		if err := a.touchActivity(ctx, userID); err != nil && !errors.Is(err, vocab.ErrNotFound) {
			slog.Warn("app: touch last active failed", "user_id", userID, "error", err)
		}
	}

	switch cmd.Kind {
	case chat.CmdStart:
		return a.handleStart(ctx, userID, cmd)
	case chat.CmdAddWord:
		return a.handleAddWord(ctx, userID, cmd)
	case chat.CmdStartLesson:
		return a.handleStartLesson(ctx, userID)
	case chat.CmdAnswer:
		return a.handleAnswer(ctx, userID, cmd)
	case chat.CmdShowStats:
		return a.handleShowStats(ctx, userID)
	case chat.CmdToggleNotifications:
		return a.handleToggleNotifications(ctx, userID)
	case chat.CmdSwitchLanguage:
		return a.handleSwitchLanguage(ctx, userID, cmd)
	default:
		return []chat.ReplyAction{chat.SendText("Sorry, I didn't understand that.", nil)}, nil
	}
}

func (a *App) touchActivity(ctx context.Context, userID string) error {
	return a.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		return tx.TouchLastActive(ctx, userID, a.clock.Now())
	})
}

func (a *App) notRegistered(err error) ([]chat.ReplyAction, error) {
	if errors.Is(err, vocab.ErrNotFound) {
		return []chat.ReplyAction{chat.SendText("Send /start <native_lang> <target_lang> first (e.g. /start en es).", nil)}, nil
	}
	return nil, err
}

// ── Command handlers ─────────────────────────────────────────────────────

func (a *App) handleStart(ctx context.Context, userID string, cmd chat.Command) ([]chat.ReplyAction, error) {
	nativeLang, targetLang := cmd.Text, cmd.TargetLang
	if nativeLang == "" || targetLang == "" {
		return []chat.ReplyAction{chat.SendText("Usage: /start <native_lang> <target_lang> (e.g. /start en es)", nil)}, nil
	}

	var profile vocab.Profile
	err := a.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		now := a.clock.Now()
		_, err := tx.GetUser(ctx, userID)
		switch {
		case errors.Is(err, vocab.ErrNotFound):
			if _, err := tx.CreateUser(ctx, vocab.User{
				ID:              userID,
				NativeLang:      nativeLang,
				InterfaceLang:   nativeLang,
				TZ:              a.cfg.DefaultTZ,
				NotificationsOn: true,
				LastActiveAt:    now,
			}); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if err := tx.TouchLastActive(ctx, userID, now); err != nil {
				return err
			}
		}

		active, err := tx.GetActiveProfile(ctx, userID)
		switch {
		case errors.Is(err, vocab.ErrNotFound):
			active, err = tx.CreateProfile(ctx, vocab.Profile{UserID: userID, TargetLang: targetLang, Active: true})
			if err != nil {
				return err
			}
		case err != nil:
			return err
		}
		profile = active
		return nil
	})
	if err != nil {
		return nil, err
	}

	if profile.TargetLang != targetLang {
		return []chat.ReplyAction{chat.SendText(
			fmt.Sprintf("You're already learning %s. Use /lang %s to switch.", profile.TargetLang, targetLang), nil)}, nil
	}
	return []chat.ReplyAction{chat.SendText(
		fmt.Sprintf("Welcome! Learning %s, native language %s. Use /add <word> to add vocabulary, or /lesson to start a lesson.", targetLang, nativeLang), nil)}, nil
}

func (a *App) handleSwitchLanguage(ctx context.Context, userID string, cmd chat.Command) ([]chat.ReplyAction, error) {
	targetLang := cmd.TargetLang
	if targetLang == "" {
		return []chat.ReplyAction{chat.SendText("Usage: /lang <target_lang>", nil)}, nil
	}

	var msg string
	errSwitchBack := errors.New("app: switch back to a previous language")
	err := a.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		active, err := tx.GetActiveProfile(ctx, userID)
		if err != nil && !errors.Is(err, vocab.ErrNotFound) {
			return err
		}
		if err == nil && active.TargetLang == targetLang {
			msg = fmt.Sprintf("Already learning %s.", targetLang)
			return nil
		}
		if err := tx.DeactivateProfiles(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.CreateProfile(ctx, vocab.Profile{UserID: userID, TargetLang: targetLang, Active: true}); err != nil {
			if errors.Is(err, vocab.ErrConflict) {
				// A profile for this (user, language) pair already exists,
				// inactive. The Store has no lookup-by-inactive-profile
				// path, so reactivating it isn't possible through this
				// surface yet (see DESIGN.md). Returning errSwitchBack rolls
				// back the deactivation above, so the current profile stays
				// active.
				msg = fmt.Sprintf("Switching back to a previous language (%s) isn't supported yet.", targetLang)
				return errSwitchBack
			}
			return err
		}
		msg = fmt.Sprintf("Switched to learning %s.", targetLang)
		return nil
	})
	if errors.Is(err, errSwitchBack) {
		return []chat.ReplyAction{chat.SendText(msg, nil)}, nil
	}
	if err != nil {
		return a.notRegistered(err)
	}
	return []chat.ReplyAction{chat.SendText(msg, nil)}, nil
}

func (a *App) handleAddWord(ctx context.Context, userID string, cmd chat.Command) ([]chat.ReplyAction, error) {
	word := strings.TrimSpace(cmd.Text)
	if word == "" {
		return []chat.ReplyAction{chat.SendText("Usage: /add <word>", nil)}, nil
	}

	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return a.notRegistered(err)
	}
	profile, err := a.store.GetActiveProfile(ctx, userID)
	if err != nil {
		return a.notRegistered(err)
	}

	payload, err := a.gateway.Translate(ctx, word, user.NativeLang, profile.TargetLang)
	if err != nil {
		if errors.Is(err, llmgateway.ErrTranslationUnavailable) {
			return []chat.ReplyAction{chat.SendText("Translation service is temporarily unavailable — try again shortly.", nil)}, nil
		}
		return nil, err
	}

	norm := validator.Normalize(word)
	err = a.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		now := a.clock.Now()
		w, err := tx.UpsertWord(ctx, vocab.Word{
			Text:         norm,
			Language:     profile.TargetLang,
			CEFR:         profile.CEFR,
			Translations: map[string][]string{user.NativeLang: payload.Translations},
			Examples:     payload.Examples,
			Forms:        payload.Forms,
		})
		if err != nil {
			return err
		}
		if err := tx.PutTranslationCache(ctx, vocab.TranslationCacheEntry{
			Text: norm, SrcLang: user.NativeLang, TgtLang: profile.TargetLang,
			Payload: payload, CachedAt: now,
		}); err != nil {
			return err
		}
		_, err = tx.CreateUserWord(ctx, vocab.UserWord{
			ProfileID: profile.ID,
			WordID:    w.ID,
			Status:    vocab.StatusNew,
			AddedAt:   now,
			EF:        scheduler.DefaultEF,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, vocab.ErrConflict) {
			return []chat.ReplyAction{chat.SendText(fmt.Sprintf("%q is already in your list.", word), nil)}, nil
		}
		return nil, err
	}

	return []chat.ReplyAction{chat.SendText(
		fmt.Sprintf("Added %q → %s", word, strings.Join(payload.Translations, ", ")), nil)}, nil
}

func (a *App) handleStartLesson(ctx context.Context, userID string) ([]chat.ReplyAction, error) {
	profile, err := a.store.GetActiveProfile(ctx, userID)
	if err != nil {
		return a.notRegistered(err)
	}

	_, question, err := a.lessons.Start(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	if question.UserWordID == "" {
		return []chat.ReplyAction{chat.SendText("Nothing to review right now — add more words with /add.", nil)}, nil
	}

	a.setSession(userID, profile.ID, question)
	return a.renderQuestion(question), nil
}

func (a *App) handleAnswer(ctx context.Context, userID string, cmd chat.Command) ([]chat.ReplyAction, error) {
	sess, ok := a.getSession(userID)
	if !ok {
		return []chat.ReplyAction{chat.SendText("No question is pending — send /lesson to start one.", nil)}, nil
	}
	q := sess.question

	var answerText string
	if cmd.IsChoice {
		if cmd.ChoiceIndex < 0 || cmd.ChoiceIndex >= len(q.Options) {
			return []chat.ReplyAction{chat.SendText("That option is no longer valid — send /lesson to continue.", nil)}, nil
		}
		answerText = q.Options[cmd.ChoiceIndex]
	} else {
		answerText = cmd.AnswerText
	}

	profile, err := a.store.GetProfile(ctx, sess.profileID)
	if err != nil {
		return nil, err
	}
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	srcLang, tgtLang := user.NativeLang, profile.TargetLang
	if q.Direction == vocab.NativeToForeign {
		srcLang, tgtLang = profile.TargetLang, user.NativeLang
	}

	outcome, err := a.lessons.Answer(ctx, sess.profileID, q.UserWordID, q.Prompt, q.Expected, nil,
		q.Direction, q.TestType, q.WordID, answerText, srcLang, tgtLang)
	if err != nil {
		return nil, err
	}

	var actions []chat.ReplyAction
	if outcome.Result.Correct {
		actions = append(actions, chat.SendText("Correct!"+feedbackSuffix(outcome.Result.Feedback), nil))
	} else {
		actions = append(actions, chat.SendText(
			fmt.Sprintf("Not quite — expected %q.%s", q.Expected, feedbackSuffix(outcome.Result.Feedback)), nil))
	}

	if outcome.Done {
		a.clearSession(userID)
		s := outcome.Summary
		actions = append(actions, chat.SendText(
			fmt.Sprintf("Lesson complete: %d/%d correct (%.0f%%).", s.Correct, s.PlannedCount, s.Accuracy), nil))
		return actions, nil
	}

	next, _, err := a.lessons.Next(ctx, sess.profileID)
	if err != nil {
		return nil, err
	}
	a.setSession(userID, sess.profileID, next)
	return append(actions, a.renderQuestion(next)...), nil
}

func feedbackSuffix(feedback string) string {
	if feedback == "" {
		return ""
	}
	return " " + feedback
}

func (a *App) renderQuestion(q vocab.Question) []chat.ReplyAction {
	if q.TestType == vocab.TestChoice {
		return []chat.ReplyAction{chat.ShowOptions(q.Prompt, q.Options)}
	}
	return []chat.ReplyAction{chat.SendText(q.Prompt, nil)}
}

// handleShowStats renders per-facet accuracy and the next five upcoming
// reviews for the user's active profile, grounded on the teacher's
// pipeline_stats.go aggregation shape (there: rolling STT/LLM/TTS latency
// buffers; here: per-(direction,test_type) accuracy counters).
func (a *App) handleShowStats(ctx context.Context, userID string) ([]chat.ReplyAction, error) {
	profile, err := a.store.GetActiveProfile(ctx, userID)
	if err != nil {
		return a.notRegistered(err)
	}

	candidates, err := a.store.ListSelectionCandidates(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	type facetAgg struct{ correct, total int }
	facets := make(map[string]*facetAgg)
	var due []vocab.UserWord

	for _, c := range candidates {
		stats, err := a.store.ListWordStats(ctx, c.UserWord.ID)
		if err != nil {
			return nil, err
		}
		for _, st := range stats {
			key := string(st.Direction) + "/" + string(st.TestType)
			agg, ok := facets[key]
			if !ok {
				agg = &facetAgg{}
				facets[key] = agg
			}
			agg.correct += st.TotalCorrect
			agg.total += st.TotalAttempts
		}
		if c.UserWord.NextReviewAt != nil {
			due = append(due, c.UserWord)
		}
	}

	sort.Slice(due, func(i, j int) bool { return due[i].NextReviewAt.Before(*due[j].NextReviewAt) })
	if len(due) > 5 {
		due = due[:5]
	}

	var b strings.Builder
	b.WriteString("Your stats:\n")
	if len(facets) == 0 {
		b.WriteString("  no attempts yet\n")
	}
	keys := make([]string, 0, len(facets))
	for k := range facets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		agg := facets[k]
		var acc float64
		if agg.total > 0 {
			acc = 100 * float64(agg.correct) / float64(agg.total)
		}
		fmt.Fprintf(&b, "  %s: %.0f%% (%d/%d)\n", k, acc, agg.correct, agg.total)
	}

	b.WriteString("Upcoming reviews:\n")
	if len(due) == 0 {
		b.WriteString("  none scheduled\n")
	}
	for _, uw := range due {
		word, err := a.store.GetWord(ctx, uw.WordID)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "  %s — %s\n", word.Text, uw.NextReviewAt.Format("2006-01-02 15:04 MST"))
	}

	return []chat.ReplyAction{chat.SendText(b.String(), nil)}, nil
}

func (a *App) handleToggleNotifications(ctx context.Context, userID string) ([]chat.ReplyAction, error) {
	var enabled bool
	err := a.store.WithTx(ctx, func(ctx context.Context, tx vocab.Tx) error {
		u, err := tx.GetUser(ctx, userID)
		if err != nil {
			return err
		}
		enabled = !u.NotificationsOn
		return tx.SetNotificationsEnabled(ctx, userID, enabled)
	})
	if err != nil {
		return a.notRegistered(err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	return []chat.ReplyAction{chat.SendText(fmt.Sprintf("Notifications %s.", state), nil)}, nil
}

// ── Session tracking ─────────────────────────────────────────────────────

func (a *App) setSession(userID, profileID string, q vocab.Question) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[userID] = &session{profileID: profileID, question: q}
}

func (a *App) getSession(userID string) (*session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[userID]
	return s, ok
}

func (a *App) clearSession(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, userID)
}
