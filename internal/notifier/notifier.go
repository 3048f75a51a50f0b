// Package notifier implements the periodic inactivity sweep (spec §4.C9): a
// wall-clock tick that finds users who have gone quiet inside their local
// notification window and sends each one a reminder. Per-user sends fan out
// concurrently with golang.org/x/sync/errgroup, the same pattern
// internal/hotctx.Assembler uses to fetch its hot-context components in
// parallel, bounded by errgroup.SetLimit the same way.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vocatutor/vocatutor/internal/clock"
	"github.com/vocatutor/vocatutor/internal/vocab"
)

// Defaults per spec §4.C9 / §6.
const (
	DefaultSweepPeriod     = 15 * time.Minute
	DefaultInactiveAfter   = 6 * time.Hour
	DefaultSweepDeadline   = 60 * time.Second
	DefaultWindowStart     = "07:00"
	DefaultWindowEnd       = "23:00"
	DefaultSendConcurrency = 8
)

// ErrBlockedByUser is returned by [Sender.Send] when the transport learns
// the user has blocked the bot; Sweep reacts by disabling notifications for
// that user rather than surfacing the error.
var ErrBlockedByUser = errors.New("notifier: blocked by user")

// Sender delivers one reminder to userID. Implemented by a chat transport
// adapter (internal/discord).
type Sender interface {
	SendReminder(ctx context.Context, userID string) error
}

// Config tunes the sweep.
type Config struct {
	SweepPeriod     time.Duration
	InactiveAfter   time.Duration
	SweepDeadline   time.Duration
	WindowStart     string // "HH:MM", user-local
	WindowEnd       string // "HH:MM", user-local
	SendConcurrency int
}

func (c Config) withDefaults() Config {
	if c.SweepPeriod <= 0 {
		c.SweepPeriod = DefaultSweepPeriod
	}
	if c.InactiveAfter <= 0 {
		c.InactiveAfter = DefaultInactiveAfter
	}
	if c.SweepDeadline <= 0 {
		c.SweepDeadline = DefaultSweepDeadline
	}
	if c.WindowStart == "" {
		c.WindowStart = DefaultWindowStart
	}
	if c.WindowEnd == "" {
		c.WindowEnd = DefaultWindowEnd
	}
	if c.SendConcurrency <= 0 {
		c.SendConcurrency = DefaultSendConcurrency
	}
	return c
}

// Notifier periodically sweeps for inactive users and sends reminders.
type Notifier struct {
	store  storeLike
	sender Sender
	clock  clock.Clock
	cfg    Config
	tzNow  func(tz string, at time.Time) (time.Time, error)
}

// storeLike is the subset of [vocab.Store] the Notifier needs: a read path
// for the inactivity query and a transactional path to flip
// NotificationsOn, matching spec §3's "Notifier touches only
// User.last_active_at (reads)" plus the one mutation §4.C9 requires on the
// blocked-user path.
type storeLike interface {
	vocab.Queries
	WithTx(ctx context.Context, fn func(ctx context.Context, tx vocab.Tx) error) error
}

// New creates a Notifier sweeping store via sender, using c for the current
// instant.
func New(store storeLike, sender Sender, c clock.Clock, cfg Config) *Notifier {
	return &Notifier{
		store:  store,
		sender: sender,
		clock:  c,
		cfg:    cfg.withDefaults(),
		tzNow:  localTime,
	}
}

// Run blocks, ticking Sweep every cfg.SweepPeriod until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, n.cfg.SweepDeadline)
			if err := n.Sweep(sweepCtx); err != nil {
				slog.Error("notifier: sweep failed", "error", err)
			}
			cancel()
		}
	}
}

// Sweep runs one inactivity pass: every user with NotificationsOn and
// LastActiveAt older than cfg.InactiveAfter, whose local time falls inside
// [WindowStart, WindowEnd), gets exactly one reminder this tick. Emitting is
// best-effort and not transactional with the read (spec §4.C9); dedup
// beyond the inactivity window itself is out of scope (see DESIGN.md).
func (n *Notifier) Sweep(ctx context.Context) error {
	now := n.clock.Now()
	cutoff := now.Add(-n.cfg.InactiveAfter)

	candidates, err := n.store.ListInactiveUsers(ctx, cutoff)
	if err != nil {
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(n.cfg.SendConcurrency)

	for _, u := range candidates {
		u := u
		local, err := n.tzNow(u.TZ, now)
		if err != nil {
			slog.Warn("notifier: bad timezone, skipping user", "user_id", u.ID, "tz", u.TZ)
			continue
		}
		if !withinWindow(local, n.cfg.WindowStart, n.cfg.WindowEnd) {
			continue
		}
		eg.Go(func() error {
			sendErr := n.sender.SendReminder(egCtx, u.ID)
			switch {
			case sendErr == nil:
				return nil
			case errors.Is(sendErr, ErrBlockedByUser):
				if txErr := n.store.WithTx(egCtx, func(ctx context.Context, tx vocab.Tx) error {
					return tx.SetNotificationsEnabled(ctx, u.ID, false)
				}); txErr != nil {
					slog.Error("notifier: disable notifications failed", "user_id", u.ID, "error", txErr)
				}
				slog.Info("notifier: user blocked bot, notifications disabled", "user_id", u.ID)
				return nil
			default:
				slog.Error("notifier: send failed", "user_id", u.ID, "error", sendErr)
				return nil
			}
		})
	}

	return eg.Wait()
}

func localTime(tz string, at time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}
	return at.In(loc), nil
}

func withinWindow(local time.Time, start, end string) bool {
	s, errS := time.Parse("15:04", start)
	e, errE := time.Parse("15:04", end)
	if errS != nil || errE != nil {
		return true
	}
	minutesNow := local.Hour()*60 + local.Minute()
	minutesStart := s.Hour()*60 + s.Minute()
	minutesEnd := e.Hour()*60 + e.Minute()
	if minutesStart <= minutesEnd {
		return minutesNow >= minutesStart && minutesNow < minutesEnd
	}
	// window wraps past midnight
	return minutesNow >= minutesStart || minutesNow < minutesEnd
}
