// Package discord is the chat.Transport driver for Discord: it owns the
// discordgo.Session lifecycle, turns incoming DMs and button clicks into
// calls against a chat.Transport, and renders the returned chat.ReplyAction
// values back onto the channel — the same Session-lifecycle shape as the
// teacher's own bot.go, trimmed to a single DM-oriented surface instead of
// slash commands, voice channels, and a dashboard.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/vocatutor/vocatutor/internal/chat"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token (without the "Bot " prefix).
	Token string
}

// Bot owns the Discord gateway connection and forwards messages and button
// clicks to a chat.Transport.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	transport chat.Transport
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers message/component
// handlers that drive transport.
func New(_ context.Context, cfg Config, transport chat.Transport) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsGuildMessages

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	b := &Bot{
		session:   session,
		transport: transport,
		done:      make(chan struct{}),
	}

	session.AddHandler(b.onMessageCreate)
	session.AddHandler(b.onInteractionCreate)

	return b, nil
}

// Session returns the underlying discordgo session.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Run blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

// SendDM opens (or reuses) a DM channel with userID and sends text to it.
// Used by the Notifier to push inactivity reminders outside of any live
// interaction.
func (b *Bot) SendDM(_ context.Context, userID, text string) error {
	s := b.Session()
	ch, err := s.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("discord: open DM channel with %s: %w", userID, err)
	}
	if _, err := s.ChannelMessageSend(ch.ID, text); err != nil {
		return fmt.Errorf("discord: send DM to %s: %w", userID, err)
	}
	return nil
}

// IsBlockedError reports whether err is the Discord REST error meaning the
// recipient has blocked the bot or otherwise disabled DMs from it.
func IsBlockedError(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return false
	}
	return restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	actions, err := b.transport.OnMessage(m.Author.ID, m.Content, m.Timestamp.Unix())
	if err != nil {
		slog.Error("discord: OnMessage failed", "user_id", m.Author.ID, "error", err)
		sendPlain(s, m.ChannelID, "Something went wrong processing that — please try again.")
		return
	}
	if err := render(s, m.ChannelID, actions); err != nil {
		slog.Error("discord: render failed", "user_id", m.Author.ID, "error", err)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := i.Member
	var userID string
	if user != nil && user.User != nil {
		userID = user.User.ID
	} else if i.User != nil {
		userID = i.User.ID
	}

	payload := i.MessageComponentData().CustomID
	actions, err := b.transport.OnChoice(userID, payload, time.Now().Unix())
	if err != nil {
		slog.Error("discord: OnChoice failed", "user_id", userID, "error", err)
		ackComponent(s, i)
		return
	}
	ackComponent(s, i)
	if err := render(s, i.ChannelID, actions); err != nil {
		slog.Error("discord: render failed", "user_id", userID, "error", err)
	}
}
