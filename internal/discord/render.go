package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/vocatutor/vocatutor/internal/chat"
)

// sender is the slice of *discordgo.Session render needs, narrowed so
// rendering can be tested without a live gateway connection — the same
// interface-narrowing the teacher applies in discord/mock for
// InteractionRespond/FollowupMessageCreate.
type sender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(edit *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

func render(s sender, channelID string, actions []chat.ReplyAction) error {
	for _, a := range actions {
		if err := renderOne(s, channelID, a); err != nil {
			return err
		}
	}
	return nil
}

func renderOne(s sender, channelID string, a chat.ReplyAction) error {
	switch a.Kind {
	case chat.ActionSendText:
		_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:    a.Text,
			Components: buttonRows(a.Keyboard),
		})
		return err

	case chat.ActionEditText:
		if a.MsgID == "" {
			return fmt.Errorf("discord: edit text action missing message id")
		}
		edit := discordgo.NewMessageEdit(channelID, a.MsgID).SetContent(a.Text)
		if a.Keyboard != nil {
			rows := buttonRows(a.Keyboard)
			edit.Components = &rows
		}
		_, err := s.ChannelMessageEditComplex(edit)
		return err

	case chat.ActionShowOptions:
		_, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
			Content:    a.Prompt,
			Components: optionButtonRows(a.Options),
		})
		return err

	case chat.ActionClearOptions:
		if a.MsgID == "" {
			return nil
		}
		empty := []discordgo.MessageComponent{}
		edit := discordgo.NewMessageEdit(channelID, a.MsgID)
		edit.Components = &empty
		_, err := s.ChannelMessageEditComplex(edit)
		return err

	default:
		slog.Warn("discord: unknown reply action kind", "kind", a.Kind)
		return nil
	}
}

func buttonRows(kb *chat.Keyboard) []discordgo.MessageComponent {
	if kb == nil || len(kb.Options) == 0 {
		return nil
	}
	return optionButtonRows(kb.Options)
}

// optionButtonRows lays options out in rows of up to 5, Discord's per-row
// action button limit.
func optionButtonRows(options []string) []discordgo.MessageComponent {
	if len(options) == 0 {
		return nil
	}
	const perRow = 5
	var rows []discordgo.MessageComponent
	for start := 0; start < len(options); start += perRow {
		end := min(start+perRow, len(options))
		var buttons []discordgo.MessageComponent
		for idx := start; idx < end; idx++ {
			buttons = append(buttons, discordgo.Button{
				Label:    options[idx],
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%s%d", chat.OptionPrefix, idx),
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: buttons})
	}
	return rows
}

func sendPlain(s sender, channelID, text string) {
	if _, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{Content: text}); err != nil {
		slog.Warn("discord: failed to send message", "error", err)
	}
}

func ackComponent(s sender, i *discordgo.InteractionCreate) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
	})
	if err != nil {
		slog.Warn("discord: failed to ack component interaction", "error", err)
	}
}
