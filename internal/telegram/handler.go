package telegram

import (
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harun/luna/pkg/orchestrator"
)

// ToInbound converts an update into a channel message. Updates without a
// text message or sender are skipped.
func ToInbound(update tgbotapi.Update) (orchestrator.Inbound, bool) {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return orchestrator.Inbound{}, false
	}
	if msg.From.IsBot {
		return orchestrator.Inbound{}, false
	}

	text := ParseCaption(msg)
	if strings.TrimSpace(text) == "" {
		return orchestrator.Inbound{}, false
	}

	in := orchestrator.Inbound{
		Channel:     ChannelName,
		Room:        strconv.FormatInt(msg.Chat.ID, 10),
		Participant: Participant(msg.From),
		Text:        text,
		MessageID:   strconv.Itoa(update.UpdateID),
	}

	if msg.IsCommand() {
		in.Command = msg.Command()
		in.Args = strings.TrimSpace(msg.CommandArguments())
	}

	return in, true
}

// Participant names a sender: @username when set, else the first name,
// else the numeric user ID.
func Participant(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return "@" + user.UserName
	}
	if name := strings.TrimSpace(user.FirstName); name != "" {
		return name
	}
	return strconv.FormatInt(user.ID, 10)
}

// ParseCaption extracts caption from a message
func ParseCaption(msg *tgbotapi.Message) string {
	if msg.Caption != "" {
		return msg.Caption
	}
	return msg.Text
}
