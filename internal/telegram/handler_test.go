package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInbound(t *testing.T) {
	user := &tgbotapi.User{ID: 12345, UserName: "testuser"}

	t.Run("plain text", func(t *testing.T) {
		in, ok := ToInbound(textUpdate(3, 67890, user, "luna what's up"))
		require.True(t, ok)
		assert.Equal(t, "telegram", in.Channel)
		assert.Equal(t, "67890", in.Room)
		assert.Equal(t, "@testuser", in.Participant)
		assert.Equal(t, "luna what's up", in.Text)
		assert.Equal(t, "3", in.MessageID)
		assert.Empty(t, in.Command)
	})

	t.Run("slash command with args", func(t *testing.T) {
		update := textUpdate(4, 67890, user, "/ask@lunabot is it raining?")
		update.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 12}}

		in, ok := ToInbound(update)
		require.True(t, ok)
		assert.Equal(t, "ask", in.Command)
		assert.Equal(t, "is it raining?", in.Args)
	})

	t.Run("caption", func(t *testing.T) {
		update := textUpdate(5, 67890, user, "")
		update.Message.Caption = "luna look at this"

		in, ok := ToInbound(update)
		require.True(t, ok)
		assert.Equal(t, "luna look at this", in.Text)
	})

	t.Run("skipped updates", func(t *testing.T) {
		_, ok := ToInbound(tgbotapi.Update{UpdateID: 1})
		assert.False(t, ok)

		_, ok = ToInbound(textUpdate(6, 1, nil, "luna hi"))
		assert.False(t, ok)

		_, ok = ToInbound(textUpdate(6, 1, &tgbotapi.User{ID: 2, IsBot: true, UserName: "other"}, "luna hi"))
		assert.False(t, ok)

		_, ok = ToInbound(textUpdate(6, 1, user, "   "))
		assert.False(t, ok)
	})
}

func TestParticipant(t *testing.T) {
	tests := []struct {
		name string
		user *tgbotapi.User
		want string
	}{
		{"username", &tgbotapi.User{ID: 1, UserName: "chulsoo", FirstName: "Chulsoo"}, "@chulsoo"},
		{"first name", &tgbotapi.User{ID: 1, FirstName: "Younghee"}, "Younghee"},
		{"id only", &tgbotapi.User{ID: 99}, "99"},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Participant(tt.user))
		})
	}
}

func TestParseCaption(t *testing.T) {
	assert.Equal(t, "caption", ParseCaption(&tgbotapi.Message{Caption: "caption", Text: "text"}))
	assert.Equal(t, "text", ParseCaption(&tgbotapi.Message{Text: "text"}))
}
