package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

func TestToEvent(t *testing.T) {
	const backupGroupID = -1009999

	sourceChat := &tgbotapi.Chat{ID: -100111, Type: "supergroup", Title: "Movie Club"}
	photo := []tgbotapi.PhotoSize{{FileID: "photo1", FileSize: 500}}

	tests := []struct {
		name     string
		update   tgbotapi.Update
		wantOK   bool
		wantKind domain.MediaKind
	}{
		{
			name: "photo from supergroup",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat:  sourceChat,
				Photo: photo,
			}},
			wantOK:   true,
			wantKind: domain.KindPhoto,
		},
		{
			name: "member join service message dropped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat:           sourceChat,
				NewChatMembers: []tgbotapi.User{{ID: 5, FirstName: "Ana"}},
			}},
			wantOK: false,
		},
		{
			name: "pinned message dropped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat:          sourceChat,
				PinnedMessage: &tgbotapi.Message{Chat: sourceChat, Text: "rules"},
			}},
			wantOK: false,
		},
		{
			name: "plain text dropped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat: sourceChat,
				Text: "hello there",
			}},
			wantOK: false,
		},
		{
			name: "bot sender dropped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat:  sourceChat,
				From:  &tgbotapi.User{ID: 9, IsBot: true},
				Photo: photo,
			}},
			wantOK: false,
		},
		{
			name: "backup group message dropped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat:  &tgbotapi.Chat{ID: backupGroupID, Type: "supergroup", Title: "Backup"},
				Photo: photo,
			}},
			wantOK: false,
		},
		{
			name: "private chat dropped",
			update: tgbotapi.Update{Message: &tgbotapi.Message{
				Chat:  &tgbotapi.Chat{ID: 777, Type: "private"},
				Photo: photo,
			}},
			wantOK: false,
		},
	}

	c := &Client{groupID: backupGroupID}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := c.toEvent(tt.update)
			if ok != tt.wantOK {
				t.Fatalf("toEvent() ok = %v, want %v", ok, tt.wantOK)
			}

			if !tt.wantOK {
				return
			}

			if ev.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", ev.Kind, tt.wantKind)
			}

			if ev.SourceChatID != sourceChat.ID || ev.SourceName != sourceChat.Title {
				t.Errorf("source = %d %q, want %d %q", ev.SourceChatID, ev.SourceName, sourceChat.ID, sourceChat.Title)
			}
		})
	}
}
