package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

// classifyMedia maps a message onto exactly one media kind and extracts
// the payload reference. Animation is checked before document because
// Telegram sets both fields for GIFs.
func classifyMedia(msg *tgbotapi.Message) (domain.MediaKind, string, string, int64, int) {
	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		return domain.KindPhoto, largest.FileID, "", int64(largest.FileSize), 0
	case msg.Animation != nil:
		return domain.KindAnimation, msg.Animation.FileID, msg.Animation.FileName, int64(msg.Animation.FileSize), msg.Animation.Duration
	case msg.Video != nil:
		return domain.KindVideo, msg.Video.FileID, msg.Video.FileName, int64(msg.Video.FileSize), msg.Video.Duration
	case msg.VideoNote != nil:
		return domain.KindVideoNote, msg.VideoNote.FileID, "", int64(msg.VideoNote.FileSize), msg.VideoNote.Duration
	case msg.Voice != nil:
		return domain.KindVoice, msg.Voice.FileID, "", int64(msg.Voice.FileSize), msg.Voice.Duration
	case msg.Audio != nil:
		return domain.KindAudio, msg.Audio.FileID, msg.Audio.FileName, int64(msg.Audio.FileSize), msg.Audio.Duration
	case msg.Sticker != nil:
		return domain.KindSticker, msg.Sticker.FileID, "", int64(msg.Sticker.FileSize), 0
	case msg.Document != nil:
		return domain.KindDocument, msg.Document.FileID, msg.Document.FileName, int64(msg.Document.FileSize), 0
	default:
		return domain.KindUnknown, "", "", 0, 0
	}
}

func isForwarded(msg *tgbotapi.Message) bool {
	return msg.ForwardDate != 0 || msg.ForwardFrom != nil || msg.ForwardFromChat != nil
}

// sendEndpoints maps a media kind to its upload endpoint and multipart
// field name.
var sendEndpoints = map[domain.MediaKind]struct {
	endpoint string
	field    string
	caption  bool
}{
	domain.KindPhoto:     {"sendPhoto", "photo", true},
	domain.KindVideo:     {"sendVideo", "video", true},
	domain.KindDocument:  {"sendDocument", "document", true},
	domain.KindAudio:     {"sendAudio", "audio", true},
	domain.KindVoice:     {"sendVoice", "voice", true},
	domain.KindVideoNote: {"sendVideoNote", "video_note", false},
	domain.KindSticker:   {"sendSticker", "sticker", false},
	domain.KindAnimation: {"sendAnimation", "animation", true},
}
