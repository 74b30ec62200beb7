// Package domain defines the core entities shared across the relay:
// inbound media events, topic bindings, and the append-only activity log.
package domain

import "time"

// MediaKind enumerates the payload types the relay forwards.
type MediaKind string

const (
	KindPhoto     MediaKind = "photo"
	KindVideo     MediaKind = "video"
	KindDocument  MediaKind = "document"
	KindAudio     MediaKind = "audio"
	KindVoice     MediaKind = "voice"
	KindVideoNote MediaKind = "video_note"
	KindSticker   MediaKind = "sticker"
	KindAnimation MediaKind = "animation"
	KindUnknown   MediaKind = "unknown"
)

// Outcome is the terminal result of handling a media event.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeFailedPermanent Outcome = "failed_permanent"
	OutcomeFailedExhausted Outcome = "failed_transient_exhausted"
)

// MediaEvent is one inbound media message from a source chat.
type MediaEvent struct {
	SourceChatID int64
	SourceName   string
	MessageID    int
	Kind         MediaKind
	FileID       string
	FileName     string
	FileSize     int64
	Duration     int
	Caption      string
	// Forwarded marks messages carrying forward metadata; those are
	// re-uploaded instead of copied so the forward header is stripped.
	Forwarded  bool
	ReceivedAt time.Time
}

// Topic is a destination thread inside the backup group bound to a
// normalized source-name key.
type Topic struct {
	ID            string
	ThreadID      int64
	Name          string
	NormalizedKey string
	SourceChatID  int64
	AliasChatIDs  []int64
	CreatedAt     time.Time
}

// ActivityRecord is one immutable entry of the forwarding log.
type ActivityRecord struct {
	ID           string
	Timestamp    time.Time
	SourceChatID int64
	SourceName   string
	Kind         MediaKind
	ThreadID     int64
	Outcome      Outcome
	FileSize     int64
	Duration     int
}
