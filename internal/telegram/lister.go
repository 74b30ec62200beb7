package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"
)

// ErrGroupNotFound indicates the backup group is not among the account's dialogs.
var ErrGroupNotFound = errors.New("backup group not found in dialogs")

// RemoteTopic is one forum topic as reported by the remote group.
type RemoteTopic struct {
	ThreadID int64
	Name     string
}

// ListerConfig carries the MTProto credentials for the topic lister.
type ListerConfig struct {
	APIID       int
	APIHash     string
	Phone       string
	TwoFAPass   string
	SessionPath string
}

// Lister enumerates the forum topics that actually exist in the backup
// group. The Bot API offers no listing call, so reconciliation goes
// through MTProto with a user session.
type Lister struct {
	cfg     ListerConfig
	groupID int64
	logger  *zerolog.Logger
}

func NewLister(cfg ListerConfig, groupID int64, logger *zerolog.Logger) *Lister {
	return &Lister{cfg: cfg, groupID: groupID, logger: logger}
}

const (
	dialogsPageSize = 100
	topicsPageSize  = 100
	// botAPIChannelOffset converts a Bot API supergroup id (-100xxxxxxxxxx)
	// into the bare MTProto channel id.
	botAPIChannelOffset = 1_000_000_000_000
)

// ListExistingTopics opens a short-lived MTProto session and returns every
// forum topic of the backup group.
func (l *Lister) ListExistingTopics(ctx context.Context) ([]RemoteTopic, error) {
	client := telegram.NewClient(l.cfg.APIID, l.cfg.APIHash, telegram.Options{
		SessionStorage: &telegram.FileSessionStorage{
			Path: l.cfg.SessionPath,
		},
	})

	var topics []RemoteTopic

	err := client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, l.authFlow()); err != nil {
			return fmt.Errorf("mtproto auth: %w", err)
		}

		api := tg.NewClient(client)

		channel, err := l.findChannel(ctx, api)
		if err != nil {
			return err
		}

		topics, err = l.fetchTopics(ctx, api, channel)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list existing topics: %w", err)
	}

	return topics, nil
}

// findChannel resolves the backup group's access hash by scanning the
// account's dialogs for the channel id.
func (l *Lister) findChannel(ctx context.Context, api *tg.Client) (*tg.InputChannel, error) {
	channelID := -l.groupID - botAPIChannelOffset

	dialogs, err := api.MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		Limit:      dialogsPageSize,
		OffsetPeer: &tg.InputPeerEmpty{},
	})
	if err != nil {
		return nil, fmt.Errorf("get dialogs: %w", err)
	}

	var chats []tg.ChatClass

	switch d := dialogs.(type) {
	case *tg.MessagesDialogs:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	case *tg.MessagesDialogsNotModified:
		return nil, ErrGroupNotFound
	}

	for _, chat := range chats {
		if channel, ok := chat.(*tg.Channel); ok && channel.ID == channelID {
			return &tg.InputChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}, nil
		}
	}

	return nil, fmt.Errorf("%w: channel id %d", ErrGroupNotFound, channelID)
}

// forumAPI is the slice of the MTProto surface topic paging needs.
type forumAPI interface {
	MessagesGetForumTopics(ctx context.Context, request *tg.MessagesGetForumTopicsRequest) (*tg.MessagesForumTopics, error)
}

var _ forumAPI = (*tg.Client)(nil)

func (l *Lister) fetchTopics(ctx context.Context, api forumAPI, channel *tg.InputChannel) ([]RemoteTopic, error) {
	var (
		topics      []RemoteTopic
		offsetTopic int
	)

	for {
		page, err := api.MessagesGetForumTopics(ctx, &tg.MessagesGetForumTopicsRequest{
			Peer:        &tg.InputPeerChannel{ChannelID: channel.ChannelID, AccessHash: channel.AccessHash},
			Limit:       topicsPageSize,
			OffsetTopic: offsetTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("get forum topics: %w", err)
		}

		var pageCount int

		for _, t := range page.Topics {
			topic, ok := t.(*tg.ForumTopic)
			if !ok {
				continue
			}

			topics = append(topics, RemoteTopic{ThreadID: int64(topic.ID), Name: topic.Title})
			offsetTopic = topic.ID
			pageCount++
		}

		if pageCount < topicsPageSize {
			break
		}
	}

	l.logger.Info().Int("topics", len(topics)).Msg("fetched remote forum topics")

	return topics, nil
}
