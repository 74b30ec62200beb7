// Package telegram implements the Bot API transport: the inbound media
// event stream, forum topic creation, and re-posting media into topics
// with forwarding attribution stripped.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

const (
	updateTimeoutSeconds = 60
	downloadTimeout      = 2 * time.Minute
	eventBuffer          = 256
)

// Client is the Bot API transport. All outbound calls share one rate
// limiter so concurrent chat workers stay inside the global budget.
type Client struct {
	api     *tgbotapi.BotAPI
	groupID int64
	limiter *rate.Limiter
	http    *http.Client
	logger  *zerolog.Logger
}

func NewClient(token string, groupID int64, rps float64, logger *zerolog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}

	return &Client{
		api:     api,
		groupID: groupID,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		http:    &http.Client{Timeout: downloadTimeout},
		logger:  logger,
	}, nil
}

// Events streams inbound media events from long polling. The channel is
// closed when ctx is canceled. Non-media updates and messages originating
// in the backup group itself are filtered out.
func (c *Client) Events(ctx context.Context) <-chan domain.MediaEvent {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeoutSeconds

	updates := c.api.GetUpdatesChan(u)
	events := make(chan domain.MediaEvent, eventBuffer)

	go func() {
		defer close(events)

		for {
			select {
			case <-ctx.Done():
				c.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}

				ev, ok := c.toEvent(update)
				if !ok {
					continue
				}

				select {
				case events <- ev:
				case <-ctx.Done():
					c.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()

	return events
}

func (c *Client) toEvent(update tgbotapi.Update) (domain.MediaEvent, bool) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}

	if msg == nil || msg.Chat == nil {
		return domain.MediaEvent{}, false
	}

	if msg.Chat.ID == c.groupID {
		return domain.MediaEvent{}, false
	}

	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() && !msg.Chat.IsChannel() {
		return domain.MediaEvent{}, false
	}

	if msg.From != nil && msg.From.IsBot {
		return domain.MediaEvent{}, false
	}

	kind, fileID, fileName, fileSize, duration := classifyMedia(msg)
	if kind == domain.KindUnknown || fileID == "" {
		// Text, polls, and service messages carry no media payload.
		return domain.MediaEvent{}, false
	}

	return domain.MediaEvent{
		SourceChatID: msg.Chat.ID,
		SourceName:   msg.Chat.Title,
		MessageID:    msg.MessageID,
		Kind:         kind,
		FileID:       fileID,
		FileName:     fileName,
		FileSize:     fileSize,
		Duration:     duration,
		Caption:      msg.Caption,
		Forwarded:    isForwarded(msg),
		ReceivedAt:   time.Unix(int64(msg.Date), 0),
	}, true
}

// CreateTopic creates a forum topic in the backup group and returns its
// thread id.
func (c *Client) CreateTopic(ctx context.Context, name string) (int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}

	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", c.groupID)
	params.AddNonEmpty("name", name)

	resp, err := c.api.MakeRequest("createForumTopic", params)
	if err != nil {
		return 0, fmt.Errorf("create forum topic %q: %w", name, err)
	}

	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}

	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return 0, fmt.Errorf("decode forum topic response: %w", err)
	}

	c.logger.Info().Str("name", name).Int64("thread_id", topic.MessageThreadID).Msg("forum topic created")

	return topic.MessageThreadID, nil
}

// PostMedia commits the event's payload to the given topic. Messages
// without forward metadata are copied server-side; forwarded ones are
// downloaded and re-uploaded so the forward header is stripped.
func (c *Client) PostMedia(ctx context.Context, threadID int64, ev domain.MediaEvent, caption string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	if !ev.Forwarded {
		return c.copyMessage(threadID, ev, caption)
	}

	return c.reupload(ctx, threadID, ev, caption)
}

func (c *Client) copyMessage(threadID int64, ev domain.MediaEvent, caption string) error {
	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", c.groupID)
	params.AddNonZero64("from_chat_id", ev.SourceChatID)
	params.AddNonZero("message_id", ev.MessageID)
	params.AddNonZero64("message_thread_id", threadID)
	params.AddNonEmpty("caption", caption)

	if _, err := c.api.MakeRequest("copyMessage", params); err != nil {
		return fmt.Errorf("copy message %d from chat %d: %w", ev.MessageID, ev.SourceChatID, err)
	}

	return nil
}

func (c *Client) reupload(ctx context.Context, threadID int64, ev domain.MediaEvent, caption string) error {
	send, ok := sendEndpoints[ev.Kind]
	if !ok {
		return fmt.Errorf("no upload endpoint for media kind %q", ev.Kind)
	}

	payload, err := c.download(ctx, ev.FileID)
	if err != nil {
		return err
	}

	name := ev.FileName
	if name == "" {
		name = string(ev.Kind)
	}

	params := make(tgbotapi.Params)
	params.AddNonZero64("chat_id", c.groupID)
	params.AddNonZero64("message_thread_id", threadID)

	if send.caption {
		params.AddNonEmpty("caption", caption)
	}

	files := []tgbotapi.RequestFile{{
		Name: send.field,
		Data: tgbotapi.FileBytes{Name: name, Bytes: payload},
	}}

	if _, err := c.api.UploadFiles(send.endpoint, params, files); err != nil {
		return fmt.Errorf("upload %s to thread %d: %w", send.endpoint, threadID, err)
	}

	return nil
}

func (c *Client) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &tgbotapi.Error{Code: resp.StatusCode, Message: "file download failed: " + strconv.Itoa(resp.StatusCode)}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}

	return payload, nil
}
