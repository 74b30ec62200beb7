// Package registry owns the durable mapping of normalized source names to
// forum topics: lookup, similarity matching, idempotent creation under
// races, and reconciliation against the remote group after a crash.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/match"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/normalize"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/observability"
)

// Store is the persistence surface the registry needs. Every successful
// mutation is flushed through it before Resolve returns.
type Store interface {
	ListTopics(ctx context.Context) ([]domain.Topic, error)
	InsertTopic(ctx context.Context, t domain.Topic) error
	InsertAlias(ctx context.Context, topicID string, chatID int64) error
	DeleteTopic(ctx context.Context, topicID string) error
}

// TopicCreator creates a forum topic remotely and returns its thread id.
type TopicCreator interface {
	CreateTopic(ctx context.Context, name string) (int64, error)
}

// RemoteTopic is a topic that exists in the remote group.
type RemoteTopic struct {
	ThreadID int64
	Name     string
}

// Lister enumerates the remote group's actual topics for reconciliation.
type Lister interface {
	ListExistingTopics(ctx context.Context) ([]RemoteTopic, error)
}

// Registry maps source chats to topics. All state transitions go through
// the per-key single-flight group, so at most one topic is ever created
// for a given normalized key even under concurrent resolves.
type Registry struct {
	store         Store
	creator       TopicCreator
	thresholdFn   func() float64
	createTimeout time.Duration
	logger        *zerolog.Logger

	flight singleflight.Group

	mu     sync.RWMutex
	byChat map[int64]*domain.Topic
	byKey  map[string]*domain.Topic
	order  []string
}

func New(store Store, creator TopicCreator, thresholdFn func() float64, createTimeout time.Duration, logger *zerolog.Logger) *Registry {
	return &Registry{
		store:         store,
		creator:       creator,
		thresholdFn:   thresholdFn,
		createTimeout: createTimeout,
		logger:        logger,
		byChat:        make(map[int64]*domain.Topic),
		byKey:         make(map[string]*domain.Topic),
	}
}

// Load populates the in-memory index from persisted topics. Must be called
// before Resolve.
func (r *Registry) Load(ctx context.Context) error {
	topics, err := r.store.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range topics {
		r.indexLocked(&topics[i])
	}

	observability.TopicsKnown.Set(float64(len(r.order)))

	return nil
}

// indexLocked registers a topic in all lookup maps. Caller holds mu.
// Topics adopted from the remote group carry no source chat yet; those
// only get a key entry until a chat resolves onto them.
func (r *Registry) indexLocked(t *domain.Topic) {
	r.byKey[t.NormalizedKey] = t
	r.order = append(r.order, t.NormalizedKey)

	if t.SourceChatID != 0 {
		r.byChat[t.SourceChatID] = t
	}

	for _, chatID := range t.AliasChatIDs {
		r.byChat[chatID] = t
	}
}

// Resolve returns the thread id the chat's media must be posted to. An
// already bound chat id keeps its binding regardless of name drift. A new
// chat is matched against known keys and either aliased to an existing
// topic or given a freshly created one.
func (r *Registry) Resolve(ctx context.Context, chatID int64, rawName string) (int64, error) {
	r.mu.RLock()
	if t, ok := r.byChat[chatID]; ok {
		r.mu.RUnlock()
		return t.ThreadID, nil
	}
	r.mu.RUnlock()

	key := normalize.Key(rawName)

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		return r.resolveKey(ctx, key, chatID, rawName)
	})
	if err != nil {
		return 0, err
	}

	topic := v.(*domain.Topic)

	if err := r.bindChat(ctx, topic, chatID); err != nil {
		return 0, err
	}

	return topic.ThreadID, nil
}

// resolveKey is the critical section per normalized key: match against
// known keys, or create and persist a new topic. It never holds the index
// lock across the remote call.
func (r *Registry) resolveKey(ctx context.Context, key string, chatID int64, rawName string) (*domain.Topic, error) {
	r.mu.RLock()
	if t, ok := r.byKey[key]; ok {
		r.mu.RUnlock()
		return t, nil
	}

	known := make([]string, len(r.order))
	copy(known, r.order)
	r.mu.RUnlock()

	if matchedKey, ok := match.FindMatch(key, known, r.thresholdFn()); ok {
		r.mu.RLock()
		t := r.byKey[matchedKey]
		r.mu.RUnlock()

		observability.TopicsMatched.Inc()
		r.logger.Info().Str("key", key).Str("matched", matchedKey).Msg("source matched to existing topic")

		return t, nil
	}

	createCtx, cancel := context.WithTimeout(ctx, r.createTimeout)
	defer cancel()

	threadID, err := r.creator.CreateTopic(createCtx, rawName)
	if err != nil {
		return nil, fmt.Errorf("create topic for %q: %w", rawName, err)
	}

	topic := &domain.Topic{
		ID:            uuid.NewString(),
		ThreadID:      threadID,
		Name:          rawName,
		NormalizedKey: key,
		SourceChatID:  chatID,
		CreatedAt:     time.Now().UTC(),
	}

	if err := r.store.InsertTopic(ctx, *topic); err != nil {
		return nil, fmt.Errorf("persist topic for %q: %w", rawName, err)
	}

	r.mu.Lock()
	r.indexLocked(topic)
	r.mu.Unlock()

	observability.TopicsCreated.Inc()
	observability.TopicsKnown.Set(float64(r.Len()))

	return topic, nil
}

// bindChat registers chatID against the topic as an alias if it is not
// bound yet. The alias is persisted before the binding becomes visible.
func (r *Registry) bindChat(ctx context.Context, topic *domain.Topic, chatID int64) error {
	r.mu.RLock()
	_, bound := r.byChat[chatID]
	r.mu.RUnlock()

	if bound {
		return nil
	}

	if err := r.store.InsertAlias(ctx, topic.ID, chatID); err != nil {
		return fmt.Errorf("persist alias for chat %d: %w", chatID, err)
	}

	r.mu.Lock()
	if _, dup := r.byChat[chatID]; !dup {
		r.byChat[chatID] = topic
		topic.AliasChatIDs = append(topic.AliasChatIDs, chatID)
	}
	r.mu.Unlock()

	return nil
}

// ListTopics returns the known topics in creation order.
func (r *Registry) ListTopics() []domain.Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Topic, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, *r.byKey[key])
	}

	return out
}

// Len returns the number of known topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}
