package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/match"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/normalize"
)

// Reconcile aligns the persisted registry with the topics that actually
// exist in the remote group. It adopts remote topics the registry has no
// binding for, so a crash between remote creation and local persistence
// does not lead to a duplicate topic on restart. Persisted bindings always
// win over remote state. It also merges duplicate persisted topics whose
// keys the matcher judges equivalent, keeping the earliest one.
func (r *Registry) Reconcile(ctx context.Context, lister Lister) error {
	if err := r.mergeDuplicates(ctx); err != nil {
		return err
	}

	remote, err := lister.ListExistingTopics(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	threshold := r.thresholdFn()

	for _, rt := range remote {
		key := normalize.Key(rt.Name)

		r.mu.RLock()
		_, exists := r.byKey[key]
		known := make([]string, len(r.order))
		copy(known, r.order)
		r.mu.RUnlock()

		if exists {
			continue
		}

		if _, ok := match.FindMatch(key, known, threshold); ok {
			// A persisted topic already covers this name; keep its binding.
			continue
		}

		topic := &domain.Topic{
			ID:            uuid.NewString(),
			ThreadID:      rt.ThreadID,
			Name:          rt.Name,
			NormalizedKey: key,
			CreatedAt:     time.Now().UTC(),
		}

		if err := r.store.InsertTopic(ctx, *topic); err != nil {
			return fmt.Errorf("adopt remote topic %q: %w", rt.Name, err)
		}

		r.mu.Lock()
		r.byKey[key] = topic
		r.order = append(r.order, key)
		r.mu.Unlock()

		r.logger.Info().Str("name", rt.Name).Int64("thread_id", rt.ThreadID).Msg("adopted remote topic")
	}

	return nil
}

// mergeDuplicates resolves pairs of persisted topics whose keys match each
// other above the threshold. The earliest created topic survives; the
// later one's chat bindings become aliases of it.
func (r *Registry) mergeDuplicates(ctx context.Context) error {
	threshold := r.thresholdFn()

	r.mu.RLock()
	topics := make([]*domain.Topic, 0, len(r.order))
	for _, key := range r.order {
		topics = append(topics, r.byKey[key])
	}
	r.mu.RUnlock()

	kept := make([]*domain.Topic, 0, len(topics))
	keptKeys := make([]string, 0, len(topics))

	for _, t := range topics {
		matchedKey, ok := match.FindMatch(t.NormalizedKey, keptKeys, threshold)
		if !ok {
			kept = append(kept, t)
			keptKeys = append(keptKeys, t.NormalizedKey)

			continue
		}

		var target *domain.Topic

		for _, k := range kept {
			if k.NormalizedKey == matchedKey {
				target = k
				break
			}
		}

		if err := r.mergeInto(ctx, target, t); err != nil {
			return err
		}
	}

	if len(kept) == len(topics) {
		return nil
	}

	r.mu.Lock()
	r.byKey = make(map[string]*domain.Topic, len(kept))
	r.order = r.order[:0]
	r.byChat = make(map[int64]*domain.Topic)

	for _, t := range kept {
		r.indexLocked(t)
	}
	r.mu.Unlock()

	return nil
}

func (r *Registry) mergeInto(ctx context.Context, target, dup *domain.Topic) error {
	chats := append([]int64{dup.SourceChatID}, dup.AliasChatIDs...)

	for _, chatID := range chats {
		if chatID == 0 {
			continue
		}

		if err := r.store.InsertAlias(ctx, target.ID, chatID); err != nil {
			return fmt.Errorf("merge alias chat %d: %w", chatID, err)
		}

		target.AliasChatIDs = append(target.AliasChatIDs, chatID)
	}

	if err := r.store.DeleteTopic(ctx, dup.ID); err != nil {
		return fmt.Errorf("delete duplicate topic %q: %w", dup.Name, err)
	}

	r.logger.Warn().
		Str("kept", target.Name).
		Str("merged", dup.Name).
		Msg("merged duplicate topics for equivalent keys")

	return nil
}
