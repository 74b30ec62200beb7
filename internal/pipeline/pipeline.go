// Package pipeline consumes inbound media events and commits each one to
// its topic. Events from the same source chat are handled strictly in
// arrival order; distinct chats proceed concurrently up to the pool size.
// Every event that enters the pipeline leaves exactly one terminal entry
// in the activity log.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/config"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/observability"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/worker"
)

const (
	chatQueueBuffer    = 64
	recordWriteBudget  = 10 * time.Second
	recordWriteRetries = 4
)

// Transport posts media into a topic thread.
type Transport interface {
	PostMedia(ctx context.Context, threadID int64, ev domain.MediaEvent, caption string) error
}

// Resolver maps a source chat to its destination thread.
type Resolver interface {
	Resolve(ctx context.Context, chatID int64, rawName string) (int64, error)
}

// ActivityStore persists terminal activity records.
type ActivityStore interface {
	AppendActivity(ctx context.Context, rec domain.ActivityRecord) error
}

// Recorder folds terminal records into the in-memory rollup.
type Recorder interface {
	Add(rec domain.ActivityRecord)
}

// Failure tells the retry loop how to treat an attempt error.
type Failure struct {
	Permanent  bool
	RetryAfter time.Duration
}

// Classifier maps a transport error onto the retry taxonomy.
type Classifier func(err error) Failure

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	PoolSize    int
}

// Pipeline dispatches events to per-chat workers. Worker goroutines are
// created lazily per source chat and each drains its queue serially, so
// per-source ordering holds no matter how attempts are retried.
type Pipeline struct {
	cfg        Config
	settings   *config.Store
	transport  Transport
	resolver   Resolver
	store      ActivityStore
	recorder   Recorder
	classifier Classifier
	logger     *zerolog.Logger

	slots chan struct{}

	mu      sync.Mutex
	queues  map[int64]chan domain.MediaEvent
	workers sync.WaitGroup
}

func New(cfg Config, settings *config.Store, transport Transport, resolver Resolver, store ActivityStore, recorder Recorder, classifier Classifier, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		settings:   settings,
		transport:  transport,
		resolver:   resolver,
		store:      store,
		recorder:   recorder,
		classifier: classifier,
		logger:     logger,
		slots:      make(chan struct{}, cfg.PoolSize),
		queues:     make(map[int64]chan domain.MediaEvent),
	}
}

// Run consumes events until the channel closes or ctx is canceled, then
// drains every per-chat queue before returning. Events already accepted
// are finished during the drain; none are dropped without a record.
func (p *Pipeline) Run(ctx context.Context, events <-chan domain.MediaEvent) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				p.drain()
				return nil
			}

			p.dispatch(ctx, ev)
		}
	}
}

func (p *Pipeline) dispatch(ctx context.Context, ev domain.MediaEvent) {
	observability.EventsReceived.WithLabelValues(string(ev.Kind)).Inc()

	if p.settings.Snapshot().Ignored(ev.SourceChatID) {
		observability.EventsIgnored.Inc()
		p.logger.Debug().Int64("chat_id", ev.SourceChatID).Msg("event from ignored chat dropped")

		return
	}

	p.mu.Lock()
	queue, ok := p.queues[ev.SourceChatID]
	if !ok {
		queue = make(chan domain.MediaEvent, chatQueueBuffer)
		p.queues[ev.SourceChatID] = queue

		p.workers.Add(1)
		observability.ActiveChatWorkers.Inc()

		go p.chatWorker(ctx, queue)
	}
	p.mu.Unlock()

	queue <- ev
}

// chatWorker drains one chat's queue in order. The pool semaphore bounds
// how many workers handle an event at the same moment.
func (p *Pipeline) chatWorker(ctx context.Context, queue chan domain.MediaEvent) {
	defer p.workers.Done()
	defer observability.ActiveChatWorkers.Dec()

	for ev := range queue {
		p.slots <- struct{}{}
		p.handle(ctx, ev)
		<-p.slots
	}
}

// drain closes every queue and waits for the workers to finish what was
// already accepted.
func (p *Pipeline) drain() {
	p.mu.Lock()
	for chatID, queue := range p.queues {
		close(queue)
		delete(p.queues, chatID)
	}
	p.mu.Unlock()

	p.workers.Wait()
}

// handle takes one event to its terminal outcome and writes exactly one
// activity record for it.
func (p *Pipeline) handle(ctx context.Context, ev domain.MediaEvent) {
	started := time.Now()
	outcome := p.forward(ctx, ev)
	observability.ForwardDuration.Observe(time.Since(started).Seconds())
	observability.ForwardOutcomes.WithLabelValues(string(outcome.result)).Inc()

	rec := domain.ActivityRecord{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		SourceChatID: ev.SourceChatID,
		SourceName:   ev.SourceName,
		Kind:         ev.Kind,
		ThreadID:     outcome.threadID,
		Outcome:      outcome.result,
		FileSize:     ev.FileSize,
		Duration:     ev.Duration,
	}

	// A canceled ctx during shutdown must not lose the record, so the log
	// write runs on its own deadline. The rollup only counts records that
	// actually landed in the log, otherwise a restart could not rebuild it.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordWriteBudget)
	defer cancel()

	appendPolicy := backoff.NewExponentialBackOff()
	appendPolicy.InitialInterval = p.cfg.BaseDelay

	err := backoff.Retry(func() error {
		return p.store.AppendActivity(logCtx, rec)
	}, backoff.WithContext(backoff.WithMaxRetries(appendPolicy, recordWriteRetries), logCtx))
	if err != nil {
		p.logger.Error().Err(err).Int64("chat_id", ev.SourceChatID).Msg("activity record write failed, outcome not counted")
	} else {
		p.recorder.Add(rec)
	}

	if outcome.err != nil {
		p.logger.Warn().
			Err(outcome.err).
			Int64("chat_id", ev.SourceChatID).
			Str("kind", string(ev.Kind)).
			Str("outcome", string(outcome.result)).
			Msg("media event failed")
	}
}

type terminal struct {
	result   domain.Outcome
	threadID int64
	err      error
}

// forward resolves the destination thread and posts the media, retrying
// transient failures with exponential backoff up to the attempt budget.
func (p *Pipeline) forward(ctx context.Context, ev domain.MediaEvent) terminal {
	if ev.Kind == domain.KindUnknown {
		return terminal{result: domain.OutcomeFailedPermanent, err: fmt.Errorf("unsupported media kind")}
	}

	caption := buildCaption(ev)

	var (
		threadID  int64
		permanent bool
	)

	attempt := 0
	wrapFailure := func(err error) error {
		failure := p.classifier(err)

		if failure.Permanent {
			permanent = true
			return backoff.Permanent(err)
		}

		if failure.RetryAfter > 0 {
			observability.RateLimitHits.Inc()
			_ = worker.Wait(ctx, failure.RetryAfter)
		}

		return err
	}

	operation := func() error {
		if attempt > 0 {
			observability.ForwardRetries.Inc()
		}
		attempt++

		var err error

		threadID, err = p.resolver.Resolve(ctx, ev.SourceChatID, ev.SourceName)
		if err != nil {
			return wrapFailure(err)
		}

		if err := p.transport.PostMedia(ctx, threadID, ev, caption); err != nil {
			return wrapFailure(err)
		}

		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.cfg.BaseDelay

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(p.cfg.MaxAttempts-1)), ctx))

	switch {
	case err == nil:
		return terminal{result: domain.OutcomeSuccess, threadID: threadID}
	case permanent:
		return terminal{result: domain.OutcomeFailedPermanent, threadID: threadID, err: err}
	default:
		return terminal{result: domain.OutcomeFailedExhausted, threadID: threadID, err: err}
	}
}

func buildCaption(ev domain.MediaEvent) string {
	attribution := "— Source: " + ev.SourceName
	if ev.Caption == "" {
		return attribution
	}

	return ev.Caption + "\n\n" + attribution
}
