package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
	"github.com/delagostini-bot/Telegram-Share-Bot/internal/platform/config"
)

var (
	errTransient = errors.New("gateway unavailable")
	errPermanent = errors.New("payload rejected")
)

type posted struct {
	chatID    int64
	messageID int
	threadID  int64
	caption   string
}

// fakeTransport records posts and can fail a configurable number of
// leading attempts per chat.
type fakeTransport struct {
	mu        sync.Mutex
	posts     []posted
	failFirst map[int64]int
	failWith  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failFirst: make(map[int64]int), failWith: errTransient}
}

func (t *fakeTransport) PostMedia(_ context.Context, threadID int64, ev domain.MediaEvent, caption string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := t.failFirst[ev.SourceChatID]; n > 0 {
		t.failFirst[ev.SourceChatID] = n - 1
		return t.failWith
	}

	t.posts = append(t.posts, posted{
		chatID:    ev.SourceChatID,
		messageID: ev.MessageID,
		threadID:  threadID,
		caption:   caption,
	})

	return nil
}

func (t *fakeTransport) postedMessages() []posted {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]posted, len(t.posts))
	copy(out, t.posts)

	return out
}

type fakeResolver struct {
	mu      sync.Mutex
	threads map[int64]int64
	next    int64
}

func (r *fakeResolver) Resolve(_ context.Context, chatID int64, _ string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.threads == nil {
		r.threads = make(map[int64]int64)
	}

	if id, ok := r.threads[chatID]; ok {
		return id, nil
	}

	r.next++
	r.threads[chatID] = r.next

	return r.next, nil
}

type fakeActivityStore struct {
	mu        sync.Mutex
	records   []domain.ActivityRecord
	attempts  int
	failFirst int
	failAll   bool
}

func (s *fakeActivityStore) AppendActivity(_ context.Context, rec domain.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++

	if s.failAll {
		return errTransient
	}

	if s.failFirst > 0 {
		s.failFirst--
		return errTransient
	}

	s.records = append(s.records, rec)

	return nil
}

func (s *fakeActivityStore) appendAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.attempts
}

func (s *fakeActivityStore) all() []domain.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.ActivityRecord, len(s.records))
	copy(out, s.records)

	return out
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []domain.ActivityRecord
}

func (r *fakeRecorder) Add(rec domain.ActivityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recs = append(r.recs, rec)
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.recs)
}

func classifyTestErr(err error) Failure {
	return Failure{Permanent: errors.Is(err, errPermanent)}
}

func testSettings(ignored ...int64) *config.Store {
	set := make(map[int64]struct{}, len(ignored))
	for _, id := range ignored {
		set[id] = struct{}{}
	}

	return config.NewStore(config.Runtime{IgnoredChatIDs: set})
}

func newTestPipeline(transport Transport, resolver Resolver, store ActivityStore, recorder Recorder, settings *config.Store) *Pipeline {
	logger := zerolog.Nop()

	cfg := Config{MaxAttempts: 3, BaseDelay: time.Millisecond, PoolSize: 4}

	return New(cfg, settings, transport, resolver, store, recorder, classifyTestErr, &logger)
}

func runEvents(t *testing.T, p *Pipeline, events ...domain.MediaEvent) {
	t.Helper()

	ch := make(chan domain.MediaEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	if err := p.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func mediaEvent(chatID int64, messageID int, kind domain.MediaKind) domain.MediaEvent {
	return domain.MediaEvent{
		SourceChatID: chatID,
		SourceName:   "Movie Club",
		MessageID:    messageID,
		Kind:         kind,
		FileID:       "file",
		FileSize:     100,
	}
}

func TestRun_ForwardsAndRecords(t *testing.T) {
	transport := newFakeTransport()
	store := &fakeActivityStore{}
	recorder := &fakeRecorder{}
	p := newTestPipeline(transport, &fakeResolver{}, store, recorder, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	posts := transport.postedMessages()
	if len(posts) != 1 {
		t.Fatalf("posted %d messages, want 1", len(posts))
	}

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("wrote %d records, want 1", len(records))
	}

	if records[0].Outcome != domain.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success", records[0].Outcome)
	}

	if records[0].ThreadID != posts[0].threadID {
		t.Errorf("record thread %d does not match posted thread %d", records[0].ThreadID, posts[0].threadID)
	}

	if recorder.count() != 1 {
		t.Errorf("recorder saw %d records, want 1", recorder.count())
	}
}

func TestRun_CaptionCarriesAttribution(t *testing.T) {
	transport := newFakeTransport()
	p := newTestPipeline(transport, &fakeResolver{}, &fakeActivityStore{}, &fakeRecorder{}, testSettings())

	ev := mediaEvent(100, 1, domain.KindVideo)
	ev.Caption = "season finale"

	bare := mediaEvent(100, 2, domain.KindPhoto)

	runEvents(t, p, ev, bare)

	posts := transport.postedMessages()
	if len(posts) != 2 {
		t.Fatalf("posted %d messages, want 2", len(posts))
	}

	if want := "season finale\n\n— Source: Movie Club"; posts[0].caption != want {
		t.Errorf("caption = %q, want %q", posts[0].caption, want)
	}

	if want := "— Source: Movie Club"; posts[1].caption != want {
		t.Errorf("bare caption = %q, want %q", posts[1].caption, want)
	}
}

func TestRun_PerChatOrderPreserved(t *testing.T) {
	transport := newFakeTransport()
	// The first attempt for chat 100 fails so a retry happens mid-stream.
	transport.failFirst[100] = 1

	p := newTestPipeline(transport, &fakeResolver{}, &fakeActivityStore{}, &fakeRecorder{}, testSettings())

	var events []domain.MediaEvent
	for i := 1; i <= 5; i++ {
		events = append(events, mediaEvent(100, i, domain.KindPhoto))
		events = append(events, mediaEvent(200, 100+i, domain.KindPhoto))
	}

	runEvents(t, p, events...)

	var chat100, chat200 []int
	for _, post := range transport.postedMessages() {
		switch post.chatID {
		case 100:
			chat100 = append(chat100, post.messageID)
		case 200:
			chat200 = append(chat200, post.messageID)
		}
	}

	for i := 1; i < len(chat100); i++ {
		if chat100[i] < chat100[i-1] {
			t.Fatalf("chat 100 order broken: %v", chat100)
		}
	}

	for i := 1; i < len(chat200); i++ {
		if chat200[i] < chat200[i-1] {
			t.Fatalf("chat 200 order broken: %v", chat200)
		}
	}

	if len(chat100) != 5 || len(chat200) != 5 {
		t.Errorf("posts per chat = %d/%d, want 5/5", len(chat100), len(chat200))
	}
}

func TestRun_IgnoredChatLeavesNoRecord(t *testing.T) {
	transport := newFakeTransport()
	store := &fakeActivityStore{}
	p := newTestPipeline(transport, &fakeResolver{}, store, &fakeRecorder{}, testSettings(100))

	runEvents(t, p,
		mediaEvent(100, 1, domain.KindPhoto),
		mediaEvent(200, 2, domain.KindPhoto),
	)

	if got := len(transport.postedMessages()); got != 1 {
		t.Errorf("posted %d messages, want only the non-ignored chat", got)
	}

	if got := len(store.all()); got != 1 {
		t.Errorf("wrote %d records, want 1", got)
	}
}

func TestRun_TransientFailureRetriesThenSucceeds(t *testing.T) {
	transport := newFakeTransport()
	transport.failFirst[100] = 2

	store := &fakeActivityStore{}
	p := newTestPipeline(transport, &fakeResolver{}, store, &fakeRecorder{}, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("wrote %d records, want exactly 1", len(records))
	}

	if records[0].Outcome != domain.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success after retries", records[0].Outcome)
	}

	if got := len(transport.postedMessages()); got != 1 {
		t.Errorf("posted %d messages, want 1", got)
	}
}

func TestRun_ExhaustedRetriesRecordTerminalFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.failFirst[100] = 10

	store := &fakeActivityStore{}
	p := newTestPipeline(transport, &fakeResolver{}, store, &fakeRecorder{}, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("wrote %d records, want exactly 1", len(records))
	}

	if records[0].Outcome != domain.OutcomeFailedExhausted {
		t.Errorf("Outcome = %s, want failed_transient_exhausted", records[0].Outcome)
	}

	if got := len(transport.postedMessages()); got != 0 {
		t.Errorf("posted %d messages, want 0", got)
	}
}

func TestRun_PermanentFailureDoesNotRetry(t *testing.T) {
	transport := newFakeTransport()
	transport.failFirst[100] = 10
	transport.failWith = errPermanent

	store := &fakeActivityStore{}
	p := newTestPipeline(transport, &fakeResolver{}, store, &fakeRecorder{}, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("wrote %d records, want exactly 1", len(records))
	}

	if records[0].Outcome != domain.OutcomeFailedPermanent {
		t.Errorf("Outcome = %s, want failed_permanent", records[0].Outcome)
	}

	// A single attempt consumed exactly one scheduled failure.
	transport.mu.Lock()
	remaining := transport.failFirst[100]
	transport.mu.Unlock()

	if remaining != 9 {
		t.Errorf("attempts = %d, want 1", 10-remaining)
	}
}

func TestRun_UnknownKindFailsPermanentlyWithoutTransport(t *testing.T) {
	transport := newFakeTransport()
	store := &fakeActivityStore{}
	p := newTestPipeline(transport, &fakeResolver{}, store, &fakeRecorder{}, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindUnknown))

	if got := len(transport.postedMessages()); got != 0 {
		t.Errorf("posted %d messages, want 0", got)
	}

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("wrote %d records, want 1", len(records))
	}

	if records[0].Outcome != domain.OutcomeFailedPermanent {
		t.Errorf("Outcome = %s, want failed_permanent", records[0].Outcome)
	}
}

func TestRun_ActivityWriteRetriedUntilDurable(t *testing.T) {
	transport := newFakeTransport()
	store := &fakeActivityStore{failFirst: 2}
	recorder := &fakeRecorder{}
	p := newTestPipeline(transport, &fakeResolver{}, store, recorder, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	if got := store.appendAttempts(); got != 3 {
		t.Errorf("append attempts = %d, want 3", got)
	}

	if got := len(store.all()); got != 1 {
		t.Fatalf("durable records = %d, want 1", got)
	}

	if recorder.count() != 1 {
		t.Errorf("recorder saw %d records, want 1", recorder.count())
	}
}

func TestRun_ActivityWriteFailureNotCountedInRollup(t *testing.T) {
	transport := newFakeTransport()
	store := &fakeActivityStore{failAll: true}
	recorder := &fakeRecorder{}
	p := newTestPipeline(transport, &fakeResolver{}, store, recorder, testSettings())

	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	if got := store.appendAttempts(); got < 2 {
		t.Errorf("append attempts = %d, want retries before giving up", got)
	}

	// The rollup must stay rebuildable from the log, so a record that never
	// landed is not counted.
	if recorder.count() != 0 {
		t.Errorf("recorder saw %d records, want 0", recorder.count())
	}
}

func TestRun_RateLimitHintDelaysRetry(t *testing.T) {
	const hint = 30 * time.Millisecond

	transport := newFakeTransport()
	transport.failFirst[100] = 1

	classify := func(error) Failure {
		return Failure{RetryAfter: hint}
	}

	logger := zerolog.Nop()
	store := &fakeActivityStore{}
	p := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, PoolSize: 4},
		testSettings(), transport, &fakeResolver{}, store, &fakeRecorder{}, classify, &logger)

	started := time.Now()
	runEvents(t, p, mediaEvent(100, 1, domain.KindPhoto))

	if elapsed := time.Since(started); elapsed < hint {
		t.Errorf("retry happened after %v, want at least %v", elapsed, hint)
	}

	if got := len(transport.postedMessages()); got != 1 {
		t.Errorf("posted %d messages, want 1", got)
	}
}

func TestRun_DrainFinishesAcceptedEvents(t *testing.T) {
	transport := newFakeTransport()
	store := &fakeActivityStore{}
	p := newTestPipeline(transport, &fakeResolver{}, store, &fakeRecorder{}, testSettings())

	const n = 20

	ch := make(chan domain.MediaEvent, n)
	for i := 1; i <= n; i++ {
		ch <- mediaEvent(int64(100+i%3), i, domain.KindPhoto)
	}
	close(ch)

	if err := p.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(store.all()); got != n {
		t.Errorf("records after drain = %d, want %d", got, n)
	}
}
