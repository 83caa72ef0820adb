package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"bookkeeper_bot/internal/domain/schedule"
	"bookkeeper_bot/internal/domain/settings"

	"github.com/sirupsen/logrus"
)

type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
	puts   int
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) raw(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.data[key])
}

type fakeScheduler struct {
	mu        sync.Mutex
	next      int
	jobs      map[string]schedule.Job
	cancelled []string
	cancelErr error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{jobs: make(map[string]schedule.Job)}
}

func (f *fakeScheduler) Register(_ context.Context, job schedule.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := fmt.Sprintf("job-%d", f.next)
	f.jobs[id] = job
	return id, nil
}

func (f *fakeScheduler) Cancel(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	if f.cancelErr != nil {
		return f.cancelErr
	}
	if _, ok := f.jobs[jobID]; !ok {
		return errors.New("unknown job")
	}
	delete(f.jobs, jobID)
	return nil
}

func (f *fakeScheduler) specs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, job := range f.jobs {
		out = append(out, job.Spec)
	}
	return out
}

type sentMessage struct {
	session string
	text    string
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[string]bool
}

func (f *fakeSender) SendText(_ context.Context, session, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[session] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, sentMessage{session: session, text: text})
	return nil
}

func (f *fakeSender) bySession() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string)
	for _, m := range f.sent {
		out[m.session] = m.text
	}
	return out
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// testEnv wires the application components over in-memory collaborators with
// the clock fixed at fixedNow in UTC.
type testEnv struct {
	kv        *memKV
	settings  *SettingsStore
	records   *RecordStore
	clock     *Clock
	scheduler *fakeScheduler
	sender    *fakeSender
	sync      *ScheduleSynchronizer
	svc       *BookkeeperService
	now       time.Time
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	seed := settings.Defaults()
	seed.ScheduleTimezone = "UTC"
	return newTestEnvWith(t, seed)
}

func newTestEnvWith(t *testing.T, seed settings.Settings) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	env := &testEnv{kv: newMemKV(), scheduler: newFakeScheduler(), sender: &fakeSender{}, now: fixedNow}

	store, err := NewSettingsStore(ctx, env.kv, seed, logger)
	if err != nil {
		t.Fatalf("settings store: %v", err)
	}
	env.settings = store
	env.clock = NewClock(func() string { return store.Get().ScheduleTimezone }, logger)
	env.clock.now = func() time.Time { return env.now }
	env.records = NewRecordStore(env.kv, func() int { return store.Get().MaxRecords }, nil, logger)
	env.sync = NewScheduleSynchronizer(env.scheduler, env.kv, store, env.records, env.clock, env.sender, logger)
	env.svc = NewBookkeeperService(env.records, store, env.sync, env.clock, logger)
	return env
}
