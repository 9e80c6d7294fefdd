package session

import (
	"context"
	"sync"
	"time"

	"github.com/driveshare/rental-booking/internal/workflow"
)

// MemoryStore keeps drafts in process. It is used when Redis is not
// reachable at startup and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]memEntry
}

type memEntry struct {
	rec     Record
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, records: map[string]memEntry{}}
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if s.ttl > 0 && !s.now().Before(e.expires) {
		delete(s.records, id)
		return Record{}, ErrNotFound
	}
	e.rec.Draft = copyDraft(e.rec)
	return e.rec, nil
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Draft = copyDraft(rec)
	s.records[rec.ID] = memEntry{rec: rec, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// copyDraft detaches the photo slice so callers cannot mutate stored state.
func copyDraft(rec Record) workflow.Draft {
	d := rec.Draft
	if rec.Draft.CheckinPhotos != nil {
		d.CheckinPhotos = append([]string{}, rec.Draft.CheckinPhotos...)
	}
	return d
}

// LocalLocker is a per-key mutex for a single server instance.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*keyLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-kl.ch
			l.release(key, kl)
		})
	}, nil
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
