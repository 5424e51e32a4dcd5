package genstore

import (
	"context"
	"sync"
	"time"
)

type localGenEntry struct {
	Gen       uint64
	UpdatedAt time.Time
}

// LocalGenStore keeps versions and marks in-process (default).
// Optional cleanup loop prunes long-inactive generations; marks are kept
// until Reset since dropping one would make an invalidated entry look fresh.
type LocalGenStore struct {
	mu     sync.RWMutex
	gens   map[string]localGenEntry
	marks  map[string]map[string]uint64
	seq    uint64
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	retention time.Duration
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{
		gens:      make(map[string]localGenEntry),
		marks:     make(map[string]map[string]uint64),
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e, ok := s.gens[k]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return e.Gen, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	now := time.Now()
	s.mu.Lock()
	e := s.gens[k]
	e.Gen++
	e.UpdatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.Gen, nil
}

func (s *LocalGenStore) Next(_ context.Context) (uint64, error) {
	s.mu.Lock()
	s.seq++
	n := s.seq
	s.mu.Unlock()
	return n, nil
}

func (s *LocalGenStore) Mark(_ context.Context, kind, family string, seq uint64) error {
	s.mu.Lock()
	fams, ok := s.marks[kind]
	if !ok {
		fams = make(map[string]uint64)
		s.marks[kind] = fams
	}
	if seq > fams[family] {
		fams[family] = seq
	}
	s.mu.Unlock()
	return nil
}

// Marks returns a copy; callers may keep it without holding any lock.
func (s *LocalGenStore) Marks(_ context.Context, kind string) (map[string]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fams := s.marks[kind]
	if len(fams) == 0 {
		return nil, nil
	}
	out := make(map[string]uint64, len(fams))
	for f, seq := range fams {
		out[f] = seq
	}
	return out, nil
}

func (s *LocalGenStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.gens = make(map[string]localGenEntry)
	s.marks = make(map[string]map[string]uint64)
	s.mu.Unlock()
	return nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.gens {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			if s.ticker != nil {
				s.ticker.Stop() // stop ticker before waiting
			}
			s.wg.Wait()
		}
	})
	return nil
}
