package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oratio/teachback/api/session"
)

// Store is the persistence contract. Entries are append-only while the
// session is non-terminal; sequence contiguity is enforced at the store so
// no backend can accept a gapped record.
type Store interface {
	CreateSession(ctx context.Context, rec Record) error
	GetSession(ctx context.Context, id string) (Record, error)
	UpdateSession(ctx context.Context, rec Record) error
	ActiveSessionForUser(ctx context.Context, userID string) (Record, bool, error)

	AppendEntry(ctx context.Context, entry Entry) error
	Entries(ctx context.Context, sessionID string) ([]Entry, error)

	AddInterruption(ctx context.Context, in Interruption) error
	ResolveInterruption(ctx context.Context, sessionID string, at time.Time) error
	UnresolvedInterruption(ctx context.Context, sessionID string) (Interruption, bool, error)
	Interruptions(ctx context.Context, sessionID string) ([]Interruption, error)

	AddExchange(ctx context.Context, ex ExamExchange) error
	Exchanges(ctx context.Context, sessionID string) ([]ExamExchange, error)

	SaveSummary(ctx context.Context, summary session.Summary) error
	GetSummary(ctx context.Context, sessionID string) (session.Summary, error)

	// PruneCompletedBefore removes entries, interruptions, and exchanges of
	// completed sessions older than cutoff. Summaries survive.
	PruneCompletedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is the in-process backend used for tests and single-node
// deployments.
type MemoryStore struct {
	mu            sync.Mutex
	sessions      map[string]Record
	entries       map[string][]Entry
	interruptions map[string][]Interruption
	exchanges     map[string][]ExamExchange
	summaries     map[string]session.Summary
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:      map[string]Record{},
		entries:       map[string][]Entry{},
		interruptions: map[string][]Interruption{},
		exchanges:     map[string][]ExamExchange{},
		summaries:     map[string]session.Summary{},
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.ID]; ok {
		return ErrSessionExists
	}
	for _, existing := range s.sessions {
		if existing.UserID == rec.UserID && !existing.State.Terminal() {
			return session.ErrActiveSessionExists
		}
	}
	s.sessions[rec.ID] = rec
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[id]
	if !ok {
		return Record{}, session.ErrSessionNotFound
	}
	return rec, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[rec.ID]; !ok {
		return session.ErrSessionNotFound
	}
	s.sessions[rec.ID] = rec
	return nil
}

func (s *MemoryStore) ActiveSessionForUser(_ context.Context, userID string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.sessions {
		if rec.UserID == userID && !rec.State.Terminal() {
			return rec, true, nil
		}
	}
	return Record{}, false, nil
}

func (s *MemoryStore) AppendEntry(_ context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[entry.SessionID]
	if !ok {
		return session.ErrSessionNotFound
	}
	if rec.State.Terminal() {
		return ErrAppendAfterCompleted
	}
	existing := s.entries[entry.SessionID]
	want := int64(len(existing)) + 1
	if entry.Seq < want {
		return ErrDuplicateEntry
	}
	if entry.Seq > want {
		return ErrSeqGap
	}
	s.entries[entry.SessionID] = append(existing, entry)
	return nil
}

func (s *MemoryStore) Entries(_ context.Context, sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, len(s.entries[sessionID]))
	copy(entries, s.entries[sessionID])
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

func (s *MemoryStore) AddInterruption(_ context.Context, in Interruption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.interruptions[in.SessionID] {
		if !existing.Resolved() {
			return ErrUnresolvedExists
		}
	}
	s.interruptions[in.SessionID] = append(s.interruptions[in.SessionID], in)
	return nil
}

func (s *MemoryStore) ResolveInterruption(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.interruptions[sessionID]
	for i := range list {
		if !list[i].Resolved() {
			resolved := at
			list[i].ResolvedAt = &resolved
			return nil
		}
	}
	return ErrNoUnresolved
}

func (s *MemoryStore) UnresolvedInterruption(_ context.Context, sessionID string) (Interruption, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.interruptions[sessionID] {
		if !in.Resolved() {
			return in, true, nil
		}
	}
	return Interruption{}, false, nil
}

func (s *MemoryStore) Interruptions(_ context.Context, sessionID string) ([]Interruption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Interruption, len(s.interruptions[sessionID]))
	copy(list, s.interruptions[sessionID])
	return list, nil
}

func (s *MemoryStore) AddExchange(_ context.Context, ex ExamExchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exchanges[ex.SessionID] = append(s.exchanges[ex.SessionID], ex)
	return nil
}

func (s *MemoryStore) Exchanges(_ context.Context, sessionID string) ([]ExamExchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]ExamExchange, len(s.exchanges[sessionID]))
	copy(list, s.exchanges[sessionID])
	return list, nil
}

func (s *MemoryStore) SaveSummary(_ context.Context, summary session.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.summaries[summary.SessionID]; ok {
		return ErrSummaryAlreadySaved
	}
	s.summaries[summary.SessionID] = summary
	return nil
}

func (s *MemoryStore) GetSummary(_ context.Context, sessionID string) (session.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[sessionID]
	if !ok {
		return session.Summary{}, session.ErrSessionNotFound
	}
	return summary, nil
}

func (s *MemoryStore) PruneCompletedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, rec := range s.sessions {
		if rec.State != session.StateCompleted || !rec.LastActivityAt.Before(cutoff) {
			continue
		}
		if len(s.entries[id]) == 0 && len(s.interruptions[id]) == 0 && len(s.exchanges[id]) == 0 {
			continue
		}
		delete(s.entries, id)
		delete(s.interruptions, id)
		delete(s.exchanges, id)
		pruned++
	}
	return pruned, nil
}
