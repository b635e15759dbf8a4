package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/symptom-ledger-server/internal/domain"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memRepository stores encoded documents so every Get exercises the codec, and
// enforces the version check the real stores implement.
type memRepository struct {
	mu       sync.Mutex
	logs     map[string][]byte
	triggers map[string][]byte
	versions map[string]int64
	saveErr  error
	saves    int
}

func newMemRepository() *memRepository {
	return &memRepository{
		logs:     make(map[string][]byte),
		triggers: make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

func (r *memRepository) Get(ctx context.Context, userID string) (*domain.LedgerDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, ok := r.versions[userID]
	if !ok {
		return domain.NewLedgerDocument(userID, time.Time{}), nil
	}
	log, _ := domain.DecodeLog(userID, r.logs[userID])
	triggers, _ := domain.DecodeTriggers(r.triggers[userID])
	return &domain.LedgerDocument{UserID: userID, Log: log, Triggers: triggers, Version: version}, nil
}

func (r *memRepository) Save(ctx context.Context, doc *domain.LedgerDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.saveErr != nil {
		return r.saveErr
	}
	if r.versions[doc.UserID] != doc.Version {
		return domain.ErrVersionConflict
	}
	logData, err := domain.EncodeLog(doc.Log)
	if err != nil {
		return err
	}
	triggerData, err := domain.EncodeTriggers(doc.Triggers)
	if err != nil {
		return err
	}
	r.logs[doc.UserID] = logData
	r.triggers[doc.UserID] = triggerData
	r.versions[doc.UserID] = doc.Version + 1
	doc.Version++
	r.saves++
	return nil
}

func (r *memRepository) Health(ctx context.Context) error { return nil }
func (r *memRepository) Close() error                     { return nil }

// conflictingRepository reports a version conflict for the first n saves.
type conflictingRepository struct {
	*memRepository
	conflicts int
}

func (r *conflictingRepository) Save(ctx context.Context, doc *domain.LedgerDocument) error {
	if r.conflicts > 0 {
		r.conflicts--
		return domain.ErrVersionConflict
	}
	return r.memRepository.Save(ctx, doc)
}

// stallingRepository holds the first Get issued after arm until release is
// closed. The document is read before the stall.
type stallingRepository struct {
	*memRepository
	armed   atomic.Bool
	stalled chan struct{}
	release chan struct{}
}

func newStallingRepository(repo *memRepository) *stallingRepository {
	return &stallingRepository{
		memRepository: repo,
		stalled:       make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (r *stallingRepository) arm() { r.armed.Store(true) }

func (r *stallingRepository) Get(ctx context.Context, userID string) (*domain.LedgerDocument, error) {
	doc, err := r.memRepository.Get(ctx, userID)
	if r.armed.CompareAndSwap(true, false) {
		close(r.stalled)
		<-r.release
	}
	return doc, err
}

type flagKey struct {
	userID    string
	biomarker string
}

// memFlagStore is an in-memory biomarker flag store.
type memFlagStore struct {
	mu       sync.Mutex
	flags    map[flagKey][]*domain.BiomarkerFlag
	failures map[string]error
}

func newMemFlagStore() *memFlagStore {
	return &memFlagStore{
		flags:    make(map[flagKey][]*domain.BiomarkerFlag),
		failures: make(map[string]error),
	}
}

func (s *memFlagStore) CreateFlag(ctx context.Context, flag *domain.BiomarkerFlag) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[flag.Biomarker]; err != nil {
		return false, err
	}
	k := flagKey{flag.UserID, flag.Biomarker}
	for _, f := range s.flags[k] {
		if f.IsActive() && f.Reason == flag.Reason && f.Source == flag.Source {
			return false, nil
		}
	}
	copied := *flag
	s.flags[k] = append(s.flags[k], &copied)
	return true, nil
}

func (s *memFlagStore) HasActiveFlag(ctx context.Context, userID, biomarker string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[biomarker]; err != nil {
		return false, err
	}
	for _, f := range s.flags[flagKey{userID, biomarker}] {
		if f.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (s *memFlagStore) RemoveFlags(ctx context.Context, userID, biomarker, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[biomarker]; err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range s.flags[flagKey{userID, biomarker}] {
		if f.IsActive() && (reason == "" || f.Reason == reason) {
			f.Status = domain.FlagRemoved
			removed++
		}
	}
	return removed, nil
}

func (s *memFlagStore) ListActive(ctx context.Context, userID string) ([]*domain.BiomarkerFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.BiomarkerFlag
	for k, flags := range s.flags {
		if k.userID != userID {
			continue
		}
		for _, f := range flags {
			if f.IsActive() {
				out = append(out, f)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Biomarker < out[j].Biomarker })
	return out, nil
}

func (s *memFlagStore) Close() error { return nil }

func (s *memFlagStore) activeBiomarkers(userID string) []string {
	flags, _ := s.ListActive(context.Background(), userID)
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, f.Biomarker)
	}
	return names
}

// MockAssessmentProvider is a mock implementation of domain.AssessmentProvider
type MockAssessmentProvider struct {
	mock.Mock
}

func (m *MockAssessmentProvider) Snapshot(ctx context.Context, userID string, t domain.AssessmentType) (*domain.AssessmentSnapshot, error) {
	args := m.Called(ctx, userID, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AssessmentSnapshot), args.Error(1)
}

// memCache is a map-backed ledger cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]*domain.SymptomLog
	setErr  error
	gets    int
	hits    int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]*domain.SymptomLog)}
}

func (c *memCache) Get(ctx context.Context, userID string) (*domain.SymptomLog, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	log, ok := c.entries[userID]
	if ok {
		c.hits++
		return log.Clone(), true, nil
	}
	return nil, false, nil
}

func (c *memCache) Set(ctx context.Context, log *domain.SymptomLog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[log.UserID] = log.Clone()
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userID)
	return nil
}

func (c *memCache) Close() error { return nil }

var errStoreDown = errors.New("store unavailable")

func scoreOf(v float64) *float64 { return &v }
