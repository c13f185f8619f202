package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProgressKey is the backend key of the progress mapping.
const ProgressKey = "bivium_progress"

// Progress is the last read position of one chapter.
type Progress struct {
	ChapterID    string    `json:"chapterId"`
	SegmentIndex int       `json:"segmentIndex"`
	LastReadAt   time.Time `json:"lastReadAt"`
}

// ProgressStore keeps one Progress record per chapter id in a single mapping.
// Every save reads the mapping, replaces one record and writes it back.
type ProgressStore struct {
	backend Backend
	writer  *Writer
	log     *zap.Logger
	now     func() time.Time

	mu sync.Mutex
}

// NewProgressStore returns a store over backend. Asynchronous saves go
// through writer.
func NewProgressStore(backend Backend, writer *Writer, log *zap.Logger) *ProgressStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProgressStore{backend: backend, writer: writer, log: log, now: time.Now}
}

// LoadAll returns the whole mapping. A missing mapping is empty.
func (s *ProgressStore) LoadAll(ctx context.Context) (map[string]Progress, error) {
	data, err := s.backend.Get(ctx, ProgressKey)
	if errors.Is(err, ErrNotFound) {
		return map[string]Progress{}, nil
	}
	if err != nil {
		return nil, err
	}
	all := map[string]Progress{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("%w: progress: %w", ErrCorrupt, err)
	}
	return all, nil
}

// Load returns the record of one chapter.
func (s *ProgressStore) Load(ctx context.Context, chapterID string) (Progress, bool, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return Progress{}, false, err
	}
	p, ok := all[chapterID]
	return p, ok, nil
}

// Save records index for chapterID. Records of other chapters are kept: when
// the mapping cannot be read the write is skipped, only a corrupt mapping is
// replaced.
func (s *ProgressStore) Save(ctx context.Context, chapterID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.LoadAll(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		s.log.Warn("Discarding corrupt progress", zap.Error(err))
		all = map[string]Progress{}
	case err != nil:
		return fmt.Errorf("read progress: %w", err)
	}
	all[chapterID] = Progress{ChapterID: chapterID, SegmentIndex: index, LastReadAt: s.now().UTC()}

	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, ProgressKey, data)
}

// SaveAsync queues a Save on the writer and returns immediately.
func (s *ProgressStore) SaveAsync(chapterID string, index int) {
	s.writer.Submit("progress "+chapterID, func(ctx context.Context) error {
		return s.Save(ctx, chapterID, index)
	})
}

// Clear removes the record of one chapter.
func (s *ProgressStore) Clear(ctx context.Context, chapterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	if _, ok := all[chapterID]; !ok {
		return nil
	}
	delete(all, chapterID)
	data, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, ProgressKey, data)
}
