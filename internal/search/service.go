package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// IndexBackend is a searcher that can also be written to.
type IndexBackend interface {
	Searcher
	Indexer
}

// Service is the facade that tries the index first and falls back to
// Postgres. Either backend may be nil.
type Service struct {
	index    IndexBackend
	fallback Searcher
	log      zerolog.Logger
}

func NewService(index IndexBackend, fallback Searcher, logger zerolog.Logger) *Service {
	return &Service{index: index, fallback: fallback, log: logger.With().Str("component", "search").Logger()}
}

// Candidates returns matching note ids for userID in rank order. ok is false
// when no backend could answer; callers then filter on their own.
func (s *Service) Candidates(ctx context.Context, userID, text string) ([]string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}, true
	}
	if s == nil {
		return nil, false
	}
	if s.index != nil && s.index.Healthy() {
		ids, err := s.index.Candidates(ctx, userID, text, defaultLimit)
		if err == nil {
			return ids, true
		}
		s.log.Warn().Err(err).Msg("index search failed, falling back")
	}
	if s.fallback != nil && s.fallback.Healthy() {
		ids, err := s.fallback.Candidates(ctx, userID, text, defaultLimit)
		if err == nil {
			return ids, true
		}
		s.log.Error().Err(err).Msg("fallback search failed")
	}
	return nil, false
}

// IndexNote indexes a note (fire-and-forget).
func (s *Service) IndexNote(record NoteRecord) {
	if s == nil || s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.IndexNotes([]NoteRecord{record}); err != nil {
			s.log.Warn().Err(err).Str("note_id", record.ID).Msg("index note")
		}
	}()
}

// DeleteNote removes a note from the index (fire-and-forget).
func (s *Service) DeleteNote(id string) {
	if s == nil || s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.DeleteNote(id); err != nil {
			s.log.Warn().Err(err).Str("note_id", id).Msg("delete note from index")
		}
	}()
}

// Reindex pushes every record from source into the index. Called at startup.
func (s *Service) Reindex(ctx context.Context, source RecordSource) {
	if s == nil || s.index == nil || !s.index.Healthy() || source == nil {
		return
	}
	records, err := source.LoadAllRecords(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := s.index.IndexNotes(records); err != nil {
		s.log.Error().Err(err).Msg("reindex notes")
		return
	}
	s.log.Info().Int("notes", len(records)).Msg("reindexed notes")
}
