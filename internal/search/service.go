package search

import (
	"context"

	"github.com/rs/zerolog"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
// Either backend may be nil.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	loader   recordLoader
	logger   zerolog.Logger
}

type recordLoader interface {
	LoadAllRecords(ctx context.Context) ([]BoardRecord, []CardRecord, error)
}

type bulkIndexer interface {
	IndexBoards(boards []BoardRecord) error
	IndexCards(cards []CardRecord) error
}

// NewService wires a Meilisearch primary and a Postgres fallback.
func NewService(m *Meili, pgfts *PgFTS, logger zerolog.Logger) *Service {
	s := &Service{logger: logger.With().Str("component", "search").Logger()}
	if m != nil {
		s.primary = m
		s.indexer = m
	}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	return s
}

// Search tries the primary if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn().Err(err).Msg("primary search failed, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) indexerReady() bool {
	return s != nil && s.indexer != nil && (s.primary == nil || s.primary.Healthy())
}

// IndexBoard indexes a board (fire-and-forget).
func (s *Service) IndexBoard(b BoardRecord) {
	if !s.indexerReady() {
		return
	}
	go func() {
		if err := s.indexer.IndexBoard(b); err != nil {
			s.logger.Warn().Err(err).Str("board_id", b.ID).Msg("index board")
		}
	}()
}

// IndexCard indexes a card (fire-and-forget).
func (s *Service) IndexCard(c CardRecord) {
	if !s.indexerReady() {
		return
	}
	go func() {
		if err := s.indexer.IndexCard(c); err != nil {
			s.logger.Warn().Err(err).Str("card_id", c.ID).Msg("index card")
		}
	}()
}

// DeleteBoard removes a board from the index (fire-and-forget).
func (s *Service) DeleteBoard(id string) {
	if !s.indexerReady() {
		return
	}
	go func() {
		if err := s.indexer.DeleteBoard(id); err != nil {
			s.logger.Warn().Err(err).Str("board_id", id).Msg("delete board from index")
		}
	}()
}

// DeleteCard removes a card from the index (fire-and-forget).
func (s *Service) DeleteCard(id string) {
	if !s.indexerReady() {
		return
	}
	go func() {
		if err := s.indexer.DeleteCard(id); err != nil {
			s.logger.Warn().Err(err).Str("card_id", id).Msg("delete card from index")
		}
	}()
}

// ReindexAll loads every board and card from Postgres and bulk-pushes them
// to the primary index.
func (s *Service) ReindexAll(ctx context.Context) {
	if !s.indexerReady() || s.loader == nil {
		return
	}
	bulk, ok := s.indexer.(bulkIndexer)
	if !ok {
		return
	}
	boards, cards, err := s.loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("reindex load failed")
		return
	}
	if err := bulk.IndexBoards(boards); err != nil {
		s.logger.Error().Err(err).Msg("reindex boards")
	}
	if err := bulk.IndexCards(cards); err != nil {
		s.logger.Error().Err(err).Msg("reindex cards")
	}
	s.logger.Info().Int("boards", len(boards)).Int("cards", len(cards)).Msg("search reindex complete")
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
