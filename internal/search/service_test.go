package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ Query) ([]Result, int, error) {
	f.calls++
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.results, len(f.results), nil
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

type fakeIndexer struct {
	mu      sync.Mutex
	boards  []BoardRecord
	cards   []CardRecord
	deleted []string
	done    chan struct{}
}

func newFakeIndexer() *fakeIndexer {
	return &fakeIndexer{done: make(chan struct{}, 16)}
}

func (f *fakeIndexer) IndexBoard(b BoardRecord) error {
	f.mu.Lock()
	f.boards = append(f.boards, b)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeIndexer) IndexCard(c CardRecord) error {
	f.mu.Lock()
	f.cards = append(f.cards, c)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeIndexer) DeleteBoard(id string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeIndexer) DeleteCard(id string) error { return f.DeleteBoard(id) }

func (f *fakeIndexer) IndexBoards(boards []BoardRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.boards = append(f.boards, boards...)
	return nil
}

func (f *fakeIndexer) IndexCards(cards []CardRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, cards...)
	return nil
}

type fakeLoader struct{}

func (fakeLoader) LoadAllRecords(context.Context) ([]BoardRecord, []CardRecord, error) {
	return []BoardRecord{{ID: "b1"}}, []CardRecord{{ID: "c1"}, {ID: "c2"}}, nil
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async index call")
	}
}

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: true, results: []Result{{Type: ResultBoard, ID: "b1"}}}
	fallback := &fakeSearcher{healthy: true, results: []Result{{Type: ResultCard, ID: "c1"}}}
	svc := &Service{primary: primary, fallback: fallback, logger: zerolog.Nop()}

	resp := svc.Search(context.Background(), Query{Text: "launch"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "b1" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
	if fallback.calls != 0 {
		t.Fatal("fallback must not run when the primary succeeds")
	}
}

func TestSearchFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeSearcher{healthy: true, err: errors.New("down")}
	fallback := &fakeSearcher{healthy: true, results: []Result{{Type: ResultCard, ID: "c1"}}}
	svc := &Service{primary: primary, fallback: fallback, logger: zerolog.Nop()}

	resp := svc.Search(context.Background(), Query{Text: "launch"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "c1" || resp.Query != "launch" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	unhealthy := &fakeSearcher{healthy: false}
	svc = &Service{primary: unhealthy, fallback: fallback, logger: zerolog.Nop()}
	svc.Search(context.Background(), Query{Text: "launch"})
	if unhealthy.calls != 0 {
		t.Fatal("unhealthy primary must be skipped")
	}
}

func TestSearchReturnsEmptySliceOnFailure(t *testing.T) {
	svc := &Service{fallback: &fakeSearcher{err: errors.New("boom")}, logger: zerolog.Nop()}
	resp := svc.Search(context.Background(), Query{Text: "x"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}

	empty := NewService(nil, nil, zerolog.Nop())
	if got := empty.Search(context.Background(), Query{Text: "x"}); got.Results == nil {
		t.Fatal("expected empty non-nil results without backends")
	}
}

func TestIndexingIsAsyncAndSkippedWhenUnhealthy(t *testing.T) {
	idx := newFakeIndexer()
	svc := &Service{primary: &fakeSearcher{healthy: true}, indexer: idx, logger: zerolog.Nop()}

	svc.IndexBoard(BoardRecord{ID: "b1", Title: "Launch"})
	wait(t, idx.done)
	svc.IndexCard(CardRecord{ID: "c1", BoardID: "b1"})
	wait(t, idx.done)
	svc.DeleteCard("c1")
	wait(t, idx.done)

	idx.mu.Lock()
	if len(idx.boards) != 1 || len(idx.cards) != 1 || len(idx.deleted) != 1 {
		t.Fatalf("unexpected index calls: %+v", idx)
	}
	idx.mu.Unlock()

	down := &Service{primary: &fakeSearcher{healthy: false}, indexer: idx, logger: zerolog.Nop()}
	down.IndexBoard(BoardRecord{ID: "b2"})
	select {
	case <-idx.done:
		t.Fatal("indexing must be skipped while the primary is unhealthy")
	case <-time.After(50 * time.Millisecond):
	}

	var nilService *Service
	nilService.IndexBoard(BoardRecord{ID: "b3"})
}

func TestReindexAllPushesLoadedRecords(t *testing.T) {
	idx := newFakeIndexer()
	svc := &Service{primary: &fakeSearcher{healthy: true}, indexer: idx, loader: fakeLoader{}, logger: zerolog.Nop()}

	svc.ReindexAll(context.Background())

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.boards) != 1 || len(idx.cards) != 2 {
		t.Fatalf("expected 1 board and 2 cards, got %d and %d", len(idx.boards), len(idx.cards))
	}
}

func TestParseResultType(t *testing.T) {
	for _, value := range []string{"", "board", "card"} {
		if _, ok := ParseResultType(value); !ok {
			t.Fatalf("ParseResultType(%q) rejected", value)
		}
	}
	if _, ok := ParseResultType("document"); ok {
		t.Fatal("ParseResultType accepted an unknown type")
	}
}
