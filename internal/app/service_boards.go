package app

import (
	"context"
	"errors"
	"strings"

	"ledgerboard/api/internal/events"
	"ledgerboard/api/internal/position"
	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/search"
	"ledgerboard/api/internal/store"
	"ledgerboard/api/internal/util"
)

const defaultBoardBackground = "linear-gradient(135deg, #0079bf, #5067c5)"

type CreateBoardInput struct {
	Title      string `json:"title"`
	Background string `json:"background"`
}

type MoveCardInput struct {
	ToListID string `json:"toListId"`
	ToIndex  *int   `json:"toIndex"`
}

// MoveResult reports the card after a move. Moved is false for a no-op.
type MoveResult struct {
	Card  CardView `json:"card"`
	Moved bool     `json:"moved"`
}

func (s *Service) ListBoards(ctx context.Context) ([]BoardView, error) {
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]BoardView, 0, len(boards))
	for _, b := range boards {
		items = append(items, boardView(b))
	}
	return items, nil
}

func (s *Service) board(ctx context.Context, boardID string) (store.Board, error) {
	board, err := s.store.GetBoard(ctx, boardID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Board{}, notFound("Board not found")
	}
	return board, err
}

func (s *Service) GetBoard(ctx context.Context, boardID string) (BoardView, error) {
	board, err := s.board(ctx, boardID)
	if err != nil {
		return BoardView{}, err
	}
	return boardView(board), nil
}

func (s *Service) CreateBoard(ctx context.Context, session Session, input CreateBoardInput) (BoardView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return BoardView{}, validationError("title is required")
	}
	background := strings.TrimSpace(input.Background)
	if background == "" {
		background = defaultBoardBackground
	}

	board, err := s.store.CreateBoard(ctx, store.Board{
		ID:         util.NewID(""),
		Title:      title,
		Background: background,
		OwnerID:    session.UserID,
	})
	if err != nil {
		return BoardView{}, failed("Failed to create board", err)
	}
	if s.search != nil {
		s.search.IndexBoard(search.BoardRecord{ID: board.ID, Title: board.Title, OwnerID: board.OwnerID})
	}
	view := boardView(board)
	s.publish(events.Event{Type: "board.created", Entity: "board", BoardID: board.ID, Payload: view})
	return view, nil
}

// DeleteBoard is limited to the owner and privileged roles.
func (s *Service) DeleteBoard(ctx context.Context, session Session, boardID string) error {
	board, err := s.board(ctx, boardID)
	if err != nil {
		return err
	}
	if board.OwnerID != session.UserID && !rbac.Normalize(session.Role).Privileged() {
		return denied(rbac.Decision{Rule: "board_owner_only", Reason: "Only the board owner or an admin can delete this board"})
	}

	lists, err := s.store.ListListsWithCards(ctx, board.ID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteBoardCascade(ctx, board.ID); err != nil {
		return failed("Failed to delete board", err)
	}
	if s.search != nil {
		s.search.DeleteBoard(board.ID)
		for _, l := range lists {
			for _, c := range l.Cards {
				s.search.DeleteCard(c.ID)
			}
		}
	}
	s.publish(events.Event{Type: "board.deleted", Entity: "board", BoardID: board.ID})
	return nil
}

func (s *Service) ListLists(ctx context.Context, boardID string) ([]ListView, error) {
	if _, err := s.board(ctx, boardID); err != nil {
		return nil, err
	}
	lists, err := s.store.ListListsWithCards(ctx, boardID)
	if err != nil {
		return nil, err
	}
	items := make([]ListView, 0, len(lists))
	for _, l := range lists {
		items = append(items, listView(l))
	}
	return items, nil
}

func (s *Service) CreateList(ctx context.Context, boardID, title string) (ListView, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return ListView{}, validationError("title is required")
	}
	if _, err := s.board(ctx, boardID); err != nil {
		return ListView{}, err
	}

	existing, err := s.store.TopListPosition(ctx, boardID)
	if err != nil {
		return ListView{}, err
	}
	list, err := s.store.CreateList(ctx, store.List{
		ID:       util.NewID(""),
		BoardID:  boardID,
		Title:    title,
		Position: position.NextAppendPosition(existing),
	})
	if err != nil {
		return ListView{}, failed("Failed to create list", err)
	}
	view := listView(list)
	s.publish(events.Event{Type: "list.created", Entity: "list", BoardID: boardID, ListID: list.ID, Payload: view})
	return view, nil
}

func (s *Service) list(ctx context.Context, listID string) (store.List, error) {
	list, err := s.store.GetList(ctx, listID)
	if errors.Is(err, store.ErrNotFound) {
		return store.List{}, notFound("List not found")
	}
	return list, err
}

func (s *Service) DeleteList(ctx context.Context, listID string) error {
	list, err := s.list(ctx, listID)
	if err != nil {
		return err
	}
	cards, err := s.store.ListCards(ctx, listID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteListCascade(ctx, listID); err != nil {
		return failed("Failed to delete list", err)
	}
	if s.search != nil {
		for _, c := range cards {
			s.search.DeleteCard(c.ID)
		}
	}
	s.publish(events.Event{Type: "list.deleted", Entity: "list", BoardID: list.BoardID, ListID: listID})
	return nil
}

// checkOrder requires orderedIDs to be a permutation of current. A reorder
// reindexes every sibling, so a partial list is rejected.
func checkOrder(orderedIDs, current []string, noun string) error {
	if len(orderedIDs) == 0 {
		return validationError("orderedIds is required")
	}
	if len(orderedIDs) != len(current) {
		return validationError("orderedIds must list every " + noun + " in the container")
	}
	known := make(map[string]struct{}, len(current))
	for _, id := range current {
		known[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := known[id]; !ok {
			return validationError("orderedIds contains an unknown id: " + id)
		}
		if _, dup := seen[id]; dup {
			return validationError("orderedIds contains a duplicate id: " + id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func positionWrites(updates []position.Update) []store.PositionWrite {
	writes := make([]store.PositionWrite, len(updates))
	for i, u := range updates {
		writes[i] = store.PositionWrite{ID: u.ID, Position: u.Position, ContainerID: u.ContainerID}
	}
	return writes
}

// ReorderLists rewrites every list position on the board. Writes are not
// transactional; on failure the rows already written keep their new keys.
func (s *Service) ReorderLists(ctx context.Context, boardID string, orderedIDs []string) ([]position.Update, error) {
	if _, err := s.board(ctx, boardID); err != nil {
		return nil, err
	}
	current, err := s.store.OrderedListIDs(ctx, boardID)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(orderedIDs, current, "list"); err != nil {
		return nil, err
	}

	updates := position.ReindexSingleContainer(orderedIDs)
	written, err := s.store.WriteListPositions(ctx, positionWrites(updates))
	if err != nil {
		s.logger.Error().Err(err).Str("board_id", boardID).Int("written", written).Int("total", len(updates)).Msg("reorder lists")
		return nil, failed("Failed to reorder lists", err)
	}
	s.publish(events.Event{Type: "lists.reordered", Entity: "list", BoardID: boardID, Payload: updates})
	return updates, nil
}

func (s *Service) ListCards(ctx context.Context, listID string) ([]CardView, error) {
	if _, err := s.list(ctx, listID); err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, listID)
	if err != nil {
		return nil, err
	}
	return cardViews(cards), nil
}

type CreateCardInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Service) CreateCard(ctx context.Context, listID string, input CreateCardInput) (CardView, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return CardView{}, validationError("title is required")
	}
	list, err := s.list(ctx, listID)
	if err != nil {
		return CardView{}, err
	}

	existing, err := s.store.TopCardPosition(ctx, listID)
	if err != nil {
		return CardView{}, err
	}
	card, err := s.store.CreateCard(ctx, store.Card{
		ID:          util.NewID(""),
		ListID:      listID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Position:    position.NextAppendPosition(existing),
	})
	if err != nil {
		return CardView{}, failed("Failed to create card", err)
	}
	s.indexCard(card, list.BoardID)
	view := cardView(card)
	s.publish(events.Event{Type: "card.created", Entity: "card", BoardID: list.BoardID, ListID: listID, CardID: card.ID, Payload: view})
	return view, nil
}

func (s *Service) indexCard(card store.Card, boardID string) {
	if s.search == nil {
		return
	}
	s.search.IndexCard(search.CardRecord{
		ID:          card.ID,
		Title:       card.Title,
		Description: card.Description,
		ListID:      card.ListID,
		BoardID:     boardID,
	})
}

func (s *Service) ReorderCards(ctx context.Context, listID string, orderedIDs []string) ([]position.Update, error) {
	list, err := s.list(ctx, listID)
	if err != nil {
		return nil, err
	}
	current, err := s.store.OrderedCardIDs(ctx, listID)
	if err != nil {
		return nil, err
	}
	if err := checkOrder(orderedIDs, current, "card"); err != nil {
		return nil, err
	}

	updates := position.ReindexSingleContainer(orderedIDs)
	written, err := s.store.WriteCardPositions(ctx, positionWrites(updates))
	if err != nil {
		s.logger.Error().Err(err).Str("list_id", listID).Int("written", written).Int("total", len(updates)).Msg("reorder cards")
		return nil, failed("Failed to reorder cards", err)
	}
	s.publish(events.Event{Type: "cards.reordered", Entity: "card", BoardID: list.BoardID, ListID: listID, Payload: updates})
	return updates, nil
}

// MoveCard places a card at toIndex of toListID, defaulting to its own list.
// Moving within a list reindexes that list; moving across lists reindexes
// the source first and then the destination.
func (s *Service) MoveCard(ctx context.Context, cardID string, input MoveCardInput) (MoveResult, error) {
	if input.ToIndex == nil || *input.ToIndex < 0 {
		return MoveResult{}, validationError("toIndex must be a non-negative integer")
	}
	card, err := s.card(ctx, cardID)
	if err != nil {
		return MoveResult{}, err
	}
	source, err := s.list(ctx, card.ListID)
	if err != nil {
		return MoveResult{}, err
	}
	destListID := strings.TrimSpace(input.ToListID)
	if destListID == "" {
		destListID = card.ListID
	}

	sourceIDs, err := s.store.OrderedCardIDs(ctx, card.ListID)
	if err != nil {
		return MoveResult{}, err
	}
	from := indexOf(sourceIDs, card.ID)
	toIndex := *input.ToIndex
	if destListID == card.ListID && toIndex > len(sourceIDs)-1 {
		toIndex = len(sourceIDs) - 1
	}

	if position.IsNoop(card.ListID, destListID, from, toIndex) {
		return MoveResult{Card: cardView(card), Moved: false}, nil
	}

	if destListID == card.ListID {
		updates := position.ReindexSingleContainer(position.Move(sourceIDs, from, toIndex))
		if written, err := s.store.WriteCardPositions(ctx, positionWrites(updates)); err != nil {
			s.logger.Error().Err(err).Str("card_id", cardID).Int("written", written).Msg("move card")
			return MoveResult{}, failed("Failed to move card", err)
		}
	} else {
		dest, err := s.list(ctx, destListID)
		if err != nil {
			return MoveResult{}, err
		}
		if dest.BoardID != source.BoardID {
			return MoveResult{}, validationError("cards can only move between lists on the same board")
		}
		destIDs, err := s.store.OrderedCardIDs(ctx, destListID)
		if err != nil {
			return MoveResult{}, err
		}
		move, err := position.ReindexCrossContainerMove(sourceIDs, destIDs, card.ID, toIndex, destListID)
		if err != nil {
			return MoveResult{}, failed("Failed to move card", err)
		}
		if written, err := s.store.WriteCardPositions(ctx, positionWrites(move.Source)); err != nil {
			s.logger.Error().Err(err).Str("card_id", cardID).Int("written", written).Msg("move card: source list")
			return MoveResult{}, failed("Failed to move card", err)
		}
		if written, err := s.store.WriteCardPositions(ctx, positionWrites(move.Dest)); err != nil {
			s.logger.Error().Err(err).Str("card_id", cardID).Int("written", written).Msg("move card: destination list")
			return MoveResult{}, failed("Failed to move card", err)
		}
	}

	moved, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return MoveResult{}, err
	}
	s.indexCard(moved, source.BoardID)
	view := cardView(moved)
	s.publish(events.Event{Type: "card.moved", Entity: "card", BoardID: source.BoardID, ListID: destListID, CardID: cardID, Payload: view})
	return MoveResult{Card: view, Moved: true}, nil
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
