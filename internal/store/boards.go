package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

func (s *PostgresStore) ListBoards(ctx context.Context) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, background, owner_id, created_at
		FROM boards
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	items := make([]Board, 0)
	for rows.Next() {
		var b Board
		if err := rows.Scan(&b.ID, &b.Title, &b.Background, &b.OwnerID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate boards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, id string) (Board, error) {
	var b Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, background, owner_id, created_at
		FROM boards
		WHERE id=$1
	`, id).Scan(&b.ID, &b.Title, &b.Background, &b.OwnerID, &b.CreatedAt)
	if err != nil {
		return Board{}, fmt.Errorf("get board: %w", classify(err))
	}
	return b, nil
}

func (s *PostgresStore) CreateBoard(ctx context.Context, b Board) (Board, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO boards (id, title, background, owner_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, b.ID, b.Title, b.Background, b.OwnerID).Scan(&b.CreatedAt)
	if err != nil {
		return Board{}, fmt.Errorf("insert board: %w", classify(err))
	}
	return b, nil
}

// DeleteBoardCascade removes expenses, cards, lists and finally the board as
// independent statements. A failure part way leaves the earlier deletes in
// place.
func (s *PostgresStore) DeleteBoardCascade(ctx context.Context, boardID string) error {
	steps := []struct {
		name  string
		query string
	}{
		{"expenses", `DELETE FROM expenses WHERE card_id IN (
			SELECT c.id FROM cards c JOIN lists l ON l.id = c.list_id WHERE l.board_id = $1)`},
		{"cards", `DELETE FROM cards WHERE list_id IN (SELECT id FROM lists WHERE board_id = $1)`},
		{"lists", `DELETE FROM lists WHERE board_id = $1`},
	}
	for _, step := range steps {
		if _, err := s.db.ExecContext(ctx, step.query, boardID); err != nil {
			return fmt.Errorf("delete board %s: %w", step.name, err)
		}
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = $1`, boardID)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	return nil
}

// ListListsWithCards returns the board's lists by position, each with its
// cards sorted by position.
func (s *PostgresStore) ListListsWithCards(ctx context.Context, boardID string) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, title, position, created_at
		FROM lists
		WHERE board_id=$1
		ORDER BY position ASC, created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	lists := make([]List, 0)
	index := make(map[string]int)
	for rows.Next() {
		var l List
		if err := rows.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		l.Cards = make([]Card, 0)
		index[l.ID] = len(lists)
		lists = append(lists, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	if len(lists) == 0 {
		return lists, nil
	}

	cardRows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id=$1
		ORDER BY c.position ASC, c.created_at ASC
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list board cards: %w", err)
	}
	defer cardRows.Close()

	for cardRows.Next() {
		card, err := scanCard(cardRows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		if i, ok := index[card.ListID]; ok {
			lists[i].Cards = append(lists[i].Cards, card)
		}
	}
	if err := cardRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return lists, nil
}

func (s *PostgresStore) GetList(ctx context.Context, id string) (List, error) {
	var l List
	err := s.db.QueryRowContext(ctx, `
		SELECT id, board_id, title, position, created_at
		FROM lists
		WHERE id=$1
	`, id).Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt)
	if err != nil {
		return List{}, fmt.Errorf("get list: %w", classify(err))
	}
	return l, nil
}

// TopListPosition returns the highest list position on the board, or an
// empty slice when the board has no lists.
func (s *PostgresStore) TopListPosition(ctx context.Context, boardID string) ([]float64, error) {
	return s.topPosition(ctx, `SELECT position FROM lists WHERE board_id=$1 ORDER BY position DESC LIMIT 1`, boardID)
}

func (s *PostgresStore) TopCardPosition(ctx context.Context, listID string) ([]float64, error) {
	return s.topPosition(ctx, `SELECT position FROM cards WHERE list_id=$1 ORDER BY position DESC LIMIT 1`, listID)
}

func (s *PostgresStore) topPosition(ctx context.Context, query, parentID string) ([]float64, error) {
	var top float64
	err := s.db.QueryRowContext(ctx, query, parentID).Scan(&top)
	if err == sql.ErrNoRows {
		return []float64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read top position: %w", err)
	}
	return []float64{top}, nil
}

func (s *PostgresStore) CreateList(ctx context.Context, l List) (List, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO lists (id, board_id, title, position)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, l.ID, l.BoardID, l.Title, l.Position).Scan(&l.CreatedAt)
	if err != nil {
		return List{}, fmt.Errorf("insert list: %w", classify(err))
	}
	l.Cards = make([]Card, 0)
	return l, nil
}

// DeleteListCascade deletes the list's expenses and cards before the list.
func (s *PostgresStore) DeleteListCascade(ctx context.Context, listID string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM expenses WHERE card_id IN (SELECT id FROM cards WHERE list_id = $1)
	`, listID); err != nil {
		return fmt.Errorf("delete list expenses: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE list_id = $1`, listID); err != nil {
		return fmt.Errorf("delete list cards: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id = $1`, listID)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	return nil
}

func (s *PostgresStore) OrderedListIDs(ctx context.Context, boardID string) ([]string, error) {
	return s.orderedIDs(ctx, `SELECT id FROM lists WHERE board_id=$1 ORDER BY position ASC, created_at ASC`, boardID)
}

func (s *PostgresStore) OrderedCardIDs(ctx context.Context, listID string) ([]string, error) {
	return s.orderedIDs(ctx, `SELECT id FROM cards WHERE list_id=$1 ORDER BY position ASC, created_at ASC`, listID)
}

func (s *PostgresStore) orderedIDs(ctx context.Context, query, parentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list ordered ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// WriteListPositions issues one UPDATE per row, in order, without a
// transaction. It returns how many rows were written before any failure.
func (s *PostgresStore) WriteListPositions(ctx context.Context, writes []PositionWrite) (int, error) {
	for i, w := range writes {
		if _, err := s.db.ExecContext(ctx, `UPDATE lists SET position=$2 WHERE id=$1`, w.ID, w.Position); err != nil {
			return i, fmt.Errorf("update list %s position: %w", w.ID, err)
		}
	}
	return len(writes), nil
}

// WriteCardPositions behaves like WriteListPositions; a write with a
// ContainerID also moves the card to that list.
func (s *PostgresStore) WriteCardPositions(ctx context.Context, writes []PositionWrite) (int, error) {
	for i, w := range writes {
		var err error
		if w.ContainerID != "" {
			_, err = s.db.ExecContext(ctx, `UPDATE cards SET position=$2, list_id=$3 WHERE id=$1`, w.ID, w.Position, w.ContainerID)
		} else {
			_, err = s.db.ExecContext(ctx, `UPDATE cards SET position=$2 WHERE id=$1`, w.ID, w.Position)
		}
		if err != nil {
			return i, fmt.Errorf("update card %s position: %w", w.ID, err)
		}
	}
	return len(writes), nil
}

const cardColumns = `c.id, c.list_id, c.title, c.description, c.position, c.budget, c.payment_status,
	c.expense_summary, c.expense_credits, c.due_date::text, c.created_at`

func scanCard(row rowScanner) (Card, error) {
	var c Card
	var budget sql.NullFloat64
	var dueDate sql.NullString
	if err := row.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &budget, &c.PaymentStatus,
		&c.ExpenseSummary, &c.ExpenseCredits, &dueDate, &c.CreatedAt); err != nil {
		return Card{}, err
	}
	if budget.Valid {
		value := budget.Float64
		c.Budget = &value
	}
	if dueDate.Valid {
		value := dueDate.String
		c.DueDate = &value
	}
	return c, nil
}

func (s *PostgresStore) ListCards(ctx context.Context, listID string) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		WHERE c.list_id=$1
		ORDER BY c.position ASC, c.created_at ASC
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	items := make([]Card, 0)
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		items = append(items, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cards: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, id string) (Card, error) {
	card, err := scanCard(s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards c WHERE c.id=$1`, id))
	if err != nil {
		return Card{}, fmt.Errorf("get card: %w", classify(err))
	}
	return card, nil
}

// BoardIDForCard resolves the board that owns a card through its list.
func (s *PostgresStore) BoardIDForCard(ctx context.Context, cardID string) (string, error) {
	var boardID string
	err := s.db.QueryRowContext(ctx, `
		SELECT l.board_id FROM cards c JOIN lists l ON l.id = c.list_id WHERE c.id=$1
	`, cardID).Scan(&boardID)
	if err != nil {
		return "", fmt.Errorf("resolve card board: %w", classify(err))
	}
	return boardID, nil
}

func (s *PostgresStore) CreateCard(ctx context.Context, c Card) (Card, error) {
	if c.PaymentStatus == "" {
		c.PaymentStatus = "pending"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cards (id, list_id, title, description, position, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, c.ID, c.ListID, c.Title, c.Description, c.Position, c.PaymentStatus).Scan(&c.CreatedAt)
	if err != nil {
		return Card{}, fmt.Errorf("insert card: %w", classify(err))
	}
	return c, nil
}

func (s *PostgresStore) UpdateCard(ctx context.Context, id string, patch CardPatch) (Card, error) {
	if patch.Empty() {
		return s.GetCard(ctx, id)
	}

	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Budget != nil {
		add("budget", *patch.Budget)
	}
	if patch.PaymentStatus != nil {
		add("payment_status", *patch.PaymentStatus)
	}
	if patch.ClearDueDate {
		sets = append(sets, "due_date=NULL")
	} else if patch.DueDate != nil {
		add("due_date", *patch.DueDate)
	}

	query := `UPDATE cards c SET ` + strings.Join(sets, ", ") + ` WHERE c.id=$1 RETURNING ` + cardColumns
	card, err := scanCard(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Card{}, fmt.Errorf("update card: %w", classify(err))
	}
	return card, nil
}

func (s *PostgresStore) UpdateCardSummary(ctx context.Context, cardID string, balance, credits float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cards SET expense_summary=$2, expense_credits=$3 WHERE id=$1
	`, cardID, balance, credits)
	if err != nil {
		return fmt.Errorf("update card summary: %w", err)
	}
	return nil
}

// DeleteCard removes the card's expenses first; labels, checklist items,
// members and comments cascade in the schema.
func (s *PostgresStore) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE card_id=$1`, id); err != nil {
		return fmt.Errorf("delete card expenses: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}
