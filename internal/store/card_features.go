package store

import (
	"context"
	"errors"
	"fmt"
)

func (s *PostgresStore) ListLabels(ctx context.Context, cardID string) ([]Label, error) {
	return s.queryLabels(ctx, `
		SELECT id, card_id, color, text, created_at
		FROM card_labels
		WHERE card_id=$1
		ORDER BY created_at ASC
	`, cardID)
}

// ListLabelsForCards batches label lookups for a board view.
func (s *PostgresStore) ListLabelsForCards(ctx context.Context, cardIDs []string) ([]Label, error) {
	if len(cardIDs) == 0 {
		return []Label{}, nil
	}
	return s.queryLabels(ctx, `
		SELECT id, card_id, color, text, created_at
		FROM card_labels
		WHERE card_id = ANY($1)
		ORDER BY created_at ASC
	`, cardIDs)
}

func (s *PostgresStore) queryLabels(ctx context.Context, query string, args ...any) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer rows.Close()

	items := make([]Label, 0)
	for rows.Next() {
		var l Label
		if err := rows.Scan(&l.ID, &l.CardID, &l.Color, &l.Text, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateLabel(ctx context.Context, l Label) (Label, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO card_labels (id, card_id, color, text)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, l.ID, l.CardID, l.Color, l.Text).Scan(&l.CreatedAt)
	if err != nil {
		return Label{}, fmt.Errorf("insert label: %w", classify(err))
	}
	return l, nil
}

func (s *PostgresStore) DeleteLabel(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "card_labels", "label", id)
}

func (s *PostgresStore) ListChecklist(ctx context.Context, cardID string) ([]ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, card_id, text, is_checked, position, created_at
		FROM card_checklists
		WHERE card_id=$1
		ORDER BY position ASC, created_at ASC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list checklist: %w", err)
	}
	defer rows.Close()

	items := make([]ChecklistItem, 0)
	for rows.Next() {
		var item ChecklistItem
		if err := rows.Scan(&item.ID, &item.CardID, &item.Text, &item.IsChecked, &item.Position, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateChecklistItem(ctx context.Context, item ChecklistItem) (ChecklistItem, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO card_checklists (id, card_id, text, is_checked, position)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING is_checked, created_at
	`, item.ID, item.CardID, item.Text, item.Position).Scan(&item.IsChecked, &item.CreatedAt)
	if err != nil {
		return ChecklistItem{}, fmt.Errorf("insert checklist item: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) SetChecklistItemChecked(ctx context.Context, id string, checked bool) (ChecklistItem, error) {
	var item ChecklistItem
	err := s.db.QueryRowContext(ctx, `
		UPDATE card_checklists SET is_checked=$2
		WHERE id=$1
		RETURNING id, card_id, text, is_checked, position, created_at
	`, id, checked).Scan(&item.ID, &item.CardID, &item.Text, &item.IsChecked, &item.Position, &item.CreatedAt)
	if err != nil {
		return ChecklistItem{}, fmt.Errorf("toggle checklist item: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) DeleteChecklistItem(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "card_checklists", "checklist item", id)
}

func (s *PostgresStore) ListCardMembers(ctx context.Context, cardID string) ([]CardMember, error) {
	return s.queryMembers(ctx, `
		SELECT m.id, m.card_id, m.user_id, m.created_at, p.email, p.full_name, p.avatar_url
		FROM card_members m
		JOIN profiles p ON p.id = m.user_id
		WHERE m.card_id=$1
		ORDER BY m.created_at ASC
	`, cardID)
}

func (s *PostgresStore) ListMembersForCards(ctx context.Context, cardIDs []string) ([]CardMember, error) {
	if len(cardIDs) == 0 {
		return []CardMember{}, nil
	}
	return s.queryMembers(ctx, `
		SELECT m.id, m.card_id, m.user_id, m.created_at, p.email, p.full_name, p.avatar_url
		FROM card_members m
		JOIN profiles p ON p.id = m.user_id
		WHERE m.card_id = ANY($1)
		ORDER BY m.created_at ASC
	`, cardIDs)
}

func (s *PostgresStore) queryMembers(ctx context.Context, query string, args ...any) ([]CardMember, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list card members: %w", err)
	}
	defer rows.Close()

	items := make([]CardMember, 0)
	for rows.Next() {
		var m CardMember
		if err := rows.Scan(&m.ID, &m.CardID, &m.UserID, &m.CreatedAt, &m.Email, &m.FullName, &m.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan card member: %w", err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate card members: %w", err)
	}
	return items, nil
}

// AddCardMember inserts the membership. The bool result is false when the
// user was already a member; that case is not an error.
func (s *PostgresStore) AddCardMember(ctx context.Context, m CardMember) (bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_members (id, card_id, user_id)
		VALUES ($1, $2, $3)
	`, m.ID, m.CardID, m.UserID)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("insert card member: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) GetCardMember(ctx context.Context, id string) (CardMember, error) {
	var m CardMember
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.card_id, m.user_id, m.created_at, p.email, p.full_name, p.avatar_url
		FROM card_members m
		JOIN profiles p ON p.id = m.user_id
		WHERE m.id=$1
	`, id).Scan(&m.ID, &m.CardID, &m.UserID, &m.CreatedAt, &m.Email, &m.FullName, &m.AvatarURL)
	if err != nil {
		return CardMember{}, fmt.Errorf("get card member: %w", classify(err))
	}
	return m, nil
}

func (s *PostgresStore) DeleteCardMember(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "card_members", "card member", id)
}

func (s *PostgresStore) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.card_id, c.user_id, c.content, c.created_at, p.email, p.full_name, p.avatar_url
		FROM card_comments c
		JOIN profiles p ON p.id = c.user_id
		WHERE c.card_id=$1
		ORDER BY c.created_at DESC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.CardID, &c.UserID, &c.Content, &c.CreatedAt, &c.Email, &c.FullName, &c.AvatarURL); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CreateComment(ctx context.Context, c Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO card_comments (id, card_id, user_id, content)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, user_id
		)
		SELECT inserted.created_at, p.email, p.full_name, p.avatar_url
		FROM inserted
		JOIN profiles p ON p.id = inserted.user_id
	`, c.ID, c.CardID, c.UserID, c.Content).Scan(&c.CreatedAt, &c.Email, &c.FullName, &c.AvatarURL)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", classify(err))
	}
	return c, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, card_id, user_id, content, created_at FROM card_comments WHERE id=$1
	`, id).Scan(&c.ID, &c.CardID, &c.UserID, &c.Content, &c.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", classify(err))
	}
	return c, nil
}

func (s *PostgresStore) DeleteComment(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "card_comments", "comment", id)
}

// deleteByID is limited to the fixed table names above.
func (s *PostgresStore) deleteByID(ctx context.Context, table, noun, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", noun, err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("delete %s: %w", noun, err)
	}
	return nil
}

// CardIDForLabel and friends resolve a child row's card for event fan-out.
func (s *PostgresStore) CardIDForLabel(ctx context.Context, id string) (string, error) {
	return s.cardIDFor(ctx, "card_labels", id)
}

func (s *PostgresStore) CardIDForChecklistItem(ctx context.Context, id string) (string, error) {
	return s.cardIDFor(ctx, "card_checklists", id)
}

func (s *PostgresStore) CardIDForExpense(ctx context.Context, id string) (string, error) {
	return s.cardIDFor(ctx, "expenses", id)
}

func (s *PostgresStore) cardIDFor(ctx context.Context, table, id string) (string, error) {
	var cardID string
	if err := s.db.QueryRowContext(ctx, `SELECT card_id FROM `+table+` WHERE id=$1`, id).Scan(&cardID); err != nil {
		return "", fmt.Errorf("resolve %s card: %w", table, classify(err))
	}
	return cardID, nil
}

// ChecklistPositions returns every checklist position on the card.
func (s *PostgresStore) ChecklistPositions(ctx context.Context, cardID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position FROM card_checklists WHERE card_id=$1`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list checklist positions: %w", err)
	}
	defer rows.Close()

	positions := make([]int, 0)
	for rows.Next() {
		var p int
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan checklist position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist positions: %w", err)
	}
	return positions, nil
}
