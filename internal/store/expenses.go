package store

import (
	"context"
	"fmt"
	"strings"
)

const expenseColumns = `id, card_id, title, amount, type, assignee, date::text, created_at`

func scanExpense(row rowScanner) (Expense, error) {
	var e Expense
	if err := row.Scan(&e.ID, &e.CardID, &e.Title, &e.Amount, &e.Type, &e.Assignee, &e.Date, &e.CreatedAt); err != nil {
		return Expense{}, err
	}
	return e, nil
}

func (s *PostgresStore) queryExpenses(ctx context.Context, query string, args ...any) ([]Expense, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	items := make([]Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return items, nil
}

// ListCardExpenses returns a card's expenses, newest date first.
func (s *PostgresStore) ListCardExpenses(ctx context.Context, cardID string) ([]Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE card_id=$1
		ORDER BY date DESC, created_at DESC
	`, cardID)
}

// ListAllExpenses returns every expense in ascending date order.
func (s *PostgresStore) ListAllExpenses(ctx context.Context) ([]Expense, error) {
	return s.queryExpenses(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		ORDER BY date ASC, created_at ASC
	`)
}

func (s *PostgresStore) GetExpense(ctx context.Context, id string) (Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id=$1`, id))
	if err != nil {
		return Expense{}, fmt.Errorf("get expense: %w", classify(err))
	}
	return e, nil
}

func (s *PostgresStore) CreateExpense(ctx context.Context, e Expense) (Expense, error) {
	query := `
		INSERT INTO expenses (id, card_id, title, amount, type, assignee, date)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, '')::date, CURRENT_DATE))
		RETURNING ` + expenseColumns
	created, err := scanExpense(s.db.QueryRowContext(ctx, query, e.ID, e.CardID, e.Title, e.Amount, e.Type, e.Assignee, e.Date))
	if err != nil {
		return Expense{}, fmt.Errorf("insert expense: %w", classify(err))
	}
	return created, nil
}

func (s *PostgresStore) UpdateExpense(ctx context.Context, id string, patch ExpensePatch) (Expense, error) {
	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Amount != nil {
		add("amount", *patch.Amount)
	}
	if patch.Type != nil {
		add("type", *patch.Type)
	}
	if patch.Assignee != nil {
		add("assignee", *patch.Assignee)
	}
	if patch.Date != nil {
		add("date", *patch.Date)
	}
	if len(sets) == 0 {
		return s.GetExpense(ctx, id)
	}

	query := `UPDATE expenses SET ` + strings.Join(sets, ", ") + ` WHERE id=$1 RETURNING ` + expenseColumns
	e, err := scanExpense(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return Expense{}, fmt.Errorf("update expense: %w", classify(err))
	}
	return e, nil
}

func (s *PostgresStore) DeleteExpense(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	return nil
}
