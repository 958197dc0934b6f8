package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"ledgerboard/api/internal/events"
	"ledgerboard/api/internal/ledger"
	"ledgerboard/api/internal/position"
	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/store"
	"ledgerboard/api/internal/util"
)

const dateLayout = "2006-01-02"

var paymentStatuses = map[string]struct{}{
	"pending": {},
	"paid":    {},
	"overdue": {},
}

// optionalString tells an explicit JSON null apart from an absent field.
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	o.Value = &value
	return nil
}

type UpdateCardInput struct {
	Title         *string        `json:"title"`
	Description   *string        `json:"description"`
	Budget        *float64       `json:"budget"`
	PaymentStatus *string        `json:"paymentStatus"`
	DueDate       optionalString `json:"dueDate"`
}

func (s *Service) card(ctx context.Context, cardID string) (store.Card, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Card{}, notFound("Card not found")
	}
	return card, err
}

func (s *Service) GetCard(ctx context.Context, cardID string) (CardView, error) {
	card, err := s.card(ctx, cardID)
	if err != nil {
		return CardView{}, err
	}
	return cardView(card), nil
}

func (s *Service) UpdateCard(ctx context.Context, cardID string, input UpdateCardInput) (CardView, error) {
	patch := store.CardPatch{Description: input.Description}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return CardView{}, validationError("title cannot be empty")
		}
		patch.Title = &title
	}
	if input.Budget != nil {
		if *input.Budget < 0 || math.IsNaN(*input.Budget) || math.IsInf(*input.Budget, 0) {
			return CardView{}, validationError("budget must be a non-negative number")
		}
		patch.Budget = input.Budget
	}
	if input.PaymentStatus != nil {
		if _, ok := paymentStatuses[*input.PaymentStatus]; !ok {
			return CardView{}, validationError("paymentStatus must be pending, paid or overdue")
		}
		patch.PaymentStatus = input.PaymentStatus
	}
	if input.DueDate.Set {
		if input.DueDate.Value == nil || strings.TrimSpace(*input.DueDate.Value) == "" {
			patch.ClearDueDate = true
		} else {
			due := strings.TrimSpace(*input.DueDate.Value)
			if _, err := time.Parse(dateLayout, due); err != nil {
				return CardView{}, validationError("dueDate must be YYYY-MM-DD")
			}
			patch.DueDate = &due
		}
	}
	if patch.Empty() {
		return CardView{}, validationError("no fields to update")
	}

	if _, err := s.card(ctx, cardID); err != nil {
		return CardView{}, err
	}
	card, err := s.store.UpdateCard(ctx, cardID, patch)
	if err != nil {
		return CardView{}, failed("Failed to update card", err)
	}
	view := cardView(card)
	if s.search != nil && (patch.Title != nil || patch.Description != nil) {
		if boardID, err := s.store.BoardIDForCard(ctx, cardID); err == nil {
			s.indexCard(card, boardID)
		}
	}
	s.publishForCard(ctx, cardID, events.Event{Type: "card.updated", Entity: "card", ListID: card.ListID, Payload: view})
	return view, nil
}

func (s *Service) DeleteCard(ctx context.Context, cardID string) error {
	card, err := s.card(ctx, cardID)
	if err != nil {
		return err
	}
	boardID, _ := s.store.BoardIDForCard(ctx, cardID)
	if err := s.store.DeleteCard(ctx, cardID); err != nil {
		return failed("Failed to delete card", err)
	}
	if s.search != nil {
		s.search.DeleteCard(cardID)
	}
	s.publish(events.Event{Type: "card.deleted", Entity: "card", BoardID: boardID, ListID: card.ListID, CardID: cardID})
	return nil
}

// Expenses

type ExpenseInput struct {
	Title    string  `json:"title"`
	Amount   float64 `json:"amount"`
	Type     string  `json:"type"`
	Assignee string  `json:"assignee"`
	Date     string  `json:"date"`
}

type ExpensePatchInput struct {
	Title    *string  `json:"title"`
	Amount   *float64 `json:"amount"`
	Type     *string  `json:"type"`
	Assignee *string  `json:"assignee"`
	Date     *string  `json:"date"`
}

// SummaryView is a card's balance after an expense mutation.
type SummaryView struct {
	CardID         string  `json:"cardId"`
	ExpenseSummary float64 `json:"expenseSummary"`
	ExpenseCredits float64 `json:"expenseCredits"`
}

type ExpenseResult struct {
	Expense *ExpenseView `json:"expense,omitempty"`
	Summary SummaryView  `json:"summary"`
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}

func validDate(value string) bool {
	_, err := time.Parse(dateLayout, value)
	return err == nil
}

func (s *Service) ListExpenses(ctx context.Context, cardID string) ([]ExpenseView, error) {
	if _, err := s.card(ctx, cardID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListCardExpenses(ctx, cardID)
	if err != nil {
		return nil, err
	}
	items := make([]ExpenseView, 0, len(expenses))
	for _, e := range expenses {
		items = append(items, expenseView(e))
	}
	return items, nil
}

func (s *Service) CreateExpense(ctx context.Context, cardID string, input ExpenseInput) (ExpenseResult, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return ExpenseResult{}, validationError("title is required")
	}
	if !validAmount(input.Amount) {
		return ExpenseResult{}, validationError("amount must be a positive number")
	}
	if !ledger.ValidType(input.Type) {
		return ExpenseResult{}, validationError("type must be credit or debit")
	}
	date := strings.TrimSpace(input.Date)
	if date != "" && !validDate(date) {
		return ExpenseResult{}, validationError("date must be YYYY-MM-DD")
	}
	if _, err := s.card(ctx, cardID); err != nil {
		return ExpenseResult{}, err
	}

	expense, err := s.store.CreateExpense(ctx, store.Expense{
		ID:       util.NewID(""),
		CardID:   cardID,
		Title:    title,
		Amount:   input.Amount,
		Type:     input.Type,
		Assignee: strings.TrimSpace(input.Assignee),
		Date:     date,
	})
	if err != nil {
		return ExpenseResult{}, failed("Failed to add expense", err)
	}
	return s.afterExpenseChange(ctx, cardID, &expense, "expense.created")
}

func (s *Service) UpdateExpense(ctx context.Context, expenseID string, input ExpensePatchInput) (ExpenseResult, error) {
	patch := store.ExpensePatch{Assignee: input.Assignee}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return ExpenseResult{}, validationError("title cannot be empty")
		}
		patch.Title = &title
	}
	if input.Amount != nil {
		if !validAmount(*input.Amount) {
			return ExpenseResult{}, validationError("amount must be a positive number")
		}
		patch.Amount = input.Amount
	}
	if input.Type != nil {
		if !ledger.ValidType(*input.Type) {
			return ExpenseResult{}, validationError("type must be credit or debit")
		}
		patch.Type = input.Type
	}
	if input.Date != nil {
		if !validDate(*input.Date) {
			return ExpenseResult{}, validationError("date must be YYYY-MM-DD")
		}
		patch.Date = input.Date
	}

	existing, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ExpenseResult{}, notFound("Expense not found")
		}
		return ExpenseResult{}, err
	}
	expense, err := s.store.UpdateExpense(ctx, expenseID, patch)
	if err != nil {
		return ExpenseResult{}, failed("Failed to update expense", err)
	}
	return s.afterExpenseChange(ctx, existing.CardID, &expense, "expense.updated")
}

func (s *Service) DeleteExpense(ctx context.Context, expenseID string) (ExpenseResult, error) {
	cardID, err := s.store.CardIDForExpense(ctx, expenseID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ExpenseResult{}, notFound("Expense not found")
		}
		return ExpenseResult{}, err
	}
	if err := s.store.DeleteExpense(ctx, expenseID); err != nil {
		return ExpenseResult{}, failed("Failed to delete expense", err)
	}
	return s.afterExpenseChange(ctx, cardID, nil, "expense.deleted")
}

// afterExpenseChange recomputes the card's stored balance from all of its
// expenses.
func (s *Service) afterExpenseChange(ctx context.Context, cardID string, expense *store.Expense, eventType string) (ExpenseResult, error) {
	summary, err := s.recalculateCard(ctx, cardID)
	if err != nil {
		s.logger.Error().Err(err).Str("card_id", cardID).Msg("recalculate card balance")
		return ExpenseResult{}, failed("Failed to update card balance", err)
	}
	result := ExpenseResult{Summary: SummaryView{CardID: cardID, ExpenseSummary: summary.Balance, ExpenseCredits: summary.Credits}}
	if expense != nil {
		view := expenseView(*expense)
		result.Expense = &view
	}
	s.publishForCard(ctx, cardID, events.Event{Type: eventType, Entity: "expense", Payload: result})
	return result, nil
}

func (s *Service) recalculateCard(ctx context.Context, cardID string) (ledger.Summary, error) {
	expenses, err := s.store.ListCardExpenses(ctx, cardID)
	if err != nil {
		return ledger.Summary{}, err
	}
	summary := ledger.Balance(ledgerEntries(expenses))
	if err := s.store.UpdateCardSummary(ctx, cardID, summary.Balance, summary.Credits); err != nil {
		return ledger.Summary{}, err
	}
	return summary, nil
}

func ledgerEntries(expenses []store.Expense) []ledger.Entry {
	entries := make([]ledger.Entry, 0, len(expenses))
	for _, e := range expenses {
		entries = append(entries, ledger.Entry{
			ID:        e.ID,
			Amount:    e.Amount,
			Type:      ledger.EntryType(e.Type),
			Date:      e.Date,
			CreatedAt: e.CreatedAt,
		})
	}
	return entries
}

// Labels

type LabelInput struct {
	Color string `json:"color"`
	Text  string `json:"text"`
}

func (s *Service) ListLabels(ctx context.Context, cardID string) ([]LabelView, error) {
	labels, err := s.store.ListLabels(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return labelViews(labels), nil
}

func (s *Service) ListLabelsForCards(ctx context.Context, cardIDs []string) ([]LabelView, error) {
	ids := make([]string, 0, len(cardIDs))
	for _, id := range cardIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []LabelView{}, nil
	}
	labels, err := s.store.ListLabelsForCards(ctx, ids)
	if err != nil {
		return nil, err
	}
	return labelViews(labels), nil
}

func (s *Service) CreateLabel(ctx context.Context, cardID string, input LabelInput) (LabelView, error) {
	color := strings.TrimSpace(input.Color)
	if color == "" {
		return LabelView{}, validationError("color is required")
	}
	if _, err := s.card(ctx, cardID); err != nil {
		return LabelView{}, err
	}
	label, err := s.store.CreateLabel(ctx, store.Label{
		ID:     util.NewID(""),
		CardID: cardID,
		Color:  color,
		Text:   strings.TrimSpace(input.Text),
	})
	if err != nil {
		return LabelView{}, failed("Failed to add label", err)
	}
	view := labelViews([]store.Label{label})[0]
	s.publishForCard(ctx, cardID, events.Event{Type: "label.created", Entity: "label", Payload: view})
	return view, nil
}

func (s *Service) DeleteLabel(ctx context.Context, labelID string) error {
	cardID, err := s.store.CardIDForLabel(ctx, labelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Label not found")
		}
		return err
	}
	if err := s.store.DeleteLabel(ctx, labelID); err != nil {
		return failed("Failed to delete label", err)
	}
	s.publishForCard(ctx, cardID, events.Event{Type: "label.deleted", Entity: "label", Payload: map[string]string{"id": labelID}})
	return nil
}

// Checklist

func (s *Service) ListChecklist(ctx context.Context, cardID string) ([]ChecklistItemView, error) {
	items, err := s.store.ListChecklist(ctx, cardID)
	if err != nil {
		return nil, err
	}
	out := make([]ChecklistItemView, 0, len(items))
	for _, item := range items {
		out = append(out, checklistItemView(item))
	}
	return out, nil
}

func (s *Service) CreateChecklistItem(ctx context.Context, cardID, text string) (ChecklistItemView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChecklistItemView{}, validationError("text is required")
	}
	if _, err := s.card(ctx, cardID); err != nil {
		return ChecklistItemView{}, err
	}
	positions, err := s.store.ChecklistPositions(ctx, cardID)
	if err != nil {
		return ChecklistItemView{}, err
	}
	item, err := s.store.CreateChecklistItem(ctx, store.ChecklistItem{
		ID:       util.NewID(""),
		CardID:   cardID,
		Text:     text,
		Position: position.NextSequentialPosition(positions),
	})
	if err != nil {
		return ChecklistItemView{}, failed("Failed to add checklist item", err)
	}
	view := checklistItemView(item)
	s.publishForCard(ctx, cardID, events.Event{Type: "checklist.created", Entity: "checklist", Payload: view})
	return view, nil
}

func (s *Service) SetChecklistItemChecked(ctx context.Context, itemID string, checked bool) (ChecklistItemView, error) {
	item, err := s.store.SetChecklistItemChecked(ctx, itemID, checked)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ChecklistItemView{}, notFound("Checklist item not found")
		}
		return ChecklistItemView{}, failed("Failed to update checklist item", err)
	}
	view := checklistItemView(item)
	s.publishForCard(ctx, item.CardID, events.Event{Type: "checklist.updated", Entity: "checklist", Payload: view})
	return view, nil
}

func (s *Service) DeleteChecklistItem(ctx context.Context, itemID string) error {
	cardID, err := s.store.CardIDForChecklistItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Checklist item not found")
		}
		return err
	}
	if err := s.store.DeleteChecklistItem(ctx, itemID); err != nil {
		return failed("Failed to delete checklist item", err)
	}
	s.publishForCard(ctx, cardID, events.Event{Type: "checklist.deleted", Entity: "checklist", Payload: map[string]string{"id": itemID}})
	return nil
}

// Members

func (s *Service) ListAssignableProfiles(ctx context.Context) ([]ProfileView, error) {
	profiles, err := s.store.ListAssignableProfiles(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, profileView(p))
	}
	return items, nil
}

func (s *Service) ListCardMembers(ctx context.Context, cardID string) ([]MemberView, error) {
	members, err := s.store.ListCardMembers(ctx, cardID)
	if err != nil {
		return nil, err
	}
	return memberViews(members), nil
}

// AddCardMember is idempotent; adding an existing member reports added=false.
func (s *Service) AddCardMember(ctx context.Context, cardID, userID string) ([]MemberView, bool, error) {
	if _, err := s.card(ctx, cardID); err != nil {
		return nil, false, err
	}
	if _, err := s.target(ctx, userID); err != nil {
		return nil, false, err
	}
	added, err := s.store.AddCardMember(ctx, store.CardMember{ID: util.NewID(""), CardID: cardID, UserID: userID})
	if err != nil {
		return nil, false, failed("Failed to add member", err)
	}
	members, err := s.ListCardMembers(ctx, cardID)
	if err != nil {
		return nil, false, err
	}
	if added {
		s.publishForCard(ctx, cardID, events.Event{Type: "member.added", Entity: "member", Payload: members})
	}
	return members, added, nil
}

func (s *Service) RemoveCardMember(ctx context.Context, memberID string) error {
	member, err := s.store.GetCardMember(ctx, memberID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Member not found")
		}
		return err
	}
	if err := s.store.DeleteCardMember(ctx, memberID); err != nil {
		return failed("Failed to remove member", err)
	}
	s.publishForCard(ctx, member.CardID, events.Event{Type: "member.removed", Entity: "member", Payload: map[string]string{"id": memberID, "userId": member.UserID}})
	return nil
}

// Comments

func (s *Service) ListComments(ctx context.Context, cardID string) ([]CommentView, error) {
	comments, err := s.store.ListComments(ctx, cardID)
	if err != nil {
		return nil, err
	}
	items := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		items = append(items, commentView(c))
	}
	return items, nil
}

func (s *Service) AddComment(ctx context.Context, session Session, cardID, content string) (CommentView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return CommentView{}, validationError("content is required")
	}
	if _, err := s.card(ctx, cardID); err != nil {
		return CommentView{}, err
	}
	comment, err := s.store.CreateComment(ctx, store.Comment{
		ID:      util.NewID(""),
		CardID:  cardID,
		UserID:  session.UserID,
		Content: content,
	})
	if err != nil {
		return CommentView{}, failed("Failed to add comment", err)
	}
	view := commentView(comment)
	s.publishForCard(ctx, cardID, events.Event{Type: "comment.created", Entity: "comment", Payload: view})
	return view, nil
}

// DeleteComment is limited to the author and privileged roles.
func (s *Service) DeleteComment(ctx context.Context, session Session, commentID string) error {
	comment, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Comment not found")
		}
		return err
	}
	if comment.UserID != session.UserID && !rbac.Normalize(session.Role).Privileged() {
		return denied(rbac.Decision{Rule: "comment_author_only", Reason: "Only the author or an admin can delete this comment"})
	}
	if err := s.store.DeleteComment(ctx, commentID); err != nil {
		return failed("Failed to delete comment", err)
	}
	s.publishForCard(ctx, comment.CardID, events.Event{Type: "comment.deleted", Entity: "comment", Payload: map[string]string{"id": commentID}})
	return nil
}
