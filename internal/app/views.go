package app

import (
	"time"

	"ledgerboard/api/internal/store"
)

type ProfileView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatarUrl"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

func profileView(p store.Profile) ProfileView {
	return ProfileView{
		ID:        p.ID,
		Email:     p.Email,
		FullName:  p.FullName,
		AvatarURL: p.AvatarURL,
		Role:      p.Role,
		CreatedAt: p.CreatedAt,
	}
}

// PersonView is the profile subset embedded in members and comments.
type PersonView struct {
	Email     string `json:"email"`
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

type BoardView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Background string    `json:"background"`
	OwnerID    string    `json:"ownerId"`
	CreatedAt  time.Time `json:"createdAt"`
}

func boardView(b store.Board) BoardView {
	return BoardView{ID: b.ID, Title: b.Title, Background: b.Background, OwnerID: b.OwnerID, CreatedAt: b.CreatedAt}
}

type ListView struct {
	ID        string     `json:"id"`
	BoardID   string     `json:"boardId"`
	Title     string     `json:"title"`
	Position  float64    `json:"position"`
	CreatedAt time.Time  `json:"createdAt"`
	Cards     []CardView `json:"cards"`
}

func listView(l store.List) ListView {
	cards := make([]CardView, 0, len(l.Cards))
	for _, c := range l.Cards {
		cards = append(cards, cardView(c))
	}
	return ListView{ID: l.ID, BoardID: l.BoardID, Title: l.Title, Position: l.Position, CreatedAt: l.CreatedAt, Cards: cards}
}

type CardView struct {
	ID             string    `json:"id"`
	ListID         string    `json:"listId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Position       float64   `json:"position"`
	Budget         *float64  `json:"budget"`
	PaymentStatus  string    `json:"paymentStatus"`
	ExpenseSummary float64   `json:"expenseSummary"`
	ExpenseCredits float64   `json:"expenseCredits"`
	DueDate        *string   `json:"dueDate"`
	CreatedAt      time.Time `json:"createdAt"`
}

func cardView(c store.Card) CardView {
	return CardView{
		ID:             c.ID,
		ListID:         c.ListID,
		Title:          c.Title,
		Description:    c.Description,
		Position:       c.Position,
		Budget:         c.Budget,
		PaymentStatus:  c.PaymentStatus,
		ExpenseSummary: c.ExpenseSummary,
		ExpenseCredits: c.ExpenseCredits,
		DueDate:        c.DueDate,
		CreatedAt:      c.CreatedAt,
	}
}

func cardViews(cards []store.Card) []CardView {
	out := make([]CardView, 0, len(cards))
	for _, c := range cards {
		out = append(out, cardView(c))
	}
	return out
}

type ExpenseView struct {
	ID        string    `json:"id"`
	CardID    string    `json:"cardId"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount"`
	Type      string    `json:"type"`
	Assignee  string    `json:"assignee"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
}

func expenseView(e store.Expense) ExpenseView {
	return ExpenseView{
		ID:        e.ID,
		CardID:    e.CardID,
		Title:     e.Title,
		Amount:    e.Amount,
		Type:      e.Type,
		Assignee:  e.Assignee,
		Date:      e.Date,
		CreatedAt: e.CreatedAt,
	}
}

type LabelView struct {
	ID        string    `json:"id"`
	CardID    string    `json:"cardId"`
	Color     string    `json:"color"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func labelViews(labels []store.Label) []LabelView {
	out := make([]LabelView, 0, len(labels))
	for _, l := range labels {
		out = append(out, LabelView{ID: l.ID, CardID: l.CardID, Color: l.Color, Text: l.Text, CreatedAt: l.CreatedAt})
	}
	return out
}

type ChecklistItemView struct {
	ID        string    `json:"id"`
	CardID    string    `json:"cardId"`
	Text      string    `json:"text"`
	IsChecked bool      `json:"isChecked"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"createdAt"`
}

func checklistItemView(item store.ChecklistItem) ChecklistItemView {
	return ChecklistItemView{
		ID:        item.ID,
		CardID:    item.CardID,
		Text:      item.Text,
		IsChecked: item.IsChecked,
		Position:  item.Position,
		CreatedAt: item.CreatedAt,
	}
}

type MemberView struct {
	ID        string     `json:"id"`
	CardID    string     `json:"cardId"`
	UserID    string     `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
	Profile   PersonView `json:"profile"`
}

func memberViews(members []store.CardMember) []MemberView {
	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		out = append(out, MemberView{
			ID:        m.ID,
			CardID:    m.CardID,
			UserID:    m.UserID,
			CreatedAt: m.CreatedAt,
			Profile:   PersonView{Email: m.Email, FullName: m.FullName, AvatarURL: m.AvatarURL},
		})
	}
	return out
}

type CommentView struct {
	ID        string     `json:"id"`
	CardID    string     `json:"cardId"`
	UserID    string     `json:"userId"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"createdAt"`
	Author    PersonView `json:"author"`
}

func commentView(c store.Comment) CommentView {
	return CommentView{
		ID:        c.ID,
		CardID:    c.CardID,
		UserID:    c.UserID,
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		Author:    PersonView{Email: c.Email, FullName: c.FullName, AvatarURL: c.AvatarURL},
	}
}
