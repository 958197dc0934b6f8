package store

import "time"

type Profile struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	AvatarURL    string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (p Profile) Deleted() bool {
	return p.DeletedAt != nil
}

type Board struct {
	ID         string
	Title      string
	Background string
	OwnerID    string
	CreatedAt  time.Time
}

type List struct {
	ID        string
	BoardID   string
	Title     string
	Position  float64
	CreatedAt time.Time
	Cards     []Card
}

type Card struct {
	ID             string
	ListID         string
	Title          string
	Description    string
	Position       float64
	Budget         *float64
	PaymentStatus  string
	ExpenseSummary float64
	ExpenseCredits float64
	DueDate        *string
	CreatedAt      time.Time
}

// CardPatch carries optional card updates. ClearDueDate distinguishes an
// explicit null from an absent field.
type CardPatch struct {
	Title         *string
	Description   *string
	Budget        *float64
	PaymentStatus *string
	DueDate       *string
	ClearDueDate  bool
}

func (p CardPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Budget == nil &&
		p.PaymentStatus == nil && p.DueDate == nil && !p.ClearDueDate
}

type Expense struct {
	ID        string
	CardID    string
	Title     string
	Amount    float64
	Type      string
	Assignee  string
	Date      string
	CreatedAt time.Time
}

type ExpensePatch struct {
	Title    *string
	Amount   *float64
	Type     *string
	Assignee *string
	Date     *string
}

type Label struct {
	ID        string
	CardID    string
	Color     string
	Text      string
	CreatedAt time.Time
}

type ChecklistItem struct {
	ID        string
	CardID    string
	Text      string
	IsChecked bool
	Position  int
	CreatedAt time.Time
}

// CardMember and Comment carry the joined profile fields of their user.
type CardMember struct {
	ID        string
	CardID    string
	UserID    string
	CreatedAt time.Time
	Email     string
	FullName  string
	AvatarURL string
}

type Comment struct {
	ID        string
	CardID    string
	UserID    string
	Content   string
	CreatedAt time.Time
	Email     string
	FullName  string
	AvatarURL string
}

// PositionWrite is a single row of a reindex. ContainerID, when set, moves
// the row to another parent in the same statement.
type PositionWrite struct {
	ID          string
	Position    float64
	ContainerID string
}
