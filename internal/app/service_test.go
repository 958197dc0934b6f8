package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"ledgerboard/api/internal/config"
	"ledgerboard/api/internal/events"
	"ledgerboard/api/internal/logging"
	"ledgerboard/api/internal/position"
	"ledgerboard/api/internal/store"
)

type fakeStore struct {
	getProfileByIDFn         func(context.Context, string) (store.Profile, error)
	listActiveProfilesFn     func(context.Context) ([]store.Profile, error)
	updateProfileRoleFn      func(context.Context, string, string) error
	softDeleteProfileFn      func(context.Context, string, time.Time) error
	getBoardFn               func(context.Context, string) (store.Board, error)
	createBoardFn            func(context.Context, store.Board) (store.Board, error)
	getListFn                func(context.Context, string) (store.List, error)
	orderedListIDsFn         func(context.Context, string) ([]string, error)
	writeListPositionsFn     func(context.Context, []store.PositionWrite) (int, error)
	getCardFn                func(context.Context, string) (store.Card, error)
	orderedCardIDsFn         func(context.Context, string) ([]string, error)
	writeCardPositionsFn     func(context.Context, []store.PositionWrite) (int, error)
	updateCardFn             func(context.Context, string, store.CardPatch) (store.Card, error)
	listCardExpensesFn       func(context.Context, string) ([]store.Expense, error)
	listAllExpensesFn        func(context.Context) ([]store.Expense, error)
	createExpenseFn          func(context.Context, store.Expense) (store.Expense, error)
	updateCardSummaryFn      func(context.Context, string, float64, float64) error
	cardIDForExpenseFn       func(context.Context, string) (string, error)
	addCardMemberFn          func(context.Context, store.CardMember) (bool, error)
	getCommentFn             func(context.Context, string) (store.Comment, error)
	deleteCommentFn          func(context.Context, string) error
	checklistPositionsFn     func(context.Context, string) ([]int, error)
	createChecklistItemFn    func(context.Context, store.ChecklistItem) (store.ChecklistItem, error)
	boardIDForCardFn         func(context.Context, string) (string, error)
	refreshSessions          map[string]string
	revokedJTIs              map[string]bool
}

func (f *fakeStore) GetProfileByID(ctx context.Context, id string) (store.Profile, error) {
	if f.getProfileByIDFn != nil {
		return f.getProfileByIDFn(ctx, id)
	}
	return store.Profile{}, store.ErrNotFound
}
func (f *fakeStore) ListActiveProfiles(ctx context.Context) ([]store.Profile, error) {
	if f.listActiveProfilesFn != nil {
		return f.listActiveProfilesFn(ctx)
	}
	return []store.Profile{}, nil
}
func (f *fakeStore) ListAssignableProfiles(context.Context) ([]store.Profile, error) {
	return []store.Profile{}, nil
}
func (f *fakeStore) UpdateProfileRole(ctx context.Context, id, role string) error {
	if f.updateProfileRoleFn != nil {
		return f.updateProfileRoleFn(ctx, id, role)
	}
	return nil
}
func (f *fakeStore) SoftDeleteProfile(ctx context.Context, id string, at time.Time) error {
	if f.softDeleteProfileFn != nil {
		return f.softDeleteProfileFn(ctx, id, at)
	}
	return nil
}
func (f *fakeStore) UpdateProfileDetails(_ context.Context, id, fullName, avatarURL string) (store.Profile, error) {
	return store.Profile{ID: id, FullName: fullName, AvatarURL: avatarURL}, nil
}
func (f *fakeStore) UpdateProfileAvatar(context.Context, string, string) error { return nil }

func (f *fakeStore) ListBoards(context.Context) ([]store.Board, error) { return []store.Board{}, nil }
func (f *fakeStore) GetBoard(ctx context.Context, id string) (store.Board, error) {
	if f.getBoardFn != nil {
		return f.getBoardFn(ctx, id)
	}
	return store.Board{}, store.ErrNotFound
}
func (f *fakeStore) CreateBoard(ctx context.Context, b store.Board) (store.Board, error) {
	if f.createBoardFn != nil {
		return f.createBoardFn(ctx, b)
	}
	return b, nil
}
func (f *fakeStore) DeleteBoardCascade(context.Context, string) error { return nil }

func (f *fakeStore) ListListsWithCards(context.Context, string) ([]store.List, error) {
	return []store.List{}, nil
}
func (f *fakeStore) GetList(ctx context.Context, id string) (store.List, error) {
	if f.getListFn != nil {
		return f.getListFn(ctx, id)
	}
	return store.List{}, store.ErrNotFound
}
func (f *fakeStore) TopListPosition(context.Context, string) ([]float64, error) { return nil, nil }
func (f *fakeStore) CreateList(_ context.Context, l store.List) (store.List, error) {
	return l, nil
}
func (f *fakeStore) DeleteListCascade(context.Context, string) error { return nil }
func (f *fakeStore) OrderedListIDs(ctx context.Context, boardID string) ([]string, error) {
	if f.orderedListIDsFn != nil {
		return f.orderedListIDsFn(ctx, boardID)
	}
	return nil, nil
}
func (f *fakeStore) WriteListPositions(ctx context.Context, writes []store.PositionWrite) (int, error) {
	if f.writeListPositionsFn != nil {
		return f.writeListPositionsFn(ctx, writes)
	}
	return len(writes), nil
}

func (f *fakeStore) ListCards(context.Context, string) ([]store.Card, error) { return []store.Card{}, nil }
func (f *fakeStore) GetCard(ctx context.Context, id string) (store.Card, error) {
	if f.getCardFn != nil {
		return f.getCardFn(ctx, id)
	}
	return store.Card{}, store.ErrNotFound
}
func (f *fakeStore) BoardIDForCard(ctx context.Context, cardID string) (string, error) {
	if f.boardIDForCardFn != nil {
		return f.boardIDForCardFn(ctx, cardID)
	}
	return "", store.ErrNotFound
}
func (f *fakeStore) TopCardPosition(context.Context, string) ([]float64, error) { return nil, nil }
func (f *fakeStore) CreateCard(_ context.Context, c store.Card) (store.Card, error) {
	return c, nil
}
func (f *fakeStore) UpdateCard(ctx context.Context, id string, patch store.CardPatch) (store.Card, error) {
	if f.updateCardFn != nil {
		return f.updateCardFn(ctx, id, patch)
	}
	return store.Card{ID: id}, nil
}
func (f *fakeStore) UpdateCardSummary(ctx context.Context, cardID string, balance, credits float64) error {
	if f.updateCardSummaryFn != nil {
		return f.updateCardSummaryFn(ctx, cardID, balance, credits)
	}
	return nil
}
func (f *fakeStore) DeleteCard(context.Context, string) error { return nil }
func (f *fakeStore) OrderedCardIDs(ctx context.Context, listID string) ([]string, error) {
	if f.orderedCardIDsFn != nil {
		return f.orderedCardIDsFn(ctx, listID)
	}
	return nil, nil
}
func (f *fakeStore) WriteCardPositions(ctx context.Context, writes []store.PositionWrite) (int, error) {
	if f.writeCardPositionsFn != nil {
		return f.writeCardPositionsFn(ctx, writes)
	}
	return len(writes), nil
}

func (f *fakeStore) ListCardExpenses(ctx context.Context, cardID string) ([]store.Expense, error) {
	if f.listCardExpensesFn != nil {
		return f.listCardExpensesFn(ctx, cardID)
	}
	return []store.Expense{}, nil
}
func (f *fakeStore) ListAllExpenses(ctx context.Context) ([]store.Expense, error) {
	if f.listAllExpensesFn != nil {
		return f.listAllExpensesFn(ctx)
	}
	return []store.Expense{}, nil
}
func (f *fakeStore) GetExpense(context.Context, string) (store.Expense, error) {
	return store.Expense{}, store.ErrNotFound
}
func (f *fakeStore) CreateExpense(ctx context.Context, e store.Expense) (store.Expense, error) {
	if f.createExpenseFn != nil {
		return f.createExpenseFn(ctx, e)
	}
	return e, nil
}
func (f *fakeStore) UpdateExpense(_ context.Context, id string, _ store.ExpensePatch) (store.Expense, error) {
	return store.Expense{ID: id}, nil
}
func (f *fakeStore) DeleteExpense(context.Context, string) error { return nil }
func (f *fakeStore) CardIDForExpense(ctx context.Context, id string) (string, error) {
	if f.cardIDForExpenseFn != nil {
		return f.cardIDForExpenseFn(ctx, id)
	}
	return "", store.ErrNotFound
}

func (f *fakeStore) ListLabels(context.Context, string) ([]store.Label, error) {
	return []store.Label{}, nil
}
func (f *fakeStore) ListLabelsForCards(_ context.Context, ids []string) ([]store.Label, error) {
	labels := make([]store.Label, 0, len(ids))
	for _, id := range ids {
		labels = append(labels, store.Label{ID: "label-" + id, CardID: id, Color: "green"})
	}
	return labels, nil
}
func (f *fakeStore) CreateLabel(_ context.Context, l store.Label) (store.Label, error) { return l, nil }
func (f *fakeStore) DeleteLabel(context.Context, string) error                         { return nil }
func (f *fakeStore) CardIDForLabel(context.Context, string) (string, error) {
	return "", store.ErrNotFound
}

func (f *fakeStore) ListChecklist(context.Context, string) ([]store.ChecklistItem, error) {
	return []store.ChecklistItem{}, nil
}
func (f *fakeStore) ChecklistPositions(ctx context.Context, cardID string) ([]int, error) {
	if f.checklistPositionsFn != nil {
		return f.checklistPositionsFn(ctx, cardID)
	}
	return nil, nil
}
func (f *fakeStore) CreateChecklistItem(ctx context.Context, item store.ChecklistItem) (store.ChecklistItem, error) {
	if f.createChecklistItemFn != nil {
		return f.createChecklistItemFn(ctx, item)
	}
	return item, nil
}
func (f *fakeStore) SetChecklistItemChecked(_ context.Context, id string, checked bool) (store.ChecklistItem, error) {
	return store.ChecklistItem{ID: id, IsChecked: checked}, nil
}
func (f *fakeStore) DeleteChecklistItem(context.Context, string) error { return nil }
func (f *fakeStore) CardIDForChecklistItem(context.Context, string) (string, error) {
	return "", store.ErrNotFound
}

func (f *fakeStore) ListCardMembers(context.Context, string) ([]store.CardMember, error) {
	return []store.CardMember{}, nil
}
func (f *fakeStore) AddCardMember(ctx context.Context, m store.CardMember) (bool, error) {
	if f.addCardMemberFn != nil {
		return f.addCardMemberFn(ctx, m)
	}
	return true, nil
}
func (f *fakeStore) GetCardMember(context.Context, string) (store.CardMember, error) {
	return store.CardMember{}, store.ErrNotFound
}
func (f *fakeStore) DeleteCardMember(context.Context, string) error { return nil }

func (f *fakeStore) ListComments(context.Context, string) ([]store.Comment, error) {
	return []store.Comment{}, nil
}
func (f *fakeStore) CreateComment(_ context.Context, c store.Comment) (store.Comment, error) {
	return c, nil
}
func (f *fakeStore) GetComment(ctx context.Context, id string) (store.Comment, error) {
	if f.getCommentFn != nil {
		return f.getCommentFn(ctx, id)
	}
	return store.Comment{}, store.ErrNotFound
}
func (f *fakeStore) DeleteComment(ctx context.Context, id string) error {
	if f.deleteCommentFn != nil {
		return f.deleteCommentFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	if f.refreshSessions == nil {
		f.refreshSessions = map[string]string{}
	}
	f.refreshSessions[tokenHash] = userID
	return nil
}
func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	userID, ok := f.refreshSessions[tokenHash]
	if !ok {
		return "", store.ErrNotFound
	}
	return userID, nil
}
func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	delete(f.refreshSessions, tokenHash)
	return nil
}
func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	if f.revokedJTIs == nil {
		f.revokedJTIs = map[string]bool{}
	}
	f.revokedJTIs[jti] = true
	return nil
}
func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	return f.revokedJTIs[jti], nil
}

type fakeCache struct {
	entries     map[string][]byte
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string][]byte{}} }

func (c *fakeCache) Get(_ context.Context, key string, dest any) (bool, error) {
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}
func (c *fakeCache) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = raw
	return nil
}
func (c *fakeCache) Invalidate(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.entries, key)
		c.invalidated = append(c.invalidated, key)
	}
	return nil
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg:    config.Config{AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
		store:  fs,
		tokens: fs,
		checks: []readinessCheck{{name: "database", ping: fs.Ping}},
		logger: logging.Nop(),
		now:    time.Now,
	}
}

func profiles(byID map[string]store.Profile) func(context.Context, string) (store.Profile, error) {
	return func(_ context.Context, id string) (store.Profile, error) {
		p, ok := byID[id]
		if !ok {
			return store.Profile{}, store.ErrNotFound
		}
		return p, nil
	}
}

func assertDomainError(t *testing.T, err error, status int, message string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, domainErr.Status, domainErr.Message)
	}
	if message != "" && domainErr.Message != message {
		t.Fatalf("expected message %q, got %q", message, domainErr.Message)
	}
}

func TestCreateExpenseRecalculatesCardBalance(t *testing.T) {
	var gotBalance, gotCredits float64
	var summaryCard string
	fs := &fakeStore{
		getCardFn: func(_ context.Context, id string) (store.Card, error) {
			return store.Card{ID: id, ListID: "list-1"}, nil
		},
		listCardExpensesFn: func(context.Context, string) ([]store.Expense, error) {
			return []store.Expense{
				{ID: "e1", Amount: 100, Type: "credit"},
				{ID: "e2", Amount: 30, Type: "debit"},
				{ID: "e3", Amount: 20, Type: "credit"},
			}, nil
		},
		updateCardSummaryFn: func(_ context.Context, cardID string, balance, credits float64) error {
			summaryCard, gotBalance, gotCredits = cardID, balance, credits
			return nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.CreateExpense(context.Background(), "card-1", ExpenseInput{Title: "Deposit", Amount: 20, Type: "credit"})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if summaryCard != "card-1" || gotBalance != 90 || gotCredits != 120 {
		t.Fatalf("unexpected summary write card=%s balance=%v credits=%v", summaryCard, gotBalance, gotCredits)
	}
	if result.Summary.ExpenseSummary != 90 || result.Summary.ExpenseCredits != 120 {
		t.Fatalf("unexpected result summary %+v", result.Summary)
	}
	if result.Expense == nil || result.Expense.Title != "Deposit" {
		t.Fatalf("expected created expense in result, got %+v", result.Expense)
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	svc := newTestService(&fakeStore{})
	tests := []struct {
		name  string
		input ExpenseInput
	}{
		{name: "missing title", input: ExpenseInput{Amount: 1, Type: "debit"}},
		{name: "zero amount", input: ExpenseInput{Title: "x", Amount: 0, Type: "debit"}},
		{name: "negative amount", input: ExpenseInput{Title: "x", Amount: -5, Type: "debit"}},
		{name: "unknown type", input: ExpenseInput{Title: "x", Amount: 1, Type: "refund"}},
		{name: "bad date", input: ExpenseInput{Title: "x", Amount: 1, Type: "credit", Date: "03/01/2024"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateExpense(context.Background(), "card-1", tc.input)
			assertDomainError(t, err, http.StatusUnprocessableEntity, "")
		})
	}
}

func TestDeleteExpenseRecalculatesToZero(t *testing.T) {
	var summaryWritten bool
	fs := &fakeStore{
		cardIDForExpenseFn: func(context.Context, string) (string, error) { return "card-9", nil },
		updateCardSummaryFn: func(_ context.Context, cardID string, balance, credits float64) error {
			summaryWritten = cardID == "card-9" && balance == 0 && credits == 0
			return nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.DeleteExpense(context.Background(), "exp-1")
	if err != nil {
		t.Fatalf("delete expense: %v", err)
	}
	if !summaryWritten {
		t.Fatalf("expected zero summary written for card-9")
	}
	if result.Expense != nil {
		t.Fatalf("expected no expense in delete result")
	}
}

func TestRecalculateFailureIsGeneric(t *testing.T) {
	fs := &fakeStore{
		cardIDForExpenseFn: func(context.Context, string) (string, error) { return "card-1", nil },
		updateCardSummaryFn: func(context.Context, string, float64, float64) error {
			return errors.New("connection reset")
		},
	}
	svc := newTestService(fs)

	_, err := svc.DeleteExpense(context.Background(), "exp-1")
	status, code, message, _ := mapError(err)
	if status != http.StatusInternalServerError || code != "SERVER_ERROR" {
		t.Fatalf("expected 500 SERVER_ERROR, got %d %s", status, code)
	}
	if message != "Failed to update card balance" {
		t.Fatalf("expected generic message, got %q", message)
	}
}

func TestListProfilesUsesCacheUntilRoleChange(t *testing.T) {
	listCalls := 0
	fs := &fakeStore{
		getProfileByIDFn: profiles(map[string]store.Profile{
			"admin-1": {ID: "admin-1", Role: "super_admin"},
			"user-1":  {ID: "user-1", Role: "user"},
		}),
		listActiveProfilesFn: func(context.Context) ([]store.Profile, error) {
			listCalls++
			return []store.Profile{{ID: "admin-1", Role: "super_admin"}, {ID: "user-1", Role: "user"}}, nil
		},
	}
	svc := newTestService(fs)
	cache := newFakeCache()
	svc.cache = cache
	admin := Session{UserID: "admin-1", Role: "super_admin"}

	for i := 0; i < 2; i++ {
		items, err := svc.ListProfiles(context.Background(), admin)
		if err != nil {
			t.Fatalf("list profiles: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("expected 2 profiles, got %d", len(items))
		}
	}
	if listCalls != 1 {
		t.Fatalf("expected store hit once, got %d", listCalls)
	}

	if err := svc.UpdateUserRole(context.Background(), admin, "user-1", "manager"); err != nil {
		t.Fatalf("update role: %v", err)
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != activeProfilesKey {
		t.Fatalf("expected profile cache invalidation, got %v", cache.invalidated)
	}
	if _, err := svc.ListProfiles(context.Background(), admin); err != nil {
		t.Fatalf("list profiles: %v", err)
	}
	if listCalls != 2 {
		t.Fatalf("expected store hit after invalidation, got %d", listCalls)
	}
}

func TestUpdateUserRoleChecksActorBeforeTarget(t *testing.T) {
	fs := &fakeStore{
		getProfileByIDFn: profiles(map[string]store.Profile{
			"manager-1": {ID: "manager-1", Role: "manager"},
		}),
	}
	svc := newTestService(fs)

	err := svc.UpdateUserRole(context.Background(), Session{UserID: "manager-1"}, "missing", "user")
	assertDomainError(t, err, http.StatusForbidden, "Unauthorized")

	svc.store.(*fakeStore).getProfileByIDFn = profiles(map[string]store.Profile{
		"admin-1": {ID: "admin-1", Role: "admin"},
	})
	err = svc.UpdateUserRole(context.Background(), Session{UserID: "admin-1"}, "missing", "user")
	assertDomainError(t, err, http.StatusNotFound, "User not found")
}

func TestDeleteUserSoftDeletesWithClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var deletedAt time.Time
	fs := &fakeStore{
		getProfileByIDFn: profiles(map[string]store.Profile{
			"admin-1": {ID: "admin-1", Role: "admin"},
			"user-1":  {ID: "user-1", Role: "user"},
		}),
		softDeleteProfileFn: func(_ context.Context, id string, at time.Time) error {
			deletedAt = at
			return nil
		},
	}
	svc := newTestService(fs)
	svc.now = func() time.Time { return fixed }

	if err := svc.DeleteUser(context.Background(), Session{UserID: "admin-1"}, "user-1"); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	if !deletedAt.Equal(fixed) {
		t.Fatalf("expected deleted_at %v, got %v", fixed, deletedAt)
	}
}

func TestDeleteUserBackendFailure(t *testing.T) {
	fs := &fakeStore{
		getProfileByIDFn: profiles(map[string]store.Profile{
			"admin-1": {ID: "admin-1", Role: "super_admin"},
			"user-1":  {ID: "user-1", Role: "user"},
		}),
		softDeleteProfileFn: func(context.Context, string, time.Time) error { return errors.New("disk full") },
	}
	svc := newTestService(fs)

	err := svc.DeleteUser(context.Background(), Session{UserID: "admin-1"}, "user-1")
	_, _, message, _ := mapError(err)
	if message != "Failed to delete user" {
		t.Fatalf("expected generic failure message, got %q", message)
	}
}

func newMoveStore(lists map[string][]string, writes *[][]store.PositionWrite) *fakeStore {
	return &fakeStore{
		getCardFn: func(_ context.Context, id string) (store.Card, error) {
			for listID, ids := range lists {
				for _, cardID := range ids {
					if cardID == id {
						return store.Card{ID: id, ListID: listID}, nil
					}
				}
			}
			return store.Card{}, store.ErrNotFound
		},
		getListFn: func(_ context.Context, id string) (store.List, error) {
			if _, ok := lists[id]; !ok {
				return store.List{}, store.ErrNotFound
			}
			return store.List{ID: id, BoardID: "board-1"}, nil
		},
		orderedCardIDsFn: func(_ context.Context, listID string) ([]string, error) {
			return append([]string(nil), lists[listID]...), nil
		},
		writeCardPositionsFn: func(_ context.Context, batch []store.PositionWrite) (int, error) {
			*writes = append(*writes, batch)
			return len(batch), nil
		},
	}
}

func intPtr(v int) *int { return &v }

func TestMoveCardSamePositionIsNoop(t *testing.T) {
	var writes [][]store.PositionWrite
	svc := newTestService(newMoveStore(map[string][]string{"list-a": {"c1", "c2", "c3"}}, &writes))

	result, err := svc.MoveCard(context.Background(), "c2", MoveCardInput{ToListID: "list-a", ToIndex: intPtr(1)})
	if err != nil {
		t.Fatalf("move card: %v", err)
	}
	if result.Moved {
		t.Fatalf("expected no-op move")
	}
	if len(writes) != 0 {
		t.Fatalf("expected no position writes, got %d batches", len(writes))
	}
}

func TestMoveCardWithinListReindexes(t *testing.T) {
	var writes [][]store.PositionWrite
	svc := newTestService(newMoveStore(map[string][]string{"list-a": {"c1", "c2", "c3"}}, &writes))

	result, err := svc.MoveCard(context.Background(), "c1", MoveCardInput{ToIndex: intPtr(2)})
	if err != nil {
		t.Fatalf("move card: %v", err)
	}
	if !result.Moved {
		t.Fatalf("expected move")
	}
	if len(writes) != 1 {
		t.Fatalf("expected one batch, got %d", len(writes))
	}
	got := writes[0]
	want := []store.PositionWrite{{ID: "c2", Position: 65535}, {ID: "c3", Position: 131070}, {ID: "c1", Position: 196605}}
	if len(got) != len(want) {
		t.Fatalf("expected %d writes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("write %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestMoveCardAcrossListsWritesSourceThenDest(t *testing.T) {
	var writes [][]store.PositionWrite
	lists := map[string][]string{"list-a": {"c1", "c2"}, "list-b": {"d1", "d2"}}
	svc := newTestService(newMoveStore(lists, &writes))
	bus := events.NewBus()
	svc.events = bus
	fs := svc.store.(*fakeStore)
	fs.boardIDForCardFn = func(context.Context, string) (string, error) { return "board-1", nil }
	ch, cancel := bus.Subscribe("board-1")
	defer cancel()

	if _, err := svc.MoveCard(context.Background(), "c1", MoveCardInput{ToListID: "list-b", ToIndex: intPtr(1)}); err != nil {
		t.Fatalf("move card: %v", err)
	}
	if len(writes) != 2 {
		t.Fatalf("expected source and destination batches, got %d", len(writes))
	}
	if len(writes[0]) != 1 || writes[0][0].ID != "c2" || writes[0][0].Position != 65535 {
		t.Fatalf("unexpected source batch %+v", writes[0])
	}
	dest := writes[1]
	if len(dest) != 3 || dest[1].ID != "c1" || dest[1].ContainerID != "list-b" || dest[1].Position != 131070 {
		t.Fatalf("unexpected destination batch %+v", dest)
	}
	if dest[0].ContainerID != "" || dest[2].ContainerID != "" {
		t.Fatalf("only the moved card should change container: %+v", dest)
	}

	select {
	case raw := <-ch:
		var ev events.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != "card.moved" || ev.ListID != "list-b" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected card.moved event")
	}
}

func TestMoveCardRequiresIndex(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.MoveCard(context.Background(), "c1", MoveCardInput{ToListID: "list-b"})
	assertDomainError(t, err, http.StatusUnprocessableEntity, "")
}

func TestReorderListsValidatesIDs(t *testing.T) {
	fs := &fakeStore{
		getBoardFn:       func(_ context.Context, id string) (store.Board, error) { return store.Board{ID: id}, nil },
		orderedListIDsFn: func(context.Context, string) ([]string, error) { return []string{"l1", "l2"}, nil },
	}
	svc := newTestService(fs)

	tests := []struct {
		name string
		ids  []string
	}{
		{name: "empty", ids: nil},
		{name: "unknown", ids: []string{"l1", "l9"}},
		{name: "duplicate", ids: []string{"l1", "l1"}},
		{name: "subset", ids: []string{"l2"}},
		{name: "superset", ids: []string{"l1", "l2", "l3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ReorderLists(context.Background(), "board-1", tc.ids)
			assertDomainError(t, err, http.StatusUnprocessableEntity, "")
		})
	}
}

func TestReorderCardsRequiresEverySibling(t *testing.T) {
	var writes [][]store.PositionWrite
	svc := newTestService(newMoveStore(map[string][]string{"list-a": {"c1", "c2", "c3"}}, &writes))

	_, err := svc.ReorderCards(context.Background(), "list-a", []string{"c3"})
	assertDomainError(t, err, http.StatusUnprocessableEntity, "orderedIds must list every card in the container")
	if len(writes) != 0 {
		t.Fatalf("expected no position writes, got %d batches", len(writes))
	}

	updates, err := svc.ReorderCards(context.Background(), "list-a", []string{"c3", "c1", "c2"})
	if err != nil {
		t.Fatalf("reorder cards: %v", err)
	}
	want := []position.Update{{ID: "c3", Position: 65535}, {ID: "c1", Position: 131070}, {ID: "c2", Position: 196605}}
	if len(updates) != len(want) {
		t.Fatalf("expected %d updates, got %d", len(want), len(updates))
	}
	for i := range want {
		if updates[i] != want[i] {
			t.Fatalf("update %d: expected %+v, got %+v", i, want[i], updates[i])
		}
	}
}

func TestMoveCardPastEndOfOwnListIsNoop(t *testing.T) {
	var writes [][]store.PositionWrite
	svc := newTestService(newMoveStore(map[string][]string{"list-a": {"c1", "c2", "c3"}}, &writes))

	result, err := svc.MoveCard(context.Background(), "c3", MoveCardInput{ToIndex: intPtr(99)})
	if err != nil {
		t.Fatalf("move card: %v", err)
	}
	if result.Moved {
		t.Fatalf("expected a clamped move of the last card to be a no-op")
	}
	if len(writes) != 0 {
		t.Fatalf("expected no position writes, got %d batches", len(writes))
	}
}

func TestReorderListsPartialFailure(t *testing.T) {
	fs := &fakeStore{
		getBoardFn:       func(_ context.Context, id string) (store.Board, error) { return store.Board{ID: id}, nil },
		orderedListIDsFn: func(context.Context, string) ([]string, error) { return []string{"l1", "l2", "l3"}, nil },
		writeListPositionsFn: func(context.Context, []store.PositionWrite) (int, error) {
			return 1, errors.New("timeout")
		},
	}
	svc := newTestService(fs)

	_, err := svc.ReorderLists(context.Background(), "board-1", []string{"l3", "l1", "l2"})
	_, _, message, _ := mapError(err)
	if message != "Failed to reorder lists" {
		t.Fatalf("expected reorder failure message, got %q", message)
	}
}

func TestUpdateCardDueDateNullClears(t *testing.T) {
	var got store.CardPatch
	fs := &fakeStore{
		getCardFn: func(_ context.Context, id string) (store.Card, error) { return store.Card{ID: id}, nil },
		updateCardFn: func(_ context.Context, id string, patch store.CardPatch) (store.Card, error) {
			got = patch
			return store.Card{ID: id}, nil
		},
	}
	svc := newTestService(fs)

	var input UpdateCardInput
	if err := json.Unmarshal([]byte(`{"dueDate":null}`), &input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := svc.UpdateCard(context.Background(), "card-1", input); err != nil {
		t.Fatalf("update card: %v", err)
	}
	if !got.ClearDueDate || got.DueDate != nil {
		t.Fatalf("expected due date cleared, got %+v", got)
	}

	input = UpdateCardInput{}
	if err := json.Unmarshal([]byte(`{"dueDate":"2024-06-30","paymentStatus":"paid"}`), &input); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := svc.UpdateCard(context.Background(), "card-1", input); err != nil {
		t.Fatalf("update card: %v", err)
	}
	if got.ClearDueDate || got.DueDate == nil || *got.DueDate != "2024-06-30" || *got.PaymentStatus != "paid" {
		t.Fatalf("unexpected patch %+v", got)
	}

	_, err := svc.UpdateCard(context.Background(), "card-1", UpdateCardInput{})
	assertDomainError(t, err, http.StatusUnprocessableEntity, "no fields to update")

	status := "refunded"
	_, err = svc.UpdateCard(context.Background(), "card-1", UpdateCardInput{PaymentStatus: &status})
	assertDomainError(t, err, http.StatusUnprocessableEntity, "")
}

func TestChecklistItemsAppendSequentially(t *testing.T) {
	var created store.ChecklistItem
	fs := &fakeStore{
		getCardFn:            func(_ context.Context, id string) (store.Card, error) { return store.Card{ID: id}, nil },
		checklistPositionsFn: func(context.Context, string) ([]int, error) { return []int{0, 1, 4}, nil },
		createChecklistItemFn: func(_ context.Context, item store.ChecklistItem) (store.ChecklistItem, error) {
			created = item
			return item, nil
		},
	}
	svc := newTestService(fs)

	item, err := svc.CreateChecklistItem(context.Background(), "card-1", "  Send invoice ")
	if err != nil {
		t.Fatalf("create checklist item: %v", err)
	}
	if created.Position != 5 || item.Text != "Send invoice" {
		t.Fatalf("unexpected checklist item %+v", created)
	}
}

func TestDeleteCommentRestrictedToAuthorOrAdmin(t *testing.T) {
	deleted := 0
	fs := &fakeStore{
		getCommentFn: func(_ context.Context, id string) (store.Comment, error) {
			return store.Comment{ID: id, CardID: "card-1", UserID: "author"}, nil
		},
		deleteCommentFn: func(context.Context, string) error {
			deleted++
			return nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteComment(context.Background(), Session{UserID: "someone", Role: "manager"}, "cm-1")
	assertDomainError(t, err, http.StatusForbidden, "")

	if err := svc.DeleteComment(context.Background(), Session{UserID: "author", Role: "user"}, "cm-1"); err != nil {
		t.Fatalf("author delete: %v", err)
	}
	if err := svc.DeleteComment(context.Background(), Session{UserID: "admin", Role: "admin"}, "cm-1"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d", deleted)
	}
}

func TestFinancialStatsRequiresFinance(t *testing.T) {
	fs := &fakeStore{
		getProfileByIDFn: profiles(map[string]store.Profile{
			"user-1":    {ID: "user-1", Role: "user"},
			"manager-1": {ID: "manager-1", Role: "manager"},
		}),
		listAllExpensesFn: func(context.Context) ([]store.Expense, error) {
			return []store.Expense{
				{ID: "e1", Amount: 200, Type: "credit", Date: "2024-01-01"},
				{ID: "e2", Amount: 50, Type: "debit", Date: "2024-01-02"},
			}, nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.FinancialStats(context.Background(), Session{UserID: "user-1"})
	assertDomainError(t, err, http.StatusForbidden, "Unauthorized")

	stats, err := svc.FinancialStats(context.Background(), Session{UserID: "manager-1"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.NetProfit != 150 || stats.TransactionCount != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSessionFromTokenRejectsDeletedProfile(t *testing.T) {
	deletedAt := time.Now()
	fs := &fakeStore{
		getProfileByIDFn: profiles(map[string]store.Profile{
			"gone": {ID: "gone", Role: "user", DeletedAt: &deletedAt},
		}),
	}
	svc := newTestService(fs)
	svc.cfg.JWTSecret = "test-secret"

	session, err := svc.issueSession(context.Background(), store.Profile{ID: "gone", Role: "user"})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatalf("expected deleted profile to be rejected")
	}
}
