package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ledgerboard/api/internal/auth"
	"ledgerboard/api/internal/authpw"
	"ledgerboard/api/internal/avatar"
	"ledgerboard/api/internal/cache"
	"ledgerboard/api/internal/config"
	"ledgerboard/api/internal/events"
	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/search"
	"ledgerboard/api/internal/session"
	"ledgerboard/api/internal/store"
	"ledgerboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	GetProfileByID(context.Context, string) (store.Profile, error)
	ListActiveProfiles(context.Context) ([]store.Profile, error)
	ListAssignableProfiles(context.Context) ([]store.Profile, error)
	UpdateProfileRole(context.Context, string, string) error
	SoftDeleteProfile(context.Context, string, time.Time) error
	UpdateProfileDetails(context.Context, string, string, string) (store.Profile, error)
	UpdateProfileAvatar(context.Context, string, string) error

	ListBoards(context.Context) ([]store.Board, error)
	GetBoard(context.Context, string) (store.Board, error)
	CreateBoard(context.Context, store.Board) (store.Board, error)
	DeleteBoardCascade(context.Context, string) error

	ListListsWithCards(context.Context, string) ([]store.List, error)
	GetList(context.Context, string) (store.List, error)
	TopListPosition(context.Context, string) ([]float64, error)
	CreateList(context.Context, store.List) (store.List, error)
	DeleteListCascade(context.Context, string) error
	OrderedListIDs(context.Context, string) ([]string, error)
	WriteListPositions(context.Context, []store.PositionWrite) (int, error)

	ListCards(context.Context, string) ([]store.Card, error)
	GetCard(context.Context, string) (store.Card, error)
	BoardIDForCard(context.Context, string) (string, error)
	TopCardPosition(context.Context, string) ([]float64, error)
	CreateCard(context.Context, store.Card) (store.Card, error)
	UpdateCard(context.Context, string, store.CardPatch) (store.Card, error)
	UpdateCardSummary(context.Context, string, float64, float64) error
	DeleteCard(context.Context, string) error
	OrderedCardIDs(context.Context, string) ([]string, error)
	WriteCardPositions(context.Context, []store.PositionWrite) (int, error)

	ListCardExpenses(context.Context, string) ([]store.Expense, error)
	ListAllExpenses(context.Context) ([]store.Expense, error)
	GetExpense(context.Context, string) (store.Expense, error)
	CreateExpense(context.Context, store.Expense) (store.Expense, error)
	UpdateExpense(context.Context, string, store.ExpensePatch) (store.Expense, error)
	DeleteExpense(context.Context, string) error
	CardIDForExpense(context.Context, string) (string, error)

	ListLabels(context.Context, string) ([]store.Label, error)
	ListLabelsForCards(context.Context, []string) ([]store.Label, error)
	CreateLabel(context.Context, store.Label) (store.Label, error)
	DeleteLabel(context.Context, string) error
	CardIDForLabel(context.Context, string) (string, error)

	ListChecklist(context.Context, string) ([]store.ChecklistItem, error)
	ChecklistPositions(context.Context, string) ([]int, error)
	CreateChecklistItem(context.Context, store.ChecklistItem) (store.ChecklistItem, error)
	SetChecklistItemChecked(context.Context, string, bool) (store.ChecklistItem, error)
	DeleteChecklistItem(context.Context, string) error
	CardIDForChecklistItem(context.Context, string) (string, error)

	ListCardMembers(context.Context, string) ([]store.CardMember, error)
	AddCardMember(context.Context, store.CardMember) (bool, error)
	GetCardMember(context.Context, string) (store.CardMember, error)
	DeleteCardMember(context.Context, string) error

	ListComments(context.Context, string) ([]store.Comment, error)
	CreateComment(context.Context, store.Comment) (store.Comment, error)
	GetComment(context.Context, string) (store.Comment, error)
	DeleteComment(context.Context, string) error

	Ping(ctx context.Context) error
}

// tokenStore keeps refresh sessions and revoked access token ids. Both the
// Postgres store and the Redis session store satisfy it.
type tokenStore interface {
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (string, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
}

type profileCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, keys ...string) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexBoard(search.BoardRecord)
	IndexCard(search.CardRecord)
	DeleteBoard(string)
	DeleteCard(string)
}

type avatarUploader interface {
	Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
}

type credentialService interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.Profile, error)
	SignIn(context.Context, authpw.SignInRequest) (store.Profile, error)
}

type readinessCheck struct {
	name string
	ping func(context.Context) error
}

// Dependencies are the optional backends wired by main. Nil members disable
// the feature they back.
type Dependencies struct {
	Store       *store.PostgresStore
	Sessions    *session.RedisStore
	Cache       *cache.RedisCache
	Search      *search.Service
	Events      *events.Bus
	Avatars     *avatar.Store
	Credentials *authpw.Service
	Logger      zerolog.Logger
}

type Service struct {
	cfg         config.Config
	store       dataStore
	tokens      tokenStore
	credentials credentialService
	cache       profileCache
	search      searchIndex
	events      *events.Bus
	avatars     avatarUploader
	checks      []readinessCheck
	logger      zerolog.Logger
	now         func() time.Time
}

func New(cfg config.Config, deps Dependencies) *Service {
	s := &Service{
		cfg:    cfg,
		store:  deps.Store,
		tokens: deps.Store,
		events: deps.Events,
		logger: deps.Logger,
		now:    time.Now,
		checks: []readinessCheck{{name: "database", ping: deps.Store.Ping}},
	}
	if deps.Credentials != nil {
		s.credentials = deps.Credentials
	} else {
		s.credentials = authpw.NewService(deps.Store, 0)
	}
	if deps.Sessions != nil {
		s.tokens = deps.Sessions
		s.checks = append(s.checks, readinessCheck{name: "redis", ping: deps.Sessions.Ping})
	}
	if deps.Cache != nil {
		s.cache = deps.Cache
	}
	if deps.Search != nil {
		s.search = deps.Search
	}
	if deps.Avatars != nil {
		s.avatars = deps.Avatars
	}
	return s
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type SignInInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	profile, err := s.credentials.SignUp(ctx, authpw.SignUpRequest{
		Email:    input.Email,
		Password: input.Password,
		FullName: input.FullName,
	})
	if err != nil {
		return Session{}, credentialError(err)
	}
	s.invalidateProfiles(ctx)
	s.logger.Info().Str("user_id", profile.ID).Msg("profile created")
	return s.issueSession(ctx, profile)
}

func (s *Service) SignIn(ctx context.Context, input SignInInput) (Session, error) {
	profile, err := s.credentials.SignIn(ctx, authpw.SignInRequest{Email: input.Email, Password: input.Password})
	if err != nil {
		return Session{}, credentialError(err)
	}
	return s.issueSession(ctx, profile)
}

func credentialError(err error) error {
	switch {
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword):
		return validationError(err.Error())
	case errors.Is(err, authpw.ErrEmailTaken):
		return domainError(http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
	default:
		return err
	}
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.tokens.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.tokens.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	profile, err := s.store.GetProfileByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if profile.Deleted() {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.Profile) (Session, error) {
	now := s.clock()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")
	name := displayName(profile)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  profile.ID,
		Name: name,
		Role: profile.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.tokens.SaveRefreshSession(ctx, auth.HashToken(refresh), profile.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       profile.ID,
		UserName:     name,
		Email:        profile.Email,
		Role:         profile.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

// SessionFromToken reads the role from the profile row rather than the
// token, so role changes apply on the next request.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.tokens.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	profile, err := s.store.GetProfileByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	if profile.Deleted() {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    profile.ID,
		UserName:  displayName(profile),
		Email:     profile.Email,
		Role:      profile.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.tokens.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.tokens.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Ping runs every readiness check and returns the per-check errors.
func (s *Service) Ping(ctx context.Context) map[string]error {
	results := make(map[string]error, len(s.checks))
	for _, check := range s.checks {
		results[check.name] = check.ping(ctx)
	}
	return results
}

func displayName(profile store.Profile) string {
	if name := strings.TrimSpace(profile.FullName); name != "" {
		return name
	}
	return profile.Email
}

// publish is a no-op when the bus is absent.
func (s *Service) publish(ev events.Event) {
	if s.events == nil || ev.BoardID == "" {
		return
	}
	s.events.Publish(ev)
}

// publishForCard resolves the card's board before publishing. Lookup
// failures only cost the event.
func (s *Service) publishForCard(ctx context.Context, cardID string, ev events.Event) {
	if s.events == nil {
		return
	}
	boardID, err := s.store.BoardIDForCard(ctx, cardID)
	if err != nil {
		s.logger.Debug().Err(err).Str("card_id", cardID).Msg("skip board event")
		return
	}
	ev.BoardID = boardID
	ev.CardID = cardID
	s.events.Publish(ev)
}
