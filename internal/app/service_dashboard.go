package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"ledgerboard/api/internal/avatar"
	"ledgerboard/api/internal/ledger"
	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/search"
	"ledgerboard/api/internal/store"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// FinancialStats aggregates every expense in the system. Requires finance.
func (s *Service) FinancialStats(ctx context.Context, session Session) (ledger.FinancialStats, error) {
	role, err := s.actingRole(ctx, session)
	if err != nil {
		return ledger.FinancialStats{}, err
	}
	if !rbac.Can(role, rbac.ActionFinance) {
		return ledger.FinancialStats{}, denied(rbac.Decision{Rule: "finance_access", Reason: rbac.ReasonUnauthorized})
	}
	expenses, err := s.store.ListAllExpenses(ctx)
	if err != nil {
		return ledger.FinancialStats{}, err
	}
	return ledger.Stats(ledgerEntries(expenses)), nil
}

func (s *Service) Profile(ctx context.Context, session Session) (ProfileView, error) {
	profile, err := s.store.GetProfileByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ProfileView{}, notFound("User not found")
		}
		return ProfileView{}, err
	}
	return profileView(profile), nil
}

type UpdateProfileInput struct {
	FullName  string `json:"fullName"`
	AvatarURL string `json:"avatarUrl"`
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (ProfileView, error) {
	fullName := strings.TrimSpace(input.FullName)
	if fullName == "" {
		return ProfileView{}, validationError("fullName is required")
	}
	profile, err := s.store.UpdateProfileDetails(ctx, session.UserID, fullName, strings.TrimSpace(input.AvatarURL))
	if err != nil {
		return ProfileView{}, failed("Failed to update profile", err)
	}
	s.invalidateProfiles(ctx)
	return profileView(profile), nil
}

// UploadAvatar stores the image and points the profile at it.
func (s *Service) UploadAvatar(ctx context.Context, session Session, contentType string, body io.Reader, size int64) (ProfileView, error) {
	if s.avatars == nil {
		return ProfileView{}, domainError(http.StatusServiceUnavailable, "AVATAR_UNAVAILABLE", "Avatar storage is not configured", nil)
	}
	if _, err := avatar.Validate(contentType, size); err != nil {
		return ProfileView{}, validationError(err.Error())
	}
	url, err := s.avatars.Upload(ctx, session.UserID, contentType, body, size)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", session.UserID).Msg("upload avatar")
		return ProfileView{}, failed("Failed to upload avatar", err)
	}
	if err := s.store.UpdateProfileAvatar(ctx, session.UserID, url); err != nil {
		return ProfileView{}, failed("Failed to update profile", err)
	}
	s.invalidateProfiles(ctx)
	return s.Profile(ctx, session)
}

// DebugRole reports what the server sees for the caller, including the
// profile lookup error if any.
func (s *Service) DebugRole(ctx context.Context, session Session) map[string]any {
	payload := map[string]any{
		"user_id":       session.UserID,
		"email":         session.Email,
		"profile_data":  nil,
		"profile_error": nil,
		"timestamp":     s.clock().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	profile, err := s.store.GetProfileByID(ctx, session.UserID)
	if err != nil {
		payload["profile_error"] = err.Error()
		return payload
	}
	payload["profile_data"] = profileView(profile)
	return payload
}

type SearchInput struct {
	Text    string
	Type    string
	BoardID string
	Limit   int
	Offset  int
}

func (s *Service) Search(ctx context.Context, input SearchInput) (search.Response, error) {
	text := strings.TrimSpace(input.Text)
	resultType, ok := search.ParseResultType(strings.TrimSpace(input.Type))
	if !ok {
		return search.Response{}, validationError("type must be board or card")
	}
	if text == "" || s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	offset := input.Offset
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(ctx, search.Query{
		Text:          text,
		FilterType:    resultType,
		FilterBoardID: strings.TrimSpace(input.BoardID),
		Limit:         limit,
		Offset:        offset,
	}), nil
}
