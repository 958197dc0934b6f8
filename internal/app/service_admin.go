package app

import (
	"context"
	"errors"
	"strings"

	"ledgerboard/api/internal/rbac"
	"ledgerboard/api/internal/store"
)

const activeProfilesKey = "profiles:active"

// actingRole loads the caller's current role. A caller whose profile is gone
// is treated as signed out.
func (s *Service) actingRole(ctx context.Context, session Session) (rbac.Role, error) {
	profile, err := s.store.GetProfileByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errNotAuthenticated
		}
		return "", err
	}
	if profile.Deleted() {
		return "", errNotAuthenticated
	}
	return rbac.Role(profile.Role), nil
}

// target loads an active principal or reports "User not found".
func (s *Service) target(ctx context.Context, userID string) (store.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Profile{}, notFound("User not found")
	}
	profile, err := s.store.GetProfileByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Profile{}, notFound("User not found")
		}
		return store.Profile{}, err
	}
	if profile.Deleted() {
		return store.Profile{}, notFound("User not found")
	}
	return profile, nil
}

func (s *Service) ListProfiles(ctx context.Context, session Session) ([]ProfileView, error) {
	role, err := s.actingRole(ctx, session)
	if err != nil {
		return nil, err
	}
	if !role.Privileged() {
		return nil, denied(rbac.Decision{Rule: "actor_not_privileged", Reason: rbac.ReasonUnauthorized})
	}

	if s.cache != nil {
		var cached []ProfileView
		found, err := s.cache.Get(ctx, activeProfilesKey, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Msg("profile cache read failed")
		} else if found {
			return cached, nil
		}
	}

	profiles, err := s.store.ListActiveProfiles(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ProfileView, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, profileView(p))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, activeProfilesKey, items); err != nil {
			s.logger.Warn().Err(err).Msg("profile cache write failed")
		}
	}
	return items, nil
}

func (s *Service) invalidateProfiles(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, activeProfilesKey); err != nil {
		s.logger.Warn().Err(err).Msg("profile cache invalidate failed")
	}
}

// UpdateUserRole checks the caller's privilege before looking up the
// target, so non-admins learn nothing about which ids exist.
func (s *Service) UpdateUserRole(ctx context.Context, session Session, userID, newRole string) error {
	acting, err := s.actingRole(ctx, session)
	if err != nil {
		return err
	}
	requested := rbac.Role(strings.TrimSpace(newRole))
	if !acting.Privileged() {
		return denied(rbac.AuthorizeRoleChange(acting, "", requested, false))
	}

	target, err := s.target(ctx, userID)
	if err != nil {
		return err
	}

	decision := rbac.AuthorizeRoleChange(acting, rbac.Role(target.Role), requested, target.ID == session.UserID)
	if !decision.Allowed {
		s.logger.Info().
			Str("actor_id", session.UserID).
			Str("target_id", target.ID).
			Str("rule", decision.Rule).
			Msg("role change denied")
		return denied(decision)
	}

	if err := s.store.UpdateProfileRole(ctx, target.ID, string(requested)); err != nil {
		s.logger.Error().Err(err).Str("target_id", target.ID).Msg("update role")
		return failed("Failed to update role", err)
	}
	s.invalidateProfiles(ctx)
	s.logger.Info().
		Str("actor_id", session.UserID).
		Str("target_id", target.ID).
		Str("from", target.Role).
		Str("to", string(requested)).
		Msg("role changed")
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, session Session, userID string) error {
	acting, err := s.actingRole(ctx, session)
	if err != nil {
		return err
	}
	if !acting.Privileged() {
		return denied(rbac.AuthorizeDeletion(acting, ""))
	}

	target, err := s.target(ctx, userID)
	if err != nil {
		return err
	}

	decision := rbac.AuthorizeDeletion(acting, rbac.Role(target.Role))
	if !decision.Allowed {
		s.logger.Info().
			Str("actor_id", session.UserID).
			Str("target_id", target.ID).
			Str("rule", decision.Rule).
			Msg("deletion denied")
		return denied(decision)
	}

	if err := s.store.SoftDeleteProfile(ctx, target.ID, s.clock()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("User not found")
		}
		s.logger.Error().Err(err).Str("target_id", target.ID).Msg("delete user")
		return failed("Failed to delete user", err)
	}
	s.invalidateProfiles(ctx)
	s.logger.Info().Str("actor_id", session.UserID).Str("target_id", target.ID).Msg("user deleted")
	return nil
}
