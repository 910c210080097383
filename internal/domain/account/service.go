// Package account signs hospital users in and out. Passwords are checked by
// the external identity provider; the role a user may act in comes from
// their profile in the users collection.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/medadmin/medadmin/internal/platform/auth"
	"github.com/medadmin/medadmin/internal/platform/docstore"
	"github.com/medadmin/medadmin/internal/platform/identity"
	"github.com/medadmin/medadmin/internal/platform/telemetry"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotRegistered  = errors.New("user not registered")
	ErrRoleMismatch       = errors.New("role does not match profile")
	ErrUpstream           = errors.New("upstream failure")
	ErrInvalidRole        = errors.New("role must be admin or staff")
)

// Profile is a user's stored record in the users collection.
type Profile struct {
	UserID string
	Role   string
	Name   string
}

type Service struct {
	provider identity.Provider
	store    docstore.Store
	users    string
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
}

// NewService looks profiles up in the users collection. metrics may be nil.
func NewService(provider identity.Provider, store docstore.Store, users string, logger zerolog.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{provider: provider, store: store, users: users, logger: logger, metrics: metrics}
}

// ValidRole reports whether role is one a session may carry.
func ValidRole(role string) bool {
	return role == auth.RoleAdmin || role == auth.RoleStaff
}

// Authenticate verifies the credentials and checks that the user's profile
// carries claimedRole. Failures are one of ErrInvalidCredentials,
// ErrUserNotRegistered, ErrRoleMismatch or a wrapped ErrUpstream, and are
// logged here with their cause.
func (s *Service) Authenticate(ctx context.Context, email, password, claimedRole string) (*Profile, error) {
	profile, err := s.authenticate(ctx, email, password, claimedRole)

	outcome := telemetry.LoginSuccess
	switch {
	case err == nil:
		s.logger.Info().Str("user_id", profile.UserID).Str("role", profile.Role).Msg("login succeeded")
	case errors.Is(err, ErrInvalidCredentials):
		outcome = telemetry.LoginInvalid
	case errors.Is(err, ErrUserNotRegistered):
		outcome = telemetry.LoginNotRegistered
	case errors.Is(err, ErrRoleMismatch):
		outcome = telemetry.LoginRoleMismatch
	default:
		outcome = telemetry.LoginUpstreamError
	}
	if err != nil {
		evt := s.logger.Warn()
		if outcome == telemetry.LoginUpstreamError {
			evt = s.logger.Error()
		}
		evt.Err(err).Str("claimed_role", claimedRole).Str("outcome", outcome).Msg("login failed")
	}
	s.metrics.LoginAttempt(outcome)
	return profile, err
}

func (s *Service) authenticate(ctx context.Context, email, password, claimedRole string) (*Profile, error) {
	uid, err := s.provider.Verify(ctx, email, password)
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	case err != nil:
		return nil, fmt.Errorf("%w: verifying credentials: %v", ErrUpstream, err)
	}

	profile, err := s.Profile(ctx, uid)
	if err != nil {
		return nil, err
	}
	if !ValidRole(claimedRole) || profile.Role != claimedRole {
		return nil, fmt.Errorf("%w: user %s has role %q, claimed %q", ErrRoleMismatch, uid, profile.Role, claimedRole)
	}
	return profile, nil
}

// Profile loads the stored profile for uid.
func (s *Service) Profile(ctx context.Context, uid string) (*Profile, error) {
	rec, err := s.store.Get(ctx, s.users, uid)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotRegistered, uid)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading profile %s: %v", ErrUpstream, uid, err)
	}
	return &Profile{UserID: rec.ID, Role: rec.String("role"), Name: rec.String("name")}, nil
}

// SetRole creates or updates the profile for uid so the identity provider
// account can sign in with role. An empty name leaves any stored name as is.
func (s *Service) SetRole(ctx context.Context, uid, role, name string) error {
	if uid == "" {
		return errors.New("user id is required")
	}
	if !ValidRole(role) {
		return ErrInvalidRole
	}
	fields := map[string]any{"role": role}
	if name != "" {
		fields["name"] = name
	}

	err := s.store.Update(ctx, s.users, uid, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		err = s.store.Set(ctx, s.users, uid, fields)
	}
	if err != nil {
		return fmt.Errorf("saving profile %s: %w", uid, err)
	}
	return nil
}
