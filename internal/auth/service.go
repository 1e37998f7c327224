package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/labstock-backend/internal/admins"
	pkgAuth "github.com/angelmondragon/labstock-backend/pkg/auth"
	"github.com/angelmondragon/labstock-backend/pkg/auth/session"
	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/security"
	"github.com/google/uuid"
)

const invalidCredentialsMessage = "invalid credentials"

// Service is the admin gate: it issues, refreshes and revokes sessions.
type Service interface {
	Login(ctx context.Context, req LoginRequest) (*TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error)
	ChangeCredentials(ctx context.Context, adminID uuid.UUID, req ChangeCredentialsRequest) (*AdminDTO, error)
	EnsureDefaultAdmin(ctx context.Context) (bool, error)
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, adminID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID string, adminID uuid.UUID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

// ServiceParams bundles the dependencies required to build an auth service.
type ServiceParams struct {
	Admins         admins.Repository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	AdminConfig    config.AdminConfig
	Logger         *logger.Logger
}

type service struct {
	admins   admins.Repository
	session  sessionManager
	jwtCfg   config.JWTConfig
	pwdCfg   config.PasswordConfig
	adminCfg config.AdminConfig
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Admins == nil {
		return nil, fmt.Errorf("admin repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		admins:   params.Admins,
		session:  params.SessionManager,
		jwtCfg:   params.JWTConfig,
		pwdCfg:   params.PasswordConfig,
		adminCfg: params.AdminConfig,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	admin, err := s.authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}

	if security.IsLegacyHash(admin.PasswordHash) {
		s.upgradeHash(ctx, admin, req.Password)
	}

	now := s.now()
	if err := s.admins.UpdateLastLogin(ctx, admin.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update last login")
	}
	admin.LastLoginAt = &now

	pair, err := s.issue(ctx, admin.ID, admin.Username, now)
	if err != nil {
		return nil, err
	}
	pair.Admin = FromModel(admin)

	s.logg.Info(s.logg.WithAdminID(ctx, admin.ID.String()), "auth.login")
	return pair, nil
}

func (s *service) Logout(ctx context.Context, accessToken string) error {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}
	if err := s.session.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	s.logg.Info(s.logg.WithAdminID(ctx, claims.AdminID.String()), "auth.logout")
	return nil
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenPair, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	admin, err := s.admins.FindByID(ctx, claims.AdminID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load admin")
	}

	newAccessID, newRefresh, err := s.session.Rotate(ctx, claims.ID, admin.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate session")
	}

	now := s.now()
	access, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		AdminID:  admin.ID,
		Username: admin.Username,
		JTI:      newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresAt:    now.Add(s.jwtCfg.AccessTokenTTL()),
		Admin:        FromModel(admin),
	}, nil
}

func (s *service) ChangeCredentials(ctx context.Context, adminID uuid.UUID, req ChangeCredentialsRequest) (*AdminDTO, error) {
	if req.NewUsername == nil && req.NewPassword == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to change")
	}

	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin no longer exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load admin")
	}
	ok, err := security.VerifyPassword(req.CurrentPassword, admin.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "current password is incorrect")
	}

	var changes admins.CredentialChanges
	if req.NewUsername != nil {
		name := admins.NormalizeUsername(*req.NewUsername)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"new_username": "is required"})
		}
		changes.Username = &name
	}
	if req.NewPassword != nil {
		hash, err := security.HashPassword(*req.NewPassword, s.pwdCfg)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
		}
		changes.PasswordHash = &hash
	}

	if err := s.admins.UpdateCredentials(ctx, admin.ID, changes); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "update credentials")
	}

	updated, err := s.admins.FindByID(ctx, admin.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "reload admin")
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithAdminID(ctx, admin.ID.String()), map[string]any{
		"username_changed": changes.Username != nil,
		"password_changed": changes.PasswordHash != nil,
	}), "auth.credentials_changed")
	return FromModel(updated), nil
}

// EnsureDefaultAdmin seeds the configured default admin when the table is
// empty. It reports whether a row was created.
func (s *service) EnsureDefaultAdmin(ctx context.Context) (bool, error) {
	count, err := s.admins.Count(ctx)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count admins")
	}
	if count > 0 {
		return false, nil
	}

	hash, err := security.HashPassword(s.adminCfg.DefaultPassword, s.pwdCfg)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash default password")
	}
	admin := &models.Admin{Username: s.adminCfg.DefaultUsername, PasswordHash: hash}
	if err := s.admins.Create(ctx, admin); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create default admin")
	}
	s.logg.Warn(s.logg.WithField(ctx, "username", admin.Username), "auth.default_admin_seeded")
	return true, nil
}

func (s *service) authenticate(ctx context.Context, username, password string) (*models.Admin, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	admin, err := s.admins.FindByUsername(ctx, username)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "lookup admin")
	}

	valid, err := security.VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	return admin, nil
}

// upgradeHash replaces a bcrypt hash with Argon2id. Failures are logged
// and do not block the login.
func (s *service) upgradeHash(ctx context.Context, admin *models.Admin, password string) {
	hash, err := security.HashPassword(password, s.pwdCfg)
	if err == nil {
		err = s.admins.UpdateCredentials(ctx, admin.ID, admins.CredentialChanges{PasswordHash: &hash})
	}
	if err != nil {
		s.logg.Error(s.logg.WithAdminID(ctx, admin.ID.String()), "auth.rehash_failed", err)
		return
	}
	admin.PasswordHash = hash
}

func (s *service) issue(ctx context.Context, adminID uuid.UUID, username string, now time.Time) (*TokenPair, error) {
	accessID := session.NewAccessID()
	access, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		AdminID:  adminID,
		Username: username,
		JTI:      accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	refresh, err := s.session.Generate(ctx, accessID, adminID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(s.jwtCfg.AccessTokenTTL()),
	}, nil
}
