package auth

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/labstock-backend/internal/admins"
	pkgAuth "github.com/angelmondragon/labstock-backend/pkg/auth"
	"github.com/angelmondragon/labstock-backend/pkg/auth/session"
	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/angelmondragon/labstock-backend/pkg/db/dbtest"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/security"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]fakeSession
}

type fakeSession struct {
	adminID uuid.UUID
	token   string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: map[string]fakeSession{}}
}

func (f *fakeSessions) Generate(_ context.Context, accessID string, adminID uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "refresh-" + accessID
	f.sessions[accessID] = fakeSession{adminID: adminID, token: token}
	return token, nil
}

func (f *fakeSessions) Rotate(_ context.Context, oldAccessID string, adminID uuid.UUID, provided string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.sessions[oldAccessID]
	if !ok || current.adminID != adminID || current.token != provided {
		return "", "", session.ErrInvalidRefreshToken
	}
	delete(f.sessions, oldAccessID)
	next := session.NewAccessID()
	f.sessions[next] = fakeSession{adminID: adminID, token: "refresh-" + next}
	return next, "refresh-" + next, nil
}

func (f *fakeSessions) Revoke(_ context.Context, accessID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, accessID)
	return nil
}

func (f *fakeSessions) has(accessID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[accessID]
	return ok
}

var (
	jwtCfg = config.JWTConfig{Secret: "test-secret", Issuer: "labstock", ExpirationMinutes: 15, RefreshTokenTTLMinutes: 60}
	pwdCfg = config.PasswordConfig{ArgonMemoryKB: 8 * 1024, ArgonTime: 1, ArgonParallelism: 1, ArgonSaltLen: 16, ArgonKeyLen: 32}
)

type harness struct {
	svc      Service
	admins   admins.Repository
	sessions *fakeSessions
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.Open(t)
	repo := admins.NewRepository(client.DB())
	sessions := newFakeSessions()
	svc, err := NewService(ServiceParams{
		Admins:         repo,
		SessionManager: sessions,
		JWTConfig:      jwtCfg,
		PasswordConfig: pwdCfg,
		AdminConfig:    config.AdminConfig{DefaultUsername: "admin", DefaultPassword: "admin123"},
		Logger:         logger.New(logger.Options{Output: io.Discard}),
	})
	require.NoError(t, err)
	return harness{svc: svc, admins: repo, sessions: sessions}
}

func TestEnsureDefaultAdminSeedsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = h.svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	admin, err := h.admins.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.False(t, security.IsLegacyHash(admin.PasswordHash))
}

func TestLoginIssuesSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)

	pair, err := h.svc.Login(ctx, LoginRequest{Username: " Admin ", Password: "admin123"})
	require.NoError(t, err)
	require.NotNil(t, pair.Admin)
	assert.Equal(t, "admin", pair.Admin.Username)
	assert.NotNil(t, pair.Admin.LastLoginAt)

	claims, err := pkgAuth.ParseAccessToken(jwtCfg, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, pair.Admin.ID, claims.AdminID)
	assert.True(t, h.sessions.has(claims.ID))

	for _, req := range []LoginRequest{
		{Username: "admin", Password: "wrong"},
		{Username: "ghost", Password: "admin123"},
		{Username: "", Password: ""},
	} {
		_, err := h.svc.Login(ctx, req)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), req.Username)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	legacy, err := bcrypt.GenerateFromPassword([]byte("labpass1"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, h.admins.Create(ctx, &models.Admin{Username: "lab", PasswordHash: string(legacy)}))

	_, err = h.svc.Login(ctx, LoginRequest{Username: "lab", Password: "labpass1"})
	require.NoError(t, err)

	admin, err := h.admins.FindByUsername(ctx, "lab")
	require.NoError(t, err)
	assert.False(t, security.IsLegacyHash(admin.PasswordHash))

	_, err = h.svc.Login(ctx, LoginRequest{Username: "lab", Password: "labpass1"})
	require.NoError(t, err)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)
	pair, err := h.svc.Login(ctx, LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)
	first, err := pkgAuth.ParseAccessToken(jwtCfg, pair.AccessToken)
	require.NoError(t, err)

	_, err = h.svc.Refresh(ctx, pair.AccessToken, "bogus")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	rotated, err := h.svc.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	second, err := pkgAuth.ParseAccessToken(jwtCfg, rotated.AccessToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, h.sessions.has(first.ID))
	assert.True(t, h.sessions.has(second.ID))
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), rotated.ExpiresAt, 5*time.Second)

	require.NoError(t, h.svc.Logout(ctx, rotated.AccessToken))
	assert.False(t, h.sessions.has(second.ID))

	err = h.svc.Logout(ctx, "garbage")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestChangeCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.EnsureDefaultAdmin(ctx)
	require.NoError(t, err)
	admin, err := h.admins.FindByUsername(ctx, "admin")
	require.NoError(t, err)
	require.NoError(t, h.admins.Create(ctx, &models.Admin{Username: "taken", PasswordHash: "x"}))

	newName, newPassword := "labhead", "s3cure-pass"

	_, err = h.svc.ChangeCredentials(ctx, admin.ID, ChangeCredentialsRequest{CurrentPassword: "admin123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.ChangeCredentials(ctx, admin.ID, ChangeCredentialsRequest{CurrentPassword: "nope", NewUsername: &newName})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	taken := "TAKEN"
	_, err = h.svc.ChangeCredentials(ctx, admin.ID, ChangeCredentialsRequest{CurrentPassword: "admin123", NewUsername: &taken})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	updated, err := h.svc.ChangeCredentials(ctx, admin.ID, ChangeCredentialsRequest{
		CurrentPassword: "admin123",
		NewUsername:     &newName,
		NewPassword:     &newPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, "labhead", updated.Username)

	_, err = h.svc.Login(ctx, LoginRequest{Username: "admin", Password: "admin123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	_, err = h.svc.Login(ctx, LoginRequest{Username: "labhead", Password: newPassword})
	require.NoError(t, err)
}
