package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/dorm-adp-api/internal/models"
	appErrors "github.com/noah-isme/dorm-adp-api/pkg/errors"
)

type mockAuthRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	revokedAll    []string
	lastLogin     map[string]time.Time
	passwords     map[string]string
}

func newMockAuthRepo(users ...*models.User) *mockAuthRepo {
	repo := &mockAuthRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		lastLogin:     make(map[string]time.Time),
		passwords:     make(map[string]string),
	}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	return err == nil, nil
}

func (m *mockAuthRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "user-new"
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	for _, tk := range m.refreshTokens {
		if tk.UserID == userID {
			tk.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if tk, ok := m.refreshTokens[token]; ok {
		return tk, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, tk := range m.refreshTokens {
		if tk.ID == id {
			tk.Revoked = true
			tk.RevokedAt = &revokedAt
		}
	}
	return nil
}

type mockRegistrar struct {
	created []CreateStudentRequest
}

func (m *mockRegistrar) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	m.created = append(m.created, req)
	return &models.Student{ID: "s-new", StudentNumber: req.StudentNumber, Email: req.Email}, nil
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func authFixtureUser(t *testing.T) *models.User {
	return &models.User{
		ID:           "u1",
		Email:        "ana@example.com",
		PasswordHash: hashPassword(t, "secret123"),
		FullName:     "Ana Silva",
		Role:         models.RoleStudent,
		Active:       true,
	}
}

func newAuthFixture(repo *mockAuthRepo, registrar *mockRegistrar) *AuthService {
	cfg := AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "dorm-adp-api",
	}
	var students authStudentRegistrar
	if registrar != nil {
		students = registrar
	}
	return NewAuthService(repo, students, validator.New(), zap.NewNop(), cfg)
}

func TestAuthServiceLogin(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, "u1", resp.User.ID)
	assert.Equal(t, models.RoleStudent, resp.User.Role)
	assert.Contains(t, repo.lastLogin, "u1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "wrong"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)

	// Unknown accounts fail with the same code so the response does not leak existence.
	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@example.com", Password: "secret123"})
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErr.Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	user := authFixtureUser(t)
	user.Active = false
	svc := newAuthFixture(newMockAuthRepo(user), nil)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErr.Code)
}

func TestAuthServiceLoginSingleSession(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)
	svc.config.SingleSession = true

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.revokedAll)
}

func TestAuthServiceRegister(t *testing.T) {
	repo := newMockAuthRepo()
	registrar := &mockRegistrar{}
	svc := newAuthFixture(repo, registrar)

	resp, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:         "ben@example.com",
		Password:      "secret123",
		FullName:      "Ben Ochoa",
		StudentNumber: "S-2026-004",
		Gender:        "MALE",
		Program:       "Physics",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleStudent, resp.User.Role)

	require.Len(t, registrar.created, 1)
	assert.Equal(t, "S-2026-004", registrar.created[0].StudentNumber)

	user, err := repo.FindByEmail(context.Background(), "ben@example.com")
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret123", user.PasswordHash)
}

func TestAuthServiceRegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, &mockRegistrar{})

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:         "ana@example.com",
		Password:      "secret123",
		FullName:      "Ana Silva",
		StudentNumber: "S-2026-001",
		Gender:        "FEMALE",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestAuthServiceRegisterDisabled(t *testing.T) {
	svc := newAuthFixture(newMockAuthRepo(), nil)

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		Email:         "ben@example.com",
		Password:      "secret123",
		FullName:      "Ben Ochoa",
		StudentNumber: "S-2026-004",
		Gender:        "MALE",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestAuthServiceRefreshRotatesToken(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceRefreshExpiredToken(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	repo.refreshTokens["stale"] = &models.RefreshToken{
		ID:        "rt1",
		UserID:    "u1",
		Token:     "stale",
		ExpiresAt: time.Now().UTC().Add(-time.Hour),
	}
	svc := newAuthFixture(repo, nil)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "stale"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "u1"))
	assert.True(t, repo.refreshTokens[login.RefreshToken].Revoked)
}

func TestAuthServiceLogoutForeignToken(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.False(t, repo.refreshTokens[login.RefreshToken].Revoked)
}

func TestAuthServiceChangePassword(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	err := svc.ChangePassword(context.Background(), "u1", ChangePasswordRequest{OldPassword: "secret123", NewPassword: "nextpass"})
	require.NoError(t, err)
	assert.Contains(t, repo.passwords, "u1")
	assert.Equal(t, []string{"u1"}, repo.revokedAll)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "nextpass"})
	require.NoError(t, err)
}

func TestAuthServiceChangePasswordWrongOld(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	err := svc.ChangePassword(context.Background(), "u1", ChangePasswordRequest{OldPassword: "wrong", NewPassword: "nextpass"})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
	assert.Empty(t, repo.passwords)
}

func TestAuthServiceValidateTokenTampered(t *testing.T) {
	repo := newMockAuthRepo(authFixtureUser(t))
	svc := newAuthFixture(repo, nil)

	login, err := svc.Login(context.Background(), models.LoginRequest{Email: "ana@example.com", Password: "secret123"})
	require.NoError(t, err)

	other := newAuthFixture(repo, nil)
	other.config.AccessTokenSecret = "different-secret"

	_, err = other.ValidateToken(login.AccessToken)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
