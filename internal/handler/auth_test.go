package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveshare/rental-booking/internal/config"
	"github.com/driveshare/rental-booking/internal/identity"
	"github.com/driveshare/rental-booking/internal/model"
	"github.com/driveshare/rental-booking/internal/repository"
	"github.com/driveshare/rental-booking/internal/utils"
	"github.com/driveshare/rental-booking/internal/workflow"
)

type memUsers struct {
	mu   sync.Mutex
	byID map[uint64]model.User
}

func newMemUsers() *memUsers { return &memUsers{byID: map[uint64]model.User{}} }

func (m *memUsers) Create(_ context.Context, email, password, fullName, role string, cost int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return 0, repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	id := uint64(len(m.byID) + 1)
	m.byID[id] = model.User{ID: id, Email: email, PasswordHash: hash, FullName: fullName, Role: role, IsActive: true}
	return id, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

type memTokens struct {
	mu      sync.Mutex
	owner   map[string]uint64
	revoked map[string]bool
}

func newMemTokens() *memTokens {
	return &memTokens{owner: map[string]uint64{}, revoked: map[string]bool{}}
}

func (m *memTokens) StoreRefresh(_ context.Context, userID uint64, hash string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner[hash] = userID
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string, _ time.Time) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.owner[hash]
	if !ok || m.revoked[hash] {
		return 0, repository.ErrRefreshInvalid
	}
	return id, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[hash] = true
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID uint64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for h, id := range m.owner {
		if id == userID && !m.revoked[h] {
			m.revoked[h] = true
			n++
		}
	}
	return n, nil
}

const testSecret = "test-secret"

func newAuth() (*AuthHandler, *memTokens) {
	cfg := config.Config{JWTSecret: testSecret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: 4}
	tokens := newMemTokens()
	return NewAuthHandler(cfg, newMemUsers(), tokens, identity.NewJWTProvider(tokens, nil), nil), tokens
}

func postJSON(t *testing.T, h echo.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e := echo.New()
	e.Validator = NewValidator()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authResp {
	t.Helper()
	var resp authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterLoginRefresh(t *testing.T) {
	a, _ := newAuth()

	rec := postJSON(t, a.Register, `{"email":" Ana@Example.com ","password":"pw","name":"Ana"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	reg := decodeAuth(t, rec)
	assert.Equal(t, "ana@example.com", reg.User.Email)
	assert.Equal(t, model.RoleCustomer, reg.User.Role)

	claims, err := utils.ParseAccessToken(testSecret, reg.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ana", claims.Name)

	rec = postJSON(t, a.Register, `{"email":"ana@example.com","password":"pw","name":"Ana"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, a.Register, `{"email":"bob@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = postJSON(t, a.Register, `{"email":"not-an-email","password":"pw","name":"Bob"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, a.Login, `{"email":"ana@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = postJSON(t, a.Login, `{"email":"nobody@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, a.Login, `{"email":"ana@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	login := decodeAuth(t, rec)

	rec = postJSON(t, a.Refresh, `{"refresh_token":"`+login.Refresh.Token+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeAuth(t, rec)
	assert.NotEqual(t, login.Refresh.Token, rotated.Refresh.Token)

	// the old refresh token was revoked by the rotation
	rec = postJSON(t, a.Refresh, `{"refresh_token":"`+login.Refresh.Token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, a.RefreshAccess, `{"refresh_token":"`+rotated.Refresh.Token+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = postJSON(t, a.RefreshAccess, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	a, tokens := newAuth()
	reg := decodeAuth(t, postJSON(t, a.Register, `{"email":"ana@example.com","password":"pw","name":"Ana"}`))

	rec := postJSON(t, a.Logout, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, a.Logout, `{"refresh_token":"`+reg.Refresh.Token+`"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := tokens.ValidateRefresh(context.Background(), utils.HashRefreshRaw(reg.Refresh.Token), time.Now())
	assert.ErrorIs(t, err, repository.ErrRefreshInvalid)

	login := decodeAuth(t, postJSON(t, a.Login, `{"email":"ana@example.com","password":"pw"}`))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+login.Access.Token)
	rec = httptest.NewRecorder()
	require.NoError(t, a.Logout(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = tokens.ValidateRefresh(context.Background(), utils.HashRefreshRaw(login.Refresh.Token), time.Now())
	assert.ErrorIs(t, err, repository.ErrRefreshInvalid)
}

func TestSignOutAndMe(t *testing.T) {
	a, tokens := newAuth()
	reg := decodeAuth(t, postJSON(t, a.Register, `{"email":"ana@example.com","password":"pw","name":"Ana"}`))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p := workflow.Principal{ID: reg.User.ID, Email: reg.User.Email, Name: "Ana", Role: model.RoleCustomer}
	req = req.WithContext(identity.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set("user_id", reg.User.ID)
	require.NoError(t, a.Me(c))
	assert.Contains(t, rec.Body.String(), `"name":"Ana"`)

	rec = httptest.NewRecorder()
	require.NoError(t, a.SignOut(echo.New().NewContext(req, rec)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := tokens.ValidateRefresh(context.Background(), utils.HashRefreshRaw(reg.Refresh.Token), time.Now())
	assert.ErrorIs(t, err, repository.ErrRefreshInvalid)

	rec = httptest.NewRecorder()
	require.NoError(t, a.Me(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
