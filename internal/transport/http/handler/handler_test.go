package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/campus-identity/internal/application/account"
	"github.com/campus-identity/internal/application/reset"
	"github.com/campus-identity/internal/application/session"
	"github.com/campus-identity/internal/domain"
	jwtinfra "github.com/campus-identity/internal/infrastructure/jwt"
	"github.com/campus-identity/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockResetSvc struct{ mock.Mock }

func (m *mockResetSvc) Initiate(ctx context.Context, req reset.InitiateRequest) (*reset.InitiateResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*reset.InitiateResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockResetSvc) Verify(ctx context.Context, req reset.VerifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockTokenSvc struct{ mock.Mock }

func (m *mockTokenSvc) VerifyCode(ctx context.Context, req reset.VerifyCodeRequest) (*reset.CodeResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*reset.CodeResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTokenSvc) SetPassword(ctx context.Context, req reset.SetPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

type mockAccountSvc struct{ mock.Mock }

func (m *mockAccountSvc) Signup(ctx context.Context, req account.SignupRequest) (*account.SignupResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*account.SignupResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAccountSvc) SetPassword(ctx context.Context, userID, newPassword string) error {
	return m.Called(ctx, userID, newPassword).Error(0)
}

type mockSessionSvc struct{ mock.Mock }

func (m *mockSessionSvc) Login(ctx context.Context, req session.LoginRequest) (*session.LoginResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*session.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionSvc) Me(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDirectory struct{ mock.Mock }

func (m *mockDirectory) Resolve(ctx context.Context, loginID string) (*domain.DirectoryEntry, error) {
	args := m.Called(ctx, loginID)
	if e, _ := args.Get(0).(*domain.DirectoryEntry); e != nil {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- helpers ---

func jsonReq(t *testing.T, method, target string, v interface{}) *http.Request {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return httptest.NewRequest(method, target, bytes.NewReader(body))
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) MessageEnvelope {
	t.Helper()
	var env MessageEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env
}

func withChiParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// --- httpError ---

func TestHTTPError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("loginId required: %w", domain.ErrBadRequest), http.StatusBadRequest, "invalid_argument"},
		{fmt.Errorf("gone: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("late: %w", domain.ErrExpired), http.StatusGone, "expired"},
		{fmt.Errorf("too many: %w", domain.ErrLockedOut), http.StatusTooManyRequests, "locked_out"},
		{fmt.Errorf("wrong: %w", domain.ErrInvalidCode), http.StatusUnauthorized, "invalid_code"},
		{fmt.Errorf("db: %w", domain.ErrMutationFailed), http.StatusBadGateway, "mutation_failed"},
		{fmt.Errorf("smtp: %w", domain.ErrDeliveryFailed), http.StatusBadGateway, "delivery_failed"},
		{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{domain.ErrConflict, http.StatusConflict, "conflict"},
		{errors.New("dynamo timeout"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			httpError(rr, tt.err)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeEnvelope(t, rr).Code)
		})
	}
}

func TestHTTPError_GoneKindsShareMessage(t *testing.T) {
	msgs := map[string]bool{}
	for _, err := range []error{domain.ErrNotFound, domain.ErrExpired, domain.ErrLockedOut} {
		rr := httptest.NewRecorder()
		httpError(rr, fmt.Errorf("reset session ref-123: %w", err))
		msgs[decodeEnvelope(t, rr).Error] = true
	}
	assert.Len(t, msgs, 1)
}

func TestHTTPError_InternalHidesDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	httpError(rr, errors.New("dial tcp 10.0.0.5:8000: connection refused"))
	assert.NotContains(t, decodeEnvelope(t, rr).Error, "10.0.0.5")
}

// --- health ---

func TestPing(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler().Ping(rr, withChiParam(httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil), "action", "ping"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", decodeEnvelope(t, rr).Message)
}

// --- password reset ---

func TestInitiate_HappyPath(t *testing.T) {
	svc := &mockResetSvc{}
	svc.On("Initiate", mock.Anything, reset.InitiateRequest{LoginID: "123456"}).
		Return(&reset.InitiateResult{SessionRef: "ref", MaskedEmail: "12****@sastra.ac.in", TTLSeconds: 600}, nil)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, nil).Initiate(rr, jsonReq(t, http.MethodPost, "/v1/password-reset/initiate", map[string]string{"loginId": "123456"}))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "ref", body["sessionRef"])
	assert.Equal(t, "12****@sastra.ac.in", body["maskedEmail"])
	assert.Equal(t, float64(600), body["ttlSeconds"])
	svc.AssertExpectations(t)
}

func TestInitiate_InvalidBody(t *testing.T) {
	svc := &mockResetSvc{}
	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, nil).Initiate(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("not-json")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	svc.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestVerify_OK(t *testing.T) {
	svc := &mockResetSvc{}
	req := reset.VerifyRequest{SessionRef: "ref", Code: "123456", NewPassword: "brandnew1"}
	svc.On("Verify", mock.Anything, req).Return(nil)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(svc, nil).Verify(rr, jsonReq(t, http.MethodPost, "/", req))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestVerify_ErrorKinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidCode, http.StatusUnauthorized},
		{domain.ErrLockedOut, http.StatusTooManyRequests},
		{domain.ErrExpired, http.StatusGone},
		{domain.ErrMutationFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		svc := &mockResetSvc{}
		svc.On("Verify", mock.Anything, mock.Anything).Return(tt.err)
		rr := httptest.NewRecorder()
		NewPasswordResetHandler(svc, nil).Verify(rr, jsonReq(t, http.MethodPost, "/", reset.VerifyRequest{SessionRef: "ref"}))
		assert.Equal(t, tt.status, rr.Code, tt.err.Error())
	}
}

func TestTokenEndpoints_DisabledAre404(t *testing.T) {
	h := NewPasswordResetHandler(&mockResetSvc{}, nil)

	rr := httptest.NewRecorder()
	h.VerifyCode(rr, jsonReq(t, http.MethodPost, "/", reset.VerifyCodeRequest{SessionRef: "ref", Code: "123456"}))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	h.SetPassword(rr, jsonReq(t, http.MethodPost, "/", reset.SetPasswordRequest{ResetToken: "t", NewPassword: "brandnew1"}))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVerifyCode_ReturnsToken(t *testing.T) {
	tokens := &mockTokenSvc{}
	tokens.On("VerifyCode", mock.Anything, reset.VerifyCodeRequest{SessionRef: "ref", Code: "123456"}).
		Return(&reset.CodeResult{ResetToken: "tok", ExpiresIn: 900}, nil)

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(&mockResetSvc{}, tokens).VerifyCode(rr, jsonReq(t, http.MethodPost, "/", reset.VerifyCodeRequest{SessionRef: "ref", Code: "123456"}))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"resetToken":"tok","expiresIn":900}`, rr.Body.String())
}

func TestSetPassword_ReusedToken(t *testing.T) {
	tokens := &mockTokenSvc{}
	tokens.On("SetPassword", mock.Anything, mock.Anything).Return(fmt.Errorf("already used: %w", domain.ErrUnauthorized))

	rr := httptest.NewRecorder()
	NewPasswordResetHandler(&mockResetSvc{}, tokens).SetPassword(rr, jsonReq(t, http.MethodPost, "/", reset.SetPasswordRequest{ResetToken: "tok", NewPassword: "brandnew1"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// --- signup ---

func TestSignup_ValidationFailure(t *testing.T) {
	svc := &mockAccountSvc{}
	rr := httptest.NewRecorder()
	NewSignupHandler(svc).Signup(rr, jsonReq(t, http.MethodPost, "/v1/signup", account.SignupRequest{Name: "Asha"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_argument", decodeEnvelope(t, rr).Code)
	svc.AssertNotCalled(t, "Signup", mock.Anything, mock.Anything)
}

func TestSignup_Created(t *testing.T) {
	svc := &mockAccountSvc{}
	req := account.SignupRequest{
		IDToken: "g", Name: "Asha", Role: domain.RoleStudent, Phone: "9876543210",
		Password: "longenough", ConfirmPassword: "longenough",
	}
	svc.On("Signup", mock.Anything, req).Return(&account.SignupResult{UserID: "u1", LoginID: "123456", Role: domain.RoleStudent}, nil)

	rr := httptest.NewRecorder()
	NewSignupHandler(svc).Signup(rr, jsonReq(t, http.MethodPost, "/v1/signup", req))
	assert.Equal(t, http.StatusCreated, rr.Code)
	svc.AssertExpectations(t)
}

func TestSignup_ForeignDomain(t *testing.T) {
	svc := &mockAccountSvc{}
	svc.On("Signup", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("only @sastra.ac.in: %w", domain.ErrForbidden))
	req := account.SignupRequest{
		IDToken: "g", Name: "Asha", Role: domain.RoleFaculty, Phone: "9876543210",
		Password: "longenough", ConfirmPassword: "longenough",
	}

	rr := httptest.NewRecorder()
	NewSignupHandler(svc).Signup(rr, jsonReq(t, http.MethodPost, "/v1/signup", req))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// --- sessions ---

func TestLogin_MissingFields(t *testing.T) {
	svc := &mockSessionSvc{}
	rr := httptest.NewRecorder()
	NewSessionHandler(svc).Login(rr, jsonReq(t, http.MethodPost, "/", session.LoginRequest{LoginID: "123456"}))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "invalid_argument", env.Code)
	assert.Contains(t, env.Error, "password is required")
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := &mockSessionSvc{}
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized))
	rr := httptest.NewRecorder()
	NewSessionHandler(svc).Login(rr, jsonReq(t, http.MethodPost, "/", session.LoginRequest{LoginID: "123456", Password: "nope"}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogin_HappyPath(t *testing.T) {
	svc := &mockSessionSvc{}
	svc.On("Login", mock.Anything, session.LoginRequest{LoginID: "123456", Password: "longenough"}).
		Return(&session.LoginResult{Bearer: "b", Role: domain.RoleStudent, LoginID: "123456", Home: "/dashboard/student"}, nil)

	rr := httptest.NewRecorder()
	NewSessionHandler(svc).Login(rr, jsonReq(t, http.MethodPost, "/", session.LoginRequest{LoginID: "123456", Password: "longenough"}))
	require.Equal(t, http.StatusOK, rr.Code)

	var res session.LoginResult
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	assert.Equal(t, "b", res.Bearer)
	assert.Equal(t, "/dashboard/student", res.Home)
}

func TestMe_NoClaims(t *testing.T) {
	rr := httptest.NewRecorder()
	NewSessionHandler(&mockSessionSvc{}).Me(rr, httptest.NewRequest(http.MethodGet, "/v1/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMe_HidesPasswordHash(t *testing.T) {
	svc := &mockSessionSvc{}
	svc.On("Me", mock.Anything, "u1").Return(&domain.User{UserID: "u1", LoginID: "123456", PasswordHash: "$2a$secret"}, nil)

	ctx := middleware.WithClaims(context.Background(), &jwtinfra.Claims{UserID: "u1", Role: domain.RoleStudent})
	rr := httptest.NewRecorder()
	NewSessionHandler(svc).Me(rr, httptest.NewRequest(http.MethodGet, "/v1/me", nil).WithContext(ctx))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "$2a$secret")
	assert.Contains(t, rr.Body.String(), `"login_id":"123456"`)
}

// --- directory ---

func TestDirectory_Get(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("Resolve", mock.Anything, "F3210").Return(&domain.DirectoryEntry{LoginID: "F3210", UserID: "u9", Email: "x@sastra.ac.in"}, nil)

	rr := httptest.NewRecorder()
	NewDirectoryHandler(dir).Get(rr, withChiParam(httptest.NewRequest(http.MethodGet, "/v1/directory/F3210", nil), "loginId", "F3210"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user_id":"u9"`)
}

func TestDirectory_Missing(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("Resolve", mock.Anything, "999").Return(nil, domain.ErrNotFound)

	rr := httptest.NewRecorder()
	NewDirectoryHandler(dir).Get(rr, withChiParam(httptest.NewRequest(http.MethodGet, "/v1/directory/999", nil), "loginId", "999"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
