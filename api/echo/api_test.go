package echo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/migoVanDingo/ed-user-management/config"
	"github.com/migoVanDingo/ed-user-management/domain"
	"github.com/migoVanDingo/ed-user-management/internal/testutil"
	"github.com/migoVanDingo/ed-user-management/middleware"
	"github.com/migoVanDingo/ed-user-management/services"
)

type apiFixture struct {
	e          *echo.Echo
	verifier   *testutil.StubVerifier
	users      *testutil.FakeUserRepository
	sessions   *testutil.FakeSessionRepository
	members    *testutil.FakeMembershipRepository
	invites    *testutil.FakeOrganizationInviteRepository
	regInvites *testutil.FakeRegistrationInviteRepository
	sender     *testutil.RecordingSender
	bus        *testutil.RecordingBus
	issuer     *services.TokenIssuer
	healthErr  error
}

func newAPIFixture() *apiFixture {
	return buildAPIFixture(false)
}

func buildAPIFixture(local bool) *apiFixture {
	logger := testutil.NewTestLogger()
	f := &apiFixture{
		verifier:   &testutil.StubVerifier{},
		users:      testutil.NewFakeUserRepository(),
		sessions:   testutil.NewFakeSessionRepository(),
		members:    testutil.NewFakeMembershipRepository(),
		regInvites: testutil.NewFakeRegistrationInviteRepository(),
		sender:     &testutil.RecordingSender{},
		bus:        &testutil.RecordingBus{},
	}
	f.invites = testutil.NewFakeOrganizationInviteRepository(f.members)

	f.issuer = services.NewTokenIssuer("test-secret", "user-management-test", 15*time.Minute)
	resolver := services.NewIdentityResolver(f.users, config.PolicyTrustedExtended, []string{"google.com", "github.com"}, logger)
	redeemer := services.NewInviteRedeemer(f.invites, f.members, f.regInvites, f.users, logger)
	sessionMgr := services.NewSessionManager(f.sessions, 30*24*time.Hour, logger)
	emitter := services.NewVerificationEmitter(f.bus, logger)
	exchange := services.NewExchangeService(f.verifier, resolver, redeemer, sessionMgr, f.issuer, emitter, f.users, logger)
	registration := services.NewRegistrationService(f.verifier, f.regInvites, f.sender, services.RegistrationConfig{
		FrontendURL:     "https://app.example.com",
		EmailFrom:       "no-reply@example.com",
		InviteTTL:       7 * 24 * time.Hour,
		SystemInviterID: "system",
	}, logger)
	userSvc := services.NewUserService(f.users, logger)

	api := NewUserManagementAPI(
		exchange,
		redeemer,
		registration,
		userSvc,
		sessionMgr,
		middleware.NewAccessTokenAuth(f.issuer),
		CookieSettings{Local: local, AccessTTL: 15 * time.Minute, RefreshTTL: 30 * 24 * time.Hour},
		func(echo.Context) error { return f.healthErr },
	)

	f.e = echo.New()
	api.RegisterRoutes(f.e)
	return f
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func verifiedClaims() *domain.IdentityClaims {
	return &domain.IdentityClaims{
		ExternalID:    "ext-abc",
		Email:         "jordan@example.com",
		EmailVerified: true,
		Provider:      "google.com",
	}
}

func TestExchangeHandlerSetsAuthCookies(t *testing.T) {
	f := newAPIFixture()
	f.verifier.Claims = verifiedClaims()

	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	access := findCookie(cookies, accessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "/", access.Path)
	assert.True(t, access.HttpOnly)
	assert.True(t, access.Secure)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, int((15 * time.Minute).Seconds()), access.MaxAge)

	refresh := findCookie(cookies, refreshTokenCookie)
	require.NotNil(t, refresh)
	assert.Equal(t, refreshCookiePath, refresh.Path)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), refresh.MaxAge)

	claims, err := f.issuer.ParseAccessToken(access.Value)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.SessionID)

	body := decodeBody(t, rec)
	assert.Equal(t, "Login successful", body["message"])
	user := body["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, true, user["is_verified"])
	assert.Equal(t, "jordan", user["username"])
}

func TestExchangeHandlerMissingAuthHeader(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(httptest.NewRequest(http.MethodPost, "/auth/exchange", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "MISSING_AUTH_HEADER", decodeBody(t, rec)["code"])
}

func TestExchangeHandlerUnverifiableIdentity(t *testing.T) {
	f := newAPIFixture()
	f.verifier.Claims = &domain.IdentityClaims{
		ExternalID: "ext-x",
		Email:      "pat@example.com",
		Provider:   "password",
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	rec := f.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", decodeBody(t, rec)["code"])
	assert.Nil(t, findCookie(rec.Result().Cookies(), accessTokenCookie))
}

func TestExchangeHandlerWithTeamInvite(t *testing.T) {
	f := newAPIFixture()
	f.verifier.Claims = verifiedClaims()
	_, err := f.invites.CreateInvite(context.Background(), &domain.OrganizationInvite{
		TokenHash:      services.HashToken("invite-token"),
		Email:          "jordan@example.com",
		OrganizationID: "org-1",
		Role:           "member",
		ExpiresAt:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	req.Header.Set("X-Team-Invite-Token", "invite-token")
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, string(domain.InviteStatusAccepted), data["invite_status"])
	membership := data["membership"].(map[string]any)
	assert.Equal(t, "org-1", membership["organization_id"])
}

func (f *apiFixture) login(t *testing.T) (*http.Cookie, *http.Cookie) {
	t.Helper()
	f.verifier.Claims = verifiedClaims()
	req := httptest.NewRequest(http.MethodPost, "/auth/exchange", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	access := findCookie(cookies, accessTokenCookie)
	refresh := findCookie(cookies, refreshTokenCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func TestSessionHandler(t *testing.T) {
	f := newAPIFixture()
	_, refresh := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: refresh.Value})
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, findCookie(rec.Result().Cookies(), accessTokenCookie))
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.NotEmpty(t, data["session_id"])
}

func TestSessionHandlerWithoutCookie(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "NOT_AUTHENTICATED", decodeBody(t, rec)["code"])
}

func TestLogoutHandlerRevokesAndClearsCookies(t *testing.T) {
	f := newAPIFixture()
	_, refresh := f.login(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: refresh.Value})
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		cleared := findCookie(rec.Result().Cookies(), name)
		require.NotNil(t, cleared, name)
		assert.Less(t, cleared.MaxAge, 0, name)
	}

	req = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: refresh.Value})
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "SESSION_REVOKED", decodeBody(t, rec)["code"])
}

// A real user agent only sends a cookie to endpoints matching its Path
// attribute, so the refresh cookie's scope must cover session validation and
// logout alike. Driving the server through a cookie jar exercises that
// path-matching end to end.
func TestRefreshCookieReachesSessionAndLogout(t *testing.T) {
	f := buildAPIFixture(true) // local mode, the jar only sends Secure cookies over TLS
	f.verifier.Claims = verifiedClaims()

	srv := httptest.NewServer(f.e)
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/exchange", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/auth/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/auth/logout", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The cleared cookie leaves the jar, so the next check is anonymous.
	resp, err = client.Get(srv.URL + "/auth/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	require.Equal(t, 1, f.sessions.Count())
	sessions, err := f.sessions.ListSessionsByUserID(context.Background(), f.mustUserID(t))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Revoked())
}

func (f *apiFixture) mustUserID(t *testing.T) string {
	t.Helper()
	users, err := f.users.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	return users[0].ID
}

func TestValidateInviteHandler(t *testing.T) {
	f := newAPIFixture()
	_, err := f.invites.CreateInvite(context.Background(), &domain.OrganizationInvite{
		TokenHash:      services.HashToken("invite-token"),
		Email:          "jordan@example.com",
		OrganizationID: "org-1",
		ExpiresAt:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/invite?token=invite-token", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	invite := decodeBody(t, rec)["data"].(map[string]any)["invite"].(map[string]any)
	assert.Equal(t, true, invite["is_valid"])
	assert.Equal(t, "org-1", invite["organization_id"])
}

func TestValidateInviteHandlerMissingToken(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/invite", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELD", decodeBody(t, rec)["code"])
}

func TestSelfRegisterHandler(t *testing.T) {
	f := newAPIFixture()
	f.verifier.Claims = &domain.IdentityClaims{ExternalID: "ext-1", Email: "dana@example.com"}

	req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	rec := f.do(req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.NotEmpty(t, data["invite_id"])
	assert.Len(t, f.sender.Emails(), 1)
}

func TestSelfRegisterHandlerNotificationFailure(t *testing.T) {
	f := newAPIFixture()
	f.verifier.Claims = &domain.IdentityClaims{ExternalID: "ext-1", Email: "dana@example.com"}
	f.sender.Err = assert.AnError

	req := httptest.NewRequest(http.MethodPost, "/auth/register", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer id-token")
	rec := f.do(req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "NOTIFICATION_FAILED", decodeBody(t, rec)["code"])
}

func TestVerifyAccountHandler(t *testing.T) {
	f := newAPIFixture()
	_, err := f.regInvites.CreateInvite(context.Background(), &domain.RegistrationInvite{
		Token:      "reg-tok",
		Email:      "dana@example.com",
		ExternalID: "ext-dana",
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/auth/verify?token=reg-tok", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, true, user["is_verified"])

	rec = f.do(httptest.NewRequest(http.MethodGet, "/auth/verify?token=reg-tok", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVITE_ALREADY_REDEEMED", decodeBody(t, rec)["code"])
}

func TestUserRoutesRequireAccessToken(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/user", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func (f *apiFixture) accessToken(t *testing.T) string {
	t.Helper()
	token, err := f.issuer.MintAccessToken("admin-1", "session-admin")
	require.NoError(t, err)
	return token
}

func TestUserCRUDHandlers(t *testing.T) {
	f := newAPIFixture()
	token := f.accessToken(t)

	req := httptest.NewRequest(http.MethodPost, "/user", strings.NewReader(`{"email":"lee@example.com"}`))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	userID := created["id"].(string)
	assert.Equal(t, "lee", created["username"])

	req = httptest.NewRequest(http.MethodGet, "/user/"+userID, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPatch, "/user/"+userID, strings.NewReader(`{"username":"lee-updated"}`))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody(t, rec)["data"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "lee-updated", updated["username"])

	req = httptest.NewRequest(http.MethodDelete, "/user/"+userID, nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, f.users.Count())
}

func TestListUsersHandlerEmailFilter(t *testing.T) {
	f := newAPIFixture()
	token := f.accessToken(t)
	_, err := f.users.CreateUser(context.Background(), &domain.User{
		ExternalID: "ext-1",
		Email:      "lee@example.com",
		Username:   "lee",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/user?email=lee@example.com", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	users := decodeBody(t, rec)["data"].(map[string]any)["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "lee", users[0].(map[string]any)["username"])

	req = httptest.NewRequest(http.MethodGet, "/user?email=nobody@example.com", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = f.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsHandler(t *testing.T) {
	f := newAPIFixture()
	access, _ := f.login(t)

	req := httptest.NewRequest(http.MethodGet, "/user/sessions", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+access.Value)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessions := decodeBody(t, rec)["data"].(map[string]any)["sessions"].([]any)
	require.Len(t, sessions, 1)
}

func TestUpdateUserHandlerRejectsUnknownFields(t *testing.T) {
	f := newAPIFixture()
	token := f.accessToken(t)
	created, err := f.users.CreateUser(context.Background(), &domain.User{
		ExternalID: "ext-1",
		Email:      "lee@example.com",
		Username:   "lee",
	})
	require.NoError(t, err)

	// is_verified is not updatable through this endpoint.
	req := httptest.NewRequest(http.MethodPatch, "/user/"+created.ID, strings.NewReader(`{"is_verified":true}`))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_FIELD", decodeBody(t, rec)["code"])

	stored, err := f.users.GetUserByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsVerified)
}

func TestUpdateUserHandlerRejectsEmptyUpdate(t *testing.T) {
	f := newAPIFixture()
	token := f.accessToken(t)

	req := httptest.NewRequest(http.MethodPatch, "/user/any-id", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := f.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "EMPTY_UPDATE", decodeBody(t, rec)["code"])
}

func TestHealthHandler(t *testing.T) {
	f := newAPIFixture()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	f.healthErr = assert.AnError
	rec = f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody(t, rec)["status"])
}
