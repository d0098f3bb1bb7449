package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"church-messaging/internal/auth"
	"church-messaging/internal/config"
	"church-messaging/internal/httpapi"
	"church-messaging/internal/identity"
	"church-messaging/internal/messaging"
	"church-messaging/internal/telephony"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	c := config.Config{
		App:    config.AppConfig{Env: "local", Port: 8080},
		DB:     config.DBConfig{Host: "localhost", Port: 5432, User: "u", Name: "church"},
		Auth:   config.AuthConfig{JWTSecret: "secret"},
		Twilio: config.TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+15550000000"},
	}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

func newRouter(t *testing.T, d routeDeps) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(testConfig().Auth)
	require.NoError(t, err)
	d.AuthMW = auth.RequireAccessToken(m)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	registerRoutes(r, d)
	return r, m
}

func token(t *testing.T, m *auth.Manager, churchID, role string) string {
	t.Helper()
	p, err := m.IssuePair(time.Now(), "admin-1", churchID, role)
	require.NoError(t, err)
	return "Bearer " + p.AccessToken
}

func serve(r *gin.Engine, method, target, authz, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBuildDeps_RouteTable(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, err := buildDeps(testConfig(), db, nil)
	require.NoError(t, err)
	assert.Nil(t, d.API.Sync.Gate)
	d.DB = nil
	r, m := newRouter(t, d)

	w := serve(r, http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodPost, "/checkTwilioMessages", "", "application/json", `{}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/sendSMS", "", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = serve(r, http.MethodGet, "/nope", "", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodOptions, "/sendSMS", "", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	// staff may not read reports
	w = serve(r, http.MethodGet, "/reports/messages?churchId=church-A", token(t, m, "church-A", "staff"), "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// webhook is public and rejects missing fields before touching storage
	w = serve(r, http.MethodPost, "/smsWebhook", "", "application/x-www-form-urlencoded", "From=%2B17035551234")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, telephony.EmptyTwiML, w.Body.String())
}

func TestBuildDeps_RedisEnablesIndexAndGate(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d, err := buildDeps(testConfig(), db, rdb)
	require.NoError(t, err)
	assert.NotNil(t, d.API.Sync.Gate)

	p, ok := d.Webhook.Pipeline.(*messaging.Pipeline)
	require.True(t, ok)
	ir, indexed := p.Resolver.(*identity.IndexedResolver)
	require.True(t, indexed)
	assert.NotNil(t, ir.Versions)
	assert.NotNil(t, d.API.Roster)
}

func TestWebhook_MemberMessageFansOut(t *testing.T) {
	store := messaging.NewMemoryStore()
	store.AddChurch("church-A")
	store.AddMember("church-A", "m-1", "7035551234")
	rec := messaging.NewReconciler(store, store)

	r, m := newRouter(t, routeDeps{
		Webhook: telephony.TwilioSMSWebhookHandler{Pipeline: &messaging.Pipeline{
			Resolver:   identity.NewScanResolver(store),
			Persister:  messaging.NewPersister(store),
			Reconciler: rec,
		}},
		API: httpapi.Handlers{Counters: store},
	})

	form := url.Values{"From": {"7035551234"}, "To": {"+15550000000"}, "Body": {"Hello"}, "MessageSid": {"SM1"}}
	w := serve(r, http.MethodPost, "/smsWebhook", "", "application/x-www-form-urlencoded", form.Encode())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<Response></Response>", w.Body.String())

	global := store.Docs(messaging.GlobalMessages)
	require.Len(t, global, 1)
	assert.Equal(t, "church-A", global[0].ChurchID)
	assert.Equal(t, "m-1", global[0].MemberID)
	assert.Len(t, store.Docs(messaging.ChurchMessages("church-A")), 1)
	assert.Len(t, store.Docs(messaging.MemberMessages("m-1")), 1)

	counts, err := store.GetCounter(context.Background(), "church-A", messaging.AudienceMembers)
	require.NoError(t, err)
	assert.Equal(t, 1, counts["m-1"])

	w = serve(r, http.MethodGet, "/unreadCounts?churchId=church-A", token(t, m, "church-A", "admin"), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"audience":"members","counts":{"m-1":1}}`, w.Body.String())

	w = serve(r, http.MethodGet, "/unreadCounts?churchId=church-B", token(t, m, "church-A", "admin"), "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
