package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/procure-approval/internal/domain/authz"
	httpapi "github.com/garyjia/procure-approval/internal/interfaces/http"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "requisitions.db")
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Worker.StatusPollInterval = 20 * time.Millisecond
	return cfg
}

func startContainer(t *testing.T, cfg *Config) *Container {
	t.Helper()
	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() {
		if !c.closed.Load() {
			_ = c.Close()
		}
	})
	return c
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := DefaultConfig()
	_, err = NewContainer(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "jwt_secret")
}

func TestContainer_Lifecycle(t *testing.T) {
	c := startContainer(t, testConfig(t))

	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()))

	health := c.Health(context.Background())
	assert.True(t, health.Overall, "%+v", health.Components)
	assert.Equal(t, 1, c.Workers().Len())

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = false
	c := startContainer(t, cfg)

	assert.Nil(t, c.Metrics())
	assert.Equal(t, 0, c.Workers().Len())
	assert.Len(t, c.Dispatcher().Handlers("*"), 1)
}

type apiClient struct {
	t      *testing.T
	router http.Handler
	tokens map[string]string
}

func (a *apiClient) call(user, method, path string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if token, ok := a.tokens[user]; ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func (a *apiClient) raw(user, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+a.tokens[user])
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestContainer_EndToEndApproval(t *testing.T) {
	c := startContainer(t, testConfig(t))

	services := c.Services()
	server := httpapi.NewServer(httpapi.DefaultServerConfig(), httpapi.Dependencies{
		Requisitions: services.Requisition,
		Decisions:    services.Decision,
		Identity:     c.Identity(),
		Exporter:     services.Exporter,
		Metrics:      c.Metrics().Handler,
	}, NewLoggerAdapter(zap.NewNop()))

	identities := map[string]authz.Identity{
		"u1": {UserID: "u1", Role: authz.RoleEmployee},
		"m1": {UserID: "m1", Role: authz.RoleManager},
		"m2": {UserID: "m2", Role: authz.RoleManagerAdmin},
		"d1": {UserID: "d1", Role: authz.RoleDirector},
		"x9": {UserID: "x9", Role: authz.RoleManager},
	}
	api := &apiClient{t: t, router: server.Router(), tokens: map[string]string{}}
	for user, id := range identities {
		token, err := c.Identity().Issue(id, time.Hour)
		require.NoError(t, err)
		api.tokens[user] = token
	}

	code, body := api.call("u1", http.MethodPost, "/api/requisitions", map[string]interface{}{
		"description": "workstations",
		"director_id": "d1",
		"managers":    []string{"m1", "m2"},
		"allocations": []map[string]interface{}{
			{"department_id": "eng", "percentage": "70"},
			{"department_id": "ops", "percentage": "30"},
		},
		"quotes": []map[string]interface{}{
			{"supplier": "Acme", "items": []map[string]interface{}{{"description": "pc", "quantity": "3", "unit_price": "1200"}}},
			{"supplier": "Globex", "items": []map[string]interface{}{{"description": "pc", "quantity": "3", "unit_price": "1150"}}},
		},
	})
	require.Equal(t, http.StatusCreated, code, body)

	data := body["data"].(map[string]interface{})
	reqID := data["id"].(string)
	quotes := data["quotes"].([]interface{})
	acme := quotes[0].(map[string]interface{})["id"].(string)
	globex := quotes[1].(map[string]interface{})["id"].(string)

	decide := func(user, quote, seat, decision string) (int, map[string]interface{}) {
		return api.call(user, http.MethodPost,
			fmt.Sprintf("/api/requisitions/%s/quotes/%s/%s", reqID, quote, seat),
			map[string]string{"decision": decision})
	}

	code, _ = decide("x9", acme, "manager", "approve")
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = decide("m1", acme, "manager", "approve")
	require.Equal(t, http.StatusOK, code)

	code, _ = decide("m2", globex, "manager", "approve")
	assert.Equal(t, http.StatusConflict, code)

	code, body = decide("d1", acme, "director", "approve")
	require.Equal(t, http.StatusConflict, code)
	details := body["details"].(map[string]interface{})
	assert.Equal(t, float64(1), details["current"])
	assert.Equal(t, float64(2), details["required"])

	code, _ = decide("m2", acme, "manager", "approve")
	require.Equal(t, http.StatusOK, code)

	code, body = decide("d1", acme, "director", "approve")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "APPROVED", body["data"].(map[string]interface{})["status"])

	code, _ = decide("m1", globex, "manager", "approve")
	assert.Equal(t, http.StatusConflict, code)

	code, body = api.call("u1", http.MethodGet, "/api/requisitions/"+reqID, nil)
	require.Equal(t, http.StatusOK, code)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, "APPROVED", data["status"])
	assert.Equal(t, "d1", data["decided_by"])
	assert.Equal(t, "REJECTED", data["quotes"].([]interface{})[1].(map[string]interface{})["state"])

	code, body = api.call("d1", http.MethodGet, "/api/requisitions/"+reqID+"/records", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 3)

	code, body = api.call("m2", http.MethodGet, "/api/requisitions/inbox?status=APPROVED", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["data"], 1)

	code, _ = api.call("x9", http.MethodGet, "/api/requisitions/"+reqID, nil)
	assert.Equal(t, http.StatusForbidden, code)

	w := api.raw("u1", "/api/requisitions/"+reqID+"/export")
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Records")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	assert.Eventually(t, func() bool {
		m := httptest.NewRecorder()
		server.Router().ServeHTTP(m, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		out := m.Body.String()
		return bytes.Contains([]byte(out), []byte(`procure_requisitions{status="APPROVED"} 1`)) &&
			bytes.Contains([]byte(out), []byte(`procure_decisions_total{result="conflict",seat="manager"} 2`))
	}, 2*time.Second, 20*time.Millisecond)
}
