package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pinredeem/internal/domain"
	"pinredeem/internal/infra/chrome"
)

type fakeRedeemer struct {
	got    []domain.RedemptionRequest
	result domain.RedemptionResult
}

func (f *fakeRedeemer) Redeem(_ context.Context, req domain.RedemptionRequest) domain.RedemptionResult {
	f.got = append(f.got, req)
	return f.result
}

type fakeBrowser struct {
	ready bool
	stats chrome.Stats
}

func (f fakeBrowser) Ready(context.Context) bool { return f.ready }
func (f fakeBrowser) Stats() chrome.Stats        { return f.stats }

const validBody = `{"pin_key":"AAAA-BBBB-CCCC","full_name":"Juan Pérez","birth_date":"15/03/1990","player_id":"123456789","country":"Argentina"}`

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestRedeem_ReturnsResult(t *testing.T) {
	r := &fakeRedeemer{result: domain.RedemptionResult{
		Success:    true,
		Message:    "PIN redeemed successfully",
		Details:    "successfully redeemed",
		PlayerName: "JuanP",
	}}
	app := fiber.New()
	app.Post("/redeem", Redeem(r))

	req := httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"success":     true,
		"message":     "PIN redeemed successfully",
		"details":     "successfully redeemed",
		"player_name": "JuanP",
	}, decode(t, resp))
	require.Len(t, r.got, 1)
	assert.Equal(t, "Juan Pérez", r.got[0].FullName)
	assert.Equal(t, "Argentina", r.got[0].Country)
}

func TestRedeem_FailedOutcomeIsStill200(t *testing.T) {
	r := &fakeRedeemer{result: domain.Failed("PIN error", "The site returned an error related to: 'expired'")}
	app := fiber.New()
	app.Post("/redeem", Redeem(r))

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(validBody)))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	out := decode(t, resp)
	assert.Equal(t, false, out["success"])
	assert.NotContains(t, out, "player_name")
}

func TestRedeem_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"malformed", `{"pin_key":`, "Invalid JSON body"},
		{"empty", ``, "Invalid JSON body"},
		{"missing field", `{"pin_key":"A","full_name":"B","birth_date":"C","player_id":"D"}`, "missing required field: country"},
		{"blank field", `{"pin_key":"  ","full_name":"B","birth_date":"C","player_id":"D","country":"E"}`, "missing required field: pin_key"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &fakeRedeemer{}
			app := fiber.New()
			app.Post("/redeem", Redeem(r))

			resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/redeem", strings.NewReader(tc.body)))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tc.message)
			assert.Empty(t, r.got, "redeemer must not run on invalid input")
		})
	}
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/down", Health(fakeBrowser{ready: false}))
	app.Get("/up", Health(fakeBrowser{ready: true}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/down", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "unavailable", "browser_ready": false}, decode(t, resp))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/up", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "ok", "browser_ready": true}, decode(t, resp))
}

func TestMetrics(t *testing.T) {
	b := fakeBrowser{ready: true, stats: chrome.Stats{Enabled: true, Capacity: 2, Idle: 1, InUse: 1, Restarts: 3}}
	app := fiber.New()
	app.Get("/metrics", Metrics(b, time.Now().Add(-time.Minute)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, true, out["browser_connected"])
	assert.Greater(t, out["goroutines"].(float64), 0.0)
	assert.Greater(t, out["sys_mb"].(float64), 0.0)
	assert.GreaterOrEqual(t, out["uptime_seconds"].(float64), 60.0)

	browser := out["browser"].(map[string]any)
	assert.Equal(t, float64(2), browser["capacity"])
	assert.Equal(t, float64(1), browser["in_use"])
	assert.Equal(t, float64(3), browser["restarts"])
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 1.5, round1(1.46))
	assert.Equal(t, 0.0, round1(0.01))
	assert.Equal(t, 12.3, round1(12.34))
}
