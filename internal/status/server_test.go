package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratyard/tradecore/internal/alert"
	"github.com/stratyard/tradecore/internal/models"
	"github.com/stratyard/tradecore/internal/options"
	"github.com/stratyard/tradecore/internal/risk"
)

type fakeChainSource struct{ spot float64 }

func (f fakeChainSource) GetSpotPrice(ctx context.Context, underlying string) (float64, error) {
	return f.spot, nil
}

func (f fakeChainSource) LoadMarkets(ctx context.Context, underlying string) ([]models.OptionContract, error) {
	return nil, nil
}

func (f fakeChainSource) GetContractTicker(ctx context.Context, c models.OptionContract) (bid, ask, last float64, oi int64, err error) {
	return 0, 0, 0, 0, nil
}

func testRiskConfig() models.OptionsRiskConfig {
	return models.OptionsRiskConfig{
		RiskConfig: models.RiskConfig{
			MaxPositionSizePct: 50,
			DailyLossLimitPct:  50,
			MaxDrawdownPct:     90,
			CooldownMinutes:    1,
		},
	}
}

func newTestServer(authToken string) *Server {
	adapter := options.NewAdapter(fakeChainSource{spot: 100}, options.DefaultConfig(), 10000)
	riskMgr := risk.NewOptionsManager(testRiskConfig())
	alerts := alert.NewSink(10, alert.StdoutEmitter{})
	return NewServer(Config{Port: 0, AuthToken: authToken}, adapter, riskMgr, alerts, nil)
}

func TestHealthEndpointNeverRequiresAuth(t *testing.T) {
	s := newTestServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusEndpointRequiresAuthWhenTokenConfigured(t *testing.T) {
	s := newTestServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusEndpointAcceptsValidAuthTokenHeader(t *testing.T) {
	s := newTestServer("secret")
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-Auth-Token", "secret")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body statusView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 10000.0, body.Cash)
	assert.Equal(t, 0, body.OpenPositions)
}

func TestStatusEndpointSkipsAuthWhenNoTokenConfigured(t *testing.T) {
	s := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAlertsEndpointReturnsSinkHistory(t *testing.T) {
	s := newTestServer("")
	s.alerts.Info("tick", "hello")

	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []alert.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "hello", events[0].Message)
}
