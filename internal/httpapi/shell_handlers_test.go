package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/pageshell/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
)

const (
	homeGreetingText    = "مرحباً، سارة"
	walletBalanceText   = "1,250.50 ر.س"
	homePageNodeToken   = `data-page-id="client-home-page"`
	walletPageNodeToken = `data-page-id="wallet"`
)

type historyResponse struct {
	ShellID     string `json:"shell_id"`
	Navigations []struct {
		PageID  string `json:"page_id"`
		Outcome string `json:"outcome"`
	} `json:"navigations"`
	Outcomes map[string]int64 `json:"outcomes"`
}

func TestRenderShellServesDefaultPageAndBindsSession(t *testing.T) {
	harness := buildAPIHarness(t)

	recorder := performRequest(t, harness.router, http.MethodGet, httpapi.ShellRoutePath, nil, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Header().Get("Content-Type"), "text/html")
	body := recorder.Body.String()
	require.Contains(t, body, homePageNodeToken)
	require.Contains(t, body, homeGreetingText)
	require.Contains(t, body, `<script defer="" src="/shell.js"></script>`)

	cookies := recorder.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, session.CookieName, cookies[0].Name)

	secondRecorder := performRequest(t, harness.router, http.MethodGet, httpapi.ShellRoutePath, nil, cookies)
	require.Equal(t, http.StatusOK, secondRecorder.Code)
	require.Empty(t, secondRecorder.Result().Cookies())
	require.Equal(t, 1, harness.manager.Count())
}

func TestRenderShellNavigatesToRequestedPage(t *testing.T) {
	harness := buildAPIHarness(t)
	cookies := openShell(t, harness)

	recorder := performRequest(t, harness.router, http.MethodGet, "/?page=wallet", nil, cookies)
	require.Equal(t, http.StatusOK, recorder.Code)
	body := recorder.Body.String()
	require.Contains(t, body, walletPageNodeToken)
	require.Contains(t, body, walletBalanceText)
	require.NotContains(t, body, homePageNodeToken)
}

func TestNavigateEndpoint(t *testing.T) {
	harness := buildAPIHarness(t)
	cookies := openShell(t, harness)

	testCases := []struct {
		name            string
		path            string
		body            any
		expectedStatus  int
		expectedOutcome shell.Outcome
		expectedError   string
	}{
		{
			name:            "waits for completed navigation",
			path:            httpapi.NavigateRoutePath + "?wait=1",
			body:            map[string]string{"page_id": "shipments"},
			expectedStatus:  http.StatusOK,
			expectedOutcome: shell.OutcomeCompleted,
		},
		{
			name:            "unknown page is rejected",
			path:            httpapi.NavigateRoutePath + "?wait=true",
			body:            map[string]string{"page_id": "nowhere"},
			expectedStatus:  http.StatusOK,
			expectedOutcome: shell.OutcomeRejected,
		},
		{
			name:           "missing page id",
			path:           httpapi.NavigateRoutePath,
			body:           map[string]string{"page_id": "  "},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "missing_page_id",
		},
		{
			name:           "invalid json",
			path:           httpapi.NavigateRoutePath,
			body:           "{",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "invalid_json",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(testingT *testing.T) {
			recorder := performRequest(testingT, harness.router, http.MethodPost, testCase.path, testCase.body, cookies)
			require.Equal(testingT, testCase.expectedStatus, recorder.Code, recorder.Body.String())
			if testCase.expectedError != "" {
				var payload map[string]string
				decodeJSON(testingT, recorder, &payload)
				require.Equal(testingT, testCase.expectedError, payload["error"])
				return
			}
			var result shell.Result
			decodeJSON(testingT, recorder, &result)
			require.Equal(testingT, testCase.expectedOutcome, result.Outcome)
			require.NotEmpty(testingT, result.NavigationID)
		})
	}
}

func TestNavigateWithoutWaitIsAccepted(t *testing.T) {
	harness := buildAPIHarness(t)
	cookies := openShell(t, harness)

	recorder := performRequest(t, harness.router, http.MethodPost, httpapi.NavigateRoutePath, map[string]string{"page_id": "wallet"}, cookies)
	require.Equal(t, http.StatusAccepted, recorder.Code)
	var accepted map[string]string
	decodeJSON(t, recorder, &accepted)
	require.NotEmpty(t, accepted["navigation_id"])
	require.Equal(t, "wallet", accepted["page_id"])

	require.Eventually(t, func() bool {
		stateRecorder := performRequest(t, harness.router, http.MethodGet, httpapi.StateRoutePath, nil, cookies)
		var snapshot session.Snapshot
		if json.Unmarshal(stateRecorder.Body.Bytes(), &snapshot) != nil {
			return false
		}
		return snapshot.CurrentPage == "wallet" && !snapshot.Loading
	}, testEventualTimeout, testPollInterval)
}

func TestStateReportsSnapshot(t *testing.T) {
	harness := buildAPIHarness(t)
	cookies := openShell(t, harness)

	performRequest(t, harness.router, http.MethodPost, httpapi.NavigateRoutePath+"?wait=1", map[string]string{"page_id": "support"}, cookies)
	recorder := performRequest(t, harness.router, http.MethodGet, httpapi.StateRoutePath, nil, cookies)
	require.Equal(t, http.StatusOK, recorder.Code)

	var snapshot session.Snapshot
	decodeJSON(t, recorder, &snapshot)
	require.NotEmpty(t, snapshot.ShellID)
	require.Equal(t, "support", snapshot.CurrentPage)
	require.Equal(t, []string{"support"}, snapshot.ActiveNavTargets)
	require.Contains(t, snapshot.Content, `data-page-id="support"`)
	require.Empty(t, snapshot.ActiveNavigation)
	require.False(t, snapshot.Loading)
}

func TestStateOfShellWithoutMountPoint(t *testing.T) {
	harness := buildAPIHarnessWithOptions(t, harnessOptions{
		shellDocument: `<!doctype html><html><body><nav><a data-page="wallet">المحفظة</a></nav></body></html>`,
	})

	recorder := performRequest(t, harness.router, http.MethodGet, httpapi.StateRoutePath, nil, nil)
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var snapshot session.Snapshot
	decodeJSON(t, recorder, &snapshot)
	require.NotEmpty(t, snapshot.ShellID)
	require.Empty(t, snapshot.CurrentPage)
	require.Empty(t, snapshot.Content)
}

func TestHistoryListsJournalRecords(t *testing.T) {
	harness := buildAPIHarness(t)
	cookies := openShell(t, harness)
	performRequest(t, harness.router, http.MethodPost, httpapi.NavigateRoutePath+"?wait=1", map[string]string{"page_id": "wallet"}, cookies)
	performRequest(t, harness.router, http.MethodPost, httpapi.NavigateRoutePath+"?wait=1", map[string]string{"page_id": "nowhere"}, cookies)

	var history historyResponse
	require.Eventually(t, func() bool {
		recorder := performRequest(t, harness.router, http.MethodGet, httpapi.HistoryRoutePath, nil, cookies)
		if recorder.Code != http.StatusOK || json.Unmarshal(recorder.Body.Bytes(), &history) != nil {
			return false
		}
		return len(history.Navigations) == 3
	}, testEventualTimeout, testPollInterval)

	require.NotEmpty(t, history.ShellID)
	require.Equal(t, int64(2), history.Outcomes[string(shell.OutcomeCompleted)])
	require.Equal(t, int64(1), history.Outcomes[string(shell.OutcomeRejected)])

	limited := performRequest(t, harness.router, http.MethodGet, httpapi.HistoryRoutePath+"?limit=1", nil, cookies)
	require.Equal(t, http.StatusOK, limited.Code)
	var limitedHistory historyResponse
	decodeJSON(t, limited, &limitedHistory)
	require.Len(t, limitedHistory.Navigations, 1)

	invalid := performRequest(t, harness.router, http.MethodGet, httpapi.HistoryRoutePath+"?limit=many", nil, cookies)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
}

func TestHistoryUnavailableWithoutJournal(t *testing.T) {
	harness := buildAPIHarnessWithOptions(t, harnessOptions{withoutHistory: true})
	cookies := openShell(t, harness)

	recorder := performRequest(t, harness.router, http.MethodGet, httpapi.HistoryRoutePath, nil, cookies)
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestPagesListsCatalog(t *testing.T) {
	harness := buildAPIHarness(t)

	recorder := performRequest(t, harness.router, http.MethodGet, httpapi.PagesRoutePath, nil, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var payload struct {
		DefaultPage string `json:"default_page"`
		Pages       []struct {
			ID         string `json:"id"`
			Title      string `json:"title"`
			Nav        bool   `json:"nav"`
			Controller string `json:"controller"`
		} `json:"pages"`
	}
	decodeJSON(t, recorder, &payload)
	require.Equal(t, "client-home-page", payload.DefaultPage)
	require.Len(t, payload.Pages, len(harness.catalog.IDs()))
	controllerNames := make(map[string]string, len(payload.Pages))
	for _, page := range payload.Pages {
		controllerNames[page.ID] = page.Controller
	}
	require.Equal(t, "WalletController", controllerNames["wallet"])
	require.Equal(t, "TrackShipmentController", controllerNames["track-shipment"])
	require.Zero(t, harness.manager.Count())
}

func TestHealthReportsOpenShells(t *testing.T) {
	harness := buildAPIHarness(t)
	openShell(t, harness)

	recorder := performRequest(t, harness.router, http.MethodGet, httpapi.HealthRoutePath, nil, nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var payload struct {
		Status string `json:"status"`
		Shells int    `json:"shells"`
	}
	decodeJSON(t, recorder, &payload)
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, 1, payload.Shells)
}

func TestHandlersRequireResolvedShell(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handlers := httpapi.NewShellHandlers(nil, nil, nil, nil)

	testCases := []struct {
		name    string
		handler gin.HandlerFunc
	}{
		{name: "render", handler: handlers.RenderShell},
		{name: "navigate", handler: handlers.Navigate},
		{name: "state", handler: handlers.State},
		{name: "events", handler: handlers.StreamEvents},
		{name: "history", handler: handlers.History},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(testingT *testing.T) {
			recorder := httptest.NewRecorder()
			context, _ := gin.CreateTestContext(recorder)
			context.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			testCase.handler(context)
			require.Equal(testingT, http.StatusServiceUnavailable, recorder.Code)
		})
	}
}

func TestHTTPLoaderFetchesServedTemplates(t *testing.T) {
	harness := buildAPIHarness(t)
	server := startTestServer(t, harness.router)

	loader, loaderErr := templates.NewHTTPLoader(templates.HTTPLoaderConfig{BaseURL: server.URL, TemplateRoot: httpapi.PageTemplateRoot})
	require.NoError(t, loaderErr)

	fragment, loadErr := loader.Load(context.Background(), "wallet")
	require.NoError(t, loadErr)
	require.Contains(t, fragment, `data-role="balance"`)

	_, loadErr = loader.Load(context.Background(), "nowhere")
	require.True(t, templates.IsNotFound(loadErr))
}
