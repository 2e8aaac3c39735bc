package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/controllers"
	"github.com/MarkoPoloResearchLab/pageshell/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
	"github.com/MarkoPoloResearchLab/pageshell/internal/storage"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
	"github.com/MarkoPoloResearchLab/pageshell/internal/testutil"
)

const (
	testSessionSecret     = "fedcba9876543210fedcba9876543210"
	testNavigationWait    = 3 * time.Second
	testEventualTimeout   = 3 * time.Second
	testPollInterval      = 10 * time.Millisecond
	jsonContentTypeHeader = "application/json"
)

type apiHarness struct {
	router  *gin.Engine
	manager *session.Manager
	journal *storage.Journal
	catalog *pages.Catalog
}

type harnessOptions struct {
	withoutHistory bool
	shellDocument  string
}

func buildAPIHarness(testingT *testing.T) apiHarness {
	return buildAPIHarnessWithOptions(testingT, harnessOptions{})
}

func buildAPIHarnessWithOptions(testingT *testing.T, options harnessOptions) apiHarness {
	testingT.Helper()

	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	catalog, catalogErr := pages.ParseManifest(httpapi.PageManifestYAML)
	require.NoError(testingT, catalogErr)
	registry := controller.NewRegistry()
	require.NoError(testingT, controllers.RegisterAll(registry, catalog, controllers.Options{
		Accounts: controllers.NewStaticAccountSource(controllers.DemoAccount()),
	}))

	shellDocument := httpapi.ShellDocumentHTML
	if options.shellDocument != "" {
		shellDocument = options.shellDocument
	}
	journal := testutil.NewTestJournal(testingT)
	manager, managerErr := session.NewManager(session.Config{
		ShellDocument: shellDocument,
		Loader:        templates.NewFileSystemLoader(httpapi.PageTemplateFiles, httpapi.PageTemplateRoot),
		Catalog:       catalog,
		Registry:      registry,
		Journal:       journal,
		RouterOptions: shell.Options{},
		Logger:        logger,
	}, session.NewCookieStore(testSessionSecret, false))
	require.NoError(testingT, managerErr)
	testingT.Cleanup(manager.Stop)

	var history httpapi.NavigationHistory = journal
	if options.withoutHistory {
		history = nil
	}
	shellHandlers := httpapi.NewShellHandlers(catalog, manager, history, logger).WithNavigationWait(testNavigationWait)
	templateHandlers := httpapi.NewPageTemplateHandlers(httpapi.PageTemplateFiles, httpapi.PageTemplateRoot, catalog, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestLogger(logger))
	router.GET(httpapi.PageTemplateRoutePath, templateHandlers.ServeTemplate)
	router.GET(httpapi.ShellScriptRoutePath, httpapi.ShellScript)
	router.GET(httpapi.PagesRoutePath, shellHandlers.Pages)
	router.GET(httpapi.HealthRoutePath, shellHandlers.Health)

	shellGroup := router.Group("/")
	shellGroup.Use(httpapi.RequireShell(manager, logger))
	shellGroup.GET(httpapi.ShellRoutePath, shellHandlers.RenderShell)
	shellGroup.POST(httpapi.NavigateRoutePath, shellHandlers.Navigate)
	shellGroup.GET(httpapi.StateRoutePath, shellHandlers.State)
	shellGroup.GET(httpapi.EventsRoutePath, shellHandlers.StreamEvents)
	shellGroup.GET(httpapi.SocketRoutePath, shellHandlers.StreamSocket)
	shellGroup.GET(httpapi.HistoryRoutePath, shellHandlers.History)

	return apiHarness{
		router:  router,
		manager: manager,
		journal: journal,
		catalog: catalog,
	}
}

// startTestServer serves handler on a loopback listener and skips when none can be opened.
func startTestServer(testingT *testing.T, handler http.Handler) *httptest.Server {
	testingT.Helper()

	listener, listenErr := net.Listen("tcp", "127.0.0.1:0")
	if listenErr != nil {
		testingT.Skipf("network listener unavailable: %v", listenErr)
	}
	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	server.Start()
	testingT.Cleanup(server.Close)
	return server
}

// performRequest sends one request with the given cookies and returns the recorder.
func performRequest(testingT *testing.T, router *gin.Engine, method string, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	testingT.Helper()
	var requestBody io.Reader
	if body != nil {
		switch typed := body.(type) {
		case string:
			requestBody = bytes.NewBufferString(typed)
		default:
			encoded, encodeErr := json.Marshal(body)
			require.NoError(testingT, encodeErr)
			requestBody = bytes.NewReader(encoded)
		}
	}
	request := httptest.NewRequest(method, path, requestBody)
	if body != nil {
		request.Header.Set("Content-Type", jsonContentTypeHeader)
	}
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

// openShell opens a shell through the API and returns its session cookies.
func openShell(testingT *testing.T, harness apiHarness) []*http.Cookie {
	testingT.Helper()
	recorder := performRequest(testingT, harness.router, http.MethodGet, httpapi.ShellRoutePath, nil, nil)
	require.Equal(testingT, http.StatusOK, recorder.Code)
	cookies := recorder.Result().Cookies()
	require.NotEmpty(testingT, cookies)
	return cookies
}

func decodeJSON(testingT *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testingT.Helper()
	require.NoError(testingT, json.Unmarshal(recorder.Body.Bytes(), target), recorder.Body.String())
}
