package httpapi_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarkoPoloResearchLab/pageshell/internal/httpapi"
	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
)

type failingResolver struct{}

func (failingResolver) Resolve(http.ResponseWriter, *http.Request) (*session.Shell, error) {
	return nil, errors.New("no shells today")
}

func TestRequireShellAbortsWhenResolveFails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handlerCalled := false
	router := gin.New()
	router.GET("/probe", httpapi.RequireShell(failingResolver{}, nil), func(context *gin.Context) {
		handlerCalled = true
		context.Status(http.StatusOK)
	})

	recorder := performRequest(t, router, http.MethodGet, "/probe", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, recorder.Code)
	require.JSONEq(t, `{"error":"shell_unavailable"}`, recorder.Body.String())
	require.False(t, handlerCalled)
}

func TestShellFromContextWithoutShell(t *testing.T) {
	gin.SetMode(gin.TestMode)
	context, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, found := httpapi.ShellFromContext(context)
	require.False(t, found)
}

func TestRequestLoggerIncludesShell(t *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.InfoLevel)
	harness := buildAPIHarness(t)
	router := gin.New()
	router.Use(httpapi.RequestLogger(zap.New(observedCore)))
	router.Use(httpapi.RequireShell(harness.manager, nil))
	router.GET("/probe", func(context *gin.Context) {
		context.Status(http.StatusNoContent)
	})

	recorder := performRequest(t, router, http.MethodGet, "/probe", nil, nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)

	entries := observedLogs.FilterMessage("http").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "/probe", fields["path"])
	require.Equal(t, int64(http.StatusNoContent), fields["status"])
	require.NotEmpty(t, fields["shell_id"])
}
