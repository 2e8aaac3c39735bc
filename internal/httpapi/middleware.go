package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
)

const (
	contextKeyShell = "pageshell_shell"

	logEventHTTPRequest   = "http"
	logEventResolveShell  = "resolve_shell_failed"
	errorValueShellFailed = "shell_unavailable"
)

// ShellResolver binds a request to the shell of its session.
type ShellResolver interface {
	Resolve(responseWriter http.ResponseWriter, request *http.Request) (*session.Shell, error)
}

func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(context *gin.Context) {
		start := time.Now()
		context.Next()
		fields := []zap.Field{
			zap.String("method", context.Request.Method),
			zap.String("path", context.Request.URL.Path),
			zap.Int("status", context.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", context.ClientIP()),
			zap.String("ua", context.Request.UserAgent()),
		}
		if shellInstance, found := ShellFromContext(context); found {
			fields = append(fields, zap.String("shell_id", shellInstance.ID))
		}
		logger.Info(logEventHTTPRequest, fields...)
	}
}

// RequireShell resolves the session shell before the handler runs and aborts with 503 when none can be opened.
func RequireShell(resolver ShellResolver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(context *gin.Context) {
		shellInstance, resolveErr := resolver.Resolve(context.Writer, context.Request)
		if resolveErr != nil {
			logger.Error(logEventResolveShell, zap.Error(resolveErr))
			context.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueShellFailed})
			return
		}
		context.Set(contextKeyShell, shellInstance)
		context.Next()
	}
}

func ShellFromContext(context *gin.Context) (*session.Shell, bool) {
	value, exists := context.Get(contextKeyShell)
	if !exists {
		return nil, false
	}
	shellInstance, ok := value.(*session.Shell)
	return shellInstance, ok && shellInstance != nil
}
