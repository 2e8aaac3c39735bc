package main

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/pageshell/internal/httpapi"
)

const corsOriginWildcard = "*"

var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodOptions}
	corsAllowedHeaders = []string{"Content-Type"}
	corsExposedHeaders = []string{"Content-Length"}
)

func publicCORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{corsOriginWildcard},
		AllowMethods:     corsAllowedMethods,
		AllowHeaders:     corsAllowedHeaders,
		ExposeHeaders:    corsExposedHeaders,
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}

// preflightNoContent answers OPTIONS requests the CORS middleware lets through.
func preflightNoContent(context *gin.Context) {
	context.Status(http.StatusNoContent)
}

// registerTemplateRoutes exposes page templates to other shell hosts.
func registerTemplateRoutes(router *gin.Engine, templateHandlers *httpapi.PageTemplateHandlers) {
	if templateHandlers == nil {
		return
	}
	templateGroup := router.Group("/")
	templateGroup.Use(publicCORS())
	templateGroup.GET(httpapi.PageTemplateRoutePath, templateHandlers.ServeTemplate)
	templateGroup.OPTIONS(httpapi.PageTemplateRoutePath, preflightNoContent)
}

func registerPublicRoutes(router *gin.Engine, shellHandlers *httpapi.ShellHandlers) {
	publicGroup := router.Group("/")
	publicGroup.Use(publicCORS())
	publicGroup.GET(httpapi.PagesRoutePath, shellHandlers.Pages)
	publicGroup.GET(httpapi.HealthRoutePath, shellHandlers.Health)
	publicGroup.OPTIONS(httpapi.PagesRoutePath, preflightNoContent)
	publicGroup.OPTIONS(httpapi.HealthRoutePath, preflightNoContent)
	router.GET(httpapi.ShellScriptRoutePath, httpapi.ShellScript)
}

// registerShellRoutes binds every route that acts on the caller's shell.
func registerShellRoutes(router *gin.Engine, requireShell gin.HandlerFunc, shellHandlers *httpapi.ShellHandlers) {
	shellGroup := router.Group("/")
	shellGroup.Use(requireShell)
	shellGroup.GET(httpapi.ShellRoutePath, shellHandlers.RenderShell)
	shellGroup.POST(httpapi.NavigateRoutePath, shellHandlers.Navigate)
	shellGroup.GET(httpapi.StateRoutePath, shellHandlers.State)
	shellGroup.GET(httpapi.EventsRoutePath, shellHandlers.StreamEvents)
	shellGroup.GET(httpapi.SocketRoutePath, shellHandlers.StreamSocket)
	shellGroup.GET(httpapi.HistoryRoutePath, shellHandlers.History)
}
