package httpapi

import (
	"embed"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	ShellScriptRoutePath = "/shell.js"
	// PageTemplateRoot is the directory of page fragments inside PageTemplateFiles.
	PageTemplateRoot      = "templates/pages"
	javaScriptContentType = "application/javascript; charset=utf-8"
)

//go:embed templates/shell.tmpl
var ShellDocumentHTML string

//go:embed templates/pages.yaml
var PageManifestYAML []byte

// PageTemplateFiles holds one <id>.html fragment per page of PageManifestYAML.
//
//go:embed templates/pages/*.html
var PageTemplateFiles embed.FS

//go:embed assets/shell.js
var shellScriptJS []byte

// ShellScript serves the script that turns navigation links into in-place navigations.
func ShellScript(context *gin.Context) {
	context.Header("Cache-Control", "no-cache")
	context.Data(http.StatusOK, javaScriptContentType, shellScriptJS)
}
