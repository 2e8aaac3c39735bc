package httpapi

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
)

const (
	PageTemplateRoutePath  = "/templates/pages/:file"
	pageTemplateParamFile  = "file"
	errorValueUnknownPage  = "unknown_page"
	errorValueReadTemplate = "template_unavailable"
	logEventReadTemplate   = "read_page_template_failed"
)

// PageTemplateHandlers serves page fragments from a file system, one <id>.html per catalog page.
type PageTemplateHandlers struct {
	files   fs.FS
	root    string
	catalog *pages.Catalog
	logger  *zap.Logger
}

func NewPageTemplateHandlers(files fs.FS, root string, catalog *pages.Catalog, logger *zap.Logger) *PageTemplateHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageTemplateHandlers{files: files, root: root, catalog: catalog, logger: logger}
}

func (handlers *PageTemplateHandlers) ServeTemplate(context *gin.Context) {
	fileName := context.Param(pageTemplateParamFile)
	if !strings.HasSuffix(fileName, pages.TemplateExtension) {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueUnknownPage})
		return
	}
	pageID, resolveErr := handlers.catalog.Resolve(strings.TrimSuffix(fileName, pages.TemplateExtension))
	if resolveErr != nil {
		context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueUnknownPage})
		return
	}

	fragment, readErr := fs.ReadFile(handlers.files, templates.TemplatePath(handlers.root, pageID))
	if readErr != nil {
		if errors.Is(readErr, fs.ErrNotExist) {
			context.JSON(http.StatusNotFound, gin.H{jsonKeyError: errorValueUnknownPage})
			return
		}
		handlers.logger.Error(logEventReadTemplate, zap.String("page_id", pageID.String()), zap.Error(readErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueReadTemplate})
		return
	}
	context.Header("Cache-Control", "no-cache")
	context.Data(http.StatusOK, shellContentType, fragment)
}
