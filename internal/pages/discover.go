package pages

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// TemplateExtension is the file suffix of page template fragments.
	TemplateExtension = ".html"

	templateGlobPattern          = "*" + TemplateExtension
	errorMessageDiscoverTemplate = "pages: discover templates"
)

// DiscoverTemplates lists page identifiers for every fragment directly under root in fsys.
// Files whose names are not valid page identifiers are returned separately.
func DiscoverTemplates(fsys fs.FS, root string) ([]ID, []string, error) {
	cleanRoot := strings.Trim(path.Clean("/"+root), "/")
	pattern := templateGlobPattern
	if cleanRoot != "" {
		pattern = cleanRoot + "/" + templateGlobPattern
	}

	matches, globErr := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if globErr != nil {
		return nil, nil, fmt.Errorf("%s: %w", errorMessageDiscoverTemplate, globErr)
	}
	sort.Strings(matches)

	identifiers := make([]ID, 0, len(matches))
	var invalidNames []string
	for _, match := range matches {
		baseName := strings.TrimSuffix(path.Base(match), TemplateExtension)
		parsedID, parseErr := ParseID(baseName)
		if parseErr != nil {
			invalidNames = append(invalidNames, match)
			continue
		}
		identifiers = append(identifiers, parsedID)
	}
	return identifiers, invalidNames, nil
}
