package templates

import (
	"context"
	"errors"
	"io/fs"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

// FileSystemLoader reads fragments from an fs.FS, such as an embedded asset tree or os.DirFS.
type FileSystemLoader struct {
	fileSystem   fs.FS
	templateRoot string
}

func NewFileSystemLoader(fileSystem fs.FS, templateRoot string) *FileSystemLoader {
	if templateRoot == "" {
		templateRoot = DefaultTemplateRoot
	}
	return &FileSystemLoader{fileSystem: fileSystem, templateRoot: templateRoot}
}

func (loader *FileSystemLoader) Load(ctx context.Context, pageID pages.ID) (string, error) {
	templatePath := TemplatePath(loader.templateRoot, pageID)
	if contextErr := ctx.Err(); contextErr != nil {
		return "", &FetchError{PageID: pageID, Path: templatePath, Kind: ErrTemplateTransport, Cause: contextErr}
	}

	content, readErr := fs.ReadFile(loader.fileSystem, templatePath)
	if readErr != nil {
		if errors.Is(readErr, fs.ErrNotExist) {
			return "", &FetchError{PageID: pageID, Path: templatePath, Kind: ErrTemplateNotFound, Cause: readErr}
		}
		return "", &FetchError{PageID: pageID, Path: templatePath, Kind: ErrTemplateTransport, Cause: readErr}
	}
	return string(content), nil
}
