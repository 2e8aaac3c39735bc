// Package templates loads page template fragments by convention from
// "<template-root>/<page-id>.html", either over HTTP or from a file system.
package templates

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

const (
	// DefaultTemplateRoot is the conventional directory of page fragments.
	DefaultTemplateRoot = "templates/pages"

	errorMessageTemplateNotFound  = "templates: template not found"
	errorMessageTemplateStatus    = "templates: unexpected status"
	errorMessageTemplateTransport = "templates: transport failure"
)

var (
	// ErrTemplateNotFound indicates the fragment does not exist at its conventional path.
	ErrTemplateNotFound = errors.New(errorMessageTemplateNotFound)
	// ErrTemplateStatus indicates a non-2xx status other than 404.
	ErrTemplateStatus = errors.New(errorMessageTemplateStatus)
	// ErrTemplateTransport indicates the fragment could not be reached at all.
	ErrTemplateTransport = errors.New(errorMessageTemplateTransport)
)

// Loader retrieves the HTML fragment of a page.
type Loader interface {
	Load(ctx context.Context, pageID pages.ID) (string, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, pageID pages.ID) (string, error)

func (loaderFunc LoaderFunc) Load(ctx context.Context, pageID pages.ID) (string, error) {
	return loaderFunc(ctx, pageID)
}

// FetchError describes a failed fragment load. Kind is one of ErrTemplateNotFound,
// ErrTemplateStatus or ErrTemplateTransport; Cause holds the lower-level error when present.
type FetchError struct {
	PageID     pages.ID
	Path       string
	StatusCode int
	Kind       error
	Cause      error
}

func (fetchError *FetchError) Error() string {
	switch {
	case fetchError.StatusCode > 0 && fetchError.Cause != nil:
		return fmt.Sprintf("%v: %s (%d): %v", fetchError.Kind, fetchError.Path, fetchError.StatusCode, fetchError.Cause)
	case fetchError.StatusCode > 0:
		return fmt.Sprintf("%v: %s (%d)", fetchError.Kind, fetchError.Path, fetchError.StatusCode)
	case fetchError.Cause != nil:
		return fmt.Sprintf("%v: %s: %v", fetchError.Kind, fetchError.Path, fetchError.Cause)
	default:
		return fmt.Sprintf("%v: %s", fetchError.Kind, fetchError.Path)
	}
}

// Is matches the error kind so errors.Is(err, ErrTemplateNotFound) works.
func (fetchError *FetchError) Is(target error) bool {
	return fetchError.Kind != nil && target == fetchError.Kind
}

func (fetchError *FetchError) Unwrap() error {
	return fetchError.Cause
}

// IsNotFound reports whether err describes a missing fragment.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// AsFetchError extracts the FetchError from err.
func AsFetchError(err error) (*FetchError, bool) {
	var fetchError *FetchError
	if errors.As(err, &fetchError) {
		return fetchError, true
	}
	return nil, false
}

// TemplatePath builds the conventional fragment path for a page.
func TemplatePath(root string, pageID pages.ID) string {
	trimmedRoot := strings.Trim(strings.TrimSpace(root), "/")
	if trimmedRoot == "" {
		return pageID.String() + pages.TemplateExtension
	}
	return trimmedRoot + "/" + pageID.String() + pages.TemplateExtension
}

func classifyStatus(statusCode int) error {
	if statusCode == http.StatusNotFound {
		return ErrTemplateNotFound
	}
	return ErrTemplateStatus
}
