package templates

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

const (
	defaultHTTPLoaderTimeout       = 10 * time.Second
	maximumTemplateBodyBytes       = 4 << 20
	errorMessageMissingBaseURL     = "templates: missing base url"
	errorMessageInvalidBaseURL     = "templates: invalid base url"
	errorMessageTemplateTooLarge   = "templates: template exceeds size limit"
	errorMessageBuildRequest       = "templates: build request"
	httpHeaderAccept               = "Accept"
	httpHeaderAcceptValueFragments = "text/html"
)

var (
	// ErrMissingBaseURL indicates the HTTP loader was configured without a base URL.
	ErrMissingBaseURL = errors.New(errorMessageMissingBaseURL)

	errTemplateTooLarge = errors.New(errorMessageTemplateTooLarge)
)

// HTTPLoaderConfig configures an HTTPLoader.
type HTTPLoaderConfig struct {
	BaseURL      string
	TemplateRoot string
	Client       *http.Client
}

// HTTPLoader fetches fragments with GET <base-url>/<template-root>/<page-id>.html.
type HTTPLoader struct {
	baseURL      *url.URL
	templateRoot string
	client       *http.Client
}

func NewHTTPLoader(configuration HTTPLoaderConfig) (*HTTPLoader, error) {
	trimmedBaseURL := strings.TrimSpace(configuration.BaseURL)
	if trimmedBaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	parsedBaseURL, parseErr := url.Parse(trimmedBaseURL)
	if parseErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageInvalidBaseURL, parseErr)
	}
	if parsedBaseURL.Scheme == "" || parsedBaseURL.Host == "" {
		return nil, fmt.Errorf("%s: %q", errorMessageInvalidBaseURL, trimmedBaseURL)
	}

	templateRoot := strings.TrimSpace(configuration.TemplateRoot)
	if templateRoot == "" {
		templateRoot = DefaultTemplateRoot
	}

	client := configuration.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPLoaderTimeout}
	}

	return &HTTPLoader{
		baseURL:      parsedBaseURL,
		templateRoot: templateRoot,
		client:       client,
	}, nil
}

// URL returns the absolute fragment URL for a page.
func (loader *HTTPLoader) URL(pageID pages.ID) string {
	resolved := *loader.baseURL
	resolved.Path = strings.TrimSuffix(resolved.Path, "/") + "/" + TemplatePath(loader.templateRoot, pageID)
	resolved.RawQuery = ""
	resolved.Fragment = ""
	return resolved.String()
}

func (loader *HTTPLoader) Load(ctx context.Context, pageID pages.ID) (string, error) {
	templateURL := loader.URL(pageID)

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, templateURL, nil)
	if requestErr != nil {
		return "", fmt.Errorf("%s: %w", errorMessageBuildRequest, requestErr)
	}
	request.Header.Set(httpHeaderAccept, httpHeaderAcceptValueFragments)

	response, responseErr := loader.client.Do(request)
	if responseErr != nil {
		return "", &FetchError{PageID: pageID, Path: templateURL, Kind: ErrTemplateTransport, Cause: responseErr}
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maximumTemplateBodyBytes))
		return "", &FetchError{
			PageID:     pageID,
			Path:       templateURL,
			StatusCode: response.StatusCode,
			Kind:       classifyStatus(response.StatusCode),
		}
	}

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maximumTemplateBodyBytes+1))
	if readErr != nil {
		return "", &FetchError{PageID: pageID, Path: templateURL, StatusCode: response.StatusCode, Kind: ErrTemplateTransport, Cause: readErr}
	}
	if len(body) > maximumTemplateBodyBytes {
		return "", &FetchError{PageID: pageID, Path: templateURL, StatusCode: response.StatusCode, Kind: ErrTemplateTransport, Cause: errTemplateTooLarge}
	}
	return string(body), nil
}
