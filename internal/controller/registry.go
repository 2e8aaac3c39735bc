package controller

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

const (
	errorMessageDuplicateRegistration = "controller: duplicate registration"
	errorMessageMissingFactory        = "controller: missing factory"
	errorMessageUnregisteredPage      = "controller: page has no registered controller"
	errorMessageUnknownRegistration   = "controller: registration for page outside catalog"
	errorMessageBuildController       = "controller: build"
)

var (
	// ErrDuplicateRegistration indicates a page was registered twice.
	ErrDuplicateRegistration = errors.New(errorMessageDuplicateRegistration)
	// ErrMissingFactory indicates a nil factory was registered.
	ErrMissingFactory = errors.New(errorMessageMissingFactory)
	// ErrUnregisteredPage indicates a catalog page without a registration.
	ErrUnregisteredPage = errors.New(errorMessageUnregisteredPage)
	// ErrUnknownRegistration indicates a registration whose page is not in the catalog.
	ErrUnknownRegistration = errors.New(errorMessageUnknownRegistration)
)

// Navigator lets controllers request page changes. Navigation is asynchronous.
type Navigator interface {
	Navigate(pageID string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(pageID string)

func (navigatorFunc NavigatorFunc) Navigate(pageID string) {
	navigatorFunc(pageID)
}

// Notifier surfaces user-visible messages.
type Notifier interface {
	Notify(title string, message string, severity ui.Severity)
}

// Scope is what a controller can reach: navigation, the shell document and notifications.
type Scope struct {
	Navigator Navigator
	Document  *dom.Document
	Notifier  Notifier
	Logger    *zap.Logger
}

// Factory builds the controller of one page for one shell.
type Factory func(scope Scope) (Controller, error)

// Registry maps page identifiers to controller factories.
type Registry struct {
	mutex     sync.RWMutex
	factories map[pages.ID]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[pages.ID]Factory)}
}

// Register binds a factory to a page identifier.
func (registry *Registry) Register(pageID pages.ID, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("%w: %s", ErrMissingFactory, pageID)
	}
	registry.mutex.Lock()
	defer registry.mutex.Unlock()

	if _, exists := registry.factories[pageID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, pageID)
	}
	registry.factories[pageID] = factory
	return nil
}

// RegisterMarkupOnly declares pages that have no controller behaviour.
func (registry *Registry) RegisterMarkupOnly(pageIDs ...pages.ID) error {
	for _, pageID := range pageIDs {
		if registerErr := registry.Register(pageID, markupOnlyFactory); registerErr != nil {
			return registerErr
		}
	}
	return nil
}

// Validate checks that the registry and the catalog describe the same pages.
func (registry *Registry) Validate(catalog *pages.Catalog) error {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	var problems []error
	for _, pageID := range catalog.IDs() {
		if _, registered := registry.factories[pageID]; !registered {
			problems = append(problems, fmt.Errorf("%w: %s (%s)", ErrUnregisteredPage, pageID, pages.ControllerName(pageID)))
		}
	}
	for _, pageID := range registry.sortedIDsLocked() {
		if !catalog.Contains(pageID) {
			problems = append(problems, fmt.Errorf("%w: %s", ErrUnknownRegistration, pageID))
		}
	}
	return errors.Join(problems...)
}

// Registered reports whether a page has a registration.
func (registry *Registry) Registered(pageID pages.ID) bool {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()
	_, registered := registry.factories[pageID]
	return registered
}

// Bind instantiates every registered controller for one shell.
func (registry *Registry) Bind(scope Scope) (*Set, error) {
	registry.mutex.RLock()
	defer registry.mutex.RUnlock()

	set := &Set{handles: make(map[pages.ID]Handle, len(registry.factories))}
	for _, pageID := range registry.sortedIDsLocked() {
		instance, buildErr := registry.factories[pageID](scope)
		if buildErr != nil {
			return nil, fmt.Errorf("%s %s: %w", errorMessageBuildController, pages.ControllerName(pageID), buildErr)
		}
		set.handles[pageID] = Handle{
			PageID:     pageID,
			Name:       pages.ControllerName(pageID),
			Controller: instance,
		}
	}
	return set, nil
}

func (registry *Registry) sortedIDsLocked() []pages.ID {
	identifiers := make([]pages.ID, 0, len(registry.factories))
	for pageID := range registry.factories {
		identifiers = append(identifiers, pageID)
	}
	sort.Slice(identifiers, func(left, right int) bool {
		return identifiers[left] < identifiers[right]
	})
	return identifiers
}

func markupOnlyFactory(Scope) (Controller, error) {
	return MarkupOnly{}, nil
}

// Set holds the controller instances of one shell.
type Set struct {
	handles map[pages.ID]Handle
}

// NewSet builds a Set from ready controller instances.
func NewSet(controllers map[pages.ID]Controller) *Set {
	set := &Set{handles: make(map[pages.ID]Handle, len(controllers))}
	for pageID, instance := range controllers {
		set.handles[pageID] = Handle{PageID: pageID, Name: pages.ControllerName(pageID), Controller: instance}
	}
	return set
}

// Lookup returns the controller handle of a page. A missing controller is not an error.
func (set *Set) Lookup(pageID pages.ID) (Handle, bool) {
	if set == nil {
		return Handle{}, false
	}
	handle, found := set.handles[pageID]
	return handle, found
}

func (set *Set) Len() int {
	if set == nil {
		return 0
	}
	return len(set.handles)
}
