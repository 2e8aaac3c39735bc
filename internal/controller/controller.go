// Package controller defines page controllers and the registry that maps page
// identifiers to them.
//
// A controller is any value. It takes part in the page lifecycle by
// implementing Initializer, Destroyer, or both; a controller implementing
// neither is a markup-only page. The router calls Init after the page was
// mounted and Destroy when navigating away from it.
package controller

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

// Controller is the per-page behaviour object.
type Controller interface{}

// Initializer is implemented by controllers that need to wire up their page after mount.
type Initializer interface {
	Init(ctx context.Context) error
}

// Destroyer is implemented by controllers that release state when their page is left.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// MarkupOnly is the explicit controller of pages without behaviour.
type MarkupOnly struct{}

// Handle pairs a controller with its conventional name.
type Handle struct {
	PageID     pages.ID
	Name       string
	Controller Controller
}

// Initializer returns the init hook, if any.
func (handle Handle) Initializer() (Initializer, bool) {
	initializer, ok := handle.Controller.(Initializer)
	return initializer, ok
}

// Destroyer returns the destroy hook, if any.
func (handle Handle) Destroyer() (Destroyer, bool) {
	destroyer, ok := handle.Controller.(Destroyer)
	return destroyer, ok
}

// HookPanicError wraps a panic raised inside a lifecycle hook.
type HookPanicError struct {
	Controller string
	Hook       string
	Value      interface{}
}

func (panicError *HookPanicError) Error() string {
	return fmt.Sprintf("controller: %s.%s panicked: %v", panicError.Controller, panicError.Hook, panicError.Value)
}

const (
	hookNameInit    = "Init"
	hookNameDestroy = "Destroy"
)

// CallInit runs the init hook and converts a panic into a HookPanicError.
func CallInit(ctx context.Context, handle Handle, initializer Initializer) (hookErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			hookErr = &HookPanicError{Controller: handle.Name, Hook: hookNameInit, Value: recovered}
		}
	}()
	return initializer.Init(ctx)
}

// CallDestroy runs the destroy hook and converts a panic into a HookPanicError.
func CallDestroy(ctx context.Context, handle Handle, destroyer Destroyer) (hookErr error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			hookErr = &HookPanicError{Controller: handle.Name, Hook: hookNameDestroy, Value: recovered}
		}
	}()
	return destroyer.Destroy(ctx)
}
