package controllers

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

// ErrMissingAccountSource indicates RegisterAll was called without an account source.
var ErrMissingAccountSource = errors.New("controllers: account source is required")

// Options configure the controllers registered by RegisterAll.
type Options struct {
	Accounts        AccountSource
	RefreshInterval time.Duration
}

// RegisterAll registers a controller for every catalog page: the behavioural
// controllers of this package where one exists, markup-only otherwise.
func RegisterAll(registry *controller.Registry, catalog *pages.Catalog, options Options) error {
	if options.Accounts == nil {
		return ErrMissingAccountSource
	}
	if options.RefreshInterval <= 0 {
		options.RefreshInterval = DefaultRefreshInterval
	}
	homePage := PageClientHomePage
	if !catalog.Contains(homePage) {
		homePage = catalog.DefaultPage()
	}

	factories := map[pages.ID]controller.Factory{
		PageLogin: func(scope controller.Scope) (controller.Controller, error) {
			return &LoginController{scope: normalizeScope(scope), accounts: options.Accounts, homePage: homePage}, nil
		},
		PageClientHomePage: func(scope controller.Scope) (controller.Controller, error) {
			return &ClientHomePageController{scope: normalizeScope(scope), accounts: options.Accounts, refreshInterval: options.RefreshInterval}, nil
		},
		PageWallet: func(scope controller.Scope) (controller.Controller, error) {
			return &WalletController{scope: normalizeScope(scope), accounts: options.Accounts}, nil
		},
		PageShipments: func(scope controller.Scope) (controller.Controller, error) {
			return &ShipmentsController{scope: normalizeScope(scope), accounts: options.Accounts}, nil
		},
	}

	for _, pageID := range catalog.IDs() {
		factory, behavioural := factories[pageID]
		if !behavioural {
			if registerErr := registry.RegisterMarkupOnly(pageID); registerErr != nil {
				return fmt.Errorf("controllers: register %s: %w", pages.ControllerName(pageID), registerErr)
			}
			continue
		}
		if registerErr := registry.Register(pageID, factory); registerErr != nil {
			return fmt.Errorf("controllers: register %s: %w", pages.ControllerName(pageID), registerErr)
		}
	}
	return nil
}

type discardNotifier struct{}

func (discardNotifier) Notify(string, string, ui.Severity) {}

func normalizeScope(scope controller.Scope) controller.Scope {
	if scope.Logger == nil {
		scope.Logger = zap.NewNop()
	}
	if scope.Notifier == nil {
		scope.Notifier = discardNotifier{}
	}
	if scope.Navigator == nil {
		scope.Navigator = controller.NavigatorFunc(func(string) {})
	}
	return scope
}
