package controllers

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

const (
	PageLogin          = pages.ID("login")
	PageClientHomePage = pages.ID("client-home-page")
	PageWallet         = pages.ID("wallet")
	PageShipments      = pages.ID("shipments")
	PageTrackShipment  = pages.ID("track-shipment")
	PageSupport        = pages.ID("support")

	RoleGreeting      = "greeting"
	RoleShipmentCount = "shipment-count"
	RoleBalance       = "balance"
	RoleRows          = "rows"

	// DefaultRefreshInterval is how often the home page refreshes its shipment counter.
	DefaultRefreshInterval = 30 * time.Second

	greetingPattern        = "مرحباً، %s"
	balanceUnavailableText = "--"
	accountErrorTitle      = "تنبيه"
	accountErrorMessage    = "تعذر تحميل بيانات الحساب"

	logEventRenderFailed  = "controller_render_failed"
	logEventRefreshFailed = "controller_refresh_failed"
	logEventRedirect      = "controller_redirect"
	logFieldRole          = "role"
	logFieldTarget        = "target"
)

// LoginController sends authenticated clients straight to the home page. It keeps
// no state, so it has no Destroy hook.
type LoginController struct {
	scope    controller.Scope
	accounts AccountSource
	homePage pages.ID
}

func (loginController *LoginController) Init(ctx context.Context) error {
	account, accountErr := loginController.accounts.CurrentAccount(ctx)
	if accountErr != nil || !account.Authenticated {
		return nil
	}
	loginController.scope.Logger.Info(logEventRedirect, zap.String(logFieldTarget, loginController.homePage.String()))
	loginController.scope.Navigator.Navigate(loginController.homePage.String())
	return nil
}

// ClientHomePageController greets the client and keeps the shipment counter fresh
// until the page is left.
type ClientHomePageController struct {
	scope           controller.Scope
	accounts        AccountSource
	refreshInterval time.Duration

	mutex      sync.Mutex
	stop       context.CancelFunc
	refreshers sync.WaitGroup
	refreshes  atomic.Int64
}

func (homeController *ClientHomePageController) Init(ctx context.Context) error {
	account, accountErr := homeController.accounts.CurrentAccount(ctx)
	if accountErr != nil {
		homeController.scope.Notifier.Notify(accountErrorTitle, accountErrorMessage, ui.SeverityWarning)
		return accountErr
	}
	if setErr := homeController.scope.Document.SetRoleText(PageClientHomePage, RoleGreeting, fmt.Sprintf(greetingPattern, account.DisplayName)); setErr != nil {
		logRenderFailure(homeController.scope.Logger, RoleGreeting, setErr)
	}
	homeController.renderCount(len(account.Shipments))

	homeController.mutex.Lock()
	defer homeController.mutex.Unlock()
	if homeController.stop != nil {
		homeController.stop()
	}
	refreshContext, stop := context.WithCancel(context.WithoutCancel(ctx))
	homeController.stop = stop
	homeController.refreshers.Add(1)
	go homeController.refresh(refreshContext)
	return nil
}

func (homeController *ClientHomePageController) Destroy(context.Context) error {
	homeController.mutex.Lock()
	stop := homeController.stop
	homeController.stop = nil
	homeController.mutex.Unlock()
	if stop != nil {
		stop()
	}
	homeController.refreshers.Wait()
	return nil
}

// Refreshes reports how many background refreshes ran.
func (homeController *ClientHomePageController) Refreshes() int64 {
	return homeController.refreshes.Load()
}

func (homeController *ClientHomePageController) refresh(ctx context.Context) {
	defer homeController.refreshers.Done()
	ticker := time.NewTicker(homeController.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			account, accountErr := homeController.accounts.CurrentAccount(ctx)
			if accountErr != nil {
				homeController.scope.Logger.Warn(logEventRefreshFailed, zap.Error(accountErr))
				continue
			}
			homeController.renderCount(len(account.Shipments))
			homeController.refreshes.Inc()
		}
	}
}

func (homeController *ClientHomePageController) renderCount(count int) {
	if setErr := homeController.scope.Document.SetRoleText(PageClientHomePage, RoleShipmentCount, fmt.Sprintf("%d", count)); setErr != nil {
		logRenderFailure(homeController.scope.Logger, RoleShipmentCount, setErr)
	}
}

// WalletController shows the balance and blanks it when the page is left.
type WalletController struct {
	scope    controller.Scope
	accounts AccountSource
	rendered atomic.Bool
}

func (walletController *WalletController) Init(ctx context.Context) error {
	account, accountErr := walletController.accounts.CurrentAccount(ctx)
	if accountErr != nil {
		walletController.scope.Notifier.Notify(accountErrorTitle, accountErrorMessage, ui.SeverityWarning)
		return accountErr
	}
	if setErr := walletController.scope.Document.SetRoleText(PageWallet, RoleBalance, account.FormattedBalance()); setErr != nil {
		return setErr
	}
	walletController.rendered.Store(true)
	return nil
}

func (walletController *WalletController) Destroy(context.Context) error {
	if !walletController.rendered.CompareAndSwap(true, false) {
		return nil
	}
	if setErr := walletController.scope.Document.SetRoleText(PageWallet, RoleBalance, balanceUnavailableText); setErr != nil {
		walletController.scope.Logger.Debug(logEventRenderFailed, zap.String(logFieldRole, RoleBalance), zap.Error(setErr))
	}
	return nil
}

// ShipmentsController renders one table row per shipment. It holds no state to release.
type ShipmentsController struct {
	scope    controller.Scope
	accounts AccountSource
}

func (shipmentsController *ShipmentsController) Init(ctx context.Context) error {
	account, accountErr := shipmentsController.accounts.CurrentAccount(ctx)
	if accountErr != nil {
		shipmentsController.scope.Notifier.Notify(accountErrorTitle, accountErrorMessage, ui.SeverityWarning)
		return accountErr
	}
	return shipmentsController.scope.Document.ReplaceRoleHTML(PageShipments, RoleRows, renderShipmentRows(account.Shipments))
}

func renderShipmentRows(shipments []Shipment) string {
	var rows strings.Builder
	for _, shipment := range shipments {
		rows.WriteString("<tr><td>")
		rows.WriteString(html.EscapeString(shipment.TrackingNumber))
		rows.WriteString("</td><td>")
		rows.WriteString(html.EscapeString(shipment.Destination))
		rows.WriteString("</td><td>")
		rows.WriteString(html.EscapeString(shipment.Status))
		rows.WriteString("</td></tr>")
	}
	return rows.String()
}

func logRenderFailure(logger *zap.Logger, role string, renderErr error) {
	logger.Warn(logEventRenderFailed, zap.String(logFieldRole, role), zap.Error(renderErr))
}
