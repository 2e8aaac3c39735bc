package controllers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

const (
	testRefreshInterval = 5 * time.Millisecond
	testEventualTimeout = 2 * time.Second

	testShellDocument = `<!doctype html><html lang="ar" dir="rtl"><body><main id="page-container"></main></body></html>`
)

var testFragments = map[pages.ID]string{
	PageLogin:          `<form data-role="login-form"></form>`,
	PageClientHomePage: `<h1 data-role="greeting"></h1><span data-role="shipment-count"></span>`,
	PageWallet:         `<p data-role="balance">--</p>`,
	PageShipments:      `<table><tbody data-role="rows"></tbody></table>`,
}

type failingAccountSource struct{}

func (failingAccountSource) CurrentAccount(context.Context) (Account, error) {
	return Account{}, ErrAccountUnavailable
}

type navigationRecorder struct {
	mutex   sync.Mutex
	targets []string
}

func (recorder *navigationRecorder) Navigate(pageID string) {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.targets = append(recorder.targets, pageID)
}

type controllerHarness struct {
	document  *dom.Document
	set       *controller.Set
	navigator *navigationRecorder
	feed      *ui.NotificationFeed
}

func newControllerHarness(testingT *testing.T, accounts AccountSource) *controllerHarness {
	testingT.Helper()
	catalog, catalogErr := pages.NewCatalog([]pages.Entry{
		{ID: PageClientHomePage, Nav: true},
		{ID: PageLogin},
		{ID: PageWallet, Nav: true},
		{ID: PageShipments, Nav: true},
		{ID: PageSupport},
	})
	require.NoError(testingT, catalogErr)

	registry := controller.NewRegistry()
	require.NoError(testingT, RegisterAll(registry, catalog, Options{Accounts: accounts, RefreshInterval: testRefreshInterval}))
	require.NoError(testingT, registry.Validate(catalog))

	document, parseErr := dom.Parse(testShellDocument)
	require.NoError(testingT, parseErr)
	require.NoError(testingT, document.LocateMountPoint(dom.DefaultMountPointID))

	harness := &controllerHarness{
		document:  document,
		navigator: &navigationRecorder{},
		feed:      ui.NewNotificationFeed(8, nil),
	}
	set, bindErr := registry.Bind(controller.Scope{Navigator: harness.navigator, Document: document, Notifier: harness.feed})
	require.NoError(testingT, bindErr)
	harness.set = set
	return harness
}

func (harness *controllerHarness) mountAndInit(testingT *testing.T, pageID pages.ID) (controller.Handle, error) {
	testingT.Helper()
	require.NoError(testingT, harness.document.ClearMountPoint())
	require.NoError(testingT, harness.document.MountPage(pageID, testFragments[pageID]))
	handle, found := harness.set.Lookup(pageID)
	require.True(testingT, found)
	initializer, hasInit := handle.Initializer()
	require.True(testingT, hasInit)
	return handle, controller.CallInit(context.Background(), handle, initializer)
}

func TestFormattedBalance(testingT *testing.T) {
	testCases := []struct {
		name         string
		balanceMinor int64
		expected     string
	}{
		{name: "small", balanceMinor: 5, expected: "0.05 ر.س"},
		{name: "thousands", balanceMinor: 125050, expected: "1,250.50 ر.س"},
		{name: "millions", balanceMinor: 123456789, expected: "1,234,567.89 ر.س"},
		{name: "negative", balanceMinor: -99900, expected: "-999.00 ر.س"},
	}
	for _, testCase := range testCases {
		testingT.Run(testCase.name, func(testingT *testing.T) {
			account := Account{BalanceMinor: testCase.balanceMinor, CurrencySymbol: "ر.س"}
			require.Equal(testingT, testCase.expected, account.FormattedBalance())
		})
	}
}

func TestRegisterAllCoversCatalog(testingT *testing.T) {
	harness := newControllerHarness(testingT, NewStaticAccountSource(DemoAccount()))

	require.Equal(testingT, 5, harness.set.Len())
	support, found := harness.set.Lookup(PageSupport)
	require.True(testingT, found)
	require.IsType(testingT, controller.MarkupOnly{}, support.Controller)
	require.Equal(testingT, "SupportController", support.Name)

	wallet, found := harness.set.Lookup(PageWallet)
	require.True(testingT, found)
	require.IsType(testingT, &WalletController{}, wallet.Controller)
	require.Equal(testingT, "WalletController", wallet.Name)

	require.ErrorIs(testingT, RegisterAll(controller.NewRegistry(), nil, Options{}), ErrMissingAccountSource)
}

func TestWalletControllerRendersAndBlanksBalance(testingT *testing.T) {
	harness := newControllerHarness(testingT, NewStaticAccountSource(DemoAccount()))

	handle, initErr := harness.mountAndInit(testingT, PageWallet)
	require.NoError(testingT, initErr)
	balance, roleErr := harness.document.RoleText(PageWallet, RoleBalance)
	require.NoError(testingT, roleErr)
	require.Equal(testingT, "1,250.50 ر.س", balance)

	destroyer, hasDestroy := handle.Destroyer()
	require.True(testingT, hasDestroy)
	require.NoError(testingT, destroyer.Destroy(context.Background()))
	balance, roleErr = harness.document.RoleText(PageWallet, RoleBalance)
	require.NoError(testingT, roleErr)
	require.Equal(testingT, balanceUnavailableText, balance)
}

func TestShipmentsControllerEscapesRows(testingT *testing.T) {
	account := DemoAccount()
	account.Shipments = append(account.Shipments, Shipment{TrackingNumber: "<b>SA-9</b>", Destination: "أبها", Status: "جديد"})
	harness := newControllerHarness(testingT, NewStaticAccountSource(account))

	handle, initErr := harness.mountAndInit(testingT, PageShipments)
	require.NoError(testingT, initErr)
	_, hasDestroy := handle.Destroyer()
	require.False(testingT, hasDestroy)

	rendered, renderErr := harness.document.RenderMountPoint()
	require.NoError(testingT, renderErr)
	require.Contains(testingT, rendered, "<td>SA-1001</td>")
	require.Contains(testingT, rendered, "&lt;b&gt;SA-9&lt;/b&gt;")
	require.NotContains(testingT, rendered, "<b>SA-9</b>")
}

func TestClientHomePageControllerRefreshesUntilDestroyed(testingT *testing.T) {
	source := NewStaticAccountSource(DemoAccount())
	harness := newControllerHarness(testingT, source)

	handle, initErr := harness.mountAndInit(testingT, PageClientHomePage)
	require.NoError(testingT, initErr)
	home := handle.Controller.(*ClientHomePageController)

	greeting, roleErr := harness.document.RoleText(PageClientHomePage, RoleGreeting)
	require.NoError(testingT, roleErr)
	require.Equal(testingT, "مرحباً، سارة", greeting)

	updated := DemoAccount()
	updated.Shipments = updated.Shipments[:1]
	source.Replace(updated)
	require.Eventually(testingT, func() bool {
		count, countErr := harness.document.RoleText(PageClientHomePage, RoleShipmentCount)
		return countErr == nil && count == "1"
	}, testEventualTimeout, testRefreshInterval)

	destroyer, _ := handle.Destroyer()
	require.NoError(testingT, destroyer.Destroy(context.Background()))
	refreshesAfterDestroy := home.Refreshes()
	time.Sleep(5 * testRefreshInterval)
	require.Equal(testingT, refreshesAfterDestroy, home.Refreshes())
}

func TestLoginControllerRedirectsAuthenticatedClients(testingT *testing.T) {
	harness := newControllerHarness(testingT, NewStaticAccountSource(DemoAccount()))

	_, initErr := harness.mountAndInit(testingT, PageLogin)
	require.NoError(testingT, initErr)
	require.Equal(testingT, []string{"client-home-page"}, harness.navigator.targets)

	anonymous := DemoAccount()
	anonymous.Authenticated = false
	anonymousHarness := newControllerHarness(testingT, NewStaticAccountSource(anonymous))
	_, initErr = anonymousHarness.mountAndInit(testingT, PageLogin)
	require.NoError(testingT, initErr)
	require.Empty(testingT, anonymousHarness.navigator.targets)
}

func TestLoginControllerHasNoDestroyHook(testingT *testing.T) {
	harness := newControllerHarness(testingT, failingAccountSource{})

	handle, initErr := harness.mountAndInit(testingT, PageLogin)
	require.NoError(testingT, initErr)
	require.Empty(testingT, harness.navigator.targets)
	require.Empty(testingT, harness.feed.Entries())

	_, hasDestroy := handle.Destroyer()
	require.False(testingT, hasDestroy)
}

func TestControllersNotifyWhenAccountUnavailable(testingT *testing.T) {
	harness := newControllerHarness(testingT, failingAccountSource{})

	for _, pageID := range []pages.ID{PageWallet, PageShipments, PageClientHomePage} {
		_, initErr := harness.mountAndInit(testingT, pageID)
		require.True(testingT, errors.Is(initErr, ErrAccountUnavailable), pageID.String())
	}
	require.Len(testingT, harness.feed.Entries(), 3)
	latest, _ := harness.feed.Latest()
	require.Equal(testingT, ui.SeverityWarning, latest.Severity)
}
