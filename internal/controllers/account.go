// Package controllers holds the page controllers of the logistics client shell.
//
// Each controller renders its page through the shell document's data-role
// elements. Pages without behaviour are registered as markup-only.
package controllers

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAccountUnavailable indicates the account source could not provide an account.
var ErrAccountUnavailable = errors.New("controllers: account unavailable")

// Shipment is one parcel of the signed-in client.
type Shipment struct {
	TrackingNumber string `json:"tracking_number" yaml:"tracking_number"`
	Destination    string `json:"destination" yaml:"destination"`
	Status         string `json:"status" yaml:"status"`
}

// Account is what the client pages display.
type Account struct {
	DisplayName    string     `json:"display_name" yaml:"display_name"`
	Authenticated  bool       `json:"authenticated" yaml:"authenticated"`
	BalanceMinor   int64      `json:"balance_minor" yaml:"balance_minor"`
	CurrencySymbol string     `json:"currency_symbol" yaml:"currency_symbol"`
	Shipments      []Shipment `json:"shipments" yaml:"shipments"`
}

// FormattedBalance renders the balance with two decimals and the currency symbol.
func (account Account) FormattedBalance() string {
	sign := ""
	minor := account.BalanceMinor
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%s.%02d %s", sign, groupThousands(minor/100), minor%100, account.CurrencySymbol)
}

func groupThousands(value int64) string {
	digits := fmt.Sprintf("%d", value)
	if len(digits) <= 3 {
		return digits
	}
	leading := len(digits) % 3
	if leading == 0 {
		leading = 3
	}
	grouped := digits[:leading]
	for index := leading; index < len(digits); index += 3 {
		grouped += "," + digits[index:index+3]
	}
	return grouped
}

// AccountSource provides the account shown by the client pages.
type AccountSource interface {
	CurrentAccount(ctx context.Context) (Account, error)
}

// StaticAccountSource serves a fixed account and lets callers replace it.
type StaticAccountSource struct {
	mutex   sync.RWMutex
	account Account
}

func NewStaticAccountSource(account Account) *StaticAccountSource {
	return &StaticAccountSource{account: account}
}

func (source *StaticAccountSource) CurrentAccount(ctx context.Context) (Account, error) {
	if ctx.Err() != nil {
		return Account{}, fmt.Errorf("%w: %v", ErrAccountUnavailable, ctx.Err())
	}
	source.mutex.RLock()
	defer source.mutex.RUnlock()
	account := source.account
	account.Shipments = append([]Shipment(nil), source.account.Shipments...)
	return account, nil
}

// Replace swaps the served account.
func (source *StaticAccountSource) Replace(account Account) {
	source.mutex.Lock()
	defer source.mutex.Unlock()
	source.account = account
}

// DemoAccount is the account served when no other source is configured.
func DemoAccount() Account {
	return Account{
		DisplayName:    "سارة",
		Authenticated:  true,
		BalanceMinor:   125050,
		CurrencySymbol: "ر.س",
		Shipments: []Shipment{
			{TrackingNumber: "SA-1001", Destination: "الرياض", Status: "قيد التوصيل"},
			{TrackingNumber: "SA-1002", Destination: "جدة", Status: "تم التسليم"},
			{TrackingNumber: "SA-1003", Destination: "الدمام", Status: "في المستودع"},
		},
	}
}
