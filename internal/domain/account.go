package domain

import "fmt"

// AccountKind distinguishes who a balance belongs to.
type AccountKind string

const (
	AccountUser     AccountKind = "user"
	AccountEscrow   AccountKind = "escrow"
	AccountTreasury AccountKind = "treasury"
	// AccountReserve holds the per-asset settlement tip budget.
	AccountReserve AccountKind = "reserve"
)

// Account addresses one fungible balance.
type Account struct {
	Kind     AccountKind `json:"kind"`
	Owner    string      `json:"owner"`
	Currency string      `json:"currency"`
}

func (a Account) String() string {
	return fmt.Sprintf("%s:%s:%s", a.Kind, a.Owner, a.Currency)
}

// UserAccount is a user's spendable balance.
func UserAccount(user, currency string) Account {
	return Account{Kind: AccountUser, Owner: user, Currency: currency}
}

// EscrowAccount custodies the stakes of one asset.
func EscrowAccount(asset, currency string) Account {
	return Account{Kind: AccountEscrow, Owner: asset, Currency: currency}
}

// TreasuryAccount receives protocol fees.
func TreasuryAccount(treasury, currency string) Account {
	return Account{Kind: AccountTreasury, Owner: treasury, Currency: currency}
}

// ReserveAccount funds settlement tips for one asset.
func ReserveAccount(asset, currency string) Account {
	return Account{Kind: AccountReserve, Owner: asset, Currency: currency}
}

// Balance is an account together with its amount.
type Balance struct {
	Account
	Amount uint64 `json:"amount"`
}
