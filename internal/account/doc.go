// Package account implements the Account View: open orders, a bounded fill
// ledger, the tracked position with derived PnL, and the collateral balance
// for a single subaccount.
//
// The view multiplexes the subaccounts channel by message shape and returns
// an immutable composite Update from every Handle call, even when a message
// was dropped and state is unchanged.
package account
