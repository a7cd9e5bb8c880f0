// Package chain provides the ledger sequence number the vault compares lock
// expiries against. Expiry is a data-driven threshold, not a timer: nothing
// fires when a lock lapses, the height is simply read on each release or
// reclaim attempt.
package chain
