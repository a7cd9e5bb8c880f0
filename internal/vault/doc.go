// Package vault implements the escrow vault contract: a per-owner custodial
// balance ledger with time-locked sub-balances that can be released to a
// third party before expiry or reclaimed by the owner afterwards. Entry
// points are synchronous, serialized state transitions; persistence, token
// movement, ledger height, and event delivery are delegated to pluggable
// collaborators.
package vault
