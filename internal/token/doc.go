// Package token defines the transfer adapter the vault uses to move assets.
// Actual asset movement belongs to the host environment's token contract; the
// vault only ever calls this narrow interface and treats any failure as a
// reason to abort the invoking operation.
package token
