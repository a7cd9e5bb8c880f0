// Package event carries the vault's operation events to downstream
// consumers. Events are observability, not state: a publish failure is
// logged by the caller and never fails the originating operation.
package event
