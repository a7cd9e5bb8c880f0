// Package auth models the host runtime's ambient authorization primitive as
// an explicit caller identity. The verified caller address travels in the
// request context; every owner-gated vault operation checks the claimed owner
// against it before touching state.
package auth
