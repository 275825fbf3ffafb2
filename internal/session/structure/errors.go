// Package structure binds the Structure Core vendor SDK to session.Session.
//
// The binding is only compiled with the "structure" build tag and cgo;
// otherwise Open reports ErrUnavailable and callers fall back to the
// simulated session.
package structure

import "errors"

// ErrUnavailable is returned by Open when the SDK binding is not compiled in
var ErrUnavailable = errors.New("structure: SDK support not built (use -tags structure with cgo)")
