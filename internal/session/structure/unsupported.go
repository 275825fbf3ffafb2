//go:build !structure || !cgo

package structure

import "github.com/dj-oyu/structure-camera/internal/session"

// Available reports whether the SDK binding is compiled in
func Available() bool { return false }

// Open always fails without the SDK binding
func Open() (session.Session, error) {
	return nil, ErrUnavailable
}
