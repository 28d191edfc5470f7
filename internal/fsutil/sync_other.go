//go:build !linux

package fsutil

import "errors"

func syncAll() error {
	return errors.ErrUnsupported
}
