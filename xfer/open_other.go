//go:build !linux

package xfer

import "os"

func openSource(path string) (*os.File, error) {
	return os.Open(path)
}
