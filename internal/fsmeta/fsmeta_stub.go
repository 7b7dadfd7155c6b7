//go:build !windows

package fsmeta

import "fmt"

// Fstatvfs is the unsupported-platform stub, mirroring nshost_stub.go.
func Fstatvfs(path string) (VFSStat, error) {
	return VFSStat{}, fmt.Errorf("fsmeta: fstatvfs only available on Windows")
}

// Facl is the unsupported-platform stub, mirroring nshost_stub.go.
func Facl(path string) (string, error) {
	return "", fmt.Errorf("fsmeta: facl only available on Windows")
}
