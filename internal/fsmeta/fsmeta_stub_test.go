//go:build !windows

package fsmeta

import "testing"

func TestFstatvfsStub(t *testing.T) {
	if _, err := Fstatvfs("."); err == nil {
		t.Fatal("expected error on non-Windows")
	}
}

func TestFaclStub(t *testing.T) {
	if _, err := Facl("."); err == nil {
		t.Fatal("expected error on non-Windows")
	}
}
