//go:build !windows

package pipetransport

import (
	"context"
	"runtime"
	"testing"
)

func TestCreateStub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping stub test on Windows")
	}
	_, err := New().Create(`\\.\pipe\test`, Config{})
	if err == nil {
		t.Fatal("expected error on non-Windows")
	}
}

func TestDialStub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping stub test on Windows")
	}
	_, err := New().Dial(context.Background(), `\\.\pipe\test`)
	if err == nil {
		t.Fatal("expected error on non-Windows")
	}
}
