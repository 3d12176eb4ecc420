package main

import (
	"context"
	"testing"
)

func TestValidatePort(t *testing.T) {
	for _, port := range []int{0, -1, 65536} {
		if err := validatePort(port); err == nil {
			t.Fatalf("expected port %d to be rejected", port)
		}
	}
	if err := validatePort(8420); err != nil {
		t.Fatalf("expected port 8420 to be accepted, got %v", err)
	}
}

func TestRun_RejectsBadFlags(t *testing.T) {
	if err := run(context.Background(), []string{"-port", "70000"}); err == nil {
		t.Fatalf("expected invalid port error")
	}
	if err := run(context.Background(), []string{"-unknown"}); err == nil {
		t.Fatalf("expected unknown flag error")
	}
}
