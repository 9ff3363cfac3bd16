package main

import (
	"testing"

	"tiendapos/client/internal/config"
)

func TestValidateConfigRejectsMissingBackend(t *testing.T) {
	if err := validateConfig(config.Config{ShopID: 1}); err == nil {
		t.Fatalf("expected validation error without backend settings")
	}
}

func TestValidateConfigAcceptsCompleteTill(t *testing.T) {
	cfg := config.Config{
		BackendBaseURL: "https://backend.example",
		BackendToken:   "token",
		ShopID:         3,
	}
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}
