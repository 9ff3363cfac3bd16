package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SHOP_ID", "")
	t.Setenv("ALLOW_OUT_OF_STOCK_SALES", "")
	t.Setenv("SNAPSHOT_TTL_HOURS", "")

	cfg := Load()
	if cfg.ShopID != 1 {
		t.Fatalf("expected default shop id 1, got %d", cfg.ShopID)
	}
	if cfg.AllowOutOfStockSales {
		t.Fatalf("out-of-stock sales must default to disabled")
	}
	if cfg.SnapshotTTLHours != 12 {
		t.Fatalf("expected default snapshot ttl 12h, got %d", cfg.SnapshotTTLHours)
	}
}

func TestLoadParsesTillIdentity(t *testing.T) {
	t.Setenv("SHOP_ID", "7")
	t.Setenv("EMPLOYEE_ID", "42")
	t.Setenv("ALLOW_OUT_OF_STOCK_SALES", "true")

	cfg := Load()
	if cfg.ShopID != 7 || cfg.EmployeeID != 42 {
		t.Fatalf("unexpected identity: shop=%d employee=%d", cfg.ShopID, cfg.EmployeeID)
	}
	if !cfg.AllowOutOfStockSales {
		t.Fatalf("expected out-of-stock sales enabled")
	}
}

func TestLoadDoesNotInjectSupervisorPINDefault(t *testing.T) {
	t.Setenv("SUPERVISOR_PIN", "")

	cfg := Load()
	if cfg.SupervisorPIN != "" {
		t.Fatalf("expected empty SUPERVISOR_PIN when unset, got %q", cfg.SupervisorPIN)
	}
}
