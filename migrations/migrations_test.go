package migrations

import (
	"strings"
	"testing"
)

func TestAllContainsCoreTables(t *testing.T) {
	sql, err := All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	for _, table := range []string{"users", "civil_registry", "contracts", "transactions", "outbox", "notifications", "idempotency"} {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("expected table %s in migrations", table)
		}
	}
}
