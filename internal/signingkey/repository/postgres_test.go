package repository

import (
	"context"
	"os"
	"testing"

	"session-core/internal/db"
)

// Integration test for the singleton row; requires DATABASE_URL with
// migrations applied.
func TestPostgresRepository_SingletonRoundTrip(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Skipf("database connection failed: %v", err)
	}
	defer conn.Close()

	r := NewPostgresRepository(conn)
	ctx := context.Background()

	first := &Key{PublicKey: "pub-1", PrivateKey: "priv-1", KeyExpiryTime: 1000, CreatedAt: 500}
	if err := r.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := r.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.PublicKey != "pub-1" || got.KeyExpiryTime != 1000 {
		t.Fatalf("Get = %+v", got)
	}

	// A second upsert replaces the row rather than adding one.
	second := &Key{PublicKey: "pub-2", PrivateKey: "priv-2", KeyExpiryTime: 2000, CreatedAt: 1500}
	if err := r.Upsert(ctx, second); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, err = r.Get(ctx)
	if err != nil {
		t.Fatalf("Get after rotation: %v", err)
	}
	if got == nil || got.PublicKey != "pub-2" {
		t.Fatalf("Get after rotation = %+v", got)
	}
}
