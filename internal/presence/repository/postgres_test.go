package repository

import (
	"context"
	"os"
	"testing"

	"online-status/internal/db"
)

func TestPostgresRepository_Contract(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	runRepositoryContract(t, func(t *testing.T) Repository {
		sqlDB, err := db.Open(dsn)
		if err != nil {
			t.Skipf("Database connection failed (expected in test environment): %v", err)
		}
		t.Cleanup(func() { _ = sqlDB.Close() })
		if _, err := sqlDB.ExecContext(context.Background(), "DELETE FROM user_online_status"); err != nil {
			t.Skipf("user_online_status not migrated: %v", err)
		}
		return NewPostgresRepository(sqlDB)
	})
}
