//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/daro-kh/leavegate/internal/config"
	"github.com/daro-kh/leavegate/internal/store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func TestRequestRepository(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	repo := NewRequestRepository(pool)

	t.Run("CreateAndGetOutRequest", func(t *testing.T) {
		req := &store.OutRequest{
			ID:          "out-1",
			UserID:      "user-1",
			Name:        "Sok Dara",
			Department:  "IT",
			Photo:       "https://example.com/photos/user-1.jpg",
			Duration:    "2h",
			Reason:      "bank errand",
			Date:        "15/08/2026",
			Status:      store.StatusApproved,
			RequestedAt: time.Now().UTC().Truncate(time.Second),
		}

		if err := repo.CreateOutRequest(ctx, req); err != nil {
			t.Fatalf("Failed to create out request: %v", err)
		}

		got, err := repo.GetOutRequest(ctx, "out-1")
		if err != nil {
			t.Fatalf("Failed to get out request: %v", err)
		}
		if got.Name != "Sok Dara" {
			t.Errorf("Expected name 'Sok Dara', got '%s'", got.Name)
		}
		if got.ReturnStatus != "" || got.ReturnedAt != "" {
			t.Errorf("Expected empty return fields, got '%s'/'%s'", got.ReturnStatus, got.ReturnedAt)
		}
	})

	t.Run("GetOutRequestNotFound", func(t *testing.T) {
		_, err := repo.GetOutRequest(ctx, "missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("MarkReturned", func(t *testing.T) {
		if err := repo.MarkReturned(ctx, "out-1", store.StatusReturned, "14:35 15/08/2026"); err != nil {
			t.Fatalf("Failed to mark returned: %v", err)
		}

		got, err := repo.GetOutRequest(ctx, "out-1")
		if err != nil {
			t.Fatalf("Failed to get out request: %v", err)
		}
		if got.ReturnStatus != store.StatusReturned {
			t.Errorf("Expected return status '%s', got '%s'", store.StatusReturned, got.ReturnStatus)
		}
		if got.ReturnedAt != "14:35 15/08/2026" {
			t.Errorf("Expected returned at '14:35 15/08/2026', got '%s'", got.ReturnedAt)
		}
	})

	t.Run("MarkReturnedNotFound", func(t *testing.T) {
		err := repo.MarkReturned(ctx, "missing", store.StatusReturned, "14:35 15/08/2026")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CreateAndListLeaveRequests", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			req := &store.LeaveRequest{
				ID:          fmt.Sprintf("leave-%d", i),
				UserID:      "user-1",
				Name:        "Sok Dara",
				Duration:    "full day",
				Days:        1,
				Reason:      "personal",
				StartDate:   "20/08/2026",
				EndDate:     "20/08/2026",
				Status:      store.StatusPending,
				RequestedAt: time.Now().UTC().Add(time.Duration(i) * time.Minute),
			}
			if err := repo.CreateLeaveRequest(ctx, req); err != nil {
				t.Fatalf("Failed to create leave request: %v", err)
			}
		}

		list, err := repo.ListLeaveRequestsByUser(ctx, "user-1")
		if err != nil {
			t.Fatalf("Failed to list leave requests: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("Expected 3 leave requests, got %d", len(list))
		}
		if list[0].ID != "leave-2" {
			t.Errorf("Expected newest first, got '%s'", list[0].ID)
		}
	})

	t.Run("ListOutRequestsByUser", func(t *testing.T) {
		list, err := repo.ListOutRequestsByUser(ctx, "user-1")
		if err != nil {
			t.Fatalf("Failed to list out requests: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("Expected 1 out request, got %d", len(list))
		}

		list, err = repo.ListOutRequestsByUser(ctx, "nobody")
		if err != nil {
			t.Fatalf("Failed to list out requests: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("Expected no out requests, got %d", len(list))
		}
	})
}

func TestMigrations(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()

	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		t.Fatalf("Failed to get applied migrations: %v", err)
	}

	expectedMigrations := []string{
		"001_create_leave_requests.sql",
		"002_create_out_requests.sql",
	}

	if len(applied) != len(expectedMigrations) {
		t.Errorf("Expected %d migrations, got %d", len(expectedMigrations), len(applied))
	}

	for i, expected := range expectedMigrations {
		if i < len(applied) && applied[i] != expected {
			t.Errorf("Migration %d: expected '%s', got '%s'", i, expected, applied[i])
		}
	}
}
