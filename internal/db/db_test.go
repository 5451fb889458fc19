package db

import (
	"testing"

	"github.com/KaliNikolova/dayplanner/internal/config"
	"github.com/KaliNikolova/dayplanner/internal/models"
	"github.com/KaliNikolova/dayplanner/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConnectRejectsUnknownBackend(t *testing.T) {
	_, err := Connect(&config.Config{DBBackend: "oracle", DBDSN: "x"})
	if err == nil {
		t.Fatal("expected unknown backend to fail")
	}
}

func TestMigrateAndCallbacks(t *testing.T) {
	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := RegisterCallbacks(database); err != nil {
		t.Fatalf("register callbacks: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	before := testutil.CollectAndCount(telemetry.DatabaseQueryDuration)
	task := models.Task{ID: "6f1c1bb0-4b6a-4c1e-9a7a-3d7f2c1d0e11", Owner: "u1", Title: "write", Status: "todo"}
	if err := database.Create(&task).Error; err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := Migrate(database); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var stored models.Task
	if err := database.First(&stored, "id = ?", task.ID).Error; err != nil {
		t.Fatalf("load task: %v", err)
	}
	if stored.Status != models.TaskStatusTodo {
		t.Fatalf("expected legacy status to be normalized, got %q", stored.Status)
	}
	if after := testutil.CollectAndCount(telemetry.DatabaseQueryDuration); after <= before {
		t.Fatalf("expected query histogram series to grow, %d -> %d", before, after)
	}
}
