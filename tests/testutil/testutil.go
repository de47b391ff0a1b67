package testutil

import (
	"os"
	"testing"
	"time"

	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// NewTestDB opens a private in-memory sqlite database with every model
// migrated and installs it as config.DB. It is closed when t ends.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// A second connection would see a different, empty database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get test database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := config.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(previous)
		_ = sqlDB.Close()
	})
	return db
}

// Fixtures are the rows most tests need
type Fixtures struct {
	Planner  models.User
	Viewer   models.User
	Line     models.ProductionLine
	Other    models.ProductionLine
	Product  models.Product
	Clock    func() time.Time
	TodayStr string
}

// SeedFixtures inserts a PARAMETREUR, a DEFAULT user, two lines and a product.
// Clock is pinned on 2024-01-10.
func SeedFixtures(t *testing.T, db *gorm.DB) Fixtures {
	t.Helper()

	f := Fixtures{
		Planner:  models.User{Username: "planner", FirstName: "Paula", Role: models.RoleParametreur},
		Viewer:   models.User{Username: "viewer", Role: models.RoleDefault},
		Line:     models.ProductionLine{Name: "Line 1"},
		Other:    models.ProductionLine{Name: "Line 2"},
		Clock:    func() time.Time { return time.Date(2024, time.January, 10, 8, 0, 0, 0, time.UTC) },
		TodayStr: "2024-01-10",
	}
	for _, row := range []interface{}{&f.Planner, &f.Viewer, &f.Line, &f.Other} {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("Failed to seed fixtures: %v", err)
		}
	}
	f.Product = models.Product{Name: "Widget", ProductionLineID: &f.Line.ID}
	if err := db.Create(&f.Product).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return f
}

// InsertOrder stores an order on the fixture line owned by the planner
func (f Fixtures) InsertOrder(t *testing.T, db *gorm.DB, code string, status models.Status, start, end string) models.ManufacturingOrder {
	t.Helper()

	owner := f.Planner.ID
	order := models.ManufacturingOrder{
		Code:             code,
		Status:           status,
		Quantity:         5,
		StartDate:        models.MustParseDate(start),
		EndDate:          models.MustParseDate(end),
		ProductID:        f.Product.ID,
		ProductionLineID: f.Line.ID,
		OwnerID:          &owner,
	}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("Failed to insert order %s: %v", code, err)
	}
	return order
}
