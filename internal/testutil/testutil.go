// Package testutil provides sqlite-backed fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fabrica/internal/db"
	"fabrica/models"
)

// SetupTestDB opens a private in-memory sqlite database with every table
// migrated. The database is closed when the test ends.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	// One connection keeps the in-memory database alive and serializes
	// writers the same way row locks do on postgres.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(database); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return database
}

// Dec parses a decimal literal and fails the test on malformed input.
func Dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return d
}

// Bakery is the bread recipe used across the manufacturing tests: 10 loaves
// from 2 kg flour and 0.5 kg yeast.
type Bakery struct {
	Author   models.User
	Kilogram models.Unit
	Piece    models.Unit
	Flour    models.Product
	Yeast    models.Product
	Bread    models.Product
	Bom      models.BillOfMaterials
}

// SeedBakery creates the bakery catalog, stock balances and BOM.
func SeedBakery(t *testing.T, database *gorm.DB, flour, yeast string) Bakery {
	t.Helper()

	var b Bakery
	b.Author = models.User{Email: "baker@example.com", PasswordHash: "hash", Name: "Baker"}
	mustCreate(t, database, &b.Author)

	b.Kilogram = models.Unit{Name: "Kilogram", Identifier: "kg"}
	b.Piece = models.Unit{Name: "Piece", Identifier: "pc"}
	mustCreate(t, database, &b.Kilogram)
	mustCreate(t, database, &b.Piece)

	b.Flour = models.Product{Name: "Flour", SKU: "FLOUR"}
	b.Yeast = models.Product{Name: "Yeast", SKU: "YEAST"}
	b.Bread = models.Product{Name: "Bread", SKU: "BREAD"}
	mustCreate(t, database, &b.Flour)
	mustCreate(t, database, &b.Yeast)
	mustCreate(t, database, &b.Bread)

	SeedStock(t, database, b.Flour.ID, b.Kilogram.ID, flour, "1.2")
	SeedStock(t, database, b.Yeast.ID, b.Kilogram.ID, yeast, "8")
	SeedStock(t, database, b.Bread.ID, b.Piece.ID, "0", "0")

	b.Bom = models.BillOfMaterials{
		Name:            "Bread",
		OutputProductID: b.Bread.ID,
		OutputUnitID:    b.Piece.ID,
		OutputQuantity:  decimal.NewFromInt(10),
		IsActive:        true,
		AuthorID:        b.Author.ID,
	}
	mustCreate(t, database, &b.Bom)

	kg := b.Kilogram.ID
	items := []models.BomItem{
		{BomID: b.Bom.ID, ComponentProductID: b.Flour.ID, ComponentUnitID: &kg, Quantity: Dec(t, "2"), CostAllocationPercent: decimal.NewFromInt(100), AuthorID: b.Author.ID},
		{BomID: b.Bom.ID, ComponentProductID: b.Yeast.ID, ComponentUnitID: &kg, Quantity: Dec(t, "0.5"), CostAllocationPercent: decimal.NewFromInt(100), AuthorID: b.Author.ID},
	}
	for i := range items {
		mustCreate(t, database, &items[i])
	}
	b.Bom.Items = items
	return b
}

// SeedStock creates the balance row for a product/unit pair.
func SeedStock(t *testing.T, database *gorm.DB, productID, unitID uint, quantity, cogs string) models.ProductUnitQuantity {
	t.Helper()
	row := models.ProductUnitQuantity{
		ProductID: productID,
		UnitID:    unitID,
		Quantity:  Dec(t, quantity),
		Cogs:      Dec(t, cogs),
	}
	mustCreate(t, database, &row)
	return row
}

// StockOf reads the on-hand quantity of a product/unit pair.
func StockOf(t *testing.T, database *gorm.DB, productID, unitID uint) decimal.Decimal {
	t.Helper()
	var row models.ProductUnitQuantity
	if err := database.Where("product_id = ? AND unit_id = ?", productID, unitID).First(&row).Error; err != nil {
		t.Fatalf("load stock for product %d unit %d: %v", productID, unitID, err)
	}
	return row.Quantity
}

// Movements lists the stock movements recorded for an order.
func Movements(t *testing.T, database *gorm.DB, orderID uint) []models.StockMovement {
	t.Helper()
	var movements []models.StockMovement
	if err := database.Where("order_id = ?", orderID).Order("id asc").Find(&movements).Error; err != nil {
		t.Fatalf("load movements for order %d: %v", orderID, err)
	}
	return movements
}

func mustCreate(t *testing.T, database *gorm.DB, value any) {
	t.Helper()
	if err := database.Create(value).Error; err != nil {
		t.Fatalf("create %T: %v", value, err)
	}
}
