package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fabrica/internal/db"
	"fabrica/internal/testutil"
	"fabrica/models"
)

func TestGetQuantityAndCogs(t *testing.T) {
	t.Parallel()

	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, "10", "1")
	store := New(database)
	ctx := context.Background()

	qty, err := store.GetQuantity(ctx, bakery.Flour.ID, bakery.Kilogram.ID)
	if err != nil {
		t.Fatalf("GetQuantity() error = %v", err)
	}
	if !qty.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("GetQuantity() = %s, want 10", qty)
	}

	cogs, err := store.GetCogs(ctx, bakery.Flour.ID, bakery.Kilogram.ID)
	if err != nil {
		t.Fatalf("GetCogs() error = %v", err)
	}
	if !cogs.Equal(testutil.Dec(t, "1.2")) {
		t.Fatalf("GetCogs() = %s, want 1.2", cogs)
	}

	missing, err := store.GetQuantity(ctx, bakery.Flour.ID, bakery.Piece.ID)
	if err != nil {
		t.Fatalf("GetQuantity() for unknown pair error = %v", err)
	}
	if !missing.IsZero() {
		t.Fatalf("GetQuantity() for unknown pair = %s, want 0", missing)
	}
}

func TestAdjustStockDecreaseRecordsHistory(t *testing.T) {
	t.Parallel()

	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, "10", "1")
	store := New(database)
	ctx := context.Background()
	orderID := uint(42)

	err := store.AdjustStock(ctx, ActionConsume, Adjustment{
		ProductID:   bakery.Flour.ID,
		UnitID:      bakery.Kilogram.ID,
		Quantity:    testutil.Dec(t, "2.5"),
		UnitPrice:   testutil.Dec(t, "1.2"),
		AuthorID:    bakery.Author.ID,
		Description: "test consumption",
		OrderID:     &orderID,
	})
	if err != nil {
		t.Fatalf("AdjustStock() error = %v", err)
	}

	if got := testutil.StockOf(t, database, bakery.Flour.ID, bakery.Kilogram.ID); !got.Equal(testutil.Dec(t, "7.5")) {
		t.Fatalf("flour stock = %s, want 7.5", got)
	}

	entries, err := store.History(ctx, orderID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("History() returned %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Action != string(ActionConsume) {
		t.Fatalf("entry.Action = %q, want %q", entry.Action, ActionConsume)
	}
	if !entry.BeforeQuantity.Equal(decimal.NewFromInt(10)) || !entry.AfterQuantity.Equal(testutil.Dec(t, "7.5")) {
		t.Fatalf("entry before/after = %s/%s, want 10/7.5", entry.BeforeQuantity, entry.AfterQuantity)
	}
	if !entry.TotalPrice.Equal(testutil.Dec(t, "3")) {
		t.Fatalf("entry.TotalPrice = %s, want 3", entry.TotalPrice)
	}
}

func TestAdjustStockRejectsNegativeBalance(t *testing.T) {
	t.Parallel()

	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, "10", "1")
	store := New(database)
	ctx := context.Background()

	err := store.AdjustStock(ctx, ActionConsume, Adjustment{
		ProductID: bakery.Yeast.ID,
		UnitID:    bakery.Kilogram.ID,
		Quantity:  testutil.Dec(t, "1.5"),
	})
	if !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("AdjustStock() error = %v, want ErrNegativeStock", err)
	}
	if got := testutil.StockOf(t, database, bakery.Yeast.ID, bakery.Kilogram.ID); !got.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("yeast stock = %s, want 1", got)
	}

	var count int64
	if err := database.Model(&models.ProductHistory{}).Count(&count).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if count != 0 {
		t.Fatalf("history count = %d, want 0", count)
	}

	err = store.AdjustStock(ctx, ActionDeduct, Adjustment{ProductID: 999, UnitID: bakery.Kilogram.ID, Quantity: decimal.NewFromInt(1)})
	if !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("AdjustStock() on missing balance error = %v, want ErrNegativeStock", err)
	}
}

func TestAdjustStockValidatesInput(t *testing.T) {
	t.Parallel()

	store := New(testutil.SetupTestDB(t))
	ctx := context.Background()

	if err := store.AdjustStock(ctx, Action("teleport"), Adjustment{Quantity: decimal.NewFromInt(1)}); !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("AdjustStock() unknown action error = %v, want ErrUnknownAction", err)
	}
	if err := store.AdjustStock(ctx, ActionAdd, Adjustment{Quantity: decimal.Zero}); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("AdjustStock() zero quantity error = %v, want ErrInvalidQuantity", err)
	}
}

func TestAdjustStockIncreaseAveragesCost(t *testing.T) {
	t.Parallel()

	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, "10", "1")
	store := New(database)
	ctx := context.Background()

	// 10 kg at 1.2 plus 10 kg at 1.8 averages to 1.5.
	err := store.AdjustStock(ctx, ActionAdd, Adjustment{
		ProductID: bakery.Flour.ID,
		UnitID:    bakery.Kilogram.ID,
		Quantity:  decimal.NewFromInt(10),
		UnitPrice: testutil.Dec(t, "1.8"),
	})
	if err != nil {
		t.Fatalf("AdjustStock() error = %v", err)
	}
	cogs, err := store.GetCogs(ctx, bakery.Flour.ID, bakery.Kilogram.ID)
	if err != nil {
		t.Fatalf("GetCogs() error = %v", err)
	}
	if !cogs.Equal(testutil.Dec(t, "1.5")) {
		t.Fatalf("GetCogs() = %s, want 1.5", cogs)
	}

	// Producing into a pair without a balance row creates it.
	err = store.AdjustStock(ctx, ActionProduce, Adjustment{
		ProductID: bakery.Bread.ID,
		UnitID:    bakery.Kilogram.ID,
		Quantity:  decimal.NewFromInt(3),
		UnitPrice: testutil.Dec(t, "0.5"),
	})
	if err != nil {
		t.Fatalf("AdjustStock() produce error = %v", err)
	}
	if got := testutil.StockOf(t, database, bakery.Bread.ID, bakery.Kilogram.ID); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("bread stock = %s, want 3", got)
	}
}

func TestAdjustStockJoinsAmbientTransaction(t *testing.T) {
	t.Parallel()

	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, "10", "1")
	store := New(database)
	boom := errors.New("abort")

	err := db.Transaction(context.Background(), database, func(ctx context.Context) error {
		if err := store.AdjustStock(ctx, ActionConsume, Adjustment{
			ProductID: bakery.Flour.ID,
			UnitID:    bakery.Kilogram.ID,
			Quantity:  decimal.NewFromInt(4),
		}); err != nil {
			return err
		}
		qty, err := store.GetQuantity(ctx, bakery.Flour.ID, bakery.Kilogram.ID)
		if err != nil {
			return err
		}
		if !qty.Equal(decimal.NewFromInt(6)) {
			t.Errorf("in-transaction quantity = %s, want 6", qty)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction() error = %v, want %v", err, boom)
	}
	if got := testutil.StockOf(t, database, bakery.Flour.ID, bakery.Kilogram.ID); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("flour stock after rollback = %s, want 10", got)
	}
}

func TestSetCogsAndDescribe(t *testing.T) {
	t.Parallel()

	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, "10", "1")
	store := New(database)
	ctx := context.Background()

	if err := store.SetCogs(ctx, bakery.Yeast.ID, bakery.Kilogram.ID, testutil.Dec(t, "9.75")); err != nil {
		t.Fatalf("SetCogs() error = %v", err)
	}
	cogs, err := store.GetCogs(ctx, bakery.Yeast.ID, bakery.Kilogram.ID)
	if err != nil {
		t.Fatalf("GetCogs() error = %v", err)
	}
	if !cogs.Equal(testutil.Dec(t, "9.75")) {
		t.Fatalf("GetCogs() = %s, want 9.75", cogs)
	}
	if err := store.SetCogs(ctx, bakery.Yeast.ID, bakery.Kilogram.ID, decimal.NewFromInt(-1)); err == nil {
		t.Fatal("expected error for negative cogs")
	}

	product, unit, err := store.Describe(ctx, bakery.Yeast.ID, bakery.Kilogram.ID)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if product != "Yeast" || unit != "Kilogram" {
		t.Fatalf("Describe() = %q/%q, want Yeast/Kilogram", product, unit)
	}

	product, unit, err = store.Describe(ctx, 999, 0)
	if err != nil {
		t.Fatalf("Describe() unknown error = %v", err)
	}
	if product != "" || unit != "" {
		t.Fatalf("Describe() unknown = %q/%q, want empty names", product, unit)
	}
}
