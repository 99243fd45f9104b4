package production

import (
	"context"
	"testing"

	"fabrica/internal/testutil"
	"fabrica/models"
)

func TestAnalyticsSummary(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "2")
	ctx := context.Background()

	done := f.order(t, "2", models.StatusPlanned)
	if _, err := f.svc.Complete(ctx, f.bakery.Author.ID, done.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	pending := f.order(t, "1", models.StatusDraft)
	cancelled := f.order(t, "1", models.StatusPlanned)
	if _, err := f.svc.Cancel(ctx, f.bakery.Author.ID, cancelled.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	summary, err := f.svc.Analytics().Summary(ctx)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalOrders != 3 || summary.Completed != 1 || summary.Pending != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3/1/1", summary.TotalOrders, summary.Completed, summary.Pending)
	}
	// Two runs at 6.4 each.
	if !summary.TotalProductionValue.Equal(testutil.Dec(t, "12.8")) {
		t.Fatalf("TotalProductionValue = %s, want 12.8", summary.TotalProductionValue)
	}
	if len(summary.TopProducts) != 1 || summary.TopProducts[0].Name != "Bread" || !summary.TopProducts[0].Quantity.Equal(testutil.Dec(t, "2")) {
		t.Fatalf("TopProducts = %+v, want Bread x 2", summary.TopProducts)
	}
	if len(summary.RecentOrders) != 3 {
		t.Fatalf("RecentOrders = %d, want 3", len(summary.RecentOrders))
	}
	if summary.RecentOrders[0].Code != cancelled.Code || summary.RecentOrders[1].Code != pending.Code {
		t.Fatalf("RecentOrders order = %s, %s; want newest first", summary.RecentOrders[0].Code, summary.RecentOrders[1].Code)
	}
	if summary.RecentOrders[2].ProductName != "Bread" || summary.RecentOrders[2].UnitName != "Piece" {
		t.Fatalf("recent order names = %s/%s, want Bread/Piece", summary.RecentOrders[2].ProductName, summary.RecentOrders[2].UnitName)
	}
}

func TestAnalyticsBomUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "2")
	ctx := context.Background()

	for _, qty := range []string{"1", "2"} {
		order := f.order(t, qty, models.StatusPlanned)
		if _, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
	}
	f.order(t, "4", models.StatusDraft)

	usage, err := f.svc.Analytics().BomUsage(ctx, f.bakery.Bom.ID)
	if err != nil {
		t.Fatalf("BomUsage() error = %v", err)
	}
	if usage.TotalOrders != 3 || usage.CompletedOrders != 2 {
		t.Fatalf("usage = %+v, want 3 orders, 2 completed", usage)
	}
	if !usage.TotalQuantityProduced.Equal(testutil.Dec(t, "3")) {
		t.Fatalf("TotalQuantityProduced = %s, want 3", usage.TotalQuantityProduced)
	}

	empty, err := f.svc.Analytics().BomUsage(ctx, 999)
	if err != nil {
		t.Fatalf("BomUsage() unknown error = %v", err)
	}
	if empty.TotalOrders != 0 || !empty.TotalQuantityProduced.IsZero() {
		t.Fatalf("usage of unknown bom = %+v, want zero", empty)
	}
}
