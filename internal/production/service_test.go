package production

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"fabrica/internal/bom"
	"fabrica/internal/inventory"
	"fabrica/internal/ledger"
	"fabrica/internal/testutil"
	"fabrica/models"
)

var fixedNow = time.Date(2026, time.January, 15, 9, 30, 0, 0, time.UTC)

type fixture struct {
	db     *gorm.DB
	bakery testutil.Bakery
	store  *ledger.Store
	svc    *Service
}

func newFixture(t *testing.T, flour, yeast string) fixture {
	t.Helper()
	database := testutil.SetupTestDB(t)
	bakery := testutil.SeedBakery(t, database, flour, yeast)
	store := ledger.New(database)
	svc := NewDefault(database, Config{OrderCodePrefix: "MO", Now: func() time.Time { return fixedNow }})
	return fixture{db: database, bakery: bakery, store: store, svc: svc}
}

func (f fixture) order(t *testing.T, quantity string, status models.OrderStatus) *models.ProductionOrder {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.bakery.Author.ID, OrderInput{
		BomID:    f.bakery.Bom.ID,
		Quantity: testutil.Dec(t, quantity),
		Status:   status,
	})
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	return order
}

func (f fixture) status(t *testing.T, orderID uint) models.OrderStatus {
	t.Helper()
	order, err := f.svc.Find(context.Background(), orderID)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	return order.Status
}

func (f fixture) assertStock(t *testing.T, product models.Product, unit models.Unit, want string) {
	t.Helper()
	if got := testutil.StockOf(t, f.db, product.ID, unit.ID); !got.Equal(testutil.Dec(t, want)) {
		t.Fatalf("%s stock = %s, want %s", product.Name, got, want)
	}
}

func TestStartAndCompleteProduceBread(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)

	started, err := f.svc.Start(ctx, f.bakery.Author.ID, order.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if started.Status != models.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", started.Status)
	}
	if started.StartedAt == nil || !started.StartedAt.Equal(fixedNow) {
		t.Fatalf("StartedAt = %v, want %v", started.StartedAt, fixedNow)
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "8")
	f.assertStock(t, f.bakery.Yeast, f.bakery.Kilogram, "0.5")

	movements := testutil.Movements(t, f.db, order.ID)
	if len(movements) != 2 {
		t.Fatalf("movements after start = %d, want 2", len(movements))
	}
	wantConsumed := []struct {
		product uint
		qty     string
		cost    string
	}{
		{f.bakery.Flour.ID, "-2", "1.2"},
		{f.bakery.Yeast.ID, "-0.5", "8"},
	}
	for i, want := range wantConsumed {
		got := movements[i]
		if got.Type != models.MovementConsumption || got.ProductID != want.product {
			t.Fatalf("movement %d = %s product %d, want consumption product %d", i, got.Type, got.ProductID, want.product)
		}
		if !got.Quantity.Equal(testutil.Dec(t, want.qty)) || !got.CostAtTime.Equal(testutil.Dec(t, want.cost)) {
			t.Fatalf("movement %d = %s at %s, want %s at %s", i, got.Quantity, got.CostAtTime, want.qty, want.cost)
		}
	}

	completed, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.Status != models.StatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("completed order = %s at %v, want completed with timestamp", completed.Status, completed.CompletedAt)
	}
	f.assertStock(t, f.bakery.Bread, f.bakery.Piece, "10")

	movements = testutil.Movements(t, f.db, order.ID)
	if len(movements) != 3 {
		t.Fatalf("movements after complete = %d, want 3", len(movements))
	}
	produced := movements[2]
	if produced.Type != models.MovementProduction || !produced.Quantity.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("production movement = %s %s, want production 10", produced.Type, produced.Quantity)
	}
	// 6.4 per run of 10 loaves.
	if !produced.CostAtTime.Equal(testutil.Dec(t, "0.64")) {
		t.Fatalf("production cost = %s, want 0.64", produced.CostAtTime)
	}
}

func TestStartReportsEveryShortfall(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		flour  string
		yeast  string
		short  []string
		detail string
	}{
		{"yeast only", "10", "1", []string{"Yeast"}, "Yeast (Kilogram): required 2.5, available 1"},
		{"flour and yeast", "4", "1", []string{"Flour", "Yeast"}, "Flour (Kilogram): required 10, available 4"},
	}

	for _, tt := range cases {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, tt.flour, tt.yeast)
			order := f.order(t, "5", models.StatusPlanned)

			_, err := f.svc.Start(context.Background(), f.bakery.Author.ID, order.ID)
			var shortage *InsufficientStockError
			if !errors.As(err, &shortage) {
				t.Fatalf("Start() error = %v, want InsufficientStockError", err)
			}
			if len(shortage.Shortfalls) != len(tt.short) {
				t.Fatalf("shortfalls = %+v, want %v", shortage.Shortfalls, tt.short)
			}
			for i, name := range tt.short {
				if shortage.Shortfalls[i].ProductName != name {
					t.Fatalf("shortfall %d = %s, want %s", i, shortage.Shortfalls[i].ProductName, name)
				}
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Fatalf("error %q does not contain %q", err, tt.detail)
			}
			if !strings.Contains(err.Error(), order.Code) {
				t.Fatalf("error %q does not name order %s", err, order.Code)
			}

			if got := f.status(t, order.ID); got != models.StatusPlanned {
				t.Fatalf("status = %s, want planned", got)
			}
			f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, tt.flour)
			f.assertStock(t, f.bakery.Yeast, f.bakery.Kilogram, tt.yeast)
			if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 0 {
				t.Fatalf("movements = %d, want 0", len(movements))
			}
		})
	}
}

func TestCancelInProgressFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)
	if _, err := f.svc.Start(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	_, err := f.svc.Cancel(ctx, f.bakery.Author.ID, order.ID)
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) {
		t.Fatalf("Cancel() error = %v, want InvalidTransitionError", err)
	}
	if transition.Status != models.StatusInProgress {
		t.Fatalf("blocking status = %s, want in_progress", transition.Status)
	}
	if !strings.Contains(err.Error(), "in_progress") {
		t.Fatalf("error %q does not name the blocking status", err)
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "8")
	f.assertStock(t, f.bakery.Yeast, f.bakery.Kilogram, "0.5")
	if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 2 {
		t.Fatalf("movements = %d, want the 2 from start", len(movements))
	}
}

func TestStartRequiresActiveBom(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusDraft)

	if err := f.db.Model(&models.BillOfMaterials{}).Where("id = ?", f.bakery.Bom.ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate bom: %v", err)
	}

	_, err := f.svc.Start(ctx, f.bakery.Author.ID, order.ID)
	var missing *MissingOrInactiveBomError
	if !errors.As(err, &missing) {
		t.Fatalf("Start() error = %v, want MissingOrInactiveBomError", err)
	}
	if missing.Missing || missing.BomName != "Bread" {
		t.Fatalf("error = %+v, want inactive bom Bread", missing)
	}
	if got := f.status(t, order.ID); got != models.StatusDraft {
		t.Fatalf("status = %s, want draft", got)
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "10")

	orphan := models.ProductionOrder{
		Code:            "MO-ORPHAN",
		OutputProductID: f.bakery.Bread.ID,
		OutputUnitID:    f.bakery.Piece.ID,
		Quantity:        decimal.NewFromInt(1),
		Status:          models.StatusPlanned,
		AuthorID:        f.bakery.Author.ID,
	}
	if err := f.db.Create(&orphan).Error; err != nil {
		t.Fatalf("create orphan order: %v", err)
	}
	_, err = f.svc.Start(ctx, f.bakery.Author.ID, orphan.ID)
	if !errors.As(err, &missing) || !missing.Missing {
		t.Fatalf("Start() without bom error = %v, want missing bom", err)
	}
}

func TestCompleteTwiceFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)

	if _, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("first Complete() error = %v", err)
	}
	_, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID)
	var transition *InvalidTransitionError
	if !errors.As(err, &transition) || transition.Status != models.StatusCompleted {
		t.Fatalf("second Complete() error = %v, want invalid transition from completed", err)
	}

	production := 0
	for _, m := range testutil.Movements(t, f.db, order.ID) {
		if m.Type == models.MovementProduction {
			production++
		}
	}
	if production != 1 {
		t.Fatalf("production movements = %d, want 1", production)
	}
	f.assertStock(t, f.bakery.Bread, f.bakery.Piece, "10")
}

func TestCompletedOrdersRejectEveryAction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)
	if _, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	actions := map[Action]func(context.Context, uint, uint) (*models.ProductionOrder, error){
		ActionStart:    f.svc.Start,
		ActionComplete: f.svc.Complete,
		ActionCancel:   f.svc.Cancel,
		ActionHold:     f.svc.Hold,
		ActionResume:   f.svc.Resume,
	}
	for action, fn := range actions {
		_, err := fn(ctx, f.bakery.Author.ID, order.ID)
		var transition *InvalidTransitionError
		if !errors.As(err, &transition) {
			t.Fatalf("%s on completed order error = %v, want InvalidTransitionError", action, err)
		}
	}
	if got := f.status(t, order.ID); got != models.StatusCompleted {
		t.Fatalf("status = %s, want completed", got)
	}
}

func TestCancelNeverCreatesMovements(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()

	draft := f.order(t, "1", models.StatusDraft)
	planned := f.order(t, "3", models.StatusPlanned)
	held := f.order(t, "1", models.StatusPlanned)
	if _, err := f.svc.Hold(ctx, f.bakery.Author.ID, held.ID); err != nil {
		t.Fatalf("Hold() error = %v", err)
	}

	for _, order := range []*models.ProductionOrder{draft, planned, held} {
		cancelled, err := f.svc.Cancel(ctx, f.bakery.Author.ID, order.ID)
		if err != nil {
			t.Fatalf("Cancel(%s) error = %v", order.Code, err)
		}
		if cancelled.Status != models.StatusCancelled {
			t.Fatalf("Cancel(%s) status = %s, want cancelled", order.Code, cancelled.Status)
		}
		if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 0 {
			t.Fatalf("Cancel(%s) created %d movements", order.Code, len(movements))
		}
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "10")
}

func TestCompleteRecomputesCost(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)

	if _, err := f.svc.Start(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.store.SetCogs(ctx, f.bakery.Yeast.ID, f.bakery.Kilogram.ID, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("SetCogs() error = %v", err)
	}
	if _, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	movements := testutil.Movements(t, f.db, order.ID)
	produced := movements[len(movements)-1]
	// 2 x 1.2 + 0.5 x 10 = 7.4 per run of 10.
	if !produced.CostAtTime.Equal(testutil.Dec(t, "0.74")) {
		t.Fatalf("production cost = %s, want 0.74", produced.CostAtTime)
	}
}

func TestCompleteAutoStartsPendingOrders(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()

	order := f.order(t, "1", models.StatusDraft)
	completed, err := f.svc.Complete(ctx, f.bakery.Author.ID, order.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if completed.Status != models.StatusCompleted || completed.StartedAt == nil {
		t.Fatalf("order = %s started %v, want completed and started", completed.Status, completed.StartedAt)
	}
	if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 3 {
		t.Fatalf("movements = %d, want 3", len(movements))
	}

	short := f.order(t, "5", models.StatusPlanned)
	_, err = f.svc.Complete(ctx, f.bakery.Author.ID, short.ID)
	var shortage *InsufficientStockError
	if !errors.As(err, &shortage) {
		t.Fatalf("Complete() error = %v, want InsufficientStockError", err)
	}
	if got := f.status(t, short.ID); got != models.StatusPlanned {
		t.Fatalf("status = %s, want planned", got)
	}
}

func TestHoldAndResume(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)

	held, err := f.svc.Hold(ctx, f.bakery.Author.ID, order.ID)
	if err != nil {
		t.Fatalf("Hold() error = %v", err)
	}
	if held.Status != models.StatusOnHold {
		t.Fatalf("status = %s, want on_hold", held.Status)
	}

	for name, fn := range map[string]func(context.Context, uint, uint) (*models.ProductionOrder, error){
		"start":    f.svc.Start,
		"complete": f.svc.Complete,
	} {
		var transition *InvalidTransitionError
		if _, err := fn(ctx, f.bakery.Author.ID, order.ID); !errors.As(err, &transition) {
			t.Fatalf("%s on held order error = %v, want InvalidTransitionError", name, err)
		}
	}

	resumed, err := f.svc.Resume(ctx, f.bakery.Author.ID, order.ID)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if resumed.Status != models.StatusPlanned {
		t.Fatalf("status = %s, want planned", resumed.Status)
	}
	if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 0 {
		t.Fatalf("movements = %d, want 0", len(movements))
	}
}

func TestUnknownOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	_, err := f.svc.Start(context.Background(), f.bakery.Author.ID, 404)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("Start() error = %v, want ErrOrderNotFound", err)
	}
	var orderErr *OrderError
	if !errors.As(err, &orderErr) || orderErr.OrderID != 404 {
		t.Fatalf("Start() error = %v, want OrderError for #404", err)
	}
}

func TestMoveDetectsConcurrentTransition(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	order := f.order(t, "1", models.StatusPlanned)

	// Another writer cancels the order after it was read.
	if err := f.db.Model(&models.ProductionOrder{}).Where("id = ?", order.ID).Update("status", models.StatusCancelled).Error; err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := f.svc.move(ctx, order, ActionHold, nil); !errors.Is(err, ErrConcurrentTransition) {
		t.Fatalf("move() error = %v, want ErrConcurrentTransition", err)
	}
}

// flakyInventory fails the nth consume or any produce.
type flakyInventory struct {
	*inventory.Bridge
	failConsumeAt int
	failProduce   bool
	consumed      int
}

var errFlaky = errors.New("ledger unavailable")

func (f *flakyInventory) Consume(ctx context.Context, orderID, productID, unitID uint, quantity, cost decimal.Decimal, actorID uint) (*models.StockMovement, error) {
	f.consumed++
	if f.consumed == f.failConsumeAt {
		return nil, errFlaky
	}
	return f.Bridge.Consume(ctx, orderID, productID, unitID, quantity, cost, actorID)
}

func (f *flakyInventory) Produce(ctx context.Context, orderID, productID, unitID uint, quantity, cost decimal.Decimal, actorID uint) (*models.StockMovement, error) {
	if f.failProduce {
		return nil, errFlaky
	}
	return f.Bridge.Produce(ctx, orderID, productID, unitID, quantity, cost, actorID)
}

func TestFailuresRollBackEverything(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	flaky := &flakyInventory{Bridge: inventory.NewBridge(f.db, f.store), failConsumeAt: 2}
	svc := New(f.db, bom.NewRepository(f.db), flaky, bom.NewEstimator(f.store), f.store, Config{Now: func() time.Time { return fixedNow }})
	order := f.order(t, "1", models.StatusPlanned)

	_, err := svc.Start(ctx, f.bakery.Author.ID, order.ID)
	var persist *PersistenceError
	if !errors.As(err, &persist) || !errors.Is(err, errFlaky) {
		t.Fatalf("Start() error = %v, want PersistenceError wrapping %v", err, errFlaky)
	}
	if got := f.status(t, order.ID); got != models.StatusPlanned {
		t.Fatalf("status = %s, want planned", got)
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "10")
	if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 0 {
		t.Fatalf("movements = %d, want 0", len(movements))
	}

	flaky.failConsumeAt = 0
	if _, err := svc.Start(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("Start() retry error = %v", err)
	}
	flaky.failProduce = true
	if _, err := svc.Complete(ctx, f.bakery.Author.ID, order.ID); !errors.Is(err, errFlaky) {
		t.Fatalf("Complete() error = %v, want %v", err, errFlaky)
	}
	if got := f.status(t, order.ID); got != models.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", got)
	}
	f.assertStock(t, f.bakery.Bread, f.bakery.Piece, "0")
}

func TestStartConsumesEachBomItem(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	ctx := context.Background()
	kg := f.bakery.Kilogram.ID
	extra := models.BomItem{
		BomID:                 f.bakery.Bom.ID,
		ComponentProductID:    f.bakery.Flour.ID,
		ComponentUnitID:       &kg,
		Quantity:              decimal.NewFromInt(1),
		CostAllocationPercent: decimal.NewFromInt(100),
		AuthorID:              f.bakery.Author.ID,
	}
	if err := f.db.Create(&extra).Error; err != nil {
		t.Fatalf("create extra flour item: %v", err)
	}
	order := f.order(t, "2", models.StatusPlanned)

	if _, err := f.svc.Start(ctx, f.bakery.Author.ID, order.ID); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	movements := testutil.Movements(t, f.db, order.ID)
	want := []struct {
		product uint
		qty     string
	}{
		{f.bakery.Flour.ID, "-4"},
		{f.bakery.Yeast.ID, "-1"},
		{f.bakery.Flour.ID, "-2"},
	}
	if len(movements) != len(want) {
		t.Fatalf("movements = %d, want one per bom item (%d)", len(movements), len(want))
	}
	for i, w := range want {
		got := movements[i]
		if got.Type != models.MovementConsumption || got.ProductID != w.product || !got.Quantity.Equal(testutil.Dec(t, w.qty)) {
			t.Fatalf("movement %d = %s product %d qty %s, want consumption product %d qty %s", i, got.Type, got.ProductID, got.Quantity, w.product, w.qty)
		}
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "4")
	f.assertStock(t, f.bakery.Yeast, f.bakery.Kilogram, "0")
}

func TestStartChecksMergedItemsBeforeConsuming(t *testing.T) {
	t.Parallel()

	// 2 + 9 kg flour per run against 10 kg on hand.
	f := newFixture(t, "10", "1")
	ctx := context.Background()
	kg := f.bakery.Kilogram.ID
	extra := models.BomItem{
		BomID:                 f.bakery.Bom.ID,
		ComponentProductID:    f.bakery.Flour.ID,
		ComponentUnitID:       &kg,
		Quantity:              decimal.NewFromInt(9),
		CostAllocationPercent: decimal.NewFromInt(100),
		AuthorID:              f.bakery.Author.ID,
	}
	if err := f.db.Create(&extra).Error; err != nil {
		t.Fatalf("create extra flour item: %v", err)
	}
	order := f.order(t, "1", models.StatusPlanned)

	_, err := f.svc.Start(ctx, f.bakery.Author.ID, order.ID)
	var shortage *InsufficientStockError
	if !errors.As(err, &shortage) {
		t.Fatalf("Start() error = %v, want InsufficientStockError", err)
	}
	if len(shortage.Shortfalls) != 1 || !shortage.Shortfalls[0].Required.Equal(decimal.NewFromInt(11)) {
		t.Fatalf("shortfalls = %+v, want flour 11", shortage.Shortfalls)
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "10")
	if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 0 {
		t.Fatalf("movements = %d, want 0", len(movements))
	}
}

// startConcurrently starts every order from its own goroutine and returns
// the error of each call.
func startConcurrently(f fixture, orderIDs ...uint) []error {
	errs := make([]error, len(orderIDs))
	var wg sync.WaitGroup
	for i, id := range orderIDs {
		wg.Add(1)
		go func(i int, id uint) {
			defer wg.Done()
			_, errs[i] = f.svc.Start(context.Background(), f.bakery.Author.ID, id)
		}(i, id)
	}
	wg.Wait()
	return errs
}

func TestConcurrentStartsOfOneOrderConsumeOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "10", "1")
	order := f.order(t, "1", models.StatusPlanned)

	errs := startConcurrently(f, order.ID, order.ID)
	succeeded := 0
	for _, err := range errs {
		var transition *InvalidTransitionError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &transition), errors.Is(err, ErrConcurrentTransition):
		default:
			t.Fatalf("Start() error = %v, want success or a rejected transition", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("successful starts = %d, want 1", succeeded)
	}
	if got := f.status(t, order.ID); got != models.StatusInProgress {
		t.Fatalf("status = %s, want in_progress", got)
	}
	if movements := testutil.Movements(t, f.db, order.ID); len(movements) != 2 {
		t.Fatalf("movements = %d, want 2", len(movements))
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "8")
	f.assertStock(t, f.bakery.Yeast, f.bakery.Kilogram, "0.5")
}

func TestConcurrentStartsShareStockPool(t *testing.T) {
	t.Parallel()

	// Each order needs 0.75 kg of the 1 kg of yeast on hand.
	f := newFixture(t, "10", "1")
	first := f.order(t, "1.5", models.StatusPlanned)
	second := f.order(t, "1.5", models.StatusPlanned)

	errs := startConcurrently(f, first.ID, second.ID)
	succeeded, short := 0, 0
	for _, err := range errs {
		var shortage *InsufficientStockError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &shortage):
			short++
		default:
			t.Fatalf("Start() error = %v, want success or InsufficientStockError", err)
		}
	}
	if succeeded != 1 || short != 1 {
		t.Fatalf("started = %d, short = %d; want 1 and 1", succeeded, short)
	}

	inProgress := 0
	for _, id := range []uint{first.ID, second.ID} {
		if f.status(t, id) == models.StatusInProgress {
			inProgress++
		}
	}
	if inProgress != 1 {
		t.Fatalf("orders in progress = %d, want 1", inProgress)
	}
	yeast := testutil.StockOf(t, f.db, f.bakery.Yeast.ID, f.bakery.Kilogram.ID)
	if yeast.IsNegative() || !yeast.Equal(testutil.Dec(t, "0.25")) {
		t.Fatalf("yeast stock = %s, want 0.25", yeast)
	}
	f.assertStock(t, f.bakery.Flour, f.bakery.Kilogram, "7")
}
