package mock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fabrica/internal/bom"
	"fabrica/internal/db"
	"fabrica/internal/ledger"
	applog "fabrica/internal/log"
	"fabrica/models"
)

// Password is the login password of the seeded operator.
const Password = "fabrica"

// New returns an in-memory sqlite database seeded with a small bakery: an
// operator, flour/yeast/bread stock and an active bread BOM.
func New(ctx context.Context) (*gorm.DB, error) {
	applog.Debug(ctx, "initialising mock database")

	database, err := gorm.Open(sqlite.Open("file:fabrica-mock?mode=memory&cache=shared"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction:                   true,
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := database.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(database); err != nil {
		return nil, err
	}

	var existing int64
	if err := database.WithContext(ctx).Model(&models.User{}).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing == 0 {
		if err := db.Transaction(ctx, database, func(ctx context.Context) error {
			return seed(ctx, database)
		}); err != nil {
			return nil, fmt.Errorf("seed mock database: %w", err)
		}
	}

	applog.Debug(ctx, "mock database ready")
	return database, nil
}

func seed(ctx context.Context, database *gorm.DB) error {
	applog.Debug(ctx, "seeding mock database")
	conn := db.Conn(ctx, database)

	password, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user := &models.User{
		Name:         "Morgan Baker",
		Email:        "morgan@fabrica.local",
		PasswordHash: string(password),
	}
	if err := conn.Create(user).Error; err != nil {
		return err
	}

	kilogram := &models.Unit{Name: "Kilogram", Identifier: "kg"}
	piece := &models.Unit{Name: "Piece", Identifier: "pc"}
	for _, unit := range []*models.Unit{kilogram, piece} {
		if err := conn.Create(unit).Error; err != nil {
			return err
		}
	}

	flour := &models.Product{Name: "Flour", SKU: "RAW-FLOUR"}
	yeast := &models.Product{Name: "Yeast", SKU: "RAW-YEAST"}
	bread := &models.Product{Name: "Bread", SKU: "FG-BREAD"}
	for _, product := range []*models.Product{flour, yeast, bread} {
		if err := conn.Create(product).Error; err != nil {
			return err
		}
	}

	store := ledger.New(database)
	stock := []struct {
		product *models.Product
		unit    *models.Unit
		qty     int64
		price   string
	}{
		{flour, kilogram, 50, "1.2"},
		{yeast, kilogram, 5, "8"},
	}
	for _, s := range stock {
		err := store.AdjustStock(ctx, ledger.ActionAdd, ledger.Adjustment{
			ProductID:   s.product.ID,
			UnitID:      s.unit.ID,
			Quantity:    decimal.NewFromInt(s.qty),
			UnitPrice:   decimal.RequireFromString(s.price),
			AuthorID:    user.ID,
			Description: "Opening balance",
		})
		if err != nil {
			return err
		}
	}
	if err := store.SetCogs(ctx, bread.ID, piece.ID, decimal.Zero); err != nil {
		return err
	}

	boms := bom.NewService(database)
	recipe, err := boms.CreateBom(ctx, user.ID, bom.BomInput{
		Name:            "Bread",
		OutputProductID: bread.ID,
		OutputUnitID:    piece.ID,
		OutputQuantity:  decimal.NewFromInt(10),
		IsActive:        true,
		Description:     "Ten loaves per batch.",
	})
	if err != nil {
		return err
	}
	items := []bom.ItemInput{
		{ComponentProductID: flour.ID, ComponentUnitID: &kilogram.ID, Quantity: decimal.NewFromInt(2)},
		{ComponentProductID: yeast.ID, ComponentUnitID: &kilogram.ID, Quantity: decimal.RequireFromString("0.5"), WastePercent: decimal.NewFromInt(2)},
	}
	for _, item := range items {
		if _, err := boms.AddItem(ctx, user.ID, recipe.ID, item); err != nil {
			return err
		}
	}

	order := &models.ProductionOrder{
		Code:            "MO-DEMO-0001",
		BomID:           &recipe.ID,
		OutputProductID: bread.ID,
		OutputUnitID:    piece.ID,
		Quantity:        decimal.NewFromInt(1),
		Status:          models.StatusPlanned,
		AuthorID:        user.ID,
	}
	if err := conn.Create(order).Error; err != nil {
		return err
	}

	applog.Debug(ctx, "mock database seeded")
	return nil
}
