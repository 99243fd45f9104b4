package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"fabrica/internal/bom"
	"fabrica/internal/config"
	"fabrica/internal/db"
	"fabrica/internal/ledger"
	applog "fabrica/internal/log"
	"fabrica/models"
)

var errDryRun = errors.New("dry run")

// amount is a decimal written as a plain YAML scalar, e.g. `quantity: 0.5`.
type amount struct {
	decimal.Decimal
	set bool
}

func (a *amount) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid number %q", node.Line, node.Value)
	}
	a.Decimal, a.set = d, true
	return nil
}

type catalogFile struct {
	Units    []unitEntry    `yaml:"units"`
	Products []productEntry `yaml:"products"`
	Stock    []stockEntry   `yaml:"stock"`
	Boms     []bomEntry     `yaml:"boms"`
}

type unitEntry struct {
	Identifier string `yaml:"identifier"`
	Name       string `yaml:"name"`
}

type productEntry struct {
	SKU  string `yaml:"sku"`
	Name string `yaml:"name"`
}

type stockEntry struct {
	Product      string `yaml:"product"`
	Unit         string `yaml:"unit"`
	Quantity     amount `yaml:"quantity"`
	UnitPrice    amount `yaml:"unit_price"`
	Manufactured bool   `yaml:"manufactured"`
	RawMaterial  bool   `yaml:"raw_material"`
}

type bomEntry struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Inactive    bool        `yaml:"inactive"`
	Output      outputEntry `yaml:"output"`
	Items       []itemEntry `yaml:"items"`
}

type outputEntry struct {
	Product  string `yaml:"product"`
	Unit     string `yaml:"unit"`
	Quantity amount `yaml:"quantity"`
}

type itemEntry struct {
	Product        string `yaml:"product"`
	Unit           string `yaml:"unit"`
	Quantity       amount `yaml:"quantity"`
	WastePercent   amount `yaml:"waste_percent"`
	CostAllocation amount `yaml:"cost_allocation_percent"`
}

type importSummary struct {
	Units, Products, Balances, Boms, Items, Skipped int
}

func main() {
	dryRun := flag.Bool("dry-run", false, "validate the file and roll back instead of committing")
	flag.Parse()

	path := "boms.yaml"
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	if err := run(path, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, dryRun bool) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("catalog path must not be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	catalog, err := parseCatalog(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := applog.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("set log level: %w", err)
	}

	database, err := db.Initialize(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(database); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	ctx := context.Background()
	authorID, err := resolveImportAuthor(ctx, database)
	if err != nil {
		return fmt.Errorf("resolve author: %w", err)
	}

	summary, err := importCatalog(ctx, database, catalog, authorID, dryRun)
	if err != nil {
		return err
	}

	verb := "Imported"
	if dryRun {
		verb = "Validated"
	}
	fmt.Fprintf(os.Stdout, "%s %d units, %d products, %d balances, %d boms (%d items) from %s; %d existing entries skipped\n",
		verb, summary.Units, summary.Products, summary.Balances, summary.Boms, summary.Items, filepath.Base(path), summary.Skipped)
	return nil
}

func parseCatalog(data []byte) (*catalogFile, error) {
	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}
	if len(catalog.Units) == 0 && len(catalog.Products) == 0 && len(catalog.Boms) == 0 {
		return nil, errors.New("catalog is empty")
	}
	return &catalog, nil
}

func resolveImportAuthor(ctx context.Context, database *gorm.DB) (uint, error) {
	email := strings.TrimSpace(os.Getenv("FABRICA_IMPORT_AUTHOR_EMAIL"))
	var user models.User
	if email != "" {
		if err := database.WithContext(ctx).Where("lower(email) = ?", strings.ToLower(email)).First(&user).Error; err != nil {
			return 0, fmt.Errorf("find author by email %q: %w", strings.ToLower(email), err)
		}
		return user.ID, nil
	}
	if err := database.WithContext(ctx).Order("id asc").First(&user).Error; err != nil {
		return 0, fmt.Errorf("find default author: %w", err)
	}
	return user.ID, nil
}

// importCatalog writes the catalog in one transaction. Units, products,
// balances and BOMs that already exist are left untouched; BOM items go
// through the same validation as the API, cycle check included.
func importCatalog(ctx context.Context, database *gorm.DB, catalog *catalogFile, authorID uint, dryRun bool) (importSummary, error) {
	var summary importSummary
	err := db.Transaction(ctx, database, func(ctx context.Context) error {
		conn := db.Conn(ctx, database)

		units := make(map[string]uint, len(catalog.Units))
		for _, entry := range catalog.Units {
			identifier := strings.TrimSpace(entry.Identifier)
			if identifier == "" {
				return fmt.Errorf("unit %q: identifier is required", entry.Name)
			}
			unit := models.Unit{Identifier: identifier, Name: strings.TrimSpace(entry.Name)}
			created, err := firstOrCreate(conn, &unit, "identifier = ?", identifier)
			if err != nil {
				return fmt.Errorf("unit %q: %w", identifier, err)
			}
			summary.count(created, &summary.Units)
			units[identifier] = unit.ID
		}

		products := make(map[string]uint, len(catalog.Products))
		for _, entry := range catalog.Products {
			sku := strings.TrimSpace(entry.SKU)
			if sku == "" {
				return fmt.Errorf("product %q: sku is required", entry.Name)
			}
			product := models.Product{SKU: sku, Name: strings.TrimSpace(entry.Name)}
			created, err := firstOrCreate(conn, &product, "sku = ?", sku)
			if err != nil {
				return fmt.Errorf("product %q: %w", sku, err)
			}
			summary.count(created, &summary.Products)
			products[sku] = product.ID
		}

		resolve := func(label, sku, identifier string) (uint, uint, error) {
			productID, ok := products[sku]
			if !ok {
				return 0, 0, fmt.Errorf("%s: unknown product %q", label, sku)
			}
			unitID, ok := units[identifier]
			if !ok {
				return 0, 0, fmt.Errorf("%s: unknown unit %q", label, identifier)
			}
			return productID, unitID, nil
		}

		store := ledger.New(database)
		for _, entry := range catalog.Stock {
			label := fmt.Sprintf("stock %s/%s", entry.Product, entry.Unit)
			productID, unitID, err := resolve(label, entry.Product, entry.Unit)
			if err != nil {
				return err
			}
			var existing int64
			if err := conn.Model(&models.ProductUnitQuantity{}).Where("product_id = ? AND unit_id = ?", productID, unitID).Count(&existing).Error; err != nil {
				return fmt.Errorf("%s: %w", label, err)
			}
			if existing > 0 {
				summary.Skipped++
				continue
			}
			if entry.Quantity.IsPositive() {
				err = store.AdjustStock(ctx, ledger.ActionAdd, ledger.Adjustment{
					ProductID:   productID,
					UnitID:      unitID,
					Quantity:    entry.Quantity.Decimal,
					UnitPrice:   entry.UnitPrice.Decimal,
					AuthorID:    authorID,
					Description: "Opening balance (import)",
				})
			} else {
				err = store.SetCogs(ctx, productID, unitID, entry.UnitPrice.Decimal)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", label, err)
			}
			if entry.Manufactured || entry.RawMaterial {
				flags := map[string]any{"is_manufactured": entry.Manufactured, "is_raw_material": entry.RawMaterial}
				if err := conn.Model(&models.ProductUnitQuantity{}).Where("product_id = ? AND unit_id = ?", productID, unitID).Updates(flags).Error; err != nil {
					return fmt.Errorf("%s: flags: %w", label, err)
				}
			}
			summary.Balances++
		}

		service := bom.NewService(database)
		for _, entry := range catalog.Boms {
			name := strings.TrimSpace(entry.Name)
			if _, err := service.Repository().FindByName(ctx, name); err == nil {
				applog.Info(ctx, "bom already exists, skipping", "name", name)
				summary.Skipped++
				continue
			} else if !errors.Is(err, bom.ErrBomNotFound) {
				return fmt.Errorf("bom %q: %w", name, err)
			}

			productID, unitID, err := resolve(fmt.Sprintf("bom %q output", name), entry.Output.Product, entry.Output.Unit)
			if err != nil {
				return err
			}
			outputQuantity := entry.Output.Quantity.Decimal
			if !entry.Output.Quantity.set {
				outputQuantity = decimal.NewFromInt(1)
			}
			recipe, err := service.CreateBom(ctx, authorID, bom.BomInput{
				Name:            name,
				OutputProductID: productID,
				OutputUnitID:    unitID,
				OutputQuantity:  outputQuantity,
				IsActive:        !entry.Inactive,
				Description:     entry.Description,
			})
			if err != nil {
				return fmt.Errorf("bom %q: %w", name, err)
			}
			summary.Boms++

			for idx, item := range entry.Items {
				label := fmt.Sprintf("bom %q item %d", name, idx+1)
				componentID, componentUnitID, err := resolve(label, item.Product, item.Unit)
				if err != nil {
					return err
				}
				input := bom.ItemInput{
					ComponentProductID: componentID,
					ComponentUnitID:    &componentUnitID,
					Quantity:           item.Quantity.Decimal,
					WastePercent:       item.WastePercent.Decimal,
				}
				if item.CostAllocation.set {
					allocation := item.CostAllocation.Decimal
					input.CostAllocationPercent = &allocation
				}
				if _, err := service.AddItem(ctx, authorID, recipe.ID, input); err != nil {
					return fmt.Errorf("%s: %w", label, err)
				}
				summary.Items++
			}
		}

		if dryRun {
			return errDryRun
		}
		return nil
	})
	if errors.Is(err, errDryRun) {
		return summary, nil
	}
	return summary, err
}

func (s *importSummary) count(created bool, counter *int) {
	if created {
		*counter++
		return
	}
	s.Skipped++
}

func firstOrCreate(conn *gorm.DB, value any, query string, args ...any) (bool, error) {
	result := conn.Where(query, args...).Limit(1).Find(value)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return false, nil
	}
	return true, conn.Create(value).Error
}
