package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fjod/cartstore/internal/cart"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var ErrProductNotFound = errors.New("product not found")

// Catalog supplies product snapshots to the cart.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (cart.Product, error)
	ListProducts(ctx context.Context) ([]cart.Product, error)
}

type productRecord struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Name      string    `gorm:"column:name;not null"`
	Category  string    `gorm:"column:category;index"`
	Price     string    `gorm:"column:price;not null"`
	Qty       int       `gorm:"column:qty;not null;default:0"`
	Image     string    `gorm:"column:image"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (productRecord) TableName() string {
	return "products"
}

func (r productRecord) toProduct() cart.Product {
	return cart.Product{
		ID:       r.ID,
		Name:     r.Name,
		Category: r.Category,
		Price:    r.Price,
		Qty:      r.Qty,
		Image:    r.Image,
	}
}

type GormCatalog struct {
	db *gorm.DB
}

// Open connects to the catalog database and migrates the products table.
// driver is "sqlite" or "postgres".
func Open(driver, dsn string) (*GormCatalog, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	return NewGormCatalog(db)
}

func NewGormCatalog(db *gorm.DB) (*GormCatalog, error) {
	if err := db.AutoMigrate(&productRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate products: %w", err)
	}
	return &GormCatalog{db: db}, nil
}

func (c *GormCatalog) GetProduct(ctx context.Context, id string) (cart.Product, error) {
	var rec productRecord
	err := c.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cart.Product{}, ErrProductNotFound
	}
	if err != nil {
		return cart.Product{}, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return rec.toProduct(), nil
}

func (c *GormCatalog) ListProducts(ctx context.Context) ([]cart.Product, error) {
	var recs []productRecord
	if err := c.db.WithContext(ctx).Order("name").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}

	products := make([]cart.Product, 0, len(recs))
	for _, r := range recs {
		products = append(products, r.toProduct())
	}
	return products, nil
}

// Seed inserts products, overwriting existing rows with the same id.
func (c *GormCatalog) Seed(ctx context.Context, products []cart.Product) error {
	if len(products) == 0 {
		return nil
	}

	recs := make([]productRecord, 0, len(products))
	for _, p := range products {
		recs = append(recs, productRecord{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Price:    p.Price,
			Qty:      p.Qty,
			Image:    p.Image,
		})
	}

	err := c.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "category", "price", "qty", "image", "updated_at"}),
		}).
		Create(&recs).Error
	if err != nil {
		return fmt.Errorf("failed to seed products: %w", err)
	}
	return nil
}

// LoadSeedFile reads a JSON array of products.
func LoadSeedFile(path string) ([]cart.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var products []cart.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return products, nil
}

func (c *GormCatalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
