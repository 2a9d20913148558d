package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/fjod/cartstore/internal/cart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type gormCatalogSuite struct {
	suite.Suite

	catalog *GormCatalog
}

func TestGormCatalogSuite(t *testing.T) {
	suite.Run(t, new(gormCatalogSuite))
}

// fresh database for every test
func (suite *gormCatalogSuite) SetupTest() {
	c, err := Open("sqlite", filepath.Join(suite.T().TempDir(), "catalog.db"))
	suite.Require().NoError(err)
	suite.catalog = c
}

func (suite *gormCatalogSuite) TearDownTest() {
	if suite.catalog != nil {
		suite.NoError(suite.catalog.Close())
	}
}

func randomProduct() cart.Product {
	return cart.Product{
		ID:       gofakeit.UUID(),
		Name:     gofakeit.ProductName(),
		Category: gofakeit.ProductCategory(),
		Price:    fmt.Sprintf("%.2f", gofakeit.Price(1, 100)),
		Qty:      gofakeit.IntRange(1, 50),
		Image:    gofakeit.URL(),
	}
}

func (suite *gormCatalogSuite) TestGetProduct() {
	ctx := suite.T().Context()
	p := randomProduct()
	suite.Require().NoError(suite.catalog.Seed(ctx, []cart.Product{p, randomProduct()}))

	got, err := suite.catalog.GetProduct(ctx, p.ID)

	suite.Require().NoError(err)
	suite.Equal(p, got)
}

func (suite *gormCatalogSuite) TestGetProduct_NotFound() {
	_, err := suite.catalog.GetProduct(suite.T().Context(), "nope")

	suite.ErrorIs(err, ErrProductNotFound)
}

func (suite *gormCatalogSuite) TestSeed_OverwritesExisting() {
	ctx := suite.T().Context()
	p := randomProduct()
	suite.Require().NoError(suite.catalog.Seed(ctx, []cart.Product{p}))

	p.Price = "42.00"
	p.Qty = 1
	suite.Require().NoError(suite.catalog.Seed(ctx, []cart.Product{p}))

	got, err := suite.catalog.GetProduct(ctx, p.ID)
	suite.Require().NoError(err)
	suite.Equal("42.00", got.Price)
	suite.Equal(1, got.Qty)
}

func (suite *gormCatalogSuite) TestListProducts_OrderedByName() {
	ctx := suite.T().Context()
	suite.Require().NoError(suite.catalog.Seed(ctx, []cart.Product{
		{ID: "2", Name: "Oolong", Price: "3.00", Qty: 1},
		{ID: "1", Name: "Genmaicha", Price: "2.00", Qty: 1},
	}))

	products, err := suite.catalog.ListProducts(ctx)

	suite.Require().NoError(err)
	suite.Require().Len(products, 2)
	suite.Equal("Genmaicha", products[0].Name)
	suite.Equal("Oolong", products[1].Name)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "x")
	assert.ErrorContains(t, err, "unsupported catalog driver")
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"p1","name":"Sencha","category":"tea","price":"4.50","qty":12,"image":"sencha.png"}]`), 0o600))

	products, err := LoadSeedFile(path)

	require.NoError(t, err)
	assert.Equal(t, []cart.Product{{ID: "p1", Name: "Sencha", Category: "tea", Price: "4.50", Qty: 12, Image: "sencha.png"}}, products)
}

func TestLoadSeedFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

	_, err := LoadSeedFile(path)
	assert.ErrorContains(t, err, "failed to parse seed file")
}
