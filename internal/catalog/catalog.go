// Package catalog loads the register's product list from YAML.
package catalog

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/erp-saas/pdv/internal/domain"
)

var (
	// ErrProductNotFound is returned when the id is not in the catalog.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrInvalidCatalog is returned when the YAML document fails validation.
	ErrInvalidCatalog = errors.New("catalog: invalid catalog")
)

//go:embed catalog.yaml
var defaultCatalog []byte

type document struct {
	Products []productEntry `yaml:"products"`
}

type productEntry struct {
	ID      string `yaml:"id"`
	SKU     string `yaml:"sku"`
	Name    string `yaml:"name"`
	Price   string `yaml:"price"`
	Popular bool   `yaml:"popular"`
}

// Catalog is an immutable, in-memory product list.
type Catalog struct {
	products []domain.Product
	byID     map[string]int
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if len(doc.Products) == 0 {
		return nil, fmt.Errorf("%w: no products", ErrInvalidCatalog)
	}

	c := &Catalog{
		products: make([]domain.Product, 0, len(doc.Products)),
		byID:     make(map[string]int, len(doc.Products)),
	}
	for i, entry := range doc.Products {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: product %d has no id", ErrInvalidCatalog, i)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %q", ErrInvalidCatalog, id)
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: product %q has no name", ErrInvalidCatalog, id)
		}
		price, err := ParsePrice(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: product %q: %v", ErrInvalidCatalog, id, err)
		}
		c.byID[id] = len(c.products)
		c.products = append(c.products, domain.Product{
			ID:        id,
			SKU:       strings.TrimSpace(entry.SKU),
			Name:      name,
			UnitPrice: price,
			Popular:   entry.Popular,
		})
	}
	return c, nil
}

// Product returns the product by id.
func (c *Catalog) Product(_ context.Context, id string) (domain.Product, error) {
	if c == nil {
		return domain.Product{}, ErrProductNotFound
	}
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return domain.Product{}, ErrProductNotFound
	}
	return c.products[idx], nil
}

// Popular lists the quick-add products in catalog order.
func (c *Catalog) Popular(_ context.Context) ([]domain.Product, error) {
	if c == nil {
		return nil, nil
	}
	out := make([]domain.Product, 0, len(c.products))
	for _, product := range c.products {
		if product.Popular {
			out = append(out, product)
		}
	}
	return out, nil
}

// Len reports the number of products.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.products)
}

// ParsePrice converts a decimal string such as "4999.00" or "89,9" to minor units.
func ParsePrice(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, errors.New("price is required")
	}
	value = strings.Replace(value, ",", ".", 1)

	units, cents, found := strings.Cut(value, ".")
	if units == "" || strings.HasPrefix(units, "-") || strings.HasPrefix(units, "+") {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	if found && (cents == "" || len(cents) > 2 || strings.Trim(cents, "0123456789") != "") {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	for len(cents) < 2 {
		cents += "0"
	}

	whole, err := strconv.ParseInt(units, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	fraction, err := strconv.ParseInt(cents, 10, 64)
	if err != nil || fraction < 0 {
		return 0, fmt.Errorf("invalid price %q", value)
	}
	if whole > (math.MaxInt64-fraction)/100 {
		return 0, fmt.Errorf("price %q overflows", value)
	}
	return whole*100 + fraction, nil
}
