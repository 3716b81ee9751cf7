package domain

import (
	"github.com/shopspring/decimal"
)

// CartLine is one product's entry in the cart. Price, stock and sale status
// are snapshots taken from the catalog at add time, not live values.
type CartLine struct {
	ProductID     string          `json:"product_id"`
	Name          string          `json:"name"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Image         string          `json:"image,omitempty"`
	Quantity      int             `json:"quantity"`
	Stock         int             `json:"stock"`
	OnSale        bool            `json:"on_sale"`
}

// Product is the catalog snapshot handed to AddToCart. The store trusts
// whatever it is given here; it never re-reads the catalog.
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	SalePrice decimal.Decimal `json:"sale_price"`
	Stock     int             `json:"stock"`
	OnSale    bool            `json:"on_sale"`
	Images    []string        `json:"images,omitempty"`
}

// EffectivePrice returns the price a new cart line is charged at:
// the sale price while the product is on sale, the regular price otherwise.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.OnSale {
		return p.SalePrice
	}
	return p.Price
}

// FirstImage returns the first catalog image, or "" when there is none.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// NewLine builds a cart line from a product snapshot.
func NewLine(p Product, quantity int) CartLine {
	return CartLine{
		ProductID:     p.ID,
		Name:          p.Name,
		UnitPrice:     p.EffectivePrice(),
		OriginalPrice: p.Price,
		Image:         p.FirstImage(),
		Quantity:      quantity,
		Stock:         p.Stock,
		OnSale:        p.OnSale,
	}
}

// LineCount is the number of distinct products in the cart,
// not the sum of quantities.
func LineCount(lines []CartLine) int {
	return len(lines)
}

// Total sums unit_price * quantity over the snapshot. Unit prices are the
// stored add-time values and may lag the live catalog.
func Total(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// CloneLines returns a copy the caller can hand out without exposing the
// store's internal slice to mutation.
func CloneLines(lines []CartLine) []CartLine {
	if lines == nil {
		return nil
	}
	out := make([]CartLine, len(lines))
	copy(out, lines)
	return out
}
