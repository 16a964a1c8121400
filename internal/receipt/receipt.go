// Package receipt holds the in-progress cart of one cashier transaction and
// its discount arithmetic.
package receipt

import (
	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Line is one product on the receipt. UnitPrice is captured when the product
// is first added and does not follow later catalog changes.
type Line struct {
	ProductID string
	Name      string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
	Discount  decimal.Decimal
}

// Amount is the line total after the line discount.
func (l Line) Amount() decimal.Decimal {
	gross := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
	return applyPercent(gross, l.Discount)
}

// Receipt is not safe for concurrent use; callers serialize access per
// cashier session.
type Receipt struct {
	lines    []Line
	customer *domain.Customer
	discount decimal.Decimal
}

func New() *Receipt {
	return &Receipt{}
}

// AddLine merges into the existing line for product.ID or appends a new one.
// Quantities below 1 are treated as 1.
func (r *Receipt) AddLine(product domain.Product, quantity int) {
	if quantity < 1 {
		quantity = 1
	}
	if i := r.index(product.ID); i >= 0 {
		r.lines[i].Quantity += quantity
		return
	}
	r.lines = append(r.lines, Line{
		ProductID: product.ID,
		Name:      product.Name,
		Category:  product.Category,
		UnitPrice: product.Price,
		Quantity:  quantity,
	})
}

// UpdateQuantity sets the line quantity, removing the line when quantity <= 0.
// It reports false when no line exists for productID; it never inserts.
func (r *Receipt) UpdateQuantity(productID string, quantity int) bool {
	i := r.index(productID)
	if i < 0 {
		return false
	}
	if quantity <= 0 {
		r.lines = append(r.lines[:i], r.lines[i+1:]...)
		return true
	}
	r.lines[i].Quantity = quantity
	return true
}

func (r *Receipt) UpdateLineDiscount(productID string, pct decimal.Decimal) bool {
	i := r.index(productID)
	if i < 0 {
		return false
	}
	r.lines[i].Discount = ClampPercent(pct)
	return true
}

func (r *Receipt) SetReceiptDiscount(pct decimal.Decimal) {
	r.discount = ClampPercent(pct)
}

// SetCustomer attaches c by reference. nil detaches. The customer record is
// never modified by the receipt.
func (r *Receipt) SetCustomer(c *domain.Customer) {
	r.customer = c
}

func (r *Receipt) Customer() *domain.Customer {
	return r.customer
}

func (r *Receipt) Discount() decimal.Decimal {
	return r.discount
}

func (r *Receipt) Clear() {
	r.lines = nil
	r.customer = nil
	r.discount = decimal.Zero
}

// Lines returns a copy of the lines in insertion order.
func (r *Receipt) Lines() []Line {
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

func (r *Receipt) LineCount() int {
	return len(r.lines)
}

// ItemCount is the sum of quantities across lines.
func (r *Receipt) ItemCount() int {
	n := 0
	for _, l := range r.lines {
		n += l.Quantity
	}
	return n
}

func (r *Receipt) CanCheckout() bool {
	return len(r.lines) > 0
}

// Subtotal is always recomputed from the current lines.
func (r *Receipt) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range r.lines {
		sum = sum.Add(l.Amount())
	}
	return sum
}

// Total applies the receipt discount and then the customer discount to the
// line-discounted subtotal, each off the running amount.
func (r *Receipt) Total() decimal.Decimal {
	total := applyPercent(r.Subtotal(), r.discount)
	if r.customer != nil {
		total = applyPercent(total, ClampPercent(r.customer.Discount))
	}
	return total
}

// Items snapshots the lines for a sale record.
func (r *Receipt) Items() []domain.SaleItem {
	items := make([]domain.SaleItem, 0, len(r.lines))
	for _, l := range r.lines {
		items = append(items, domain.SaleItem{
			ProductID:   l.ProductID,
			ProductName: l.Name,
			Quantity:    l.Quantity,
			Price:       l.UnitPrice,
			Discount:    l.Discount,
		})
	}
	return items
}

// View renders the receipt for API responses.
func (r *Receipt) View() domain.RegisterView {
	lines := make([]domain.RegisterLine, 0, len(r.lines))
	for _, l := range r.lines {
		lines = append(lines, domain.RegisterLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Category:  l.Category,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Discount:  l.Discount,
			LineTotal: l.Amount(),
		})
	}
	return domain.RegisterView{
		Lines:       lines,
		Customer:    r.customer,
		Discount:    r.discount,
		Subtotal:    r.Subtotal(),
		Total:       r.Total(),
		ItemCount:   r.ItemCount(),
		CanCheckout: r.CanCheckout(),
	}
}

func (r *Receipt) index(productID string) int {
	for i := range r.lines {
		if r.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// ClampPercent bounds pct to [0, 100].
func ClampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

func applyPercent(amount decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	if pct.IsZero() {
		return amount
	}
	return amount.Mul(hundred.Sub(pct)).Div(hundred)
}
