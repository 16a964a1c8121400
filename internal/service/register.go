package service

import (
	"context"
	"fmt"
	"strings"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/payment"
	"jewelpos/backend/internal/receipt"
	"jewelpos/backend/internal/sale"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/xid"
)

// ErrOutOfStock is returned when a stocked product with no units left is
// added to a register.
var ErrOutOfStock = fmt.Errorf("%w: product is out of stock", store.ErrConflict)

// withRegister runs fn on the caller's receipt and returns the resulting view.
func (s *Service) withRegister(ctx context.Context, fn func(r *receipt.Receipt) error) (domain.RegisterView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RegisterView{}, fmt.Errorf("%w: sign in required", ErrForbidden)
	}
	var view domain.RegisterView
	err := s.registers.With(actor.UserID, func(r *receipt.Receipt) error {
		if err := fn(r); err != nil {
			return err
		}
		view = r.View()
		return nil
	})
	return view, err
}

func (s *Service) RegisterView(ctx context.Context) (domain.RegisterView, error) {
	return s.withRegister(ctx, func(*receipt.Receipt) error { return nil })
}

// RegisterAddLine resolves the product and adds it at its current price.
func (s *Service) RegisterAddLine(ctx context.Context, req domain.RegisterLineRequest) (domain.RegisterView, error) {
	product, err := s.lookupProduct(ctx, req.ProductID)
	if err != nil {
		return domain.RegisterView{}, err
	}
	if product.Category != domain.CategoryService && product.InStock == 0 {
		return domain.RegisterView{}, fmt.Errorf("%w: %s", ErrOutOfStock, product.ID)
	}
	return s.withRegister(ctx, func(r *receipt.Receipt) error {
		r.AddLine(product, req.Quantity)
		return nil
	})
}

// RegisterUpdateLine changes quantity and/or discount of an existing line.
// A quantity of zero or less removes the line.
func (s *Service) RegisterUpdateLine(ctx context.Context, productID string, req domain.RegisterLineUpdateRequest) (domain.RegisterView, error) {
	return s.withRegister(ctx, func(r *receipt.Receipt) error {
		if req.Discount != nil {
			if !r.UpdateLineDiscount(productID, *req.Discount) {
				return fmt.Errorf("line %s: %w", productID, store.ErrNotFound)
			}
		}
		if req.Quantity != nil {
			if !r.UpdateQuantity(productID, *req.Quantity) {
				return fmt.Errorf("line %s: %w", productID, store.ErrNotFound)
			}
		}
		return nil
	})
}

func (s *Service) RegisterSetDiscount(ctx context.Context, req domain.RegisterDiscountRequest) (domain.RegisterView, error) {
	return s.withRegister(ctx, func(r *receipt.Receipt) error {
		r.SetReceiptDiscount(req.Discount)
		return nil
	})
}

// RegisterSetCustomer attaches a stored customer; an empty id detaches.
func (s *Service) RegisterSetCustomer(ctx context.Context, req domain.RegisterCustomerRequest) (domain.RegisterView, error) {
	var customer *domain.Customer
	if id := strings.TrimSpace(req.CustomerID); id != "" {
		c, err := s.repo.GetCustomer(ctx, id)
		if err != nil {
			return domain.RegisterView{}, err
		}
		customer = c
	}
	return s.withRegister(ctx, func(r *receipt.Receipt) error {
		r.SetCustomer(customer)
		return nil
	})
}

func (s *Service) RegisterClear(ctx context.Context) (domain.RegisterView, error) {
	return s.withRegister(ctx, func(r *receipt.Receipt) error {
		r.Clear()
		return nil
	})
}

// RegisterCheckout settles the caller's receipt. The receipt is cleared when
// the sale is committed or queued for retry and kept on any error.
func (s *Service) RegisterCheckout(ctx context.Context, req domain.CheckoutRequest) (sale.Outcome, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return sale.Outcome{}, fmt.Errorf("%w: sign in required", ErrForbidden)
	}

	pay := payment.NewResolver(req.PaymentMethod)
	pay.Cash = req.Cash
	pay.Card = req.Card
	if c := strings.ToUpper(strings.TrimSpace(req.Currency)); c != "" {
		pay.Currency = c
	}
	if !req.ExchangeRate.IsZero() {
		pay.ExchangeRate = req.ExchangeRate
	}
	for _, lot := range req.MetalLots {
		if err := pay.AddLot(lot); err != nil {
			return sale.Outcome{}, err
		}
	}

	var outcome sale.Outcome
	err := s.registers.With(actor.UserID, func(r *receipt.Receipt) error {
		built, txs, err := sale.Build(r, pay, actor, xid.New("sale"), s.now())
		if err != nil {
			return err
		}
		outcome, err = s.record(ctx, built, txs)
		if err != nil {
			return err
		}
		r.Clear()
		return nil
	})
	return outcome, err
}
