package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/metal"
	"jewelpos/backend/internal/payment"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/xid"
)

// StoreLocations are the places stock is usually moved between. Movements
// may name others.
var StoreLocations = []string{"Основний зал", "Вітрина 1", "Вітрина 2", "Сейф", "Склад", "Філія 2", "Ремонт"}

func (s *Service) CreateMovement(ctx context.Context, req domain.MovementCreateRequest) (domain.StockMovement, error) {
	req.FromLocation = strings.TrimSpace(req.FromLocation)
	req.ToLocation = strings.TrimSpace(req.ToLocation)
	if req.FromLocation == "" || req.ToLocation == "" {
		return domain.StockMovement{}, fmt.Errorf("%w: from and to locations required", store.ErrInvalid)
	}
	if req.Quantity < 1 {
		return domain.StockMovement{}, fmt.Errorf("%w: quantity must be at least 1", store.ErrInvalid)
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.StockMovement{}, err
	}

	movement := domain.StockMovement{
		ID:           xid.New("mov"),
		ProductID:    product.ID,
		ProductName:  product.Name,
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		Quantity:     req.Quantity,
		Reason:       strings.TrimSpace(req.Reason),
		Timestamp:    s.now(),
		PerformedBy:  actorID(ctx),
		Status:       domain.MovementPending,
	}
	if err := s.repo.CreateMovement(ctx, movement); err != nil {
		return domain.StockMovement{}, err
	}
	s.logAudit(ctx, "movement_create", "movement", movement.ID, fmt.Sprintf("product=%s,%s->%s,qty=%d", movement.ProductID, movement.FromLocation, movement.ToLocation, movement.Quantity))
	return movement, nil
}

// ListMovements returns movements newest first.
func (s *Service) ListMovements(ctx context.Context) ([]domain.StockMovement, error) {
	movements, err := s.repo.ListMovements(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(movements, func(a, b domain.StockMovement) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return movements, nil
}

// UpdateMovement completes or cancels a pending movement. Completing one
// relocates the product and needs a manager or admin.
func (s *Service) UpdateMovement(ctx context.Context, id string, req domain.MovementUpdateRequest) (domain.StockMovement, error) {
	if req.Status == domain.MovementCompleted {
		if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
			return domain.StockMovement{}, err
		}
	}

	updated, err := s.repo.TransitionMovement(ctx, id, req.Status, actorID(ctx), s.now())
	if err != nil {
		return domain.StockMovement{}, err
	}
	if updated.Status == domain.MovementCompleted {
		s.invalidateCatalog(ctx)
	}
	s.logAudit(ctx, "movement_"+string(updated.Status), "movement", updated.ID, fmt.Sprintf("product=%s,to=%s", updated.ProductID, updated.ToLocation))
	return *updated, nil
}

func (s *Service) CreateMetalTransaction(ctx context.Context, req domain.MetalTransactionRequest) (domain.MetalTransaction, error) {
	tx, err := metal.NewTransaction(xid.New("metal"), req, actorID(ctx), s.now())
	if err != nil {
		return domain.MetalTransaction{}, err
	}
	if err := s.repo.CreateMetalTransaction(ctx, tx); err != nil {
		return domain.MetalTransaction{}, err
	}
	s.logAudit(ctx, "metal_"+string(tx.TransactionType), "metal", tx.ID, fmt.Sprintf("%s %d %sg @ %s", tx.MetalType, tx.Purity, tx.Weight, tx.PricePerGram))
	return tx, nil
}

func (s *Service) MetalSummary(ctx context.Context) (map[domain.MetalType]domain.MetalAggregate, error) {
	txs, err := s.repo.ListMetalTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return metal.Summarize(txs), nil
}

func (s *Service) MetalPrices() []payment.PriceEntry {
	return payment.Table()
}
