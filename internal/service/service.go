package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/cache"
	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/register"
	"jewelpos/backend/internal/repository"
	"jewelpos/backend/internal/sale"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/xid"
)

// ErrForbidden is returned when the actor's role may not perform an action.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      *repository.Repository
	catalog   cache.CatalogCache
	committer *sale.Committer
	outbox    sale.Outbox
	registers *register.Manager
	now       func() time.Time

	// catalogGen counts invalidations so a cache fill that raced one is dropped.
	catalogGen atomic.Uint64
}

// New wires the service. catalog and outbox may be nil.
func New(repo *repository.Repository, catalog cache.CatalogCache, committer *sale.Committer, outbox sale.Outbox) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	return &Service{
		repo:      repo,
		catalog:   catalog,
		committer: committer,
		outbox:    outbox,
		registers: register.NewManager(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.catalog.GetProducts(ctx); err != nil {
		log.Printf("[cache] WARN: catalog read failed: %v", err)
	} else if ok {
		return cached, nil
	}

	gen := s.catalogGen.Load()
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	// An invalidation during the read means products may already be stale.
	if s.catalogGen.Load() != gen {
		return products, nil
	}
	if err := s.catalog.SetProducts(ctx, products); err != nil {
		log.Printf("[cache] WARN: catalog write failed: %v", err)
	}
	if s.catalogGen.Load() != gen {
		s.invalidateCatalog(ctx)
	}
	return products, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: name and category required", store.ErrInvalid)
	}
	if req.Price.IsNegative() || req.InStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: price and stock must not be negative", store.ErrInvalid)
	}
	if err := validateProductMetal(req.Metal, req.Weight, req.CostPrice); err != nil {
		return domain.Product{}, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = xid.New("prod")
	}
	product := domain.Product{
		ID:            id,
		Name:          req.Name,
		Price:         req.Price,
		Category:      req.Category,
		Weight:        req.Weight,
		Metal:         req.Metal,
		InStock:       req.InStock,
		StoreLocation: strings.TrimSpace(req.StoreLocation),
		Description:   req.Description,
		Supplier:      req.Supplier,
		CostPrice:     req.CostPrice,
		CreatedBy:     actor.UserID,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.invalidateCatalog(ctx)

	s.logAudit(ctx, "product_create", "product", product.ID, fmt.Sprintf("name=%s,price=%s,stock=%d", product.Name, product.Price, product.InStock))
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, id, func(p *domain.Product) error {
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", store.ErrInvalid)
			}
			p.Name = name
		}
		if req.Category != nil {
			category := strings.TrimSpace(*req.Category)
			if category == "" {
				return fmt.Errorf("%w: category must not be empty", store.ErrInvalid)
			}
			p.Category = category
		}
		if req.Price != nil {
			if req.Price.IsNegative() {
				return fmt.Errorf("%w: price must not be negative", store.ErrInvalid)
			}
			p.Price = *req.Price
		}
		if req.InStock != nil {
			if *req.InStock < 0 {
				return fmt.Errorf("%w: stock must not be negative", store.ErrInvalid)
			}
			p.InStock = *req.InStock
		}
		if req.Weight != nil {
			p.Weight = req.Weight
		}
		if req.Metal != nil {
			p.Metal = *req.Metal
		}
		if req.CostPrice != nil {
			p.CostPrice = req.CostPrice
		}
		if req.StoreLocation != nil {
			p.StoreLocation = strings.TrimSpace(*req.StoreLocation)
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if req.Supplier != nil {
			p.Supplier = *req.Supplier
		}
		if err := validateProductMetal(p.Metal, p.Weight, p.CostPrice); err != nil {
			return err
		}
		now := s.now()
		p.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidateCatalog(ctx)

	s.logAudit(ctx, "product_update", "product", updated.ID, fmt.Sprintf("price=%s,stock=%d", updated.Price, updated.InStock))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateCatalog(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return domain.Customer{}, fmt.Errorf("%w: name and phone required", store.ErrInvalid)
	}
	if err := validateDiscount(req.Discount); err != nil {
		return domain.Customer{}, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = xid.New("cust")
	}
	customer := domain.Customer{
		ID:             id,
		Name:           req.Name,
		Phone:          req.Phone,
		Email:          strings.TrimSpace(req.Email),
		Discount:       req.Discount,
		TotalPurchases: decimal.Zero,
		CreatedAt:      s.now(),
	}
	if err := s.repo.CreateCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_create", "customer", customer.ID, customer.Name)
	return customer, nil
}

// UpdateCustomer merges the patch. totalPurchases is not writable here; only
// recorded sales move it.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	updated, err := s.repo.UpdateCustomer(ctx, id, func(c *domain.Customer) error {
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return fmt.Errorf("%w: name must not be empty", store.ErrInvalid)
			}
			c.Name = name
		}
		if req.Phone != nil {
			phone := strings.TrimSpace(*req.Phone)
			if phone == "" {
				return fmt.Errorf("%w: phone must not be empty", store.ErrInvalid)
			}
			c.Phone = phone
		}
		if req.Email != nil {
			c.Email = strings.TrimSpace(*req.Email)
		}
		if req.Discount != nil {
			if err := validateDiscount(*req.Discount); err != nil {
				return err
			}
			c.Discount = *req.Discount
		}
		now := s.now()
		c.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "customer_update", "customer", updated.ID, fmt.Sprintf("discount=%s", updated.Discount))
	return *updated, nil
}

// InvalidateCatalog drops the cached product list. Stock changes made outside
// the service, such as outbox replays, call it.
func (s *Service) InvalidateCatalog(ctx context.Context) {
	s.invalidateCatalog(ctx)
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	s.catalogGen.Add(1)
	if err := s.catalog.Invalidate(ctx); err != nil {
		log.Printf("[cache] WARN: catalog invalidate failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func requireRole(ctx context.Context, roles ...domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: sign in required", ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s may not do this", ErrForbidden, actor.Role)
}

func actorID(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.UserID
	}
	return "system"
}

func validateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: discount must be between 0 and 100", store.ErrInvalid)
	}
	return nil
}

func validateProductMetal(metal domain.MetalType, weight *decimal.Decimal, cost *decimal.Decimal) error {
	if metal != "" && !metal.Valid() {
		return fmt.Errorf("%w: unknown metal %q", store.ErrInvalid, metal)
	}
	if weight != nil && weight.IsNegative() {
		return fmt.Errorf("%w: weight must not be negative", store.ErrInvalid)
	}
	if cost != nil && cost.IsNegative() {
		return fmt.Errorf("%w: cost price must not be negative", store.ErrInvalid)
	}
	return nil
}
