package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/store"
)

// SeedDemo fills an empty catalog with demo products and customers. It is a
// no-op once any product exists.
func (r *Repository) SeedDemo(ctx context.Context) error {
	existing, err := r.kv.ScanPrefix(ctx, store.PrefixProduct)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	now := time.Now().UTC()
	grams := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	products := []domain.Product{
		{ID: "1", Name: "Золота каблучка з діамантом", Price: decimal.NewFromInt(25000), Category: "rings", Weight: grams("3.2"), Metal: domain.MetalGold, InStock: 2, StoreLocation: "Основний зал"},
		{ID: "2", Name: "Срібний ланцюжок", Price: decimal.NewFromInt(1200), Category: "chains", Weight: grams("15.5"), Metal: domain.MetalSilver, InStock: 5, StoreLocation: "Вітрина 1"},
		{ID: "3", Name: "Сережки з перлами", Price: decimal.NewFromInt(8500), Category: "earrings", Weight: grams("2.1"), Metal: domain.MetalGold, InStock: 3, StoreLocation: "Вітрина 2"},
		{ID: "4", Name: "Підвіска з сапфіром", Price: decimal.NewFromInt(15000), Category: "pendants", Weight: grams("4.0"), Metal: domain.MetalGold, InStock: 1, StoreLocation: "Сейф"},
		{ID: "5", Name: "Браслет срібний", Price: decimal.NewFromInt(2800), Category: "bracelets", Weight: grams("12.3"), Metal: domain.MetalSilver, InStock: 4, StoreLocation: "Основний зал"},
		{ID: "6", Name: "Обручка платинова", Price: decimal.NewFromInt(45000), Category: "rings", Weight: grams("5.1"), Metal: domain.MetalPlatinum, InStock: 1, StoreLocation: "Сейф"},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.CreatedBy = "seed"
		if err := r.CreateProduct(ctx, p); err != nil && !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}

	customers := []domain.Customer{
		{ID: "1", Name: "Іван Петренко", Phone: "+380501234567", Discount: decimal.NewFromInt(5), TotalPurchases: decimal.NewFromInt(45000)},
		{ID: "2", Name: "Марія Коваленко", Phone: "+380679876543", Discount: decimal.NewFromInt(10), TotalPurchases: decimal.NewFromInt(120000)},
		{ID: "3", Name: "Олександр Сидоренко", Phone: "+380631111222", Discount: decimal.NewFromInt(3), TotalPurchases: decimal.NewFromInt(25000)},
		{ID: "4", Name: "Анна Мельник", Phone: "+380502223344", Discount: decimal.NewFromInt(15), TotalPurchases: decimal.NewFromInt(200000)},
	}
	for _, c := range customers {
		c.CreatedAt = now
		if err := r.CreateCustomer(ctx, c); err != nil && !errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("seed customer %s: %w", c.ID, err)
		}
	}
	return nil
}

// SeedUsers creates the bootstrap accounts when no user exists yet.
// Passwords come from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD; unset values fall back to dev defaults with a
// warning.
func (r *Repository) SeedUsers(ctx context.Context, cost int) error {
	existing, err := r.kv.ScanPrefix(ctx, store.PrefixUser)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[seed] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		id       string
		email    string
		name     string
		password string
		role     domain.Role
	}{
		{"user-admin", "admin@jewelpos.local", "Адміністратор", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"user-manager", "manager@jewelpos.local", "Менеджер", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{"user-cashier", "cashier@jewelpos.local", "Касир", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), cost)
		if err != nil {
			return fmt.Errorf("hash seed password for %s: %w", u.email, err)
		}
		err = r.CreateUser(ctx, domain.UserAccount{
			ID:           u.id,
			Email:        u.email,
			Name:         u.name,
			Role:         u.role,
			PasswordHash: string(hash),
			Active:       true,
			CreatedAt:    now,
		})
		if err != nil && !errors.Is(err, store.ErrConflict) {
			return err
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
