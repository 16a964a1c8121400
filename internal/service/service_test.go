package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/repository"
	"jewelpos/backend/internal/sale"
	"jewelpos/backend/internal/store"
	"jewelpos/backend/internal/store/memory"
)

var (
	cashier = domain.Actor{UserID: "user-cashier", Email: "cashier@jewelpos.local", Role: domain.RoleCashier}
	manager = domain.Actor{UserID: "user-manager", Email: "manager@jewelpos.local", Role: domain.RoleManager}
	admin   = domain.Actor{UserID: "user-admin", Email: "admin@jewelpos.local", Role: domain.RoleAdmin}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

type countingCache struct {
	mu          sync.Mutex
	products    []domain.Product
	invalidated int
}

func (c *countingCache) GetProducts(context.Context) ([]domain.Product, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.products, c.products != nil, nil
}

func (c *countingCache) SetProducts(_ context.Context, products []domain.Product) error {
	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
	return nil
}

func (c *countingCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.products = nil
	c.invalidated++
	c.mu.Unlock()
	return nil
}

// scanHookKV runs onScan once, before the next scan of prefix.
type scanHookKV struct {
	store.KV
	prefix string
	onScan func()
}

func (k *scanHookKV) ScanPrefix(ctx context.Context, prefix string) ([]store.Entry, error) {
	if prefix == k.prefix && k.onScan != nil {
		fn := k.onScan
		k.onScan = nil
		fn()
	}
	return k.KV.ScanPrefix(ctx, prefix)
}

// switchRecorder fails like an unreachable database while down is set.
type switchRecorder struct {
	mu   sync.Mutex
	down bool
	repo *repository.Repository
}

func (r *switchRecorder) RecordSale(ctx context.Context, sold domain.Sale, metal []domain.MetalTransaction) (bool, error) {
	r.mu.Lock()
	down := r.down
	r.mu.Unlock()
	if down {
		return false, errors.New("dial tcp: connection refused")
	}
	return r.repo.RecordSale(ctx, sold, metal)
}

func (r *switchRecorder) setDown(down bool) {
	r.mu.Lock()
	r.down = down
	r.mu.Unlock()
}

func stockOf(t *testing.T, products []domain.Product, id string) int {
	t.Helper()
	for _, p := range products {
		if p.ID == id {
			return p.InStock
		}
	}
	t.Fatalf("product %s not listed", id)
	return 0
}

type downRecorder struct{}

func (downRecorder) RecordSale(context.Context, domain.Sale, []domain.MetalTransaction) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

type testEnv struct {
	svc    *Service
	repo   *repository.Repository
	cache  *countingCache
	outbox *sale.KVOutbox
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	repo := repository.New(memory.New())
	if err := repo.SeedDemo(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	outbox := sale.NewKVOutbox(memory.New())
	committer := sale.NewCommitter(repo, outbox, sale.PolicyOutbox, nil)
	c := &countingCache{}
	return testEnv{svc: New(repo, c, committer, outbox), repo: repo, cache: c, outbox: outbox}
}

func as(actor domain.Actor) context.Context {
	return WithActor(context.Background(), actor)
}

func TestRegisterCheckoutCommitsAndClears(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)

	if _, err := env.svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "2", Quantity: 2}); err != nil {
		t.Fatalf("add line: %v", err)
	}
	view, err := env.svc.RegisterSetCustomer(ctx, domain.RegisterCustomerRequest{CustomerID: "2"})
	if err != nil {
		t.Fatalf("set customer: %v", err)
	}
	if !view.Subtotal.Equal(dec("2400")) || !view.Total.Equal(dec("2160")) {
		t.Fatalf("unexpected totals %s / %s", view.Subtotal, view.Total)
	}

	out, err := env.svc.RegisterCheckout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash, Cash: dec("2500")})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if out.Status != sale.Committed || !out.Sale.Change.Equal(dec("340")) {
		t.Fatalf("unexpected outcome %s change %s", out.Status, out.Sale.Change)
	}
	if out.Sale.CustomerName != "Марія Коваленко" || out.Sale.CashierID != cashier.UserID {
		t.Fatalf("unexpected sale header %+v", out.Sale)
	}

	p, _ := env.repo.GetProduct(context.Background(), "2")
	if p.InStock != 3 {
		t.Fatalf("expected stock 3, got %d", p.InStock)
	}
	c, _ := env.repo.GetCustomer(context.Background(), "2")
	if !c.TotalPurchases.Equal(dec("122160")) {
		t.Fatalf("expected totalPurchases 122160, got %s", c.TotalPurchases)
	}
	view, _ = env.svc.RegisterView(ctx)
	if view.CanCheckout || len(view.Lines) != 0 || view.Customer != nil {
		t.Fatalf("expected cleared register, got %+v", view)
	}
	if env.cache.invalidated == 0 {
		t.Fatalf("expected catalog cache invalidated after sale")
	}
}

func TestRegisterCheckoutRejectsAndKeepsReceipt(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)

	if _, err := env.svc.RegisterCheckout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash, Cash: dec("100")}); !errors.Is(err, sale.ErrEmptyReceipt) {
		t.Fatalf("expected empty receipt error, got %v", err)
	}

	_, _ = env.svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "5", Quantity: 1})
	_, err := env.svc.RegisterCheckout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCard, Card: dec("2799.99")})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected insufficient payment, got %v", err)
	}
	view, _ := env.svc.RegisterView(ctx)
	if view.ItemCount != 1 {
		t.Fatalf("receipt must be kept after a rejected checkout, got %d items", view.ItemCount)
	}
	p, _ := env.repo.GetProduct(context.Background(), "5")
	if p.InStock != 4 {
		t.Fatalf("rejected checkout must not touch stock, got %d", p.InStock)
	}
}

func TestRegisterMetalCheckoutRecordsPurchase(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)

	_, _ = env.svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "2", Quantity: 1})
	out, err := env.svc.RegisterCheckout(ctx, domain.CheckoutRequest{
		PaymentMethod: domain.PaymentMetal,
		MetalLots:     []domain.MetalLotInput{{Type: domain.MetalSilver, Purity: 925, Weight: dec("50")}},
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if !out.Sale.Change.Equal(dec("200")) {
		t.Fatalf("expected change 200, got %s", out.Sale.Change)
	}

	summary, err := env.svc.MetalSummary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	silver := summary[domain.MetalSilver]
	if !silver.TotalWeight.Equal(dec("50")) || !silver.AvgPrice.Equal(dec("28")) {
		t.Fatalf("unexpected silver aggregate %+v", silver)
	}
}

func TestRegisterAddLineRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)

	view, err := env.svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "repair-1"})
	if err != nil {
		t.Fatalf("add service: %v", err)
	}
	if !view.Total.Equal(dec("500")) || view.Lines[0].Category != domain.CategoryService {
		t.Fatalf("unexpected service line %+v", view.Lines)
	}

	if _, err := env.svc.UpdateProduct(as(admin), "6", domain.ProductUpdateRequest{InStock: new(int)}); err != nil {
		t.Fatalf("zero stock: %v", err)
	}
	if _, err := env.svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "6"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected out of stock conflict, got %v", err)
	}
	if _, err := env.svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "nope"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.svc.RegisterAddLine(context.Background(), domain.RegisterLineRequest{ProductID: "1"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden without actor, got %v", err)
	}

	zero := 0
	if _, err := env.svc.RegisterUpdateLine(ctx, "repair-1", domain.RegisterLineUpdateRequest{Quantity: &zero}); err != nil {
		t.Fatalf("remove line: %v", err)
	}
	one := 1
	if _, err := env.svc.RegisterUpdateLine(ctx, "repair-1", domain.RegisterLineUpdateRequest{Quantity: &one}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update of removed line must not reinsert, got %v", err)
	}
}

func TestRegistersAreSeparatePerCashier(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.svc.RegisterAddLine(as(cashier), domain.RegisterLineRequest{ProductID: "2"})

	view, err := env.svc.RegisterView(as(manager))
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("manager must not see the cashier's receipt")
	}
}

func TestCreateSaleRecomputesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)

	out, err := env.svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: "3", Quantity: 1},
			{ProductID: "repair-1", Quantity: 1},
		},
		CustomerID:    "1",
		Total:         decPtr("8550"),
		PaymentMethod: domain.PaymentMixed,
		PaymentDetails: domain.PaymentDetailsRequest{
			Cash: dec("5000"),
			Card: dec("4000"),
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !out.Sale.Subtotal.Equal(dec("9000")) || !out.Sale.Total.Equal(dec("8550")) {
		t.Fatalf("unexpected totals %s / %s", out.Sale.Subtotal, out.Sale.Total)
	}
	if !out.Sale.Change.Equal(dec("450")) {
		t.Fatalf("expected change 450, got %s", out.Sale.Change)
	}
	p, _ := env.repo.GetProduct(context.Background(), "3")
	if p.InStock != 2 {
		t.Fatalf("expected stock 2, got %d", p.InStock)
	}
}

func TestCreateSaleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)
	base := func() domain.SaleRequest {
		return domain.SaleRequest{
			Items:          []domain.SaleItemRequest{{ProductID: "2", Quantity: 1}},
			PaymentMethod:  domain.PaymentCash,
			PaymentDetails: domain.PaymentDetailsRequest{Cash: dec("1200")},
		}
	}

	cases := []struct {
		name   string
		mutate func(*domain.SaleRequest)
		want   error
	}{
		{"mismatched total", func(r *domain.SaleRequest) { r.Total = decPtr("1000") }, store.ErrInvalid},
		{"unknown item without price", func(r *domain.SaleRequest) { r.Items[0].ProductID = "x-1" }, store.ErrInvalid},
		{"unknown customer", func(r *domain.SaleRequest) { r.CustomerID = "ghost" }, store.ErrNotFound},
		{"short payment", func(r *domain.SaleRequest) { r.PaymentDetails.Cash = dec("1199") }, store.ErrInvalid},
		{"bad method", func(r *domain.SaleRequest) { r.PaymentMethod = "barter" }, store.ErrInvalid},
		{"no items", func(r *domain.SaleRequest) { r.Items = nil }, store.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base()
			tc.mutate(&req)
			if _, err := env.svc.CreateSale(ctx, req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	sales, _ := env.svc.ListSales(ctx)
	if len(sales) != 0 {
		t.Fatalf("rejected sales must not be stored, got %d", len(sales))
	}
	p, _ := env.repo.GetProduct(context.Background(), "2")
	if p.InStock != 5 {
		t.Fatalf("rejected sales must not touch stock, got %d", p.InStock)
	}
}

func TestCreateSaleAcceptsUnknownItemWithPrice(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.svc.CreateSale(as(cashier), domain.SaleRequest{
		Items:          []domain.SaleItemRequest{{ProductID: "engraving", ProductName: "Гравіювання", Quantity: 1, Price: dec("250")}},
		PaymentMethod:  domain.PaymentCash,
		PaymentDetails: domain.PaymentDetailsRequest{Cash: dec("250")},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if out.Sale.Items[0].ProductName != "Гравіювання" || !out.Sale.Change.IsZero() {
		t.Fatalf("unexpected sale %+v", out.Sale)
	}
}

func TestCheckoutQueuesWhenStoreIsDown(t *testing.T) {
	repo := repository.New(memory.New())
	_ = repo.SeedDemo(context.Background())
	outbox := sale.NewKVOutbox(memory.New())
	svc := New(repo, nil, sale.NewCommitter(downRecorder{}, outbox, sale.PolicyOutbox, nil), outbox)
	ctx := as(cashier)

	_, _ = svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "2"})
	out, err := svc.RegisterCheckout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash, Cash: dec("1200")})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if out.Status != sale.PendingRetry {
		t.Fatalf("expected pending retry, got %s", out.Status)
	}
	view, _ := svc.RegisterView(ctx)
	if view.CanCheckout {
		t.Fatalf("queued sale must clear the register")
	}

	if _, err := svc.ListOutbox(ctx); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cashier must not read the outbox, got %v", err)
	}
	entries, err := svc.ListOutbox(as(admin))
	if err != nil || len(entries) != 1 || entries[0].Sale.ID != out.Sale.ID {
		t.Fatalf("expected queued sale in outbox, got %+v %v", entries, err)
	}
}

func TestStrictPolicyKeepsReceiptOnStoreFailure(t *testing.T) {
	repo := repository.New(memory.New())
	_ = repo.SeedDemo(context.Background())
	svc := New(repo, nil, sale.NewCommitter(downRecorder{}, nil, sale.PolicyStrict, nil), nil)
	ctx := as(cashier)

	_, _ = svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "2"})
	if _, err := svc.RegisterCheckout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash, Cash: dec("1200")}); err == nil {
		t.Fatalf("expected store error under strict policy")
	}
	view, _ := svc.RegisterView(ctx)
	if !view.CanCheckout {
		t.Fatalf("strict failure must keep the receipt")
	}
}

func TestSalesSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(manager)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC)
	for i, s := range []domain.Sale{
		{ID: "s1", Timestamp: day1, Total: dec("100")},
		{ID: "s2", Timestamp: day1.Add(time.Hour), Total: dec("50.50")},
		{ID: "s3", Timestamp: day2, Total: dec("200")},
		{ID: "s4", Timestamp: day2.Add(48 * time.Hour), Total: dec("999")},
	} {
		if _, err := env.repo.RecordSale(context.Background(), s, nil); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	summary, err := env.svc.SalesSummary(ctx, "2026-03-01", "2026-03-02")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalTransactions != 3 || !summary.TotalSales.Equal(dec("350.50")) {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !summary.AvgTransactionValue.Equal(dec("116.83")) {
		t.Fatalf("expected avg 116.83, got %s", summary.AvgTransactionValue)
	}
	if !summary.SalesByDate["2026-03-01"].Equal(dec("150.50")) || !summary.SalesByDate["2026-03-02"].Equal(dec("200")) {
		t.Fatalf("unexpected by-date %+v", summary.SalesByDate)
	}

	empty, err := env.svc.SalesSummary(ctx, "2020-01-01T00:00:00Z", "2020-01-02T00:00:00Z")
	if err != nil || empty.TotalTransactions != 0 || !empty.AvgTransactionValue.IsZero() {
		t.Fatalf("expected empty summary with zero average, got %+v %v", empty, err)
	}

	if _, err := env.svc.SalesSummary(ctx, "yesterday", ""); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid date, got %v", err)
	}
	if _, err := env.svc.SalesSummary(ctx, "2026-03-02", "2026-03-01T00:00:00Z"); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected from>to rejected, got %v", err)
	}
}

func TestMovementLifecycle(t *testing.T) {
	env := newTestEnv(t)

	m, err := env.svc.CreateMovement(as(cashier), domain.MovementCreateRequest{
		ProductID: "4", FromLocation: "Сейф", ToLocation: "Вітрина 2", Quantity: 1, Reason: "display",
	})
	if err != nil {
		t.Fatalf("create movement: %v", err)
	}
	if m.Status != domain.MovementPending || m.ProductName == "" || m.PerformedBy != cashier.UserID {
		t.Fatalf("unexpected movement %+v", m)
	}

	if _, err := env.svc.UpdateMovement(as(cashier), m.ID, domain.MovementUpdateRequest{Status: domain.MovementCompleted}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("cashier must not complete movements, got %v", err)
	}
	done, err := env.svc.UpdateMovement(as(manager), m.ID, domain.MovementUpdateRequest{Status: domain.MovementCompleted})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.UpdatedBy != manager.UserID || done.UpdatedAt == nil {
		t.Fatalf("expected update stamp, got %+v", done)
	}
	p, _ := env.repo.GetProduct(context.Background(), "4")
	if p.StoreLocation != "Вітрина 2" {
		t.Fatalf("expected product relocated, got %q", p.StoreLocation)
	}

	if _, err := env.svc.UpdateMovement(as(manager), m.ID, domain.MovementUpdateRequest{Status: domain.MovementCancelled}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict for terminal movement, got %v", err)
	}
	if _, err := env.svc.CreateMovement(as(cashier), domain.MovementCreateRequest{ProductID: "ghost", FromLocation: "a", ToLocation: "b", Quantity: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found product, got %v", err)
	}
}

func TestCreateMetalTransactionUsesTablePrice(t *testing.T) {
	env := newTestEnv(t)
	tx, err := env.svc.CreateMetalTransaction(as(cashier), domain.MetalTransactionRequest{
		MetalType: domain.MetalGold, Purity: 750, Weight: dec("2"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !tx.PricePerGram.Equal(dec("2100")) || !tx.TotalValue.Equal(dec("4200")) || tx.TransactionType != domain.MetalPurchase {
		t.Fatalf("unexpected transaction %+v", tx)
	}

	_, err = env.svc.CreateMetalTransaction(as(cashier), domain.MetalTransactionRequest{MetalType: domain.MetalGold, Purity: 500, Weight: dec("1")})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected unknown purity without price rejected, got %v", err)
	}
}

func TestProductWritesNeedManagerAndInvalidateCache(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.ListProducts(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, ok, _ := env.cache.GetProducts(context.Background()); !ok {
		t.Fatalf("expected catalog cached after list")
	}

	req := domain.ProductCreateRequest{Name: "Кольє", Price: dec("12000"), Category: "necklaces", InStock: 1}
	if _, err := env.svc.CreateProduct(as(cashier), req); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for cashier, got %v", err)
	}
	p, err := env.svc.CreateProduct(as(manager), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.CreatedBy != manager.UserID || p.ID == "" {
		t.Fatalf("unexpected product %+v", p)
	}
	if _, ok, _ := env.cache.GetProducts(context.Background()); ok {
		t.Fatalf("expected cache invalidated after create")
	}

	products, _ := env.svc.ListProducts(context.Background())
	if len(products) != 7 {
		t.Fatalf("expected 7 products, got %d", len(products))
	}

	name := "  "
	if _, err := env.svc.UpdateProduct(as(admin), p.ID, domain.ProductUpdateRequest{Name: &name}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	if err := env.svc.DeleteProduct(as(admin), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := env.svc.DeleteProduct(as(admin), p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCustomerCreateAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "Олена", Phone: "+380501112233", Discount: dec("7")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !c.TotalPurchases.IsZero() {
		t.Fatalf("new customer must start at zero purchases")
	}
	if _, err := env.svc.CreateCustomer(ctx, domain.CustomerCreateRequest{Name: "X", Phone: "1", Discount: dec("101")}); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected discount rejected, got %v", err)
	}

	updated, err := env.svc.UpdateCustomer(ctx, c.ID, domain.CustomerUpdateRequest{Discount: decPtr("12")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.Discount.Equal(dec("12")) || updated.Name != "Олена" || updated.UpdatedAt == nil {
		t.Fatalf("unexpected merge result %+v", updated)
	}
	if _, err := env.svc.UpdateCustomer(ctx, "ghost", domain.CustomerUpdateRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSettingsAndAudit(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.UpdateSettings(as(cashier), domain.Settings(`{"a":1}`)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := env.svc.UpdateSettings(as(manager), domain.Settings(`{"a":1}`)); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	got, _ := env.svc.GetSettings(context.Background())
	if string(got) != `{"a":1}` {
		t.Fatalf("unexpected settings %s", got)
	}

	logs, err := env.svc.ListAuditLogs(as(admin), 10)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(logs) != 1 || logs[0].Action != "settings_update" || logs[0].ActorID != manager.UserID {
		t.Fatalf("unexpected audit logs %+v", logs)
	}
}

func TestCreateSaleRejectsRepeatedProduct(t *testing.T) {
	env := newTestEnv(t)
	ctx := as(cashier)

	_, err := env.svc.CreateSale(ctx, domain.SaleRequest{
		Items: []domain.SaleItemRequest{
			{ProductID: "2", Quantity: 1},
			{ProductID: "2", Quantity: 1, Discount: dec("10")},
		},
		Subtotal:       decPtr("2280"),
		PaymentMethod:  domain.PaymentCash,
		PaymentDetails: domain.PaymentDetailsRequest{Cash: dec("2500")},
	})
	if !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid for a repeated product, got %v", err)
	}
	p, _ := env.repo.GetProduct(context.Background(), "2")
	if p.InStock != 5 {
		t.Fatalf("rejected sale must not touch stock, got %d", p.InStock)
	}

	out, err := env.svc.CreateSale(ctx, domain.SaleRequest{
		Items:          []domain.SaleItemRequest{{ProductID: "2", Quantity: 2}},
		Subtotal:       decPtr("2400"),
		PaymentMethod:  domain.PaymentCash,
		PaymentDetails: domain.PaymentDetailsRequest{Cash: dec("2400")},
	})
	if err != nil {
		t.Fatalf("create sale with quantity 2: %v", err)
	}
	if len(out.Sale.Items) != 1 || out.Sale.Items[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", out.Sale.Items)
	}
}

func TestReplayedSaleRefreshesProductList(t *testing.T) {
	repo := repository.New(memory.New())
	if err := repo.SeedDemo(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	outbox := sale.NewKVOutbox(memory.New())
	rec := &switchRecorder{repo: repo, down: true}
	c := &countingCache{}
	svc := New(repo, c, sale.NewCommitter(rec, outbox, sale.PolicyOutbox, nil), outbox)
	ctx := as(cashier)

	listed, err := svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if stockOf(t, listed, "2") != 5 {
		t.Fatalf("expected seeded stock 5")
	}

	_, _ = svc.RegisterAddLine(ctx, domain.RegisterLineRequest{ProductID: "2"})
	out, err := svc.RegisterCheckout(ctx, domain.CheckoutRequest{PaymentMethod: domain.PaymentCash, Cash: dec("1200")})
	if err != nil || out.Status != sale.PendingRetry {
		t.Fatalf("expected queued sale, got %v %v", out.Status, err)
	}

	rec.setDown(false)
	replayer := sale.NewReplayer(rec, outbox, time.Minute, nil)
	replayer.OnStored = svc.InvalidateCatalog
	if stored, err := replayer.Flush(context.Background()); err != nil || stored != 1 {
		t.Fatalf("expected one replayed sale, got %d %v", stored, err)
	}

	listed, err = svc.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := stockOf(t, listed, "2"); got != 4 {
		t.Fatalf("expected listed stock 4 after replay, got %d", got)
	}
}

func TestListProductsSkipsFillAfterConcurrentInvalidation(t *testing.T) {
	kv := &scanHookKV{KV: memory.New(), prefix: store.PrefixProduct}
	repo := repository.New(kv)
	if err := repo.SeedDemo(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := &countingCache{}
	svc := New(repo, c, sale.NewCommitter(repo, nil, sale.PolicyStrict, nil), nil)
	kv.onScan = func() { svc.InvalidateCatalog(context.Background()) }

	listed, err := svc.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) == 0 {
		t.Fatalf("expected products listed")
	}
	c.mu.Lock()
	filled := c.products != nil
	c.mu.Unlock()
	if filled {
		t.Fatalf("a list read across an invalidation must not be cached")
	}

	if _, err := svc.ListProducts(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	c.mu.Lock()
	filled = c.products != nil
	c.mu.Unlock()
	if !filled {
		t.Fatalf("expected the next read to fill the cache")
	}
}
