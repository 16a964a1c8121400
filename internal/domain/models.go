package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts travel as JSON numbers, the way POS clients send them.
	decimal.MarshalJSONWithoutQuotes = true
}

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleCashier:
		return true
	}
	return false
}

type MetalType string

const (
	MetalGold     MetalType = "gold"
	MetalSilver   MetalType = "silver"
	MetalPlatinum MetalType = "platinum"
)

func (m MetalType) Valid() bool {
	switch m {
	case MetalGold, MetalSilver, MetalPlatinum:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentMixed PaymentMethod = "mixed"
	PaymentMetal PaymentMethod = "metal"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCash, PaymentCard, PaymentMixed, PaymentMetal:
		return true
	}
	return false
}

// CategoryService marks catalog entries that are not stocked (repairs, resizing).
const CategoryService = "service"

type Product struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"`
	Category      string           `json:"category"`
	Weight        *decimal.Decimal `json:"weight,omitempty"`
	Metal         MetalType        `json:"metal,omitempty"`
	InStock       int              `json:"inStock"`
	StoreLocation string           `json:"storeLocation,omitempty"`
	Description   string           `json:"description,omitempty"`
	Supplier      string           `json:"supplier,omitempty"`
	CostPrice     *decimal.Decimal `json:"costPrice,omitempty"`
	CreatedBy     string           `json:"createdBy,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     *time.Time       `json:"updatedAt,omitempty"`
}

type ProductCreateRequest struct {
	ID            string           `json:"id"`
	Name          string           `json:"name" binding:"required,max=200"`
	Price         decimal.Decimal  `json:"price"`
	Category      string           `json:"category" binding:"required,max=64"`
	Weight        *decimal.Decimal `json:"weight"`
	Metal         MetalType        `json:"metal"`
	InStock       int              `json:"inStock" binding:"gte=0"`
	StoreLocation string           `json:"storeLocation" binding:"max=128"`
	Description   string           `json:"description" binding:"max=2000"`
	Supplier      string           `json:"supplier" binding:"max=200"`
	CostPrice     *decimal.Decimal `json:"costPrice"`
}

// ProductUpdateRequest is a merge patch: nil fields keep their stored value.
type ProductUpdateRequest struct {
	Name          *string          `json:"name" binding:"omitempty,min=1,max=200"`
	Price         *decimal.Decimal `json:"price"`
	Category      *string          `json:"category" binding:"omitempty,min=1,max=64"`
	Weight        *decimal.Decimal `json:"weight"`
	Metal         *MetalType       `json:"metal"`
	InStock       *int             `json:"inStock" binding:"omitempty,gte=0"`
	StoreLocation *string          `json:"storeLocation" binding:"omitempty,max=128"`
	Description   *string          `json:"description" binding:"omitempty,max=2000"`
	Supplier      *string          `json:"supplier" binding:"omitempty,max=200"`
	CostPrice     *decimal.Decimal `json:"costPrice"`
}

type Customer struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Email          string          `json:"email,omitempty"`
	Discount       decimal.Decimal `json:"discount"`
	TotalPurchases decimal.Decimal `json:"totalPurchases"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      *time.Time      `json:"updatedAt,omitempty"`
}

type CustomerCreateRequest struct {
	ID       string          `json:"id"`
	Name     string          `json:"name" binding:"required,max=200"`
	Phone    string          `json:"phone" binding:"required,max=32"`
	Email    string          `json:"email" binding:"omitempty,email"`
	Discount decimal.Decimal `json:"discount"`
}

type CustomerUpdateRequest struct {
	Name     *string          `json:"name" binding:"omitempty,min=1,max=200"`
	Phone    *string          `json:"phone" binding:"omitempty,min=1,max=32"`
	Email    *string          `json:"email" binding:"omitempty,email"`
	Discount *decimal.Decimal `json:"discount"`
}

type SaleItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
}

// MetalLot is precious metal accepted in kind as payment.
type MetalLot struct {
	Type         MetalType       `json:"type"`
	Purity       int             `json:"purity"`
	Weight       decimal.Decimal `json:"weight"`
	PricePerGram decimal.Decimal `json:"pricePerGram"`
}

func (l MetalLot) Value() decimal.Decimal {
	return l.Weight.Mul(l.PricePerGram)
}

type PaymentDetails struct {
	Cash         decimal.Decimal `json:"cash"`
	Card         decimal.Decimal `json:"card"`
	Metal        []MetalLot      `json:"metal,omitempty"`
	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

// Sale is immutable once stored.
type Sale struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	Items          []SaleItem      `json:"items"`
	CustomerID     string          `json:"customerId,omitempty"`
	CustomerName   string          `json:"customerName,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  PaymentMethod   `json:"paymentMethod"`
	PaymentDetails PaymentDetails  `json:"paymentDetails"`
	Change         decimal.Decimal `json:"change"`
	CashierID      string          `json:"cashierId,omitempty"`
}

// SaleRequest is a fully built sale posted by an external client. Subtotal,
// total and change are recomputed server side from the items and payment.
type SaleRequest struct {
	Items           []SaleItemRequest     `json:"items" binding:"required,min=1,dive"`
	CustomerID      string                `json:"customerId"`
	CustomerName    string                `json:"customerName"`
	Subtotal        *decimal.Decimal      `json:"subtotal"`
	Total           *decimal.Decimal      `json:"total"`
	ReceiptDiscount decimal.Decimal       `json:"receiptDiscount"`
	PaymentMethod   PaymentMethod         `json:"paymentMethod" binding:"required"`
	PaymentDetails  PaymentDetailsRequest `json:"paymentDetails"`
	Change          *decimal.Decimal      `json:"change"`
}

// PaymentDetailsRequest is the posted breakdown. Metal lots without a price
// take the table price; an explicit 0 is kept.
type PaymentDetailsRequest struct {
	Cash         decimal.Decimal `json:"cash"`
	Card         decimal.Decimal `json:"card"`
	Metal        []MetalLotInput `json:"metal" binding:"dive"`
	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchangeRate"`
}

type SaleItemRequest struct {
	ProductID   string          `json:"productId" binding:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity" binding:"required,gte=1"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
}

type MovementStatus string

const (
	MovementPending   MovementStatus = "pending"
	MovementCompleted MovementStatus = "completed"
	MovementCancelled MovementStatus = "cancelled"
)

func (s MovementStatus) Terminal() bool {
	return s == MovementCompleted || s == MovementCancelled
}

type StockMovement struct {
	ID           string         `json:"id"`
	ProductID    string         `json:"productId"`
	ProductName  string         `json:"productName"`
	FromLocation string         `json:"fromLocation"`
	ToLocation   string         `json:"toLocation"`
	Quantity     int            `json:"quantity"`
	Reason       string         `json:"reason"`
	Timestamp    time.Time      `json:"timestamp"`
	PerformedBy  string         `json:"performedBy"`
	Status       MovementStatus `json:"status"`
	UpdatedAt    *time.Time     `json:"updatedAt,omitempty"`
	UpdatedBy    string         `json:"updatedBy,omitempty"`
}

type MovementCreateRequest struct {
	ProductID    string `json:"productId" binding:"required"`
	FromLocation string `json:"fromLocation" binding:"required,max=128"`
	ToLocation   string `json:"toLocation" binding:"required,max=128"`
	Quantity     int    `json:"quantity" binding:"required,gte=1"`
	Reason       string `json:"reason" binding:"max=256"`
}

type MovementUpdateRequest struct {
	Status MovementStatus `json:"status" binding:"required"`
}

type TransactionType string

const (
	MetalPurchase TransactionType = "purchase"
	MetalSale     TransactionType = "sale"
)

type MetalTransaction struct {
	ID              string          `json:"id"`
	MetalType       MetalType       `json:"metalType"`
	Weight          decimal.Decimal `json:"weight"`
	Purity          int             `json:"purity"`
	PricePerGram    decimal.Decimal `json:"pricePerGram"`
	TotalValue      decimal.Decimal `json:"totalValue"`
	TransactionType TransactionType `json:"transactionType"`
	RelatedSaleID   string          `json:"relatedSaleId,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
	ProcessedBy     string          `json:"processedBy"`
}

type MetalTransactionRequest struct {
	MetalType       MetalType        `json:"metalType" binding:"required"`
	Weight          decimal.Decimal  `json:"weight"`
	Purity          int              `json:"purity" binding:"required"`
	PricePerGram    *decimal.Decimal `json:"pricePerGram"`
	TransactionType TransactionType  `json:"transactionType"`
	RelatedSaleID   string           `json:"relatedSaleId"`
}

type MetalAggregate struct {
	TotalWeight decimal.Decimal `json:"totalWeight"`
	TotalValue  decimal.Decimal `json:"totalValue"`
	AvgPrice    decimal.Decimal `json:"avgPrice"`
}

type SalesSummary struct {
	From                time.Time                  `json:"from"`
	To                  time.Time                  `json:"to"`
	TotalSales          decimal.Decimal            `json:"totalSales"`
	TotalTransactions   int                        `json:"totalTransactions"`
	AvgTransactionValue decimal.Decimal            `json:"avgTransactionValue"`
	SalesByDate         map[string]decimal.Decimal `json:"salesByDate"`
}

// Settings is stored and returned as-is.
type Settings = json.RawMessage

type Actor struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}

// UserAccount is the persistence model for credentials. PasswordHash never
// leaves the server; handlers return UserProfile.
type UserAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"passwordHash"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u UserAccount) Profile() UserProfile {
	return UserProfile{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role, Active: u.Active, CreatedAt: u.CreatedAt}
}

type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
	Name     string `json:"name" binding:"required,max=200"`
	Role     Role   `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string      `json:"accessToken"`
	Role        Role        `json:"role"`
	ExpiresAt   string      `json:"expiresAt"`
	User        UserProfile `json:"user"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actorId"`
	ActorRole  Role      `json:"actorRole"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"createdAt"`
}

// OutboxEntry is a sale whose recording failed and awaits replay.
type OutboxEntry struct {
	Sale      Sale               `json:"sale"`
	Metal     []MetalTransaction `json:"metal,omitempty"`
	Attempts  int                `json:"attempts"`
	LastError string             `json:"lastError,omitempty"`
	QueuedAt  time.Time          `json:"queuedAt"`
	LastTryAt *time.Time         `json:"lastTryAt,omitempty"`
}

// Register request bodies.

type RegisterLineRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type RegisterLineUpdateRequest struct {
	Quantity *int             `json:"quantity"`
	Discount *decimal.Decimal `json:"discount"`
}

type RegisterDiscountRequest struct {
	Discount decimal.Decimal `json:"discount"`
}

type RegisterCustomerRequest struct {
	CustomerID string `json:"customerId"`
}

type CheckoutRequest struct {
	PaymentMethod PaymentMethod   `json:"paymentMethod" binding:"required"`
	Cash          decimal.Decimal `json:"cash"`
	Card          decimal.Decimal `json:"card"`
	Currency      string          `json:"currency" binding:"omitempty,oneof=UAH USD EUR"`
	ExchangeRate  decimal.Decimal `json:"exchangeRate"`
	MetalLots     []MetalLotInput `json:"metalLots" binding:"dive"`
}

// MetalLotInput leaves PricePerGram nil to take the price from the table.
type MetalLotInput struct {
	Type         MetalType        `json:"type" binding:"required"`
	Purity       int              `json:"purity" binding:"required"`
	Weight       decimal.Decimal  `json:"weight"`
	PricePerGram *decimal.Decimal `json:"pricePerGram"`
}

type RegisterLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type RegisterView struct {
	Lines       []RegisterLine  `json:"lines"`
	Customer    *Customer       `json:"customer,omitempty"`
	Discount    decimal.Decimal `json:"discount"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"itemCount"`
	CanCheckout bool            `json:"canCheckout"`
}
