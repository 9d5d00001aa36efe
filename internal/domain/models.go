package domain

import "time"

type Product struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Category       string     `json:"category"`
	Brand          string     `json:"brand"`
	UnitOfMeasure  string     `json:"unit_of_measure"`
	BasePriceCents int64      `json:"base_price_cents"`
	StockQuantity  int        `json:"stock_quantity"`
	NearExpiryQty  int        `json:"near_expiry_quantity"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ProductView is a Product enriched with curve-derived read-time fields.
type ProductView struct {
	Product
	CurrentUnitPriceCents int64 `json:"current_unit_price_cents"`
	HasActiveDiscount     bool  `json:"has_active_discount"`
}

type ProductCreateRequest struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	Brand          string `json:"brand"`
	UnitOfMeasure  string `json:"unit_of_measure"`
	BasePriceCents int64  `json:"base_price_cents"`
	StockQuantity  int    `json:"stock_quantity"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type ProductUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Category       *string `json:"category,omitempty"`
	Brand          *string `json:"brand,omitempty"`
	UnitOfMeasure  *string `json:"unit_of_measure,omitempty"`
	BasePriceCents *int64  `json:"base_price_cents,omitempty"`
	StockQuantity  *int    `json:"stock_quantity,omitempty"`
	ExpirationDate *string `json:"expiration_date,omitempty"`
}

type ProductListFilter struct {
	Category       string
	Search         string
	NearExpiryOnly bool
	Limit          int
}

type CartLine struct {
	ProductID   string    `json:"product_id"`
	Quantity    int       `json:"quantity"`
	PreferFresh bool      `json:"prefer_fresh"`
	AddedAt     time.Time `json:"added_at"`
}

type Cart struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Lines     []CartLine `json:"lines"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartAddRequest struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	PreferFresh bool   `json:"prefer_fresh"`
}

// CartLinePreview prices one cart line from current stock state without
// mutating it.
type CartLinePreview struct {
	ProductID              string `json:"product_id"`
	Name                   string `json:"name"`
	Quantity               int    `json:"quantity"`
	PreferFresh            bool   `json:"prefer_fresh"`
	QtyFromDiscount        int    `json:"qty_from_discount"`
	QtyFresh               int    `json:"qty_fresh"`
	BaseUnitPriceCents     int64  `json:"base_unit_price_cents"`
	DiscountUnitPriceCents int64  `json:"discount_unit_price_cents"`
	LineTotalCents         int64  `json:"line_total_cents"`
}

type CartPreview struct {
	CartID        string            `json:"cart_id"`
	Lines         []CartLinePreview `json:"lines"`
	SubtotalCents int64             `json:"subtotal_cents"`
}

type OrderLine struct {
	ProductID                string `json:"product_id"`
	Name                     string `json:"name"`
	Quantity                 int    `json:"quantity"`
	QtyFromDiscount          int    `json:"qty_from_discount"`
	EffectiveUnitPriceCents  int64  `json:"effective_unit_price_cents"`
	BasePriceAtPurchaseCents int64  `json:"base_price_at_purchase_cents"`
	LineTotalCents           int64  `json:"line_total_cents"`
}

type Order struct {
	ID            string      `json:"id"`
	UserID        string      `json:"user_id"`
	AddressID     string      `json:"address_id"`
	Status        string      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	PromoCode     string      `json:"promo_code,omitempty"`
	TotalCents    int64       `json:"total_cents"`
	CreatedAt     time.Time   `json:"created_at"`
	Lines         []OrderLine `json:"lines"`
}

type PlaceOrderRequest struct {
	AddressID     string `json:"address_id"`
	PaymentMethod string `json:"payment_method"`
	PromoCode     string `json:"promo_code,omitempty"`
}

type OrderStatusUpdateRequest struct {
	Status string `json:"status"`
}

type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	CreatedAt  time.Time `json:"created_at"`
}

type AddressCreateRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Interaction struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

type Recommendation struct {
	ProductID             string `json:"product_id"`
	Name                  string `json:"name"`
	CurrentUnitPriceCents int64  `json:"current_unit_price_cents"`
	Source                string `json:"source"`
}

type LotSweepResult struct {
	RanAt  time.Time `json:"ran_at"`
	Tagged int       `json:"tagged"`
	Purged int       `json:"purged"`
	Errors int       `json:"errors"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	UserID string
	Email  string
	Role   string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Email     string
	Password  string
	FullName  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	PaymentMethodCash = "CASH"
	PaymentMethodCard = "CARD"
)

const (
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
)

const (
	InteractionView      = "VIEW"
	InteractionAddToCart = "ADD_TO_CART"
	InteractionPurchase  = "PURCHASE"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

const (
	RecommendationSourceScorer  = "scorer"
	RecommendationSourcePopular = "popular"
)
