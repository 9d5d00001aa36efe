package store

import (
	"context"
	"errors"
	"time"

	"freshcart/backend/internal/allocation"
	"freshcart/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInsufficientStock    = allocation.ErrInsufficientStock
	ErrEmptyCart            = errors.New("cart is empty")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// OrderCommit is one cart line resolved into stock mutations and pricing,
// applied atomically by CreateOrder.
type OrderCommit struct {
	ProductID       string
	Quantity        int
	QtyFromDiscount int
	PreferFresh     bool
}

type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	UpdateProductLots(ctx context.Context, id string, stock int, nearExpiry int) error
	ListExpiringProducts(ctx context.Context) ([]domain.Product, error)

	GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error)
	UpsertCartLine(ctx context.Context, userID string, line domain.CartLine) (*domain.Cart, error)
	RemoveCartLine(ctx context.Context, userID string, productID string) (*domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
	ClearCartsIdleSince(ctx context.Context, cutoff time.Time) (int, error)

	CreateOrder(ctx context.Context, order domain.Order, commits []OrderCommit) (*domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)

	CreateAddress(ctx context.Context, address domain.Address) (*domain.Address, error)
	GetAddressByID(ctx context.Context, id string) (*domain.Address, error)
	ListAddressesByUser(ctx context.Context, userID string) ([]domain.Address, error)
	DeleteAddress(ctx context.Context, id string) error

	CreateInteraction(ctx context.Context, interaction domain.Interaction) error
	TopProductIDsByInteraction(ctx context.Context, limit int) ([]string, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)
}
