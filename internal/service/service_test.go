package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"freshcart/backend/internal/cache"
	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/recommendation"
	"freshcart/backend/internal/store"
	"freshcart/backend/internal/store/memory"
)

var testNow = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

// newTestService builds a service over a deterministic in-memory fixture:
// milk has 20 in stock of which 5 are near-expiry (two days out, so the
// discount price is 50% of base), pasta has no expiration date.
func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()

	milkExpiry := time.Date(2025, 6, 12, 0, 0, 0, 0, time.UTC)
	_, err := repo.CreateProduct(ctx, domain.Product{
		ID:             "prd-milk",
		Name:           "Lapte 1L",
		Category:       "dairy",
		BasePriceCents: 1000,
		StockQuantity:  20,
		ExpirationDate: &milkExpiry,
	})
	if err != nil {
		t.Fatalf("seed milk failed: %v", err)
	}
	if err := repo.UpdateProductLots(ctx, "prd-milk", 20, 5); err != nil {
		t.Fatalf("seed milk lots failed: %v", err)
	}

	_, err = repo.CreateProduct(ctx, domain.Product{
		ID:             "prd-pasta",
		Name:           "Paste Penne 500g",
		Category:       "grocery",
		BasePriceCents: 780,
		StockQuantity:  10,
	})
	if err != nil {
		t.Fatalf("seed pasta failed: %v", err)
	}

	for _, u := range []domain.UserAccount{
		{ID: "usr-1", Email: "ana@example.com", Password: "$2a$10$fixture", FullName: "Ana Pop", Role: domain.RoleCustomer, Active: true},
		{ID: "usr-2", Email: "dan@example.com", Password: "$2a$10$fixture", FullName: "Dan Ionescu", Role: domain.RoleCustomer, Active: true},
	} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("seed user %s failed: %v", u.ID, err)
		}
	}

	for _, a := range []domain.Address{
		{ID: "addr-1", UserID: "usr-1", Street: "Str. Lalelelor 5", City: "Cluj-Napoca", PostalCode: "400001", Country: "RO"},
		{ID: "addr-2", UserID: "usr-2", Street: "Bd. Unirii 10", City: "Bucuresti", PostalCode: "030001", Country: "RO"},
	} {
		if _, err := repo.CreateAddress(ctx, a); err != nil {
			t.Fatalf("seed address %s failed: %v", a.ID, err)
		}
	}

	recommender := recommendation.NewEngine("", cache.NoopRecommendationCache{}, time.Minute)
	svc := New(repo, recommender, LogNotifier{})
	svc.now = func() time.Time { return testNow }
	return svc, repo
}

func addToCart(t *testing.T, svc *Service, userID string, productID string, qty int, preferFresh bool) {
	t.Helper()
	_, err := svc.AddToCart(context.Background(), userID, domain.CartAddRequest{
		ProductID:   productID,
		Quantity:    qty,
		PreferFresh: preferFresh,
	})
	if err != nil {
		t.Fatalf("add to cart failed: %v", err)
	}
}

func TestPlaceOrderDrainsNearExpiryLotFirst(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-milk", 8, false)

	order, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed order, got %s", order.Status)
	}
	// 5 units at the 50% discount (500) plus 3 at base (1000).
	if order.TotalCents != 5500 {
		t.Fatalf("expected total 5500 cents, got %d", order.TotalCents)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected 1 order line, got %d", len(order.Lines))
	}
	line := order.Lines[0]
	if line.QtyFromDiscount != 5 {
		t.Fatalf("expected 5 discounted units, got %d", line.QtyFromDiscount)
	}
	if line.BasePriceAtPurchaseCents != 1000 {
		t.Fatalf("expected base price snapshot 1000, got %d", line.BasePriceAtPurchaseCents)
	}
	if line.EffectiveUnitPriceCents != 687 {
		t.Fatalf("expected effective unit price 687, got %d", line.EffectiveUnitPriceCents)
	}

	milk, _ := repo.GetProductByID(ctx, "prd-milk")
	if milk.StockQuantity != 12 || milk.NearExpiryQty != 0 {
		t.Fatalf("expected stock 12 and near-expiry 0 after commit, got %d and %d", milk.StockQuantity, milk.NearExpiryQty)
	}

	cart, _ := repo.GetCartByUser(ctx, "usr-1")
	if len(cart.Lines) != 0 {
		t.Fatalf("expected cart cleared after checkout, got %d lines", len(cart.Lines))
	}
}

func TestPlaceOrderPreferFreshLeavesDiscountLot(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-milk", 7, true)

	order, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if order.TotalCents != 7000 {
		t.Fatalf("expected total 7000 cents, got %d", order.TotalCents)
	}

	milk, _ := repo.GetProductByID(ctx, "prd-milk")
	if milk.StockQuantity != 13 || milk.NearExpiryQty != 5 {
		t.Fatalf("expected stock 13 and near-expiry 5, got %d and %d", milk.StockQuantity, milk.NearExpiryQty)
	}
}

func TestPlaceOrderRejectsEmptyCart(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.PlaceOrder(context.Background(), "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestPlaceOrderRejectsForeignAddress(t *testing.T) {
	svc, _ := newTestService(t)
	addToCart(t, svc, "usr-1", "prd-pasta", 1, false)

	_, err := svc.PlaceOrder(context.Background(), "usr-1", domain.PlaceOrderRequest{AddressID: "addr-2"})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another user's address, got %v", err)
	}
}

func TestPlaceOrderPaymentMethods(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-pasta", 1, false)

	_, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1", PaymentMethod: "bitcoin"})
	if !errors.Is(err, store.ErrInvalidPaymentMethod) {
		t.Fatalf("expected ErrInvalidPaymentMethod, got %v", err)
	}

	// Empty method defaults to cash; the rejected attempt left the cart intact.
	order, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if order.PaymentMethod != domain.PaymentMethodCash {
		t.Fatalf("expected default CASH payment, got %s", order.PaymentMethod)
	}
}

func TestPlaceOrderAppliesPromoCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-milk", 8, false)

	order, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{
		AddressID: "addr-1",
		PromoCode: " licenta10 ",
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	// 10% off 5500, rounded half-up.
	if order.TotalCents != 4950 {
		t.Fatalf("expected promo total 4950 cents, got %d", order.TotalCents)
	}
	if order.PromoCode != "LICENTA10" {
		t.Fatalf("expected normalized promo code, got %q", order.PromoCode)
	}
}

func TestPlaceOrderIgnoresUnknownPromoCode(t *testing.T) {
	svc, _ := newTestService(t)
	addToCart(t, svc, "usr-1", "prd-pasta", 2, false)

	order, err := svc.PlaceOrder(context.Background(), "usr-1", domain.PlaceOrderRequest{
		AddressID: "addr-1",
		PromoCode: "NOSUCHCODE",
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if order.TotalCents != 1560 {
		t.Fatalf("expected unknown promo to leave total at 1560, got %d", order.TotalCents)
	}
}

func TestPlaceOrderShortageAbortsAllLines(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-milk", 2, false)
	addToCart(t, svc, "usr-1", "prd-pasta", 8, false)

	// Another shopper takes most of the pasta between preview and checkout.
	if err := repo.UpdateProductLots(ctx, "prd-pasta", 3, 0); err != nil {
		t.Fatalf("shrink pasta stock failed: %v", err)
	}

	_, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	milk, _ := repo.GetProductByID(ctx, "prd-milk")
	if milk.StockQuantity != 20 || milk.NearExpiryQty != 5 {
		t.Fatalf("expected milk untouched after aborted order, got stock %d near-expiry %d", milk.StockQuantity, milk.NearExpiryQty)
	}
	cart, _ := repo.GetCartByUser(ctx, "usr-1")
	if len(cart.Lines) != 2 {
		t.Fatalf("expected cart preserved after failed checkout, got %d lines", len(cart.Lines))
	}
}

func TestPlaceOrderRecordsPurchaseInteractions(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-milk", 1, false)

	if _, err := svc.PlaceOrder(ctx, "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"}); err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	ids, err := repo.TopProductIDsByInteraction(ctx, 5)
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(ids) == 0 || ids[0] != "prd-milk" {
		t.Fatalf("expected purchase interaction for prd-milk, got %v", ids)
	}
}

func TestGetCartPreviewDoesNotReserveStock(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-milk", 8, false)

	preview, err := svc.GetCart(ctx, "usr-1")
	if err != nil {
		t.Fatalf("get cart failed: %v", err)
	}
	if preview.SubtotalCents != 5500 {
		t.Fatalf("expected preview subtotal 5500, got %d", preview.SubtotalCents)
	}
	line := preview.Lines[0]
	if line.QtyFromDiscount != 5 || line.QtyFresh != 3 {
		t.Fatalf("expected preview split 5 + 3, got %d + %d", line.QtyFromDiscount, line.QtyFresh)
	}
	if line.DiscountUnitPriceCents != 500 {
		t.Fatalf("expected discount unit price 500, got %d", line.DiscountUnitPriceCents)
	}

	milk, _ := repo.GetProductByID(ctx, "prd-milk")
	if milk.StockQuantity != 20 || milk.NearExpiryQty != 5 {
		t.Fatalf("expected preview to leave stock untouched, got %d and %d", milk.StockQuantity, milk.NearExpiryQty)
	}
}

func TestAddToCartRejectsQuantityOverStock(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AddToCart(context.Background(), "usr-1", domain.CartAddRequest{
		ProductID: "prd-pasta",
		Quantity:  11,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{UserID: "usr-1", Role: domain.RoleCustomer})

	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:           "Unt 200g",
		Category:       "dairy",
		BasePriceCents: 950,
		StockQuantity:  10,
	})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
}

func TestCreateProductParsesExpirationDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{UserID: "usr-admin", Role: domain.RoleAdmin})

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:           "Unt 200g",
		Category:       "dairy",
		BasePriceCents: 950,
		StockQuantity:  10,
		ExpirationDate: "2025-06-20",
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if product.ExpirationDate == nil || product.ExpirationDate.Format("2006-01-02") != "2025-06-20" {
		t.Fatalf("expected parsed expiration date, got %v", product.ExpirationDate)
	}

	_, err = svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:           "Unt 200g",
		Category:       "dairy",
		BasePriceCents: 950,
		ExpirationDate: "20/06/2025",
	})
	if err == nil {
		t.Fatalf("expected malformed date to be rejected")
	}
}

func TestUpdateProductExpirationResetsNearExpiryLot(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{UserID: "usr-admin", Role: domain.RoleAdmin})

	newDate := "2025-07-01"
	_, err := svc.UpdateProduct(ctx, "prd-milk", domain.ProductUpdateRequest{ExpirationDate: &newDate})
	if err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	milk, _ := repo.GetProductByID(ctx, "prd-milk")
	if milk.NearExpiryQty != 0 {
		t.Fatalf("expected near-expiry lot reset after date change, got %d", milk.NearExpiryQty)
	}
}

func TestGetProductRecordsViewForCustomer(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{UserID: "usr-1", Role: domain.RoleCustomer})

	view, err := svc.GetProduct(ctx, "prd-milk")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if view.CurrentUnitPriceCents != 500 {
		t.Fatalf("expected discounted price 500 two days from expiry, got %d", view.CurrentUnitPriceCents)
	}
	if !view.HasActiveDiscount {
		t.Fatalf("expected active discount flag")
	}

	ids, err := repo.TopProductIDsByInteraction(context.Background(), 5)
	if err != nil {
		t.Fatalf("ranking failed: %v", err)
	}
	if len(ids) == 0 {
		t.Fatalf("expected view interaction to be recorded")
	}
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t)
	addToCart(t, svc, "usr-1", "prd-pasta", 1, false)

	order, err := svc.PlaceOrder(context.Background(), "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	otherCtx := WithActor(context.Background(), domain.Actor{UserID: "usr-2", Role: domain.RoleCustomer})
	if _, err := svc.GetOrder(otherCtx, order.ID); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another customer's order, got %v", err)
	}

	adminCtx := WithActor(context.Background(), domain.Actor{UserID: "usr-admin", Role: domain.RoleAdmin})
	if _, err := svc.GetOrder(adminCtx, order.ID); err != nil {
		t.Fatalf("expected admin to read any order, got %v", err)
	}
}

func TestUpdateOrderStatusRequiresAdmin(t *testing.T) {
	svc, _ := newTestService(t)
	addToCart(t, svc, "usr-1", "prd-pasta", 1, false)

	order, err := svc.PlaceOrder(context.Background(), "usr-1", domain.PlaceOrderRequest{AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	customerCtx := WithActor(context.Background(), domain.Actor{UserID: "usr-1", Role: domain.RoleCustomer})
	_, err = svc.UpdateOrderStatus(customerCtx, order.ID, domain.OrderStatusUpdateRequest{Status: "shipped"})
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for customer, got %v", err)
	}

	adminCtx := WithActor(context.Background(), domain.Actor{UserID: "usr-admin", Role: domain.RoleAdmin})
	updated, err := svc.UpdateOrderStatus(adminCtx, order.ID, domain.OrderStatusUpdateRequest{Status: "shipped"})
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if updated.Status != domain.OrderStatusShipped {
		t.Fatalf("expected normalized SHIPPED status, got %s", updated.Status)
	}
}

func TestDeleteAddressEnforcesOwnership(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.DeleteAddress(context.Background(), "usr-1", "addr-2"); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected ErrForbidden deleting another user's address, got %v", err)
	}
	if err := svc.DeleteAddress(context.Background(), "usr-1", "addr-1"); err != nil {
		t.Fatalf("expected own address delete to succeed, got %v", err)
	}
}

func TestSweepAbandonedCarts(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	addToCart(t, svc, "usr-1", "prd-pasta", 1, false)

	// Nothing is idle yet.
	cleared, err := svc.SweepAbandonedCarts(ctx, time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("expected no carts cleared, got %d", cleared)
	}

	// The service clock is fixed far in the future relative to the cart's
	// real UpdatedAt, so a zero max-idle makes it eligible.
	svc.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }
	cleared, err = svc.SweepAbandonedCarts(ctx, 0)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 cart cleared, got %d", cleared)
	}

	cart, _ := repo.GetCartByUser(ctx, "usr-1")
	if len(cart.Lines) != 0 {
		t.Fatalf("expected cart emptied by sweep, got %d lines", len(cart.Lines))
	}
}

func TestPlaceOrderConcurrentCheckoutsNeverOversell(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if _, err := repo.CreateProduct(ctx, domain.Product{
		ID:             "prd-apa",
		Name:           "Apa Plata 2L",
		Category:       "beverages",
		BasePriceCents: 450,
		StockQuantity:  20,
	}); err != nil {
		t.Fatalf("seed product failed: %v", err)
	}

	const buyers = 10
	const perOrder = 5
	for i := 0; i < buyers; i++ {
		userID := fmt.Sprintf("usr-c%d", i)
		if err := repo.CreateUser(ctx, domain.UserAccount{
			ID:       userID,
			Email:    fmt.Sprintf("c%d@example.com", i),
			Password: "$2a$10$fixture",
			Role:     domain.RoleCustomer,
			Active:   true,
		}); err != nil {
			t.Fatalf("seed user %s failed: %v", userID, err)
		}
		if _, err := repo.CreateAddress(ctx, domain.Address{
			ID:         fmt.Sprintf("addr-c%d", i),
			UserID:     userID,
			Street:     "Str. Garii 1",
			City:       "Brasov",
			PostalCode: "500001",
			Country:    "RO",
		}); err != nil {
			t.Fatalf("seed address for %s failed: %v", userID, err)
		}
		addToCart(t, svc, userID, "prd-apa", perOrder, false)
	}

	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceOrder(ctx, fmt.Sprintf("usr-c%d", i), domain.PlaceOrderRequest{
				AddressID: fmt.Sprintf("addr-c%d", i),
			})
		}(i)
	}
	wg.Wait()

	placed := 0
	for i, err := range errs {
		if err == nil {
			placed++
			continue
		}
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("buyer %d: expected insufficient stock, got %v", i, err)
		}
	}
	// 20 units of stock fit exactly four 5-unit orders.
	if placed != 4 {
		t.Fatalf("expected 4 committed orders, got %d", placed)
	}

	product, err := repo.GetProductByID(ctx, "prd-apa")
	if err != nil {
		t.Fatalf("get product failed: %v", err)
	}
	if product.StockQuantity != 20-placed*perOrder {
		t.Fatalf("expected stock %d after commits, got %d", 20-placed*perOrder, product.StockQuantity)
	}
	if product.StockQuantity < 0 || product.NearExpiryQty < 0 {
		t.Fatalf("stock counters went negative: %d / %d", product.StockQuantity, product.NearExpiryQty)
	}
}
