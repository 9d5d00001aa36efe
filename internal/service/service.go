package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"freshcart/backend/internal/allocation"
	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/pricing"
	"freshcart/backend/internal/recommendation"
	"freshcart/backend/internal/store"
	"freshcart/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Notifier delivers order confirmations. Delivery is best-effort; a failed
// notification never fails the order.
type Notifier interface {
	OrderConfirmed(ctx context.Context, user domain.UserAccount, order domain.Order)
}

// LogNotifier writes confirmations to the process log.
type LogNotifier struct{}

func (LogNotifier) OrderConfirmed(_ context.Context, user domain.UserAccount, order domain.Order) {
	log.Printf("[notify] order %s confirmed for %s: total=%d cents, %d lines", order.ID, user.Email, order.TotalCents, len(order.Lines))
}

type Service struct {
	repo        store.Repository
	recommender *recommendation.Engine
	notifier    Notifier
	now         func() time.Time
}

func New(repo store.Repository, recommender *recommendation.Engine, notifier Notifier) *Service {
	if notifier == nil {
		notifier = LogNotifier{}
	}

	return &Service{
		repo:        repo,
		recommender: recommender,
		notifier:    notifier,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductListFilter) ([]domain.ProductView, error) {
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}

	today := s.now()
	views := make([]domain.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, enrichProduct(p, today))
	}
	return views, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.ProductView, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.ProductView{}, err
	}

	if actor, ok := ActorFromContext(ctx); ok && actor.Role == domain.RoleCustomer {
		s.recordInteraction(ctx, actor.UserID, product.ID, domain.InteractionView)
	}

	return enrichProduct(*product, s.now()), nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required: %w", store.ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Brand = strings.TrimSpace(req.Brand)
	if req.Name == "" || req.BasePriceCents < 1 || req.StockQuantity < 0 {
		return domain.Product{}, fmt.Errorf("name and positive base price required")
	}

	expiry, err := parseDate(req.ExpirationDate)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:             xid.New("prd"),
		Name:           req.Name,
		Category:       req.Category,
		Brand:          req.Brand,
		UnitOfMeasure:  req.UnitOfMeasure,
		BasePriceCents: req.BasePriceCents,
		StockQuantity:  req.StockQuantity,
		ExpirationDate: expiry,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Product{}, fmt.Errorf("admin role required: %w", store.ErrForbidden)
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("name must not be empty")
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.Brand != nil {
		updated.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.UnitOfMeasure != nil {
		updated.UnitOfMeasure = *req.UnitOfMeasure
	}
	if req.BasePriceCents != nil {
		if *req.BasePriceCents < 1 {
			return domain.Product{}, fmt.Errorf("base price must be positive")
		}
		updated.BasePriceCents = *req.BasePriceCents
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return domain.Product{}, fmt.Errorf("stock must not be negative")
		}
		updated.StockQuantity = *req.StockQuantity
		if updated.NearExpiryQty > updated.StockQuantity {
			updated.NearExpiryQty = updated.StockQuantity
		}
	}
	if req.ExpirationDate != nil {
		expiry, err := parseDate(*req.ExpirationDate)
		if err != nil {
			return domain.Product{}, err
		}
		if !sameDate(existing.ExpirationDate, expiry) {
			// New date means a new lot; the next sweep re-tags it.
			updated.NearExpiryQty = 0
		}
		updated.ExpirationDate = expiry
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required: %w", store.ErrForbidden)
	}
	return s.repo.DeleteProduct(ctx, id)
}

func (s *Service) GetCart(ctx context.Context, userID string) (domain.CartPreview, error) {
	cart, err := s.repo.GetCartByUser(ctx, userID)
	if err != nil {
		return domain.CartPreview{}, err
	}
	return s.previewCart(ctx, cart)
}

func (s *Service) AddToCart(ctx context.Context, userID string, req domain.CartAddRequest) (domain.CartPreview, error) {
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.CartPreview{}, fmt.Errorf("product and positive quantity required")
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return domain.CartPreview{}, err
	}
	if req.Quantity > product.StockQuantity {
		return domain.CartPreview{}, fmt.Errorf("product %s: %w", product.ID, store.ErrInsufficientStock)
	}

	cart, err := s.repo.UpsertCartLine(ctx, userID, domain.CartLine{
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		PreferFresh: req.PreferFresh,
	})
	if err != nil {
		return domain.CartPreview{}, err
	}

	s.recordInteraction(ctx, userID, req.ProductID, domain.InteractionAddToCart)
	return s.previewCart(ctx, cart)
}

func (s *Service) RemoveFromCart(ctx context.Context, userID string, productID string) (domain.CartPreview, error) {
	cart, err := s.repo.RemoveCartLine(ctx, userID, productID)
	if err != nil {
		return domain.CartPreview{}, err
	}
	return s.previewCart(ctx, cart)
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	return s.repo.ClearCart(ctx, userID)
}

// previewCart prices every line from current stock state without reserving
// anything. Lines whose product disappeared are skipped.
func (s *Service) previewCart(ctx context.Context, cart *domain.Cart) (domain.CartPreview, error) {
	preview := domain.CartPreview{CartID: cart.ID, Lines: []domain.CartLinePreview{}}
	if len(cart.Lines) == 0 {
		return preview, nil
	}

	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CartPreview{}, err
	}

	today := s.now()
	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			continue
		}
		discountPrice := pricing.UnitPriceCents(product.BasePriceCents, product.ExpirationDate, today)
		split, err := allocation.Allocate(line.Quantity, product.StockQuantity, product.NearExpiryQty,
			line.PreferFresh, product.BasePriceCents, discountPrice)
		if err != nil {
			return domain.CartPreview{}, fmt.Errorf("product %s: %w", product.ID, err)
		}
		preview.Lines = append(preview.Lines, domain.CartLinePreview{
			ProductID:              product.ID,
			Name:                   product.Name,
			Quantity:               line.Quantity,
			PreferFresh:            line.PreferFresh,
			QtyFromDiscount:        split.QtyFromDiscount,
			QtyFresh:               split.QtyFresh,
			BaseUnitPriceCents:     product.BasePriceCents,
			DiscountUnitPriceCents: discountPrice,
			LineTotalCents:         split.LineTotalCents,
		})
		preview.SubtotalCents += split.LineTotalCents
	}
	return preview, nil
}

// PlaceOrder turns the user's cart into a confirmed order. Stock for every
// line commits atomically; any shortage aborts the whole order.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req domain.PlaceOrderRequest) (domain.Order, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}

	cart, err := s.repo.GetCartByUser(ctx, userID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(cart.Lines) == 0 {
		return domain.Order{}, store.ErrEmptyCart
	}

	address, err := s.repo.GetAddressByID(ctx, req.AddressID)
	if err != nil {
		return domain.Order{}, err
	}
	if address.UserID != userID {
		return domain.Order{}, fmt.Errorf("address %s: %w", address.ID, store.ErrForbidden)
	}

	paymentMethod, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}

	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Order{}, err
	}

	today := s.now()
	totalCents := int64(0)
	orderLines := make([]domain.OrderLine, 0, len(cart.Lines))
	commits := make([]store.OrderCommit, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Order{}, fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
		}
		discountPrice := pricing.UnitPriceCents(product.BasePriceCents, product.ExpirationDate, today)
		split, err := allocation.Allocate(line.Quantity, product.StockQuantity, product.NearExpiryQty,
			line.PreferFresh, product.BasePriceCents, discountPrice)
		if err != nil {
			return domain.Order{}, fmt.Errorf("product %s: %w", product.ID, err)
		}
		orderLines = append(orderLines, domain.OrderLine{
			ProductID:                product.ID,
			Name:                     product.Name,
			Quantity:                 line.Quantity,
			QtyFromDiscount:          split.QtyFromDiscount,
			EffectiveUnitPriceCents:  split.LineTotalCents / int64(line.Quantity),
			BasePriceAtPurchaseCents: product.BasePriceCents,
			LineTotalCents:           split.LineTotalCents,
		})
		commits = append(commits, store.OrderCommit{
			ProductID:       product.ID,
			Quantity:        line.Quantity,
			QtyFromDiscount: split.QtyFromDiscount,
			PreferFresh:     line.PreferFresh,
		})
		totalCents += split.LineTotalCents
	}

	promoCode := strings.ToUpper(strings.TrimSpace(req.PromoCode))
	totalCents = applyPromo(totalCents, promoCode)

	order := domain.Order{
		ID:            xid.New("ord"),
		UserID:        userID,
		AddressID:     address.ID,
		Status:        domain.OrderStatusConfirmed,
		PaymentMethod: paymentMethod,
		PromoCode:     promoCode,
		TotalCents:    totalCents,
		CreatedAt:     today,
		Lines:         orderLines,
	}

	created, err := s.repo.CreateOrder(ctx, order, commits)
	if err != nil {
		return domain.Order{}, err
	}

	for _, line := range created.Lines {
		s.recordInteraction(ctx, userID, line.ProductID, domain.InteractionPurchase)
	}

	if err := s.repo.ClearCart(ctx, userID); err != nil {
		log.Printf("[service] WARN: clearing cart after order %s failed: %v", created.ID, err)
	}

	s.notifier.OrderConfirmed(ctx, *user, *created)
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Order{}, store.ErrForbidden
	}

	order, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.UserID != actor.UserID && actor.Role != domain.RoleAdmin {
		return domain.Order{}, fmt.Errorf("order %s: %w", orderID, store.ErrForbidden)
	}
	return *order, nil
}

func (s *Service) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}

func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, req domain.OrderStatusUpdateRequest) (domain.Order, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Order{}, fmt.Errorf("admin role required: %w", store.ErrForbidden)
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		return domain.Order{}, fmt.Errorf("status must not be empty")
	}

	order, err := s.repo.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) CreateAddress(ctx context.Context, userID string, req domain.AddressCreateRequest) (domain.Address, error) {
	address := domain.Address{
		ID:         xid.New("addr"),
		UserID:     userID,
		Street:     strings.TrimSpace(req.Street),
		City:       strings.TrimSpace(req.City),
		PostalCode: strings.TrimSpace(req.PostalCode),
		Country:    strings.TrimSpace(req.Country),
	}
	created, err := s.repo.CreateAddress(ctx, address)
	if err != nil {
		return domain.Address{}, err
	}
	return *created, nil
}

func (s *Service) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	return s.repo.ListAddressesByUser(ctx, userID)
}

func (s *Service) DeleteAddress(ctx context.Context, userID string, addressID string) error {
	address, err := s.repo.GetAddressByID(ctx, addressID)
	if err != nil {
		return err
	}
	if address.UserID != userID {
		return fmt.Errorf("address %s: %w", addressID, store.ErrForbidden)
	}
	return s.repo.DeleteAddress(ctx, addressID)
}

func (s *Service) Recommendations(ctx context.Context, userID string) ([]domain.Recommendation, error) {
	return s.recommender.ForUser(ctx, userID, s.repo)
}

func (s *Service) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}, nil
}

// SweepAbandonedCarts clears carts idle longer than maxIdle.
func (s *Service) SweepAbandonedCarts(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := s.now().Add(-maxIdle)
	cleared, err := s.repo.ClearCartsIdleSince(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if cleared > 0 {
		log.Printf("[service] cleared %d abandoned carts idle since %s", cleared, cutoff.Format(time.RFC3339))
	}
	return cleared, nil
}

// RunCartSweeper sweeps on the given interval until the context is cancelled.
func (s *Service) RunCartSweeper(ctx context.Context, interval time.Duration, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepAbandonedCarts(ctx, maxIdle); err != nil {
				log.Printf("[service] WARN: cart sweep failed: %v", err)
			}
		}
	}
}

func (s *Service) recordInteraction(ctx context.Context, userID string, productID string, kind string) {
	err := s.repo.CreateInteraction(ctx, domain.Interaction{
		ID:        xid.New("int"),
		UserID:    userID,
		ProductID: productID,
		Type:      kind,
		CreatedAt: s.now(),
	})
	if err != nil {
		log.Printf("[service] WARN: recording %s interaction user=%s product=%s: %v", kind, userID, productID, err)
	}
}

func enrichProduct(p domain.Product, today time.Time) domain.ProductView {
	current := pricing.UnitPriceCents(p.BasePriceCents, p.ExpirationDate, today)
	return domain.ProductView{
		Product:               p,
		CurrentUnitPriceCents: current,
		HasActiveDiscount:     current < p.BasePriceCents,
	}
}

func normalizePaymentMethod(method string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case "":
		return domain.PaymentMethodCash, nil
	case domain.PaymentMethodCash, domain.PaymentMethodCard:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %s (use CASH or CARD)", store.ErrInvalidPaymentMethod, method)
	}
}

// applyPromo applies known promo codes to the order total. Unknown codes
// are silently ignored.
func applyPromo(totalCents int64, code string) int64 {
	if code == "LICENTA10" {
		return (totalCents*90 + 50) / 100
	}
	return totalCents
}

func parseDate(val string) (*time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", val)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD", val)
	}
	d := parsed.UTC()
	return &d, nil
}

func sameDate(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
