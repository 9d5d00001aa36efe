package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/store"
	"freshcart/backend/internal/xid"
)

type Store struct {
	mu            sync.RWMutex
	products      map[string]domain.Product
	cartsByUser   map[string]*domain.Cart
	ordersByID    map[string]domain.Order
	addressesByID map[string]domain.Address
	interactions  []domain.Interaction
	usersByEmail  map[string]domain.UserAccount
	usersByID     map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These accounts are
// never used in production (the backend uses PostgreSQL when DATABASE_URL is
// set).
func seedUsers() []domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customer123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		id       string
		email    string
		password string
		fullName string
		role     string
	}{
		{"usr-admin", "admin@freshcart.dev", adminPwd, "Store Admin", domain.RoleAdmin},
		{"usr-demo", "demo@freshcart.dev", customerPwd, "Demo Customer", domain.RoleCustomer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		users = append(users, domain.UserAccount{
			ID:        u.id,
			Email:     u.email,
			Password:  string(hash),
			FullName:  u.fullName,
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	in := func(days int) *time.Time {
		d := nowDateUTC(now).AddDate(0, 0, days)
		return &d
	}

	products := []domain.Product{
		{ID: "prd-milk-1l", Name: "Lapte 1.5% 1L", Category: "dairy", Brand: "Zuzu", UnitOfMeasure: "pcs", BasePriceCents: 850, StockQuantity: 40, ExpirationDate: in(2)},
		{ID: "prd-yogurt", Name: "Iaurt Grecesc 350g", Category: "dairy", Brand: "Olympus", UnitOfMeasure: "pcs", BasePriceCents: 690, StockQuantity: 30, ExpirationDate: in(5)},
		{ID: "prd-bread", Name: "Paine Integrala", Category: "bakery", Brand: "Vel Pitar", UnitOfMeasure: "pcs", BasePriceCents: 450, StockQuantity: 25, ExpirationDate: in(1)},
		{ID: "prd-eggs-10", Name: "Oua M 10 buc", Category: "grocery", Brand: "Toneli", UnitOfMeasure: "box", BasePriceCents: 1390, StockQuantity: 50, ExpirationDate: in(14)},
		{ID: "prd-apples", Name: "Mere Golden 1kg", Category: "produce", Brand: "", UnitOfMeasure: "kg", BasePriceCents: 520, StockQuantity: 60, ExpirationDate: in(9)},
		{ID: "prd-pasta", Name: "Paste Penne 500g", Category: "grocery", Brand: "Barilla", UnitOfMeasure: "pcs", BasePriceCents: 780, StockQuantity: 80},
		{ID: "prd-water-2l", Name: "Apa Plata 2L", Category: "beverage", Brand: "Borsec", UnitOfMeasure: "pcs", BasePriceCents: 350, StockQuantity: 120},
		{ID: "prd-chicken", Name: "Piept de Pui 500g", Category: "meat", Brand: "Agricola", UnitOfMeasure: "pcs", BasePriceCents: 1650, StockQuantity: 20, ExpirationDate: in(3)},
		{ID: "prd-coffee", Name: "Cafea Macinata 250g", Category: "beverage", Brand: "Lavazza", UnitOfMeasure: "pcs", BasePriceCents: 2490, StockQuantity: 35},
		{ID: "prd-cheese", Name: "Cascaval 300g", Category: "dairy", Brand: "Hochland", UnitOfMeasure: "pcs", BasePriceCents: 1590, StockQuantity: 18, ExpirationDate: in(7)},
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
	}

	usersByEmail := make(map[string]domain.UserAccount)
	usersByID := make(map[string]domain.UserAccount)
	for _, u := range seedUsers() {
		usersByEmail[u.Email] = u
		usersByID[u.ID] = u
	}

	return &Store{
		products:      productMap,
		cartsByUser:   make(map[string]*domain.Cart),
		ordersByID:    make(map[string]domain.Order),
		addressesByID: make(map[string]domain.Address),
		interactions:  make([]domain.Interaction, 0, 128),
		usersByEmail:  usersByEmail,
		usersByID:     usersByID,
	}
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		cartsByUser:   make(map[string]*domain.Cart),
		ordersByID:    make(map[string]domain.Order),
		addressesByID: make(map[string]domain.Address),
		interactions:  make([]domain.Interaction, 0, 128),
		usersByEmail:  make(map[string]domain.UserAccount),
		usersByID:     make(map[string]domain.UserAccount),
	}
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductListFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, p := range s.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.NearExpiryOnly && p.NearExpiryQty == 0 {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.BasePriceCents < 1 || product.StockQuantity < 0 {
		return nil, fmt.Errorf("invalid product: name and positive price required")
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("product %s already exists", product.ID)
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.BasePriceCents < 1 {
		return nil, fmt.Errorf("invalid product: name and positive price required")
	}
	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}

	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProductLots(_ context.Context, id string, stock int, nearExpiry int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	if stock < 0 || nearExpiry < 0 || nearExpiry > stock {
		return fmt.Errorf("invalid lot state for %s: stock %d, near-expiry %d", id, stock, nearExpiry)
	}
	product.StockQuantity = stock
	product.NearExpiryQty = nearExpiry
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product
	return nil
}

func (s *Store) ListExpiringProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.ExpirationDate == nil {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.ID, b.ID)
	})
	return products, nil
}

func (s *Store) GetCartByUser(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneCart(s.cartForUserLocked(userID)), nil
}

// cartForUserLocked lazily creates the user's cart. Caller holds the lock.
func (s *Store) cartForUserLocked(userID string) *domain.Cart {
	cart, ok := s.cartsByUser[userID]
	if !ok {
		cart = &domain.Cart{
			ID:        xid.New("cart"),
			UserID:    userID,
			Lines:     []domain.CartLine{},
			UpdatedAt: time.Now().UTC(),
		}
		s.cartsByUser[userID] = cart
	}
	return cart
}

func (s *Store) UpsertCartLine(_ context.Context, userID string, line domain.CartLine) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if line.ProductID == "" || line.Quantity < 1 {
		return nil, fmt.Errorf("invalid cart line: product and positive quantity required")
	}
	if _, exists := s.products[line.ProductID]; !exists {
		return nil, store.ErrNotFound
	}

	cart := s.cartForUserLocked(userID)
	now := time.Now().UTC()
	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == line.ProductID {
			cart.Lines[i].Quantity += line.Quantity
			cart.Lines[i].PreferFresh = line.PreferFresh
			merged = true
			break
		}
	}
	if !merged {
		line.AddedAt = now
		cart.Lines = append(cart.Lines, line)
	}
	cart.UpdatedAt = now
	return cloneCart(cart), nil
}

func (s *Store) RemoveCartLine(_ context.Context, userID string, productID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartForUserLocked(userID)
	kept := cart.Lines[:0]
	found := false
	for _, l := range cart.Lines {
		if l.ProductID == productID {
			found = true
			continue
		}
		kept = append(kept, l)
	}
	if !found {
		return nil, store.ErrNotFound
	}
	cart.Lines = kept
	cart.UpdatedAt = time.Now().UTC()
	return cloneCart(cart), nil
}

func (s *Store) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.cartForUserLocked(userID)
	cart.Lines = []domain.CartLine{}
	cart.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ClearCartsIdleSince(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for _, cart := range s.cartsByUser {
		if len(cart.Lines) == 0 {
			continue
		}
		if cart.UpdatedAt.After(cutoff) {
			continue
		}
		cart.Lines = []domain.CartLine{}
		cart.UpdatedAt = time.Now().UTC()
		cleared++
	}
	return cleared, nil
}

// CreateOrder applies all stock commits and records the order in one critical
// section. Either every line commits or none does.
func (s *Store) CreateOrder(_ context.Context, order domain.Order, commits []store.OrderCommit) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(commits) == 0 {
		return nil, store.ErrEmptyCart
	}

	// Validate every commit against current stock before touching anything.
	for _, c := range commits {
		product, exists := s.products[c.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", c.ProductID, store.ErrNotFound)
		}
		if c.Quantity < 1 || c.QtyFromDiscount < 0 || c.QtyFromDiscount > c.Quantity {
			return nil, fmt.Errorf("invalid commit for %s", c.ProductID)
		}
		if c.PreferFresh {
			if c.Quantity > product.StockQuantity-product.NearExpiryQty {
				return nil, fmt.Errorf("product %s: %w: insufficient fresh stock", c.ProductID, store.ErrInsufficientStock)
			}
		} else {
			if c.Quantity > product.StockQuantity {
				return nil, fmt.Errorf("product %s: %w", c.ProductID, store.ErrInsufficientStock)
			}
			if c.QtyFromDiscount > product.NearExpiryQty {
				return nil, fmt.Errorf("product %s: stale discount quantity", c.ProductID)
			}
		}
	}

	now := time.Now().UTC()
	for _, c := range commits {
		product := s.products[c.ProductID]
		product.StockQuantity -= c.Quantity
		product.NearExpiryQty -= c.QtyFromDiscount
		if product.NearExpiryQty > product.StockQuantity {
			product.NearExpiryQty = product.StockQuantity
		}
		product.UpdatedAt = now
		s.products[c.ProductID] = product
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusConfirmed
	}
	s.ordersByID[order.ID] = cloneOrder(order)

	created := cloneOrder(order)
	return &created, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) ListOrdersByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0)
	for _, o := range s.ordersByID {
		if o.UserID != userID {
			continue
		}
		orders = append(orders, cloneOrder(o))
	}
	slices.SortFunc(orders, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return orders, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	order.Status = status
	s.ordersByID[id] = order
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) CreateAddress(_ context.Context, address domain.Address) (*domain.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if address.UserID == "" || address.Street == "" || address.City == "" {
		return nil, fmt.Errorf("invalid address: user, street and city required")
	}
	if address.ID == "" {
		address.ID = xid.New("addr")
	}
	if address.CreatedAt.IsZero() {
		address.CreatedAt = time.Now().UTC()
	}
	s.addressesByID[address.ID] = address
	created := address
	return &created, nil
}

func (s *Store) GetAddressByID(_ context.Context, id string) (*domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	address, exists := s.addressesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyAddress := address
	return &copyAddress, nil
}

func (s *Store) ListAddressesByUser(_ context.Context, userID string) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addresses := make([]domain.Address, 0)
	for _, a := range s.addressesByID {
		if a.UserID != userID {
			continue
		}
		addresses = append(addresses, a)
	}
	slices.SortFunc(addresses, func(a, b domain.Address) int {
		return cmpString(a.ID, b.ID)
	})
	return addresses, nil
}

func (s *Store) DeleteAddress(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.addressesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.addressesByID, id)
	return nil
}

func (s *Store) CreateInteraction(_ context.Context, interaction domain.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if interaction.ID == "" {
		interaction.ID = xid.New("int")
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}
	s.interactions = append(s.interactions, interaction)
	return nil
}

func (s *Store) TopProductIDsByInteraction(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type popCount struct {
		productID string
		purchases int
		cartAdds  int
	}
	counts := make(map[string]*popCount)
	for _, it := range s.interactions {
		c, ok := counts[it.ProductID]
		if !ok {
			c = &popCount{productID: it.ProductID}
			counts[it.ProductID] = c
		}
		switch it.Type {
		case domain.InteractionPurchase:
			c.purchases++
		case domain.InteractionAddToCart:
			c.cartAdds++
		}
	}

	ranked := make([]*popCount, 0, len(counts))
	for _, c := range counts {
		ranked = append(ranked, c)
	}
	slices.SortFunc(ranked, func(a, b *popCount) int {
		if a.purchases != b.purchases {
			return b.purchases - a.purchases
		}
		if a.cartAdds != b.cartAdds {
			return b.cartAdds - a.cartAdds
		}
		return cmpString(a.productID, b.productID)
	})

	ids := make([]string, 0, limit)
	for _, c := range ranked {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, c.productID)
	}
	return ids, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Email == "" || user.Password == "" {
		return fmt.Errorf("invalid user: email and password required")
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return fmt.Errorf("user %s already exists", user.Email)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByEmail[user.Email] = user
	s.usersByID[user.ID] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByEmail[email]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.usersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyUser := user
	return &copyUser, nil
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneCart(src *domain.Cart) *domain.Cart {
	c := *src
	c.Lines = make([]domain.CartLine, len(src.Lines))
	copy(c.Lines, src.Lines)
	return &c
}

func cloneOrder(src domain.Order) domain.Order {
	o := src
	o.Lines = make([]domain.OrderLine, len(src.Lines))
	copy(o.Lines, src.Lines)
	return o
}
