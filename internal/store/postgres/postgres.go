package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"freshcart/backend/internal/domain"
	"freshcart/backend/internal/store"
	"freshcart/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, category, brand, unit_of_measure, base_price_cents, stock_quantity, near_expiry_quantity, expiration_date, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var expiry sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.UnitOfMeasure,
		&p.BasePriceCents, &p.StockQuantity, &p.NearExpiryQty, &expiry, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if expiry.Valid {
		d := nowDateUTC(expiry.Time.UTC())
		p.ExpirationDate = &d
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductListFilter) ([]domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE 1=1
	`
	args := make([]any, 0, 3)
	if filter.Category != "" {
		args = append(args, filter.Category)
		query += fmt.Sprintf(" AND category = $%d", len(args))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		query += fmt.Sprintf(" AND lower(name) LIKE $%d", len(args))
	}
	if filter.NearExpiryOnly {
		query += " AND near_expiry_quantity > 0"
	}
	query += " ORDER BY category, name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.BasePriceCents < 1 || product.StockQuantity < 0 {
		return nil, fmt.Errorf("invalid product: name and positive price required")
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, brand, unit_of_measure, base_price_cents, stock_quantity, near_expiry_quantity, expiration_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, product.Category, product.Brand, product.UnitOfMeasure,
		product.BasePriceCents, product.StockQuantity, product.NearExpiryQty, nullDate(product.ExpirationDate), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("product %s already exists", product.ID)
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.BasePriceCents < 1 {
		return nil, fmt.Errorf("invalid product: name and positive price required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, brand = $4, unit_of_measure = $5, base_price_cents = $6,
		    stock_quantity = $7, near_expiry_quantity = $8, expiration_date = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.Brand, product.UnitOfMeasure,
		product.BasePriceCents, product.StockQuantity, product.NearExpiryQty, nullDate(product.ExpirationDate))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateProductLots(ctx context.Context, id string, stock int, nearExpiry int) error {
	if stock < 0 || nearExpiry < 0 || nearExpiry > stock {
		return fmt.Errorf("invalid lot state for %s: stock %d, near-expiry %d", id, stock, nearExpiry)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = $2, near_expiry_quantity = $3, updated_at = now()
		WHERE id = $1
	`, id, stock, nearExpiry)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListExpiringProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE expiration_date IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity, prefer_fresh, added_at
		FROM cart_lines
		WHERE cart_id = $1
		ORDER BY added_at, product_id
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.CartLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.PreferFresh, &line.AddedAt); err != nil {
			return nil, err
		}
		line.AddedAt = line.AddedAt.UTC()
		cart.Lines = append(cart.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *Store) ensureCart(ctx context.Context, userID string) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID, Lines: []domain.CartLine{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.UpdatedAt)
	if err == nil {
		cart.UpdatedAt = cart.UpdatedAt.UTC()
		return cart, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	cart.ID = xid.New("cart")
	cart.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO carts (id, user_id, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id) DO NOTHING
	`, cart.ID, userID, cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	// A concurrent insert may have won; read back the canonical row.
	err = s.db.QueryRowContext(ctx, `
		SELECT id, updated_at FROM carts WHERE user_id = $1
	`, userID).Scan(&cart.ID, &cart.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cart.UpdatedAt = cart.UpdatedAt.UTC()
	return cart, nil
}

func (s *Store) UpsertCartLine(ctx context.Context, userID string, line domain.CartLine) (*domain.Cart, error) {
	if line.ProductID == "" || line.Quantity < 1 {
		return nil, fmt.Errorf("invalid cart line: product and positive quantity required")
	}
	if _, err := s.GetProductByID(ctx, line.ProductID); err != nil {
		return nil, err
	}

	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cart_lines (cart_id, product_id, quantity, prefer_fresh, added_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, prefer_fresh = EXCLUDED.prefer_fresh
	`, cart.ID, line.ProductID, line.Quantity, line.PreferFresh, now)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cart.ID, now); err != nil {
		return nil, err
	}
	return s.GetCartByUser(ctx, userID)
}

func (s *Store) RemoveCartLine(ctx context.Context, userID string, productID string) (*domain.Cart, error) {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM cart_lines WHERE cart_id = $1 AND product_id = $2
	`, cart.ID, productID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cart.ID); err != nil {
		return nil, err
	}
	return s.GetCartByUser(ctx, userID)
}

func (s *Store) ClearCart(ctx context.Context, userID string) error {
	cart, err := s.ensureCart(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cart.ID); err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cart.ID)
	return err
}

func (s *Store) ClearCartsIdleSince(ctx context.Context, cutoff time.Time) (int, error) {
	var cleared int
	err := s.db.QueryRowContext(ctx, `
		WITH deleted AS (
			DELETE FROM cart_lines
			WHERE cart_id IN (SELECT id FROM carts WHERE updated_at <= $1)
			RETURNING cart_id
		)
		SELECT count(DISTINCT cart_id) FROM deleted
	`, cutoff).Scan(&cleared)
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

// CreateOrder commits the order and all stock mutations in one serializable
// transaction. Product rows are locked before validation so concurrent
// checkouts cannot oversell.
func (s *Store) CreateOrder(ctx context.Context, order domain.Order, commits []store.OrderCommit) (*domain.Order, error) {
	if len(commits) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	ids := uniqueProductIDs(commits)
	rows, err := pgTx.QueryContext(ctx, `
		SELECT id, stock_quantity, near_expiry_quantity
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, err
	}
	type lotState struct {
		stock      int
		nearExpiry int
	}
	lots := make(map[string]lotState, len(ids))
	for rows.Next() {
		var id string
		var st lotState
		if err := rows.Scan(&id, &st.stock, &st.nearExpiry); err != nil {
			_ = rows.Close()
			return nil, err
		}
		lots[id] = st
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for _, c := range commits {
		st, exists := lots[c.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", c.ProductID, store.ErrNotFound)
		}
		if c.Quantity < 1 || c.QtyFromDiscount < 0 || c.QtyFromDiscount > c.Quantity {
			return nil, fmt.Errorf("invalid commit for %s", c.ProductID)
		}
		if c.PreferFresh {
			if c.Quantity > st.stock-st.nearExpiry {
				return nil, fmt.Errorf("product %s: %w: insufficient fresh stock", c.ProductID, store.ErrInsufficientStock)
			}
		} else {
			if c.Quantity > st.stock {
				return nil, fmt.Errorf("product %s: %w", c.ProductID, store.ErrInsufficientStock)
			}
			if c.QtyFromDiscount > st.nearExpiry {
				return nil, fmt.Errorf("product %s: stale discount quantity", c.ProductID)
			}
		}
		st.stock -= c.Quantity
		st.nearExpiry -= c.QtyFromDiscount
		if st.nearExpiry > st.stock {
			st.nearExpiry = st.stock
		}
		lots[c.ProductID] = st
	}

	for id, st := range lots {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = $2, near_expiry_quantity = $3, updated_at = now()
			WHERE id = $1
		`, id, st.stock, st.nearExpiry)
		if err != nil {
			return nil, err
		}
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusConfirmed
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, address_id, status, payment_method, promo_code, total_cents, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, order.ID, order.UserID, order.AddressID, order.Status, order.PaymentMethod,
		nullIfEmpty(order.PromoCode), order.TotalCents, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i, line := range order.Lines {
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, name, quantity, qty_from_discount, effective_unit_price_cents, base_price_at_purchase_cents, line_total_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, order.ID, i, line.ProductID, line.Name, line.Quantity, line.QtyFromDiscount,
			line.EffectiveUnitPriceCents, line.BasePriceAtPurchaseCents, line.LineTotalCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	created := order
	return &created, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	var promo sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, address_id, status, payment_method, promo_code, total_cents, created_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.AddressID, &order.Status, &order.PaymentMethod,
		&promo, &order.TotalCents, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	order.PromoCode = promo.String
	order.CreatedAt = order.CreatedAt.UTC()

	lines, err := s.orderLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (s *Store) orderLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, name, quantity, qty_from_discount, effective_unit_price_cents, base_price_at_purchase_cents, line_total_cents
		FROM order_lines
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.QtyFromDiscount,
			&line.EffectiveUnitPriceCents, &line.BasePriceAtPurchaseCents, &line.LineTotalCents); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, address_id, status, payment_method, promo_code, total_cents, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 16)
	for rows.Next() {
		var order domain.Order
		var promo sql.NullString
		if err := rows.Scan(&order.ID, &order.UserID, &order.AddressID, &order.Status,
			&order.PaymentMethod, &promo, &order.TotalCents, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.PromoCode = promo.String
		order.CreatedAt = order.CreatedAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := s.orderLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOrderByID(ctx, id)
}

func (s *Store) CreateAddress(ctx context.Context, address domain.Address) (*domain.Address, error) {
	if address.UserID == "" || address.Street == "" || address.City == "" {
		return nil, fmt.Errorf("invalid address: user, street and city required")
	}
	if address.ID == "" {
		address.ID = xid.New("addr")
	}
	if address.CreatedAt.IsZero() {
		address.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO addresses (id, user_id, street, city, postal_code, country, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, address.ID, address.UserID, address.Street, address.City, address.PostalCode, address.Country, address.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := address
	return &created, nil
}

func (s *Store) GetAddressByID(ctx context.Context, id string) (*domain.Address, error) {
	var address domain.Address
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, street, city, postal_code, country, created_at
		FROM addresses
		WHERE id = $1
	`, id).Scan(&address.ID, &address.UserID, &address.Street, &address.City,
		&address.PostalCode, &address.Country, &address.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	address.CreatedAt = address.CreatedAt.UTC()
	return &address, nil
}

func (s *Store) ListAddressesByUser(ctx context.Context, userID string) ([]domain.Address, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, street, city, postal_code, country, created_at
		FROM addresses
		WHERE user_id = $1
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	addresses := make([]domain.Address, 0, 4)
	for rows.Next() {
		var address domain.Address
		if err := rows.Scan(&address.ID, &address.UserID, &address.Street, &address.City,
			&address.PostalCode, &address.Country, &address.CreatedAt); err != nil {
			return nil, err
		}
		address.CreatedAt = address.CreatedAt.UTC()
		addresses = append(addresses, address)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return addresses, nil
}

func (s *Store) DeleteAddress(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM addresses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateInteraction(ctx context.Context, interaction domain.Interaction) error {
	if interaction.ID == "" {
		interaction.ID = xid.New("int")
	}
	if interaction.CreatedAt.IsZero() {
		interaction.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_interactions (id, user_id, product_id, interaction_type, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, interaction.ID, interaction.UserID, interaction.ProductID, interaction.Type, interaction.CreatedAt)
	return err
}

func (s *Store) TopProductIDsByInteraction(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 15
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id,
		       count(*) FILTER (WHERE interaction_type = 'PURCHASE') AS purchases,
		       count(*) FILTER (WHERE interaction_type = 'ADD_TO_CART') AS cart_adds
		FROM user_interactions
		GROUP BY product_id
		ORDER BY purchases DESC, cart_adds DESC, product_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		var purchases, cartAdds int64
		if err := rows.Scan(&id, &purchases, &cartAdds); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Email == "" || user.Password == "" {
		return fmt.Errorf("invalid user: email and password required")
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Email, user.Password, user.FullName, user.Role, user.Active, user.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("user %s already exists", user.Email)
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, full_name, role, active, created_at
		FROM users `+where,
		arg).Scan(&user.ID, &user.Email, &user.Password, &user.FullName, &user.Role, &user.Active, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func uniqueProductIDs(commits []store.OrderCommit) []string {
	seen := make(map[string]struct{}, len(commits))
	ids := make([]string, 0, len(commits))
	for _, c := range commits {
		if _, ok := seen[c.ProductID]; ok {
			continue
		}
		seen[c.ProductID] = struct{}{}
		ids = append(ids, c.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}
