package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stocksim/trading-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
// ApplyTrade and ApplyWalletChange run inside a single transaction so a
// storage failure never leaves wallet, position and order log inconsistent.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Wallets ---

func (s *PostgresStore) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO wallets (account_id, balance, currency, status, created_at)
		 VALUES ($1, $2::NUMERIC, $3, $4, $5)`,
		w.AccountID, w.Balance.String(), w.Currency, w.Status, w.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetWallet(ctx context.Context, accountID string) (*model.Wallet, error) {
	var w model.Wallet
	var balance string

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, balance::TEXT, currency, status, created_at
		 FROM wallets WHERE account_id = $1`, accountID).
		Scan(&w.AccountID, &balance, &w.Currency, &w.Status, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("wallet for account %s: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet %s: %w", accountID, err)
	}

	w.Balance, _ = decimal.NewFromString(balance)
	return &w, nil
}

func (s *PostgresStore) ApplyWalletChange(ctx context.Context, accountID string, newBalance decimal.Decimal, txn *model.Transaction) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2::NUMERIC WHERE account_id = $1`,
		accountID, newBalance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet for account %s: %w", accountID, ErrNotFound)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, type, amount, method, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7)`,
		txn.ID, txn.AccountID, txn.Type, txn.Amount.String(), txn.Method, txn.Status, txn.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) TransactionsByAccount(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, type, amount::TEXT, method, status, created_at
		 FROM transactions WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &amount, &t.Method, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Amount, _ = decimal.NewFromString(amount)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// --- Positions ---

func (s *PostgresStore) GetPosition(ctx context.Context, accountID, symbol string) (*model.Position, error) {
	var p model.Position
	var avgPrice string

	err := s.pool.QueryRow(ctx,
		`SELECT account_id, symbol, quantity, avg_price::TEXT, updated_at
		 FROM positions WHERE account_id = $1 AND symbol = $2`, accountID, symbol).
		Scan(&p.AccountID, &p.Symbol, &p.Quantity, &avgPrice, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("position %s/%s: %w", accountID, symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get position %s/%s: %w", accountID, symbol, err)
	}

	p.AvgPrice, _ = decimal.NewFromString(avgPrice)
	return &p, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, accountID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, quantity, avg_price::TEXT, updated_at
		 FROM positions WHERE account_id = $1 ORDER BY symbol`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var avgPrice string
		if err := rows.Scan(&p.AccountID, &p.Symbol, &p.Quantity, &avgPrice, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.AvgPrice, _ = decimal.NewFromString(avgPrice)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Trades ---

func (s *PostgresStore) ApplyTrade(ctx context.Context, u *TradeUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET balance = $2::NUMERIC WHERE account_id = $1`,
		u.AccountID, u.NewBalance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet for account %s: %w", u.AccountID, ErrNotFound)
	}

	if u.Position != nil {
		p := u.Position
		if _, err := tx.Exec(ctx,
			`INSERT INTO positions (account_id, symbol, quantity, avg_price, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5)
			 ON CONFLICT (account_id, symbol)
			 DO UPDATE SET quantity = EXCLUDED.quantity,
			               avg_price = EXCLUDED.avg_price,
			               updated_at = EXCLUDED.updated_at`,
			p.AccountID, p.Symbol, p.Quantity, p.AvgPrice.String(), p.UpdatedAt,
		); err != nil {
			return err
		}
	} else if u.DeleteSymbol != "" {
		if _, err := tx.Exec(ctx,
			`DELETE FROM positions WHERE account_id = $1 AND symbol = $2`,
			u.AccountID, u.DeleteSymbol,
		); err != nil {
			return err
		}
	}

	o := u.Order
	var pnl *string
	if o.PnL != nil {
		v := o.PnL.String()
		pnl = &v
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO orders (id, account_id, symbol, side, quantity, price, amount, pnl, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		o.ID, o.AccountID, o.Symbol, o.Side, o.Quantity,
		o.Price.String(), o.Amount.String(), pnl, o.CreatedAt,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) OrdersByAccount(ctx context.Context, accountID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, symbol, side, quantity,
		        price::TEXT, amount::TEXT, pnl::TEXT, created_at
		 FROM orders WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var price, amount string
		var pnl *string
		if err := rows.Scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Quantity,
			&price, &amount, &pnl, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Price, _ = decimal.NewFromString(price)
		o.Amount, _ = decimal.NewFromString(amount)
		if pnl != nil {
			v, _ := decimal.NewFromString(*pnl)
			o.PnL = &v
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) RealizedPnL(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0)::TEXT
		 FROM orders WHERE account_id = $1 AND side = 'SELL'`, accountID).
		Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	total, _ := decimal.NewFromString(sum)
	return total, nil
}

// --- Stocks & quotes ---

func (s *PostgresStore) CreateStock(ctx context.Context, st *model.Stock) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stocks (symbol, name, sector)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (symbol) DO NOTHING`,
		st.Symbol, st.Name, st.Sector,
	)
	return err
}

func (s *PostgresStore) ListStocks(ctx context.Context) ([]model.Stock, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, sector FROM stocks ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stocks []model.Stock
	for rows.Next() {
		var st model.Stock
		if err := rows.Scan(&st.Symbol, &st.Name, &st.Sector); err != nil {
			return nil, err
		}
		stocks = append(stocks, st)
	}
	return stocks, rows.Err()
}

func (s *PostgresStore) GetQuote(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	var q model.PriceQuote
	var price, basePrice, change, changePercent string

	err := s.pool.QueryRow(ctx,
		`SELECT symbol, price::TEXT, base_price::TEXT, change::TEXT, change_percent::TEXT, status, updated_at
		 FROM stock_prices WHERE symbol = $1`, symbol).
		Scan(&q.Symbol, &price, &basePrice, &change, &changePercent, &q.Status, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("quote for %s: %w", symbol, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", symbol, err)
	}

	q.Price, _ = decimal.NewFromString(price)
	q.BasePrice, _ = decimal.NewFromString(basePrice)
	q.Change, _ = decimal.NewFromString(change)
	q.ChangePercent, _ = decimal.NewFromString(changePercent)
	return &q, nil
}

func (s *PostgresStore) UpsertQuote(ctx context.Context, q *model.PriceQuote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stock_prices (symbol, price, base_price, change, change_percent, status, updated_at)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6, $7)
		 ON CONFLICT (symbol)
		 DO UPDATE SET price = EXCLUDED.price,
		               base_price = EXCLUDED.base_price,
		               change = EXCLUDED.change,
		               change_percent = EXCLUDED.change_percent,
		               status = EXCLUDED.status,
		               updated_at = EXCLUDED.updated_at`,
		q.Symbol, q.Price.String(), q.BasePrice.String(),
		q.Change.String(), q.ChangePercent.String(), q.Status, q.UpdatedAt,
	)
	return err
}
