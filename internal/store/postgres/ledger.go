package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reputenet/trustmarket/internal/domain"
)

// Ledger implements every domain store interface on PostgreSQL. Each write
// method runs in one transaction: the state change and its event record
// commit together or not at all.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Seed installs the config registry's index-zero variant and the fee
// parameters if the tables are empty. Existing rows win: Seed is safe to call
// on every startup.
func (l *Ledger) Seed(ctx context.Context, seed domain.MarketConfig, fees domain.FeeConfig) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: seed begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO market_configs (idx, initial_liquidity, initial_votes, base_price)
		SELECT 0, $1, $2, $3
		WHERE NOT EXISTS (SELECT 1 FROM market_configs)`,
		seed.InitialLiquidity.String(), int64(seed.InitialVotes), seed.BasePrice.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: seed config: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fee_config (id, entry_fee_bps, exit_fee_bps, donation_fee_bps, protocol_fee_address)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		int32(fees.EntryFeeBps), int32(fees.ExitFeeBps), int32(fees.DonationFeeBps),
		fees.ProtocolFeeAddress.Hex(),
	)
	if err != nil {
		return fmt.Errorf("postgres: seed fees: %w", err)
	}

	return tx.Commit(ctx)
}

// --- MarketReader ---

const marketCols = `profile_id, trust_votes, distrust_votes,
	base_price::text, funds::text, graduated, created_at, updated_at`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                 domain.Market
		trust, distrust   int64
		basePrice, funds  string
	)
	err := row.Scan(
		&m.ProfileID, &trust, &distrust,
		&basePrice, &funds, &m.Graduated,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.TrustVotes = uint64(trust)
	m.DistrustVotes = uint64(distrust)
	if m.BasePrice, err = parseWei(basePrice); err != nil {
		return domain.Market{}, err
	}
	if m.Funds, err = parseWei(funds); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func (l *Ledger) GetMarket(ctx context.Context, profileID uint64) (domain.Market, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+marketCols+` FROM markets WHERE profile_id = $1`, int64(profileID))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", profileID, err)
	}
	return m, nil
}

func (l *Ledger) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets ORDER BY profile_id`
	args := []any{}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

func (l *Ledger) CountMarkets(ctx context.Context) (int64, error) {
	var count int64
	if err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// --- ConfigReader ---

func scanConfig(row pgx.Row) (domain.MarketConfig, error) {
	var (
		c                 domain.MarketConfig
		liquidity, price  string
		votes             int64
	)
	if err := row.Scan(&c.Index, &liquidity, &votes, &price); err != nil {
		return domain.MarketConfig{}, err
	}
	c.InitialVotes = uint64(votes)
	var err error
	if c.InitialLiquidity, err = parseWei(liquidity); err != nil {
		return domain.MarketConfig{}, err
	}
	if c.BasePrice, err = parseWei(price); err != nil {
		return domain.MarketConfig{}, err
	}
	return c, nil
}

func (l *Ledger) GetConfig(ctx context.Context, index int) (domain.MarketConfig, error) {
	row := l.pool.QueryRow(ctx, `
		SELECT idx, initial_liquidity::text, initial_votes, base_price::text
		FROM market_configs WHERE idx = $1`, index)
	c, err := scanConfig(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketConfig{}, domain.ErrInvalidConfigIndex
		}
		return domain.MarketConfig{}, fmt.Errorf("postgres: get config %d: %w", index, err)
	}
	return c, nil
}

func (l *Ledger) ListConfigs(ctx context.Context) ([]domain.MarketConfig, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT idx, initial_liquidity::text, initial_votes, base_price::text
		FROM market_configs ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list configs: %w", err)
	}
	defer rows.Close()

	var configs []domain.MarketConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan config: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list configs rows: %w", err)
	}
	return configs, nil
}

// --- BalanceReader ---

func (l *Ledger) GetBalance(ctx context.Context, profileID uint64, participant common.Address) (domain.VoteBalance, error) {
	b := domain.VoteBalance{ProfileID: profileID, Participant: participant}
	var trust, distrust int64
	err := l.pool.QueryRow(ctx, `
		SELECT trust_votes, distrust_votes, updated_at
		FROM vote_balances WHERE profile_id = $1 AND participant = $2`,
		int64(profileID), participant.Hex(),
	).Scan(&trust, &distrust, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Never traded: zero balance, not an error.
			return b, nil
		}
		return domain.VoteBalance{}, fmt.Errorf("postgres: get balance %d/%s: %w", profileID, participant.Hex(), err)
	}
	b.TrustVotes = uint64(trust)
	b.DistrustVotes = uint64(distrust)
	return b, nil
}

// --- ParticipantReader ---

func (l *Ledger) ListParticipants(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]common.Address, error) {
	query := `SELECT participant FROM participants WHERE profile_id = $1 ORDER BY seq`
	args := []any{int64(profileID)}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list participants: %w", err)
	}
	defer rows.Close()

	var addrs []common.Address
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		addrs = append(addrs, common.HexToAddress(hex))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list participants rows: %w", err)
	}
	return addrs, nil
}

func (l *Ledger) CountParticipants(ctx context.Context, profileID uint64) (int64, error) {
	var count int64
	err := l.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM participants WHERE profile_id = $1`, int64(profileID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count participants: %w", err)
	}
	return count, nil
}

// --- EscrowReader ---

func (l *Ledger) EscrowBalance(ctx context.Context, recipient common.Address) (*big.Int, error) {
	var balance string
	err := l.pool.QueryRow(ctx,
		`SELECT balance::text FROM donation_escrow WHERE recipient = $1`, recipient.Hex(),
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: escrow balance %s: %w", recipient.Hex(), err)
	}
	return parseWei(balance)
}

func (l *Ledger) DonationRecipient(ctx context.Context, profileID uint64) (common.Address, error) {
	var hex string
	err := l.pool.QueryRow(ctx,
		`SELECT recipient FROM donation_recipients WHERE profile_id = $1`, int64(profileID),
	).Scan(&hex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return common.Address{}, domain.ErrNotFound
		}
		return common.Address{}, fmt.Errorf("postgres: donation recipient %d: %w", profileID, err)
	}
	return common.HexToAddress(hex), nil
}

// --- FeeReader ---

func (l *Ledger) GetFees(ctx context.Context) (domain.FeeConfig, error) {
	var (
		f                   domain.FeeConfig
		entry, exit, donate int32
		addr                string
	)
	err := l.pool.QueryRow(ctx, `
		SELECT entry_fee_bps, exit_fee_bps, donation_fee_bps, protocol_fee_address, updated_at
		FROM fee_config WHERE id = 1`,
	).Scan(&entry, &exit, &donate, &addr, &f.UpdatedAt)
	if err != nil {
		return domain.FeeConfig{}, fmt.Errorf("postgres: get fees: %w", err)
	}
	f.EntryFeeBps = uint16(entry)
	f.ExitFeeBps = uint16(exit)
	f.DonationFeeBps = uint16(donate)
	f.ProtocolFeeAddress = common.HexToAddress(addr)
	return f, nil
}

// --- AllowListReader ---

func (l *Ledger) IsAllowListed(ctx context.Context, profileID uint64) (bool, error) {
	var allowed bool
	err := l.pool.QueryRow(ctx,
		`SELECT allowed FROM allowlist WHERE profile_id = $1`, int64(profileID),
	).Scan(&allowed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("postgres: allowlist check %d: %w", profileID, err)
	}
	return allowed, nil
}

func (l *Ledger) AllowListEnforced(ctx context.Context) (bool, error) {
	var enforced bool
	err := l.pool.QueryRow(ctx,
		`SELECT allowlist_enforced FROM engine_settings WHERE id = 1`,
	).Scan(&enforced)
	if err != nil {
		return false, fmt.Errorf("postgres: allowlist enforcement: %w", err)
	}
	return enforced, nil
}

// --- EventReader ---

func scanEvent(row pgx.Row) (domain.MarketEvent, error) {
	var (
		ev        domain.MarketEvent
		evType    string
		profileID int64
		actor     string
	)
	if err := row.Scan(&ev.ID, &evType, &profileID, &actor, &ev.Payload, &ev.CreatedAt); err != nil {
		return domain.MarketEvent{}, err
	}
	ev.Type = domain.EventType(evType)
	ev.ProfileID = uint64(profileID)
	ev.Actor = common.HexToAddress(actor)
	return ev, nil
}

const eventCols = `id, type, profile_id, actor, payload, created_at`

func (l *Ledger) ListEvents(ctx context.Context, profileID uint64, opts domain.ListOpts) ([]domain.MarketEvent, error) {
	query := `SELECT ` + eventCols + ` FROM market_events WHERE profile_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{int64(profileID)}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var events []domain.MarketEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}

func (l *Ledger) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.MarketEvent, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+eventCols+` FROM market_events WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before: %w", err)
	}
	defer rows.Close()

	var events []domain.MarketEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events before rows: %w", err)
	}
	return events, nil
}

func (l *Ledger) DeleteEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM market_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- LedgerStore ---

func (l *Ledger) CreateMarket(ctx context.Context, m domain.Market, recipient common.Address, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO markets (profile_id, trust_votes, distrust_votes, base_price, funds, graduated, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			int64(m.ProfileID), int64(m.TrustVotes), int64(m.DistrustVotes),
			m.BasePrice.String(), m.Funds.String(), m.Graduated, m.CreatedAt, m.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("insert market %d: %w", m.ProfileID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO donation_recipients (profile_id, recipient) VALUES ($1, $2)`,
			int64(m.ProfileID), recipient.Hex(),
		)
		if err != nil {
			return fmt.Errorf("insert donation recipient %d: %w", m.ProfileID, err)
		}

		return insertEvent(ctx, tx, ev)
	})
}

func (l *Ledger) UpdateMarket(ctx context.Context, m domain.Market, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		if err := updateMarketTx(ctx, tx, m); err != nil {
			return err
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (l *Ledger) Trade(ctx context.Context, c domain.TradeCommit) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		if err := updateMarketTx(ctx, tx, c.Market); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO vote_balances (profile_id, participant, trust_votes, distrust_votes, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (profile_id, participant) DO UPDATE SET
				trust_votes    = EXCLUDED.trust_votes,
				distrust_votes = EXCLUDED.distrust_votes,
				updated_at     = EXCLUDED.updated_at`,
			int64(c.Balance.ProfileID), c.Balance.Participant.Hex(),
			int64(c.Balance.TrustVotes), int64(c.Balance.DistrustVotes), c.Balance.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert balance: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO participants (profile_id, participant) VALUES ($1, $2)
			ON CONFLICT (profile_id, participant) DO NOTHING`,
			int64(c.Market.ProfileID), c.Participant.Hex(),
		)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}

		if c.Escrow != nil && c.Escrow.Amount.Sign() > 0 {
			_, err = tx.Exec(ctx, `
				INSERT INTO donation_escrow (recipient, balance) VALUES ($1, $2)
				ON CONFLICT (recipient) DO UPDATE SET
					balance = donation_escrow.balance + EXCLUDED.balance`,
				c.Escrow.Recipient.Hex(), c.Escrow.Amount.String(),
			)
			if err != nil {
				return fmt.Errorf("credit escrow: %w", err)
			}
		}

		return insertEvent(ctx, tx, c.Event)
	})
}

func (l *Ledger) SetDonationRecipient(ctx context.Context, profileID uint64, recipient common.Address, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE donation_recipients SET recipient = $2 WHERE profile_id = $1`,
			int64(profileID), recipient.Hex(),
		)
		if err != nil {
			return fmt.Errorf("update donation recipient %d: %w", profileID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (l *Ledger) DrainEscrow(ctx context.Context, recipient common.Address, amount *big.Int, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		// The balance must still equal what the caller read; anything else
		// means a concurrent credit or drain got there first.
		tag, err := tx.Exec(ctx, `
			UPDATE donation_escrow SET balance = 0
			WHERE recipient = $1 AND balance = $2::numeric AND balance > 0`,
			recipient.Hex(), amount.String(),
		)
		if err != nil {
			return fmt.Errorf("drain escrow %s: %w", recipient.Hex(), err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNoFundsToWithdraw
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (l *Ledger) AddConfig(ctx context.Context, c domain.MarketConfig, ev domain.MarketEvent) (int, error) {
	var index int
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO market_configs (idx, initial_liquidity, initial_votes, base_price)
			VALUES ((SELECT COUNT(*) FROM market_configs), $1, $2, $3)
			RETURNING idx`,
			c.InitialLiquidity.String(), int64(c.InitialVotes), c.BasePrice.String(),
		).Scan(&index)
		if err != nil {
			return fmt.Errorf("insert config: %w", err)
		}
		return insertEvent(ctx, tx, ev)
	})
	return index, err
}

func (l *Ledger) RemoveConfig(ctx context.Context, index int, ev domain.MarketEvent) (domain.MarketConfig, error) {
	var removed domain.MarketConfig
	err := l.inTx(ctx, func(tx pgx.Tx) error {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM market_configs`).Scan(&count); err != nil {
			return fmt.Errorf("count configs: %w", err)
		}
		if index < 0 || index >= count || count == 1 {
			return domain.ErrInvalidConfigIndex
		}

		row := tx.QueryRow(ctx, `
			DELETE FROM market_configs WHERE idx = $1
			RETURNING idx, initial_liquidity::text, initial_votes, base_price::text`, index)
		var err error
		if removed, err = scanConfig(row); err != nil {
			return fmt.Errorf("delete config %d: %w", index, err)
		}

		// Compact: move the highest-indexed row into the hole.
		last := count - 1
		if index != last {
			if _, err := tx.Exec(ctx,
				`UPDATE market_configs SET idx = $1 WHERE idx = $2`, index, last,
			); err != nil {
				return fmt.Errorf("compact config %d -> %d: %w", last, index, err)
			}
		}
		return insertEvent(ctx, tx, ev)
	})
	return removed, err
}

func (l *Ledger) UpdateFees(ctx context.Context, f domain.FeeConfig, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO fee_config (id, entry_fee_bps, exit_fee_bps, donation_fee_bps, protocol_fee_address, updated_at)
			VALUES (1, $1, $2, $3, $4, NOW())
			ON CONFLICT (id) DO UPDATE SET
				entry_fee_bps        = EXCLUDED.entry_fee_bps,
				exit_fee_bps         = EXCLUDED.exit_fee_bps,
				donation_fee_bps     = EXCLUDED.donation_fee_bps,
				protocol_fee_address = EXCLUDED.protocol_fee_address,
				updated_at           = NOW()`,
			int32(f.EntryFeeBps), int32(f.ExitFeeBps), int32(f.DonationFeeBps),
			f.ProtocolFeeAddress.Hex(),
		)
		if err != nil {
			return fmt.Errorf("update fees: %w", err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (l *Ledger) SetAllowListed(ctx context.Context, profileID uint64, allowed bool, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO allowlist (profile_id, allowed) VALUES ($1, $2)
			ON CONFLICT (profile_id) DO UPDATE SET allowed = EXCLUDED.allowed`,
			int64(profileID), allowed,
		)
		if err != nil {
			return fmt.Errorf("set allowlisted %d: %w", profileID, err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (l *Ledger) SetAllowListEnforced(ctx context.Context, enforced bool, ev domain.MarketEvent) error {
	return l.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`UPDATE engine_settings SET allowlist_enforced = $1 WHERE id = 1`, enforced)
		if err != nil {
			return fmt.Errorf("set allowlist enforcement: %w", err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

// --- helpers ---

func (l *Ledger) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func updateMarketTx(ctx context.Context, tx pgx.Tx, m domain.Market) error {
	tag, err := tx.Exec(ctx, `
		UPDATE markets SET
			trust_votes    = $2,
			distrust_votes = $3,
			funds          = $4,
			graduated      = $5,
			updated_at     = $6
		WHERE profile_id = $1`,
		int64(m.ProfileID), int64(m.TrustVotes), int64(m.DistrustVotes),
		m.Funds.String(), m.Graduated, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update market %d: %w", m.ProfileID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev domain.MarketEvent) error {
	var payload any
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO market_events (id, type, profile_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, string(ev.Type), int64(ev.ProfileID), ev.Actor.Hex(), payload, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

func parseWei(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: malformed numeric %q", s)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Compile-time interface checks.
var (
	_ domain.LedgerStore       = (*Ledger)(nil)
	_ domain.MarketReader      = (*Ledger)(nil)
	_ domain.ConfigReader      = (*Ledger)(nil)
	_ domain.BalanceReader     = (*Ledger)(nil)
	_ domain.ParticipantReader = (*Ledger)(nil)
	_ domain.EscrowReader      = (*Ledger)(nil)
	_ domain.FeeReader         = (*Ledger)(nil)
	_ domain.AllowListReader   = (*Ledger)(nil)
	_ domain.EventReader       = (*Ledger)(nil)
)
