// Package postgres implements the storage interfaces on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/domain/event"
	"github.com/PrismoFinance/bounties/internal/app/domain/trigger"
	"github.com/PrismoFinance/bounties/internal/app/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements the storage interfaces on a PostgreSQL database.
type Store struct {
	db *sqlx.DB
}

var _ storage.BountyStore = (*Store)(nil)
var _ storage.TriggerStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)
var _ storage.EscrowTaskStore = (*Store)(nil)

// Open connects to the database and applies pending migrations.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(s.db.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Row types --------------------------------------------------------------------

type bountyRow struct {
	ID           int64  `db:"id"`
	Owner        string `db:"owner_address"`
	Label        string `db:"label"`
	Destinations []byte `db:"destinations"`
	Status       string `db:"status"`

	BalanceDenom   string `db:"balance_denom"`
	BalanceAmount  int64  `db:"balance_amount"`
	SwapAmount     int64  `db:"swap_amount"`
	PairAddress    string `db:"pair_address"`
	PairBaseDenom  string `db:"pair_base_denom"`
	PairQuoteDenom string `db:"pair_quote_denom"`
	PositionType   string `db:"position_type"`

	SlippageTolerance decimal.Decimal     `db:"slippage_tolerance"`
	PriceThreshold    decimal.NullDecimal `db:"price_threshold"`
	TimeIntervalNS    int64               `db:"time_interval_ns"`

	TargetReceiveAmount  sql.NullInt64   `db:"target_receive_amount"`
	MinimumReceiveAmount sql.NullInt64   `db:"minimum_receive_amount"`
	EscrowLevel          decimal.Decimal `db:"escrow_level"`
	EscrowedDenom        string          `db:"escrowed_denom"`
	EscrowedAmount       int64           `db:"escrowed_amount"`

	DepositedAmount        int64 `db:"deposited_amount"`
	SwappedAmount          int64 `db:"swapped_amount"`
	ReceivedAmount         int64 `db:"received_amount"`
	StandardSwappedAmount  int64 `db:"standard_swapped_amount"`
	StandardReceivedAmount int64 `db:"standard_received_amount"`

	CreatedAt time.Time    `db:"created_at"`
	StartedAt sql.NullTime `db:"started_at"`
	UpdatedAt time.Time    `db:"updated_at"`
}

func (r bountyRow) toDomain() (bounty.Bounty, error) {
	var destinations []bounty.Destination
	if err := json.Unmarshal(r.Destinations, &destinations); err != nil {
		return bounty.Bounty{}, fmt.Errorf("decoding destinations: %w", err)
	}

	b := bounty.Bounty{
		ID:                idString(r.ID),
		Owner:             r.Owner,
		Label:             r.Label,
		Destinations:      destinations,
		Status:            bounty.Status(r.Status),
		Balance:           bounty.Coin{Denom: r.BalanceDenom, Amount: r.BalanceAmount},
		SwapAmount:        r.SwapAmount,
		Pair:              bounty.Pair{Address: r.PairAddress, BaseDenom: r.PairBaseDenom, QuoteDenom: r.PairQuoteDenom},
		PositionType:      bounty.PositionType(r.PositionType),
		SlippageTolerance: r.SlippageTolerance,
		TimeInterval:      time.Duration(r.TimeIntervalNS),
		EscrowLevel:       r.EscrowLevel,
		EscrowedAmount:    bounty.Coin{Denom: r.EscrowedDenom, Amount: r.EscrowedAmount},

		DepositedAmount:        bounty.Coin{Denom: r.BalanceDenom, Amount: r.DepositedAmount},
		SwappedAmount:          bounty.Coin{Denom: r.BalanceDenom, Amount: r.SwappedAmount},
		ReceivedAmount:         bounty.Coin{Denom: r.PairBaseDenom, Amount: r.ReceivedAmount},
		StandardSwappedAmount:  bounty.Coin{Denom: r.BalanceDenom, Amount: r.StandardSwappedAmount},
		StandardReceivedAmount: bounty.Coin{Denom: r.PairBaseDenom, Amount: r.StandardReceivedAmount},

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.PriceThreshold.Valid {
		threshold := r.PriceThreshold.Decimal
		b.PriceThreshold = &threshold
	}
	if r.TargetReceiveAmount.Valid {
		target := r.TargetReceiveAmount.Int64
		b.TargetReceiveAmount = &target
	}
	if r.MinimumReceiveAmount.Valid {
		minimum := r.MinimumReceiveAmount.Int64
		b.MinimumReceiveAmount = &minimum
	}
	if r.StartedAt.Valid {
		b.StartedAt = r.StartedAt.Time
	}
	return b, nil
}

func toRow(b bounty.Bounty) (bountyRow, error) {
	destinations, err := json.Marshal(b.Destinations)
	if err != nil {
		return bountyRow{}, fmt.Errorf("encoding destinations: %w", err)
	}

	r := bountyRow{
		Owner:             b.Owner,
		Label:             b.Label,
		Destinations:      destinations,
		Status:            string(b.Status),
		BalanceDenom:      b.Balance.Denom,
		BalanceAmount:     b.Balance.Amount,
		SwapAmount:        b.SwapAmount,
		PairAddress:       b.Pair.Address,
		PairBaseDenom:     b.Pair.BaseDenom,
		PairQuoteDenom:    b.Pair.QuoteDenom,
		PositionType:      string(b.PositionType),
		SlippageTolerance: b.SlippageTolerance,
		TimeIntervalNS:    int64(b.TimeInterval),
		EscrowLevel:       b.EscrowLevel,
		EscrowedDenom:     b.EscrowedAmount.Denom,
		EscrowedAmount:    b.EscrowedAmount.Amount,

		DepositedAmount:        b.DepositedAmount.Amount,
		SwappedAmount:          b.SwappedAmount.Amount,
		ReceivedAmount:         b.ReceivedAmount.Amount,
		StandardSwappedAmount:  b.StandardSwappedAmount.Amount,
		StandardReceivedAmount: b.StandardReceivedAmount.Amount,
	}
	if b.ID != "" {
		if r.ID, err = strconv.ParseInt(b.ID, 10, 64); err != nil {
			return bountyRow{}, fmt.Errorf("invalid bounty id %q: %w", b.ID, err)
		}
	}
	if b.PriceThreshold != nil {
		r.PriceThreshold = decimal.NullDecimal{Decimal: *b.PriceThreshold, Valid: true}
	}
	if b.TargetReceiveAmount != nil {
		r.TargetReceiveAmount = sql.NullInt64{Int64: *b.TargetReceiveAmount, Valid: true}
	}
	if b.MinimumReceiveAmount != nil {
		r.MinimumReceiveAmount = sql.NullInt64{Int64: *b.MinimumReceiveAmount, Valid: true}
	}
	if !b.StartedAt.IsZero() {
		r.StartedAt = sql.NullTime{Time: b.StartedAt, Valid: true}
	}
	return r, nil
}

const bountyColumns = `id, owner_address, label, destinations, status,
	balance_denom, balance_amount, swap_amount, pair_address, pair_base_denom, pair_quote_denom, position_type,
	slippage_tolerance, price_threshold, time_interval_ns,
	target_receive_amount, minimum_receive_amount, escrow_level, escrowed_denom, escrowed_amount,
	deposited_amount, swapped_amount, received_amount, standard_swapped_amount, standard_received_amount,
	created_at, started_at, updated_at`

// BountyStore implementation ----------------------------------------------------

func (s *Store) CreateBounty(ctx context.Context, b bounty.Bounty) (bounty.Bounty, error) {
	row, err := toRow(b)
	if err != nil {
		return bounty.Bounty{}, err
	}

	query := `INSERT INTO bounties (
		owner_address, label, destinations, status,
		balance_denom, balance_amount, swap_amount, pair_address, pair_base_denom, pair_quote_denom, position_type,
		slippage_tolerance, price_threshold, time_interval_ns,
		target_receive_amount, minimum_receive_amount, escrow_level, escrowed_denom, escrowed_amount,
		deposited_amount, swapped_amount, received_amount, standard_swapped_amount, standard_received_amount,
		started_at
	) VALUES (
		:owner_address, :label, :destinations, :status,
		:balance_denom, :balance_amount, :swap_amount, :pair_address, :pair_base_denom, :pair_quote_denom, :position_type,
		:slippage_tolerance, :price_threshold, :time_interval_ns,
		:target_receive_amount, :minimum_receive_amount, :escrow_level, :escrowed_denom, :escrowed_amount,
		:deposited_amount, :swapped_amount, :received_amount, :standard_swapped_amount, :standard_received_amount,
		:started_at
	) RETURNING ` + bountyColumns

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	var inserted bountyRow
	if err := stmt.GetContext(ctx, &inserted, row); err != nil {
		return bounty.Bounty{}, fmt.Errorf("inserting bounty: %w", err)
	}
	return inserted.toDomain()
}

func (s *Store) UpdateBounty(ctx context.Context, b bounty.Bounty) (bounty.Bounty, error) {
	row, err := toRow(b)
	if err != nil {
		return bounty.Bounty{}, err
	}

	query := `UPDATE bounties SET
		owner_address = :owner_address,
		label = :label,
		destinations = :destinations,
		status = :status,
		balance_denom = :balance_denom,
		balance_amount = :balance_amount,
		swap_amount = :swap_amount,
		position_type = :position_type,
		slippage_tolerance = :slippage_tolerance,
		price_threshold = :price_threshold,
		time_interval_ns = :time_interval_ns,
		target_receive_amount = :target_receive_amount,
		minimum_receive_amount = :minimum_receive_amount,
		escrow_level = :escrow_level,
		escrowed_denom = :escrowed_denom,
		escrowed_amount = :escrowed_amount,
		deposited_amount = :deposited_amount,
		swapped_amount = :swapped_amount,
		received_amount = :received_amount,
		standard_swapped_amount = :standard_swapped_amount,
		standard_received_amount = :standard_received_amount,
		started_at = :started_at,
		updated_at = now()
	WHERE id = :id
	RETURNING ` + bountyColumns

	stmt, err := s.db.PrepareNamedContext(ctx, query)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("preparing update: %w", err)
	}
	defer stmt.Close()

	var updated bountyRow
	if err := stmt.GetContext(ctx, &updated, row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bounty.Bounty{}, fmt.Errorf("bounty %s: %w", b.ID, storage.ErrNotFound)
		}
		return bounty.Bounty{}, fmt.Errorf("updating bounty: %w", err)
	}
	return updated.toDomain()
}

func (s *Store) GetBounty(ctx context.Context, id string) (bounty.Bounty, error) {
	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return bounty.Bounty{}, fmt.Errorf("bounty %s: %w", id, storage.ErrNotFound)
	}

	var row bountyRow
	err = s.db.GetContext(ctx, &row, `SELECT `+bountyColumns+` FROM bounties WHERE id = $1`, numericID)
	if errors.Is(err, sql.ErrNoRows) {
		return bounty.Bounty{}, fmt.Errorf("bounty %s: %w", id, storage.ErrNotFound)
	} else if err != nil {
		return bounty.Bounty{}, fmt.Errorf("fetching bounty: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListBounties(ctx context.Context, startAfter string, limit int) ([]bounty.Bounty, error) {
	var after int64
	if startAfter != "" {
		var err error
		if after, err = strconv.ParseInt(startAfter, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid start_after %q: %w", startAfter, err)
		}
	}
	if limit <= 0 {
		limit = 50
	}

	var rows []bountyRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT `+bountyColumns+` FROM bounties WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("listing bounties: %w", err)
	}
	return rowsToDomain(rows)
}

func (s *Store) ListBountiesByOwner(ctx context.Context, owner string, status *bounty.Status) ([]bounty.Bounty, error) {
	query := `SELECT ` + bountyColumns + ` FROM bounties WHERE owner_address = $1`
	args := []any{owner}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY id`

	var rows []bountyRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing bounties by owner: %w", err)
	}
	return rowsToDomain(rows)
}

func rowsToDomain(rows []bountyRow) ([]bounty.Bounty, error) {
	result := make([]bounty.Bounty, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, nil
}

// TriggerStore implementation ---------------------------------------------------

type triggerRow struct {
	BountyID   int64         `db:"bounty_id"`
	Kind       string        `db:"kind"`
	TargetTime sql.NullTime  `db:"target_time"`
	OrderIdx   sql.NullInt64 `db:"order_idx"`
	CreatedAt  time.Time     `db:"created_at"`
}

func (r triggerRow) toDomain() trigger.Trigger {
	trg := trigger.Trigger{
		BountyID:  idString(r.BountyID),
		Kind:      trigger.Kind(r.Kind),
		CreatedAt: r.CreatedAt,
	}
	if r.TargetTime.Valid {
		trg.TargetTime = r.TargetTime.Time
	}
	if r.OrderIdx.Valid {
		trg.OrderIdx = uint64(r.OrderIdx.Int64)
	}
	return trg
}

func (s *Store) SaveTrigger(ctx context.Context, trg trigger.Trigger) error {
	bountyID, err := strconv.ParseInt(trg.BountyID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bounty id %q: %w", trg.BountyID, err)
	}

	var targetTime sql.NullTime
	if trg.Kind == trigger.KindTime {
		targetTime = sql.NullTime{Time: trg.TargetTime, Valid: true}
	}
	var orderIdx sql.NullInt64
	if trg.Kind == trigger.KindPrice {
		orderIdx = sql.NullInt64{Int64: int64(trg.OrderIdx), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO triggers (bounty_id, kind, target_time, order_idx, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (bounty_id) DO UPDATE SET
			kind = EXCLUDED.kind,
			target_time = EXCLUDED.target_time,
			order_idx = EXCLUDED.order_idx,
			created_at = now()`,
		bountyID, string(trg.Kind), targetTime, orderIdx)
	if err != nil {
		return fmt.Errorf("saving trigger: %w", err)
	}
	return nil
}

func (s *Store) GetTrigger(ctx context.Context, bountyID string) (trigger.Trigger, error) {
	numericID, err := strconv.ParseInt(bountyID, 10, 64)
	if err != nil {
		return trigger.Trigger{}, fmt.Errorf("trigger %s: %w", bountyID, storage.ErrNotFound)
	}

	var row triggerRow
	err = s.db.GetContext(ctx, &row, `SELECT * FROM triggers WHERE bounty_id = $1`, numericID)
	if errors.Is(err, sql.ErrNoRows) {
		return trigger.Trigger{}, fmt.Errorf("trigger %s: %w", bountyID, storage.ErrNotFound)
	} else if err != nil {
		return trigger.Trigger{}, fmt.Errorf("fetching trigger: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) DeleteTrigger(ctx context.Context, bountyID string) error {
	numericID, err := strconv.ParseInt(bountyID, 10, 64)
	if err != nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE bounty_id = $1`, numericID); err != nil {
		return fmt.Errorf("deleting trigger: %w", err)
	}
	return nil
}

func (s *Store) GetTriggerByOrderIdx(ctx context.Context, orderIdx uint64) (trigger.Trigger, error) {
	var row triggerRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM triggers WHERE order_idx = $1`, int64(orderIdx))
	if errors.Is(err, sql.ErrNoRows) {
		return trigger.Trigger{}, fmt.Errorf("trigger for order %d: %w", orderIdx, storage.ErrNotFound)
	} else if err != nil {
		return trigger.Trigger{}, fmt.Errorf("fetching trigger by order: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListTimeTriggersDue(ctx context.Context, before time.Time, limit int) ([]trigger.Trigger, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []triggerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM triggers
		WHERE kind = 'time' AND target_time <= $1
		ORDER BY target_time LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing due time triggers: %w", err)
	}
	return triggerRowsToDomain(rows), nil
}

func (s *Store) ListPriceTriggers(ctx context.Context, limit int) ([]trigger.Trigger, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []triggerRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM triggers WHERE kind = 'price' ORDER BY order_idx LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing price triggers: %w", err)
	}
	return triggerRowsToDomain(rows), nil
}

func triggerRowsToDomain(rows []triggerRow) []trigger.Trigger {
	result := make([]trigger.Trigger, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result
}

// EventStore implementation -----------------------------------------------------

type eventRow struct {
	ID          int64     `db:"id"`
	ResourceID  string    `db:"resource_id"`
	BlockHeight int64     `db:"block_height"`
	Timestamp   time.Time `db:"ts"`
	Data        []byte    `db:"data"`
}

func (r eventRow) toDomain() (event.Event, error) {
	var data event.Data
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return event.Event{}, fmt.Errorf("decoding event data: %w", err)
	}
	return event.Event{
		ID:          r.ID,
		ResourceID:  r.ResourceID,
		BlockHeight: r.BlockHeight,
		Timestamp:   r.Timestamp,
		Data:        data,
	}, nil
}

func (s *Store) AppendEvent(ctx context.Context, resourceID string, data event.Data) (event.Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return event.Event{}, fmt.Errorf("encoding event data: %w", err)
	}

	var row eventRow
	err = s.db.GetContext(ctx, &row, `
		INSERT INTO events (resource_id, data) VALUES ($1, $2)
		RETURNING id, resource_id, block_height, ts, data`, resourceID, payload)
	if err != nil {
		return event.Event{}, fmt.Errorf("appending event: %w", err)
	}
	return row.toDomain()
}

func (s *Store) ListEvents(ctx context.Context, resourceID string, startAfter int64, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, resource_id, block_height, ts, data FROM events
		WHERE resource_id = $1 AND id > $2 ORDER BY id LIMIT $3`, resourceID, startAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return eventRowsToDomain(rows)
}

func (s *Store) ListAllEvents(ctx context.Context, startAfter int64, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, resource_id, block_height, ts, data FROM events
		WHERE id > $1 ORDER BY id LIMIT $2`, startAfter, limit)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return eventRowsToDomain(rows)
}

func eventRowsToDomain(rows []eventRow) ([]event.Event, error) {
	result := make([]event.Event, 0, len(rows))
	for _, row := range rows {
		evt, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}
	return result, nil
}

// EscrowTaskStore implementation ------------------------------------------------

func (s *Store) SaveEscrowTask(ctx context.Context, bountyID string, due time.Time) error {
	numericID, err := strconv.ParseInt(bountyID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid bounty id %q: %w", bountyID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrow_tasks (bounty_id, due) VALUES ($1, $2)
		ON CONFLICT (bounty_id) DO UPDATE SET due = EXCLUDED.due`, numericID, due)
	if err != nil {
		return fmt.Errorf("saving escrow task: %w", err)
	}
	return nil
}

func (s *Store) GetEscrowTaskDue(ctx context.Context, bountyID string) (time.Time, bool, error) {
	numericID, err := strconv.ParseInt(bountyID, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	var due time.Time
	err = s.db.GetContext(ctx, &due, `SELECT due FROM escrow_tasks WHERE bounty_id = $1`, numericID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	} else if err != nil {
		return time.Time{}, false, fmt.Errorf("fetching escrow task: %w", err)
	}
	return due, true, nil
}

func (s *Store) DeleteEscrowTask(ctx context.Context, bountyID string) error {
	numericID, err := strconv.ParseInt(bountyID, 10, 64)
	if err != nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM escrow_tasks WHERE bounty_id = $1`, numericID); err != nil {
		return fmt.Errorf("deleting escrow task: %w", err)
	}
	return nil
}

func (s *Store) ListEscrowTasksDue(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT bounty_id FROM escrow_tasks WHERE due <= $1 ORDER BY due LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing due escrow tasks: %w", err)
	}
	result := make([]string, 0, len(ids))
	for _, id := range ids {
		result = append(result, idString(id))
	}
	return result, nil
}

func idString(id int64) string { return strconv.FormatInt(id, 10) }
