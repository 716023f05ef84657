package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/shapeeat/sales-service/internal/storage"
	"github.com/shapeeat/sales-service/internal/types"
)

// maxParams is the Postgres bind parameter limit per statement
const maxParams = 65535

// PostgresStore implements storage.Store on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on p
func NewPostgresStore(p *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: p}
}

var _ storage.Store = (*PostgresStore)(nil)

// Upsert writes rows with one multi-row INSERT ... ON CONFLICT statement.
// A key appearing twice in rows makes Postgres reject the statement.
func (s *PostgresStore) Upsert(ctx context.Context, table string, rows []storage.Record) error {
	if !storage.IsUpsertTable(table) {
		return fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	if len(rows) == 0 {
		return nil
	}

	columns := rows[0].Columns()
	perStatement := maxParams / len(columns)

	for start := 0; start < len(rows); start += perStatement {
		end := min(start+perStatement, len(rows))
		query, args, err := buildUpsert(table, columns, rows[start:end])
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert into %s failed: %w", table, err)
		}
	}
	return nil
}

func buildUpsert(table string, columns []string, rows []storage.Record) (string, []any, error) {
	quoted := make([]string, len(columns))
	updates := make([]string, 0, len(columns))
	for i, c := range columns {
		quoted[i] = pq.QuoteIdentifier(c)
		if c != storage.ConflictColumn {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}
	updates = append(updates, "synced_at = NOW()")

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(table), strings.Join(quoted, ", "))

	args := make([]any, 0, len(rows)*len(columns))
	for r, row := range rows {
		values, err := row.Values()
		if err != nil {
			return "", nil, err
		}
		if len(values) != len(columns) {
			return "", nil, fmt.Errorf("row %s has %d values for %d columns", row.Key(), len(values), len(columns))
		}
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for i := range values {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", len(args)+i+1)
		}
		sb.WriteByte(')')
		args = append(args, values...)
	}

	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s",
		pq.QuoteIdentifier(storage.ConflictColumn), strings.Join(updates, ", "))

	return sb.String(), args, nil
}

// DeleteAll removes every row of table
func (s *PostgresStore) DeleteAll(ctx context.Context, table string) error {
	if !storage.IsUpsertTable(table) {
		return fmt.Errorf("%w: %s", storage.ErrUnknownTable, table)
	}
	if _, err := s.pool.Exec(ctx, "DELETE FROM "+pq.QuoteIdentifier(table)); err != nil {
		return fmt.Errorf("delete from %s failed: %w", table, err)
	}
	return nil
}

// whereClause renders filter as a WHERE clause. categoryExpr is the
// condition used for the category placeholder.
func whereClause(filter storage.Filter, categoryExpr string) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.Start.IsZero() {
		add("created_at >= $%d", filter.Start)
	}
	if !filter.End.IsZero() {
		add("created_at < $%d", filter.End)
	}
	if filter.VenueID != "" {
		add("venue_id = $%d", filter.VenueID)
	}
	if filter.Category != "" {
		add(categoryExpr, filter.Category)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

// QueryLineItems implements storage.Store
func (s *PostgresStore) QueryLineItems(ctx context.Context, filter storage.Filter) ([]types.LineItem, error) {
	where, args := whereClause(filter, "lower(product_category) = lower($%d)")
	query := `
		SELECT vendlive_id, sale_id, machine_id, machine_name, venue_id, venue_name,
			product_name, product_category, is_placeholder, quantity,
			price_ht::text, price_ttc::text, discount_amount::text, status, is_refunded,
			promo_code, customer_email, created_at, raw_data
		FROM orders` + where + `
		ORDER BY created_at, vendlive_id` + limitClause(filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders failed: %w", err)
	}
	defer rows.Close()

	var items []types.LineItem
	for rows.Next() {
		var (
			item              types.LineItem
			ht, ttc, discount string
			status            string
			raw               []byte
		)
		if err := rows.Scan(
			&item.UniqueID, &item.SaleID, &item.MachineID, &item.MachineName, &item.VenueID, &item.VenueName,
			&item.ProductName, &item.ProductCategory, &item.IsPlaceholder, &item.Quantity,
			&ht, &ttc, &discount, &status, &item.IsRefunded,
			&item.PromoCode, &item.CustomerEmail, &item.CreatedAt, &raw,
		); err != nil {
			return nil, fmt.Errorf("scan order row failed: %w", err)
		}
		if item.PriceHT, err = decimal.NewFromString(ht); err != nil {
			return nil, fmt.Errorf("order %s: invalid price_ht: %w", item.UniqueID, err)
		}
		if item.PriceTTC, err = decimal.NewFromString(ttc); err != nil {
			return nil, fmt.Errorf("order %s: invalid price_ttc: %w", item.UniqueID, err)
		}
		if item.DiscountAmount, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("order %s: invalid discount_amount: %w", item.UniqueID, err)
		}
		item.Status = types.Status(status)
		item.RawData = raw
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

// QueryOrderSummaries implements storage.Store
func (s *PostgresStore) QueryOrderSummaries(ctx context.Context, filter storage.Filter) ([]types.OrderSummary, error) {
	where, args := whereClause(filter,
		"EXISTS (SELECT 1 FROM jsonb_array_elements_text(categories) AS c WHERE lower(c) = lower($%d))")
	query := `
		SELECT vendlive_id, machine_id, machine_name, venue_id, venue_name,
			total_ttc::text, total_ht::text, discount_total::text, product_count,
			products, categories, status, has_refund,
			promo_code, customer_email, created_at
		FROM sales` + where + `
		ORDER BY created_at, vendlive_id` + limitClause(filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sales failed: %w", err)
	}
	defer rows.Close()

	var summaries []types.OrderSummary
	for rows.Next() {
		var (
			o                    types.OrderSummary
			ttc, ht, discount    string
			products, categories []byte
			status               string
		)
		if err := rows.Scan(
			&o.SaleID, &o.MachineID, &o.MachineName, &o.VenueID, &o.VenueName,
			&ttc, &ht, &discount, &o.ProductCount,
			&products, &categories, &status, &o.HasRefund,
			&o.PromoCode, &o.CustomerEmail, &o.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sale row failed: %w", err)
		}
		if o.TotalTTC, err = decimal.NewFromString(ttc); err != nil {
			return nil, fmt.Errorf("sale %s: invalid total_ttc: %w", o.SaleID, err)
		}
		if o.TotalHT, err = decimal.NewFromString(ht); err != nil {
			return nil, fmt.Errorf("sale %s: invalid total_ht: %w", o.SaleID, err)
		}
		if o.DiscountTotal, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("sale %s: invalid discount_total: %w", o.SaleID, err)
		}
		if err := json.Unmarshal(products, &o.Products); err != nil {
			return nil, fmt.Errorf("sale %s: invalid products: %w", o.SaleID, err)
		}
		if err := json.Unmarshal(categories, &o.Categories); err != nil {
			return nil, fmt.Errorf("sale %s: invalid categories: %w", o.SaleID, err)
		}
		o.Status = types.Status(status)
		o.CreatedAt = o.CreatedAt.UTC()
		summaries = append(summaries, o)
	}
	return summaries, rows.Err()
}

// CreateSyncRun implements storage.Store
func (s *PostgresStore) CreateSyncRun(ctx context.Context, run *types.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, mode, status, start_date, end_date, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Mode), string(run.Status), run.StartDate, run.EndDate, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// FinishSyncRun implements storage.Store
func (s *PostgresStore) FinishSyncRun(ctx context.Context, run *types.SyncRun) error {
	query := `
		UPDATE sync_runs SET
			status = $2,
			pages = $3,
			sales_seen = $4,
			line_items = $5,
			order_summaries = $6,
			skipped = $7,
			error = $8,
			completed_at = $9
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.Pages, run.SalesSeen, run.LineItems,
		run.OrderSummaries, run.Skipped, run.Error, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sync run %s: %w", run.ID, storage.ErrNotFound)
	}
	return nil
}

// ListSyncRuns implements storage.Store
func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]types.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id::text, mode, status, start_date, end_date, pages, sales_seen,
			line_items, order_summaries, skipped, error, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SyncRun, error) {
		var (
			run          types.SyncRun
			mode, status string
		)
		err := row.Scan(
			&run.ID, &mode, &status, &run.StartDate, &run.EndDate, &run.Pages, &run.SalesSeen,
			&run.LineItems, &run.OrderSummaries, &run.Skipped, &run.Error, &run.StartedAt, &run.CompletedAt,
		)
		run.Mode = types.SyncMode(mode)
		run.Status = types.SyncRunStatus(status)
		return run, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync runs: %w", err)
	}
	return runs, nil
}

// FailStaleSyncRuns implements storage.Store
func (s *PostgresStore) FailStaleSyncRuns(ctx context.Context, cutoff time.Time, reason string) (int, error) {
	query := `
		UPDATE sync_runs SET
			status = $1,
			error = $2,
			completed_at = $3
		WHERE status = $4 AND started_at < $3
	`
	tag, err := s.pool.Exec(ctx, query,
		string(types.SyncRunFailed), reason, cutoff, string(types.SyncRunRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale sync runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteSyncRunsBefore implements storage.Store
func (s *PostgresStore) DeleteSyncRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sync_runs WHERE status <> $1 AND started_at < $2`,
		string(types.SyncRunRunning), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sync runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping implements storage.Store
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotInitialized
	}
	return s.pool.Ping(ctx)
}
