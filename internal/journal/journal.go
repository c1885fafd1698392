package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-batch/internal/logger"
	"github.com/rxtech-lab/argo-batch/internal/types"
	"github.com/rxtech-lab/argo-batch/pkg/errors"
	"go.uber.org/zap"
)

const table = "orders"

var columns = []string{
	"client_order_id", "order_id", "trade_date", "symbol", "side", "purpose", "reason", "strategy",
	"quantity", "filled_qty", "avg_fill_price", "status", "attempts", "last_error", "created_at", "updated_at",
}

// Journal records every order the engine submits, keyed by client order id.
// Rows live in an in-memory DuckDB table and are exported to a parquet file
// after every write, which is also where they are reloaded from on restart.
type Journal struct {
	db         *sql.DB
	sq         squirrel.StatementBuilderType
	outputPath string
	mu         sync.Mutex
	logger     *logger.Logger
}

// Open creates the journal and loads outputPath when it already exists.
func Open(outputPath string, log *logger.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeArtifactWriteFailed, "failed to create journal directory", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	j := &Journal{
		db:         db,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		outputPath: outputPath,
		mu:         sync.Mutex{},
		logger:     log.Component("journal"),
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			client_order_id TEXT PRIMARY KEY,
			order_id TEXT,
			trade_date TEXT,
			symbol TEXT,
			side TEXT,
			purpose TEXT,
			reason TEXT,
			strategy TEXT,
			quantity DOUBLE,
			filled_qty DOUBLE,
			avg_fill_price DOUBLE,
			status TEXT,
			attempts INTEGER,
			last_error TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to create orders table", err)
	}

	if _, statErr := os.Stat(outputPath); statErr == nil {
		_, err = db.Exec(fmt.Sprintf(`
			INSERT INTO orders
			SELECT %s FROM read_parquet('%s')
			ON CONFLICT (client_order_id) DO NOTHING
		`, strings.Join(columns, ", "), escape(outputPath)))
		if err != nil {
			// the broker stays authoritative for order state
			j.logger.Warn("Failed to reload order journal, starting empty",
				zap.String("path", outputPath),
				zap.Error(err),
			)
		}
	}

	return j, nil
}

// Upsert inserts a record or updates the mutable fields of an existing one.
// created_at is kept from the first write.
func (j *Journal) Upsert(rec types.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return errors.New(errors.ErrCodeDataSourceUnavailable, "journal is closed")
	}

	query, args, err := j.sq.Insert(table).
		Columns(columns...).
		Values(
			rec.ClientOrderID, rec.OrderID, rec.TradeDate, rec.Symbol, string(rec.Side), string(rec.Purpose),
			rec.Reason, rec.Strategy, rec.Quantity, rec.FilledQty, rec.AvgFillPrice, string(rec.Status),
			rec.Attempts, rec.LastError, rec.CreatedAt, rec.UpdatedAt,
		).
		Suffix(`ON CONFLICT (client_order_id) DO UPDATE SET
			order_id = excluded.order_id,
			filled_qty = excluded.filled_qty,
			avg_fill_price = excluded.avg_fill_price,
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build upsert", err)
	}

	if _, err := j.db.Exec(query, args...); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to upsert order %s", rec.ClientOrderID)
	}

	return j.export()
}

// Get returns the record for a client order id.
func (j *Journal) Get(clientOrderID string) (optional.Option[types.OrderRecord], error) {
	records, err := j.query(squirrel.Eq{"client_order_id": clientOrderID})
	if err != nil {
		return optional.None[types.OrderRecord](), err
	}

	if len(records) == 0 {
		return optional.None[types.OrderRecord](), nil
	}

	return optional.Some(records[0]), nil
}

// ListByDate returns the records of a trade date ordered by creation time.
func (j *Journal) ListByDate(tradeDate string) ([]types.OrderRecord, error) {
	return j.query(squirrel.Eq{"trade_date": tradeDate})
}

// Count returns the number of journaled orders.
func (j *Journal) Count() (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return 0, errors.New(errors.ErrCodeDataSourceUnavailable, "journal is closed")
	}

	var count int
	if err := j.db.QueryRow("SELECT COUNT(*) FROM orders").Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count orders", err)
	}

	return count, nil
}

// OutputPath returns the parquet file path.
func (j *Journal) OutputPath() string {
	return j.outputPath
}

// Close releases database resources.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil
	}

	err := j.db.Close()
	j.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to close journal", err)
	}

	return nil
}

func (j *Journal) query(where squirrel.Sqlizer) ([]types.OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.db == nil {
		return nil, errors.New(errors.ErrCodeDataSourceUnavailable, "journal is closed")
	}

	query, args, err := j.sq.Select(columns...).From(table).Where(where).OrderBy("created_at ASC", "client_order_id ASC").ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query orders", err)
	}
	defer rows.Close()

	var out []types.OrderRecord

	for rows.Next() {
		var (
			rec                   types.OrderRecord
			side, purpose, status string
		)

		if err := rows.Scan(
			&rec.ClientOrderID, &rec.OrderID, &rec.TradeDate, &rec.Symbol, &side, &purpose, &rec.Reason,
			&rec.Strategy, &rec.Quantity, &rec.FilledQty, &rec.AvgFillPrice, &status, &rec.Attempts,
			&rec.LastError, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
		}

		rec.Side = types.PurchaseType(side)
		rec.Purpose = types.OrderPurpose(purpose)
		rec.Status = types.OrderStatus(status)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read orders", err)
	}

	return out, nil
}

func (j *Journal) export() error {
	_, err := j.db.Exec(fmt.Sprintf(`
		COPY (SELECT * FROM orders ORDER BY created_at ASC)
		TO '%s' (FORMAT PARQUET)
	`, escape(j.outputPath)))
	if err != nil {
		return errors.Wrap(errors.ErrCodeArtifactWriteFailed, "failed to export journal to parquet", err)
	}

	return nil
}

func escape(path string) string {
	return strings.ReplaceAll(path, "'", "''")
}
