// Package postgres exposes read-only PostgreSQL access as MCP tools.
//
// Security:
//   - SELECT-only enforcement via the SQL guard
//   - Read-only transactions as the database-level authority
//   - Server-side statement timeout on every query
//   - Queries logged only as short hashes, never as text
//   - Connection strings resolved from the credential store, never logged
package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zanatools/zana/internal/tools"
	"github.com/zanatools/zana/internal/vault"
)

// Default limits.
const (
	defaultMaxRows            = 1000
	defaultStatementTimeoutMS = 3000
)

// Connection string resolution.
const (
	credentialID    = "postgres"
	credentialField = "database_url"
	envDatabaseURL  = "DATABASE_URL"
)

// queryCanceledCode is the code Postgres raises when statement_timeout
// expires.
const queryCanceledCode = "57014"

// Introspection queries. All information_schema, all inside the same
// read-only transaction as everything else.
const (
	listSchemasSQL = `
SELECT schema_name
FROM information_schema.schemata
ORDER BY schema_name`

	listTablesSQL = `
SELECT table_schema, table_name
FROM information_schema.tables
WHERE table_type = 'BASE TABLE'`

	describeTableSQL = `
SELECT
    column_name,
    data_type,
    is_nullable,
    column_default
FROM information_schema.columns
WHERE table_schema = $1
  AND table_name = $2
ORDER BY ordinal_position`
)

// Config holds static tool settings from the config file.
type Config struct {
	DSN                string // Fallback connection string.
	MaxRows            int    // Row cap per query. Default: 1000.
	StatementTimeoutMS int    // Server-side statement timeout. Default: 3000.
}

// Tools is the PostgreSQL tool set registered on the MCP server.
type Tools struct {
	pools  *PoolRegistry
	store  vault.Store
	config Config
	logger *slog.Logger
}

// NewTools creates the PostgreSQL tool set. The store may be nil, which
// skips the vault tier during connection string resolution.
func NewTools(store vault.Store, cfg Config, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	if cfg.StatementTimeoutMS <= 0 {
		cfg.StatementTimeoutMS = defaultStatementTimeoutMS
	}
	return &Tools{
		pools:  NewPoolRegistry(logger),
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Register adds all PostgreSQL tools to the registry.
func (t *Tools) Register(r tools.Registry) {
	r.AddTool(t.queryTool())
	r.AddTool(t.listSchemasTool())
	r.AddTool(t.listTablesTool())
	r.AddTool(t.describeTableTool())
	r.AddTool(t.explainTool())
}

// Close releases all database pools.
func (t *Tools) Close() error { return t.pools.Close() }

// Ping verifies connectivity with the resolved connection string. Used as
// a readiness check.
func (t *Tools) Ping(ctx context.Context) error {
	dsn := t.databaseURL(ctx, "")
	if dsn == "" {
		return errors.New("no connection string configured")
	}
	db, err := t.pools.Get(dsn)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (t *Tools) maxRows() int            { return t.config.MaxRows }
func (t *Tools) statementTimeoutMS() int { return t.config.StatementTimeoutMS }

// databaseURL resolves the connection string. Resolution order mirrors API
// key resolution: explicit parameter, then the vault record, then the
// DATABASE_URL environment variable, then static config.
func (t *Tools) databaseURL(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if t.store != nil {
		if cred, err := t.store.Get(ctx, credentialID); err == nil {
			if dsn, ok := cred.Field(credentialField); ok && dsn != "" {
				return dsn
			}
		}
	}
	if dsn := os.Getenv(envDatabaseURL); dsn != "" {
		return dsn
	}
	return t.config.DSN
}

// --- Tool definitions ---

type queryArgs struct {
	SQL         string `json:"sql"`
	DatabaseURL string `json:"database_url"`
}

func (t *Tools) queryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pg_query",
		mcp.WithDescription("Execute a read-only SELECT query against PostgreSQL."),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SQL SELECT statement to execute.")),
		mcp.WithString("database_url", mcp.Description("Optional connection string override; normally resolved from the credential store or DATABASE_URL.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args queryArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.executeQuery(ctx, args.SQL, args.DatabaseURL), nil
	}
}

func (t *Tools) listSchemasTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pg_list_schemas",
		mcp.WithDescription("List all schemas in the PostgreSQL database."),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return t.executeListSchemas(ctx), nil
	}
}

type listTablesArgs struct {
	Schema string `json:"schema"`
}

func (t *Tools) listTablesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pg_list_tables",
		mcp.WithDescription("List tables in the PostgreSQL database, optionally filtered by schema."),
		mcp.WithString("schema", mcp.Description("Schema to filter by. All schemas when omitted.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args listTablesArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.executeListTables(ctx, args.Schema), nil
	}
}

type describeTableArgs struct {
	Table  string `json:"table"`
	Schema string `json:"schema"`
}

func (t *Tools) describeTableTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pg_describe_table",
		mcp.WithDescription("Describe the columns of a PostgreSQL table."),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name.")),
		mcp.WithString("schema", mcp.Description("Table schema. Defaults to 'public'.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args describeTableArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.executeDescribeTable(ctx, args.Schema, args.Table), nil
	}
}

type explainArgs struct {
	SQL string `json:"sql"`
}

func (t *Tools) explainTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("pg_explain",
		mcp.WithDescription("Show the execution plan of a read-only SELECT query."),
		mcp.WithString("sql", mcp.Required(), mcp.Description("SQL SELECT statement to explain.")),
	)

	return tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args explainArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return t.executeExplain(ctx, args.SQL), nil
	}
}

// --- Execution ---

type queryResult struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	RowCount   int      `json:"row_count"`
	MaxRows    int      `json:"max_rows"`
	DurationMS int64    `json:"duration_ms"`
	Success    bool     `json:"success"`
}

type schemasResult struct {
	Result  []string `json:"result"`
	Success bool     `json:"success"`
}

type tableRef struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type tablesResult struct {
	Result  []tableRef `json:"result"`
	Success bool       `json:"success"`
}

type columnInfo struct {
	Column   string  `json:"column"`
	Type     string  `json:"type"`
	Nullable bool    `json:"nullable"`
	Default  *string `json:"default"`
}

type describeResult struct {
	Result  []columnInfo `json:"result"`
	Success bool         `json:"success"`
}

type explainResult struct {
	Result  []string `json:"result"`
	Success bool     `json:"success"`
}

type toolError struct {
	Error   string `json:"error"`
	Help    string `json:"help,omitempty"`
	Success bool   `json:"success"`
}

func (t *Tools) executeQuery(ctx context.Context, rawSQL, explicitDSN string) *mcp.CallToolResult {
	dsn := t.databaseURL(ctx, explicitDSN)
	if dsn == "" {
		return missingCredentialResult()
	}

	start := time.Now()
	sqlHash := hashSQL(rawSQL)

	query, err := ValidateSQL(rawSQL)
	if err != nil {
		t.logger.Warn("query validation failed",
			slog.String("sql_hash", sqlHash),
			slog.String("error", err.Error()))
		return jsonResult(toolError{Error: err.Error()})
	}

	var (
		columns []string
		rowData [][]any
	)
	err = t.withReadOnlyTx(ctx, dsn, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, rowData, err = collectRows(rows, t.maxRows())
		return err
	})
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if isQueryCanceled(err) {
			t.logger.Warn("query timed out", slog.String("sql_hash", sqlHash))
			return jsonResult(toolError{Error: "Query timed out"})
		}
		t.logger.Error("query failed",
			slog.String("sql_hash", sqlHash),
			slog.String("error", err.Error()))
		return jsonResult(toolError{Error: "Database error while executing query"})
	}

	t.logger.Info("query succeeded",
		slog.String("sql_hash", sqlHash),
		slog.Int("row_count", len(rowData)),
		slog.Int64("duration_ms", durationMS))

	return jsonResult(queryResult{
		Columns:    columns,
		Rows:       rowData,
		RowCount:   len(rowData),
		MaxRows:    t.maxRows(),
		DurationMS: durationMS,
		Success:    true,
	})
}

func (t *Tools) executeListSchemas(ctx context.Context) *mcp.CallToolResult {
	dsn := t.databaseURL(ctx, "")
	if dsn == "" {
		return missingCredentialResult()
	}

	schemas := make([]string, 0, 8)
	err := t.withReadOnlyTx(ctx, dsn, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, listSchemasSQL)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			schemas = append(schemas, name)
		}
		return rows.Err()
	})
	if err != nil {
		t.logger.Error("listing schemas failed", slog.String("error", err.Error()))
		return jsonResult(toolError{Error: "Failed to list schemas"})
	}

	return jsonResult(schemasResult{Result: schemas, Success: true})
}

func (t *Tools) executeListTables(ctx context.Context, schema string) *mcp.CallToolResult {
	dsn := t.databaseURL(ctx, "")
	if dsn == "" {
		return missingCredentialResult()
	}

	query := listTablesSQL
	var params []any
	if schema != "" {
		query += " AND table_schema = $1"
		params = append(params, schema)
	}
	query += " ORDER BY table_schema, table_name"

	tables := make([]tableRef, 0, 16)
	err := t.withReadOnlyTx(ctx, dsn, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, params...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var ref tableRef
			if err := rows.Scan(&ref.Schema, &ref.Table); err != nil {
				return err
			}
			tables = append(tables, ref)
		}
		return rows.Err()
	})
	if err != nil {
		t.logger.Error("listing tables failed", slog.String("error", err.Error()))
		return jsonResult(toolError{Error: "Failed to list tables"})
	}

	return jsonResult(tablesResult{Result: tables, Success: true})
}

func (t *Tools) executeDescribeTable(ctx context.Context, schema, table string) *mcp.CallToolResult {
	dsn := t.databaseURL(ctx, "")
	if dsn == "" {
		return missingCredentialResult()
	}
	if schema == "" {
		schema = "public"
	}

	columns := make([]columnInfo, 0, 16)
	err := t.withReadOnlyTx(ctx, dsn, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, describeTableSQL, schema, table)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				name       string
				dataType   string
				isNullable string
				defaultVal sql.NullString
			)
			if err := rows.Scan(&name, &dataType, &isNullable, &defaultVal); err != nil {
				return err
			}
			info := columnInfo{
				Column:   name,
				Type:     dataType,
				Nullable: isNullable == "YES",
			}
			if defaultVal.Valid {
				info.Default = &defaultVal.String
			}
			columns = append(columns, info)
		}
		return rows.Err()
	})
	if err != nil {
		t.logger.Error("describing table failed", slog.String("error", err.Error()))
		return jsonResult(toolError{Error: "Failed to describe table"})
	}

	return jsonResult(describeResult{Result: columns, Success: true})
}

func (t *Tools) executeExplain(ctx context.Context, rawSQL string) *mcp.CallToolResult {
	dsn := t.databaseURL(ctx, "")
	if dsn == "" {
		return missingCredentialResult()
	}

	start := time.Now()
	sqlHash := hashSQL(rawSQL)

	query, err := ValidateSQL(rawSQL)
	if err != nil {
		t.logger.Warn("explain validation failed",
			slog.String("sql_hash", sqlHash),
			slog.String("error", err.Error()))
		return jsonResult(toolError{Error: err.Error()})
	}

	plan := make([]string, 0, 8)
	err = t.withReadOnlyTx(ctx, dsn, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "EXPLAIN "+query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var line string
			if err := rows.Scan(&line); err != nil {
				return err
			}
			plan = append(plan, line)
		}
		return rows.Err()
	})
	if err != nil {
		t.logger.Error("explain failed",
			slog.String("sql_hash", sqlHash),
			slog.String("error", err.Error()))
		return jsonResult(toolError{Error: "Failed to explain query"})
	}

	t.logger.Info("explain succeeded",
		slog.String("sql_hash", sqlHash),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Int("plan_lines", len(plan)))

	return jsonResult(explainResult{Result: plan, Success: true})
}

// withReadOnlyTx runs fn inside a read-only transaction with the
// server-side statement timeout applied. The transaction is always rolled
// back; read-only work has nothing to commit.
func (t *Tools) withReadOnlyTx(ctx context.Context, dsn string, fn func(*sql.Tx) error) error {
	db, err := t.pools.Get(dsn)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	timeout := fmt.Sprintf("SET LOCAL statement_timeout = %d", t.statementTimeoutMS())
	if _, err := tx.ExecContext(ctx, timeout); err != nil {
		return err
	}

	return fn(tx)
}

func isQueryCanceled(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == queryCanceledCode {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// collectRows reads up to limit rows into JSON-friendly values.
func collectRows(rows *sql.Rows, limit int) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	out := make([][]any, 0, 16)
	values := make([]any, len(columns))
	scanArgs := make([]any, len(columns))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	for rows.Next() {
		if len(out) >= limit {
			break
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, err
		}
		row := make([]any, len(columns))
		for i, v := range values {
			row[i] = normalizeValue(v)
		}
		out = append(out, row)
	}
	return columns, out, rows.Err()
}

// normalizeValue converts driver types to JSON-friendly values.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return v
	}
}

// hashSQL returns a short digest used to correlate log lines about a query
// without writing the query text itself.
func hashSQL(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:12]
}

func missingCredentialResult() *mcp.CallToolResult {
	return jsonResult(toolError{
		Error: "Missing required credential: PostgreSQL connection string",
		Help:  "Save a 'postgres' credential with a 'database_url' field to the credential store, or set the DATABASE_URL environment variable.",
	})
}

func decodeArgs(request mcp.CallToolRequest, out any) error {
	data, err := json.Marshal(request.GetArguments())
	if err != nil {
		return fmt.Errorf("reading arguments: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
