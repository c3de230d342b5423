// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remotestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mobiletoly/syncmw/model"
)

// PGServer is a reference "remote managed columnar database" (§1), grounded
// directly on oversync.SyncService: transactional upsert/download against
// Postgres via pgxpool, JWT identity, and FK deferral. Each Upload call
// applies the rows of one table; Upload does not order tables by FK
// dependency. It implements Client so the sync engine can drive it
// exactly like an over-the-wire HTTPClient would, without an HTTP hop.
type PGServer struct {
	pool   *pgxpool.Pool
	schema *pgSchemaCache
	logger *slog.Logger

	jwtSecret []byte

	mu       sync.RWMutex
	userID   string
	deviceID string
}

// NewPGServer wires a PGServer against an already-connected pool. jwtSecret
// signs and validates the bearer tokens Authenticate accepts, matching
// oversync.JWTAuth's HS256 scheme.
func NewPGServer(pool *pgxpool.Pool, jwtSecret string, logger *slog.Logger) *PGServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGServer{
		pool:      pool,
		schema:    newPGSchemaCache(pool, logger),
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
	}
}

// pgClaims mirrors oversync.JWTClaims: device id in "did", user id in the
// standard "sub" claim.
type pgClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

func (s *PGServer) Authenticate(ctx context.Context, token string) error {
	parsed, err := jwt.ParseWithClaims(token, &pgClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return model.AuthError(false, "invalid token")
	}
	claims, ok := parsed.Claims.(*pgClaims)
	if !ok || claims.DeviceID == "" || claims.Subject == "" {
		return model.AuthError(false, "token missing did/sub claims")
	}

	s.mu.Lock()
	s.userID = claims.Subject
	s.deviceID = claims.DeviceID
	s.mu.Unlock()
	return nil
}

// MintToken is a test/bootstrap helper mirroring oversync.JWTAuth.GenerateToken.
func (s *PGServer) MintToken(userID, deviceID string, ttl time.Duration) (string, error) {
	claims := &pgClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *PGServer) identity() (userID, deviceID string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.userID == "" {
		return "", "", model.AuthError(true, "not authenticated")
	}
	return s.userID, s.deviceID, nil
}

func (s *PGServer) ExecuteSQL(ctx context.Context, sql string) (*ExecuteResult, error) {
	if _, _, err := s.identity(); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, classifyPGError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.Name)
	}

	var out []*model.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, model.UnknownError(fmt.Errorf("scan row: %w", err))
		}
		r := model.NewRow()
		for i, v := range vals {
			r.Set(names[i], pgValueToModel(v))
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPGError(err)
	}
	count := len(out)
	return &ExecuteResult{Rows: out, Count: &count}, nil
}

// Upload upserts rows against table's primary key inside one transaction,
// deferring FK constraints first (§ SUPPLEMENT 2) so parent-then-child
// ordering within the batch is not required. At-least-once: re-uploading
// the same primary key overwrites in place.
func (s *PGServer) Upload(ctx context.Context, table string, rows []*model.Row) error {
	if _, _, err := s.identity(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	schema, name := splitSchemaTable(table)
	info, err := s.schema.get(ctx, schema, name)
	if err != nil {
		return model.ValidationError("table", []model.ValidationDetail{{Path: "table", Message: err.Error()}})
	}
	if len(info.PKCols) == 0 {
		return model.ValidationError("table", []model.ValidationDetail{{Path: "table", Message: fmt.Sprintf("%s has no primary key", table)}})
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.schema.migrateDeferrable(ctx, tx, []string{pgKey(schema, name)}); err != nil {
			s.logger.Warn("deferrable FK migration skipped", "table", table, "error", err)
		}
		for _, row := range rows {
			if err := s.upsertOne(ctx, tx, info, row); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PGServer) upsertOne(ctx context.Context, tx pgx.Tx, info *pgTable, row *model.Row) error {
	var cols []string
	var placeholders []string
	var args []any
	for i, col := range row.Columns() {
		v, _ := row.Get(col)
		cols = append(cols, fmt.Sprintf("%q", col))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		args = append(args, modelValueToPG(v))
	}

	var conflictCols []string
	for _, pk := range info.PKCols {
		conflictCols = append(conflictCols, fmt.Sprintf("%q", pk))
	}

	var setClauses []string
	for i, col := range row.Columns() {
		if containsPK(info.PKCols, col) {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%q = $%d", col, i+1))
	}

	stmt := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s`,
		info.qualified(), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
		strings.Join(conflictCols, ", "), strings.Join(orDoNothing(setClauses), ", "),
	)
	if len(setClauses) == 0 {
		stmt = fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING`,
			info.qualified(), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
			strings.Join(conflictCols, ", "),
		)
	}

	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return classifyPGError(err)
	}
	return nil
}

func orDoNothing(clauses []string) []string {
	if len(clauses) == 0 {
		return []string{"1 = 1"}
	}
	return clauses
}

func containsPK(pkCols []string, col string) bool {
	for _, pk := range pkCols {
		if pk == col {
			return true
		}
	}
	return false
}

// Download returns rows whose last-update timestamp exceeds sinceTS. The
// timestamp column defaults to "_sync_timestamp"; tables without it
// return their full contents regardless of sinceTS.
func (s *PGServer) Download(ctx context.Context, table string, sinceTS *int64) ([]*model.Row, error) {
	if _, _, err := s.identity(); err != nil {
		return nil, err
	}
	schema, name := splitSchemaTable(table)
	info, err := s.schema.get(ctx, schema, name)
	if err != nil {
		return nil, model.ValidationError("table", []model.ValidationDetail{{Path: "table", Message: err.Error()}})
	}

	hasTS := false
	for _, c := range info.Columns {
		if c.Name == "_sync_timestamp" {
			hasTS = true
			break
		}
	}

	stmt := fmt.Sprintf("SELECT * FROM %s", info.qualified())
	var args []any
	if hasTS && sinceTS != nil {
		stmt += " WHERE _sync_timestamp > $1 ORDER BY _sync_timestamp ASC"
		args = append(args, time.UnixMilli(*sinceTS))
	}

	rows, err := s.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classifyPGError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f.Name)
	}

	var out []*model.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, model.UnknownError(fmt.Errorf("scan row: %w", err))
		}
		r := model.NewRow()
		for i, v := range vals {
			r.Set(names[i], pgValueToModel(v))
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func classifyPGError(err error) error {
	// Postgres does not speak HTTP status codes directly; a connectivity or
	// context failure is treated as retryable network trouble, anything
	// else as an unretryable storage failure, mirroring §4.3's "5xx or
	// timeout -> retryable" rule at the driver boundary.
	var connErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.As(err, &connErr) || pgconn.Timeout(err) {
		return model.NetworkError(true, 0, err)
	}
	return model.StorageError(err)
}

func pgValueToModel(v any) model.Value {
	switch t := v.(type) {
	case nil:
		return model.Null()
	case int64:
		return model.Int(t)
	case int32:
		return model.Int(int64(t))
	case float64:
		return model.Float(t)
	case float32:
		return model.Float(float64(t))
	case bool:
		return model.Bool(t)
	case []byte:
		return model.Bytes(t)
	case string:
		return model.Text(t)
	case time.Time:
		return model.Instant(t)
	default:
		return model.Text(fmt.Sprintf("%v", t))
	}
}

func modelValueToPG(v model.Value) any {
	switch v.Kind {
	case model.KindNull:
		return nil
	case model.KindText:
		return v.Text
	case model.KindInt:
		return v.Int
	case model.KindFloat:
		return v.Float
	case model.KindBool:
		return v.Bool
	case model.KindTime:
		return v.Time
	case model.KindBytes:
		return v.Bytes
	default:
		return nil
	}
}

var _ Client = (*PGServer)(nil)
