package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	libsqlx "github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"coderhack/core"
)

// Driver names a supported database/sql driver.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
	DriverSQLite   Driver = "sqlite"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" env:"CODERHACK_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"CODERHACK_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"CODERHACK_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"CODERHACK_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"CODERHACK_SQL_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `json:"auto_migrate" env:"CODERHACK_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	cfg := Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
	switch driver {
	case DriverPostgres:
		cfg.DSN = "postgres://localhost:5432/coderhack?sslmode=disable"
	case DriverMySQL:
		cfg.DSN = "root@tcp(localhost:3306)/coderhack?parseTime=true"
	case DriverSQLite:
		cfg.DSN = "./data/coderhack.db"
		// sqlite allows a single writer
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}
	return cfg
}

// Validate checks the driver and DSN.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres, DriverMySQL, DriverSQLite:
	default:
		return fmt.Errorf("driver must be one of: %s, %s, %s", DriverPostgres, DriverMySQL, DriverSQLite)
	}
	if strings.TrimSpace(c.DSN) == "" {
		return errors.New("dsn cannot be empty")
	}
	return nil
}

// Store implements engine.Store on a relational database via sqlx.
// Badges are stored as a comma-separated list of names.
type Store struct {
	db     *libsqlx.DB
	driver Driver
}

type userRow struct {
	UserID   string `db:"user_id"`
	Username string `db:"username"`
	Score    int    `db:"score"`
	Badges   string `db:"badges"`
}

func (r userRow) toUser() (core.User, error) {
	var names []string
	if r.Badges != "" {
		names = strings.Split(r.Badges, ",")
	}
	badges, err := core.ParseBadgeNames(names)
	if err != nil {
		return core.User{}, fmt.Errorf("corrupt badges for user %s: %w", r.UserID, err)
	}
	return core.User{UserID: core.UserID(r.UserID), Username: r.Username, Score: r.Score, Badges: badges}, nil
}

func fromUser(u core.User) userRow {
	return userRow{
		UserID:   string(u.UserID),
		Username: u.Username,
		Score:    u.Score,
		Badges:   strings.Join(u.Badges.Names(), ","),
	}
}

// New opens a connection pool, pings it and applies the schema when AutoMigrate is set.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	db, err := libsqlx.Open(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := NewWithDB(db, cfg.Driver)
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing handle (useful for testing).
func NewWithDB(db *libsqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) schema() []string {
	if s.driver == DriverMySQL {
		// utf8mb4_bin keeps user_id comparisons byte-exact; the default collation folds case and accents.
		return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
	user_id VARCHAR(%d) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL PRIMARY KEY,
	username TEXT CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
	score INT NOT NULL DEFAULT 0,
	badges VARCHAR(255) NOT NULL DEFAULT '',
	INDEX idx_users_score (score)
) DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`, core.MaxUserIDLength)}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
	user_id TEXT NOT NULL PRIMARY KEY,
	username TEXT NOT NULL,
	score INTEGER NOT NULL DEFAULT 0,
	badges TEXT NOT NULL DEFAULT ''
)`,
		`CREATE INDEX IF NOT EXISTS idx_users_score ON users (score)`,
	}
}

// Migrate creates the users table and score index if missing.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) upsertQuery() string {
	const insert = `INSERT INTO users (user_id, username, score, badges) VALUES (?, ?, ?, ?) `
	if s.driver == DriverMySQL {
		return insert + `ON DUPLICATE KEY UPDATE username = VALUES(username), score = VALUES(score), badges = VALUES(badges)`
	}
	return s.db.Rebind(insert + `ON CONFLICT (user_id) DO UPDATE SET username = excluded.username, score = excluded.score, badges = excluded.badges`)
}

func (s *Store) Exists(ctx context.Context, id core.UserID) (bool, error) {
	var exists bool
	q := s.db.Rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE user_id = ?)`)
	if err := s.db.GetContext(ctx, &exists, q, string(id)); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

func (s *Store) Get(ctx context.Context, id core.UserID) (core.User, bool, error) {
	var row userRow
	q := s.db.Rebind(`SELECT user_id, username, score, badges FROM users WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, false, nil
		}
		return core.User{}, false, fmt.Errorf("get user: %w", err)
	}
	u, err := row.toUser()
	if err != nil {
		return core.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) Put(ctx context.Context, u core.User) error {
	row := fromUser(u)
	if _, err := s.db.ExecContext(ctx, s.upsertQuery(), row.UserID, row.Username, row.Score, row.Badges); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id core.UserID) error {
	q := s.db.Rebind(`DELETE FROM users WHERE user_id = ?`)
	if _, err := s.db.ExecContext(ctx, q, string(id)); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *Store) ListByScoreAsc(ctx context.Context) ([]core.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT user_id, username, score, badges FROM users ORDER BY score ASC, user_id ASC`); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]core.User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
