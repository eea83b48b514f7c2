package accounts

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLConfig is the connection configuration for MySQLStore.
type MySQLConfig struct {
	IP       string
	Port     int
	UserName string
	Password string
	DBName   string
}

// MySQLStore is a Store backed by MySQL, using the `account` and
// `characters` schema the teacher repo's database package was built
// against.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens and pings a MySQL connection.
func NewMySQLStore(cfg MySQLConfig) (*MySQLStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.UserName, cfg.Password, cfg.IP, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("accounts: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("accounts: ping database: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

func (s *MySQLStore) Login(ctx context.Context, username, password string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM account WHERE username = ? AND password = ? AND active = 1 AND locked = 0"
	err := s.db.QueryRowContext(ctx, query, username, password).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("accounts: query account: %w", err)
	}
	return count > 0, nil
}

func (s *MySQLStore) GetCharacters(ctx context.Context, username string) ([]Character, error) {
	query := `SELECT id, name, username, level, class, gender, map_id, x, y
			  FROM characters WHERE username = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("accounts: query characters: %w", err)
	}
	defer rows.Close()

	var out []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(&c.ID, &c.Name, &c.Username, &c.Level, &c.Class, &c.Gender, &c.MapID, &c.X, &c.Y); err != nil {
			return nil, fmt.Errorf("accounts: scan character: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("accounts: iterate characters: %w", err)
	}
	return out, nil
}

func (s *MySQLStore) CreateCharacter(ctx context.Context, username, name string, class, gender int) error {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM characters WHERE name = ?", name).Scan(&count); err != nil {
		return fmt.Errorf("accounts: check character name: %w", err)
	}
	if count > 0 {
		return ErrCharacterExists
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM characters WHERE username = ?", username).Scan(&count); err != nil {
		return fmt.Errorf("accounts: check character count: %w", err)
	}
	if count >= maxCharactersPerAccount {
		return ErrCharacterLimit
	}

	query := `INSERT INTO characters (name, username, level, class, gender, map_id, x, y)
			  VALUES (?, ?, 1, ?, ?, 1, 100, 100)`
	if _, err := s.db.ExecContext(ctx, query, name, username, class, gender); err != nil {
		return fmt.Errorf("accounts: create character: %w", err)
	}
	return nil
}

func (s *MySQLStore) DeleteCharacter(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM characters WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("accounts: delete character: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("accounts: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCharacterNotFound
	}
	return nil
}
