package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-statehub-go/internal/user/entity"
)

// UserRepo provides data access for the users table using sqlx.
// Usernames are not unique: signing up twice with the same name yields two rows.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates the users table when it does not exist yet.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	exists, err := r.tableExists(ctx)
	if err != nil {
		return fmt.Errorf("check users table: %w", err)
	}
	if exists {
		return nil
	}
	ddl := `CREATE TABLE users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT,
		password TEXT
	)`
	if r.db.DriverName() == "mysql" {
		ddl = `CREATE TABLE users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(255),
		password VARCHAR(255)
	)`
	}
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepo) tableExists(ctx context.Context) (bool, error) {
	if r.db.DriverName() == "mysql" {
		var n int
		err := r.db.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'users'`)
		return n > 0, err
	}
	var name sql.NullString
	if err := r.db.QueryRowxContext(ctx, `SELECT to_regclass('public.users')`).Scan(&name); err != nil {
		return false, err
	}
	return name.Valid, nil
}

// Insert stores a new user row and returns its generated id.
func (r *UserRepo) Insert(ctx context.Context, username, passwordHash string) (int64, error) {
	if r.db.DriverName() == "mysql" {
		res, err := r.db.ExecContext(ctx, `INSERT INTO users (username, password) VALUES (?, ?)`, username, passwordHash)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	var id int64
	const q = `INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, q, username, passwordHash).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// FindByUsername returns every row with the given username, oldest first.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) ([]entity.User, error) {
	q := r.db.Rebind(`SELECT id, username, password FROM users WHERE username = ? ORDER BY id`)
	var rows []entity.User
	if err := r.db.SelectContext(ctx, &rows, q, username); err != nil {
		return nil, err
	}
	return rows, nil
}

// FindByID fetches a user by primary key or returns sql.ErrNoRows.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	q := r.db.Rebind(`SELECT id, username, password FROM users WHERE id = ?`)
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}
