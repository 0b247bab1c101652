package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/real-estate-listings/internal/database"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/utils"
)

type UserRepo struct {
	DB      *sql.DB
	dialect database.Dialect
}

func NewUserRepo(db *sql.DB, dialect database.Dialect) *UserRepo {
	return &UserRepo{DB: db, dialect: dialect}
}

const userColumns = "id,email,password_hash,role,plan,is_banned,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u       model.User
		rawPlan sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &rawPlan, &u.Banned, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.Plan = plan.Normalize(rawPlan.String)
	return u, nil
}

// Create inserts user and returns its ID. New accounts start on the free plan.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, plan) VALUES (?,?,?,?)",
		email, hash, role, string(plan.Free))
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// GetAccountTx reads a user inside tx. With lock set the row stays locked
// until tx ends, which serializes every quota-consuming write of that user.
func (r *UserRepo) GetAccountTx(ctx context.Context, tx *sql.Tx, id uint64, lock bool) (model.User, error) {
	q := "SELECT " + userColumns + " FROM users WHERE id=?"
	if lock {
		q += r.dialect.ForUpdate()
	}
	return scanUser(tx.QueryRowContext(ctx, q, id))
}

// SetPlanTx stores a new plan. Callers validate the plan first.
func (r *UserRepo) SetPlanTx(ctx context.Context, tx *sql.Tx, id uint64, p plan.Plan, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE users SET plan=?, updated_at=? WHERE id=?", string(p), now, id)
	return err
}

// SetBannedTx sets or clears the ban flag.
func (r *UserRepo) SetBannedTx(ctx context.Context, tx *sql.Tx, id uint64, banned bool, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE users SET is_banned=?, updated_at=? WHERE id=?", banned, now, id)
	return err
}

// isDuplicate recognizes unique-key violations from MySQL (1062) and SQLite.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint")
}
