package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/thehouse/platform/core"
	"github.com/thehouse/platform/core/user"
)

const userColumns = "id, name, email, role, is_active, password_hash, created_at, updated_at, last_login"

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func scanUser(row rowScanner) (user.User, error) {
	var usr user.User
	err := row.Scan(
		&usr.ID, &usr.Name, &usr.Email, &usr.Role, &usr.IsActive,
		&usr.PasswordHash, &usr.CreatedAt, &usr.UpdatedAt, &usr.LastLogin,
	)
	return usr, err
}

func (repo userRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ids := make([]int64, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		ids = append(ids, int64(usr.ID))
	}

	var exists bool
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> ALL($2))`,
		email, pq.Array(ids),
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if exists {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	err := getExec(repo.db, exec).QueryRowContext(ctx,
		`INSERT INTO users (name, email, role, is_active, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		usr.Name, usr.Email, usr.Role, usr.IsActive, usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	).Scan(&usr.ID)
	if err != nil {
		if domainErr, ok := uniqueViolation(err, map[string]error{"users_email_key": user.ErrEmailExists}); ok {
			return user.User{}, domainErr
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var (
		where []string
		args  []interface{}
	)
	arg := func(val interface{}) string {
		args = append(args, val)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			val := arg("%" + filter.Search + "%")
			where = append(where, fmt.Sprintf("(name ILIKE %s OR email ILIKE %s)", val, val))
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, role := range filter.Roles {
				roles = append(roles, role.String())
			}
			where = append(where, "role = ANY("+arg(pq.Array(roles))+")")
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= "+arg(filter.CreatedFrom))
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= "+arg(filter.CreatedTo))
		}
	}
	if len(where) > 0 {
		query += " WHERE " + joinAnd(where)
	}
	query += orderBy(ordering, "created_at DESC")

	users, err := selectAll(ctx, getExec(repo.db, exec), scanUser, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE `
	var arg interface{}
	switch {
	case filter.ID != 0:
		query += "id = $1"
		arg = filter.ID
	default:
		query += "email = $1"
		arg = filter.Email
	}

	usr, err := scanUser(getExec(repo.db, exec).QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return usr, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	sets := []string{"name = $2", "email = $3"}
	args := []interface{}{usr.ID, usr.Name, usr.Email}
	set := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if usr.Role != "" {
		set("role", usr.Role)
	}
	if len(usr.PasswordHash) > 0 {
		set("password_hash", usr.PasswordHash)
	}
	if !usr.UpdatedAt.IsZero() {
		set("updated_at", usr.UpdatedAt)
	}
	if !usr.LastLogin.IsZero() {
		set("last_login", usr.LastLogin)
	}
	if isActive != nil {
		set("is_active", *isActive)
	}

	query := `UPDATE users SET ` + joinComma(sets) + ` WHERE id = $1 RETURNING ` + userColumns
	updated, err := scanUser(getExec(repo.db, exec).QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		if domainErr, ok := uniqueViolation(err, map[string]error{"users_email_key": user.ErrEmailExists}); ok {
			return user.User{}, domainErr
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return updated, nil
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []int, exec ...core.DBExecutor) error {
	idArr := make([]int64, 0, len(ids))
	for _, id := range ids {
		idArr = append(idArr, int64(id))
	}
	_, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM users WHERE id = ANY($1)`, pq.Array(idArr))
	return errors.Wrap(err, "deleting users")
}

// EnsureRoleValue always runs on the pool: Postgres refuses
// ALTER TYPE ... ADD VALUE inside a transaction.
func (repo userRepository) EnsureRoleValue(ctx context.Context, role user.Role) error {
	query := fmt.Sprintf(`ALTER TYPE user_role ADD VALUE IF NOT EXISTS '%s'`, role)
	_, err := repo.db.ExecContext(ctx, query)
	return errors.Wrap(err, "extending user_role enum")
}

func (repo userRepository) RemapUserRoles(ctx context.Context, from, to user.Role, exec ...core.DBExecutor) (int64, error) {
	res, err := getExec(repo.db, exec).ExecContext(ctx, `UPDATE users SET role = $2 WHERE role = $1`, from, to)
	if err != nil {
		return 0, errors.Wrap(err, "remapping user roles")
	}
	return res.RowsAffected()
}
