package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/moviesync/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, email, name, password_hash, prefs, created_at, updated_at`

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`,
		id,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by ID: %w", err)
	}
	return account, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`,
		email,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	prefs, err := json.Marshal(account.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode prefs: %w", err)
	}
	if account.Preferences == nil {
		prefs = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, name, password_hash, prefs, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, account.Email, account.Name, account.PasswordHash, prefs, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to insert account", err)
	}
	return nil
}

// UpdateName は表示名を更新する。
func (r *PostgresAccountRepo) UpdateName(ctx context.Context, id, name string) error {
	return r.update(ctx, `UPDATE accounts SET name = $2, updated_at = now() WHERE id = $1`, id, name)
}

// UpdatePasswordHash はパスワードハッシュを更新する。
func (r *PostgresAccountRepo) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	return r.update(ctx, `UPDATE accounts SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
}

func (r *PostgresAccountRepo) update(ctx context.Context, query, id, value string) error {
	result, err := r.db.ExecContext(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("account not found: %s", id)
	}
	return nil
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	account := &model.Account{}
	var prefs []byte
	if err := row.Scan(
		&account.ID, &account.Email, &account.Name, &account.PasswordHash,
		&prefs, &account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	account.Preferences = map[string]any{}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &account.Preferences); err != nil {
			return nil, fmt.Errorf("failed to decode prefs: %w", err)
		}
	}
	return account, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
