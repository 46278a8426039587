package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/moviesync/internal/model"
)

// PostgresCollectionRepo はPostgreSQLを使用したコレクション定義リポジトリ。
type PostgresCollectionRepo struct {
	db *sql.DB
}

// NewPostgresCollectionRepo はPostgresCollectionRepoを生成する。
func NewPostgresCollectionRepo(db *sql.DB) *PostgresCollectionRepo {
	return &PostgresCollectionRepo{db: db}
}

// FindByID は指定IDのコレクションを取得する。見つからない場合はnilを返す。
func (r *PostgresCollectionRepo) FindByID(ctx context.Context, id string) (*model.Collection, error) {
	c := &model.Collection{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, guest_access, owner_scoped, unique_fields
		 FROM collections WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.GuestAccess, &c.OwnerScoped, pq.Array(&c.UniqueFields))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find collection: %w", err)
	}
	return c, nil
}

// List は全コレクションをID順で返す。
func (r *PostgresCollectionRepo) List(ctx context.Context) ([]model.Collection, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, guest_access, owner_scoped, unique_fields
		 FROM collections ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var collections []model.Collection
	for rows.Next() {
		var c model.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.GuestAccess, &c.OwnerScoped, pq.Array(&c.UniqueFields)); err != nil {
			return nil, fmt.Errorf("failed to scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate collections: %w", err)
	}
	return collections, nil
}

// compile-time interface check
var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
