package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/moviesync/internal/model"
)

// PostgresDocumentRepo はPostgreSQLを使用したドキュメントリポジトリ。
// フィールドはJSONBのdata列に保存し、等価条件は data->>'attr' のテキスト比較で評価する。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

const documentColumns = `id, collection_id, COALESCE(owner_id::text, ''), data, created_at, updated_at`

// orderColumns はメタデータ属性の並び替えに使う列。
var orderColumns = map[string]string{
	model.AttrID:        "id",
	model.AttrCreatedAt: "created_at",
	model.AttrUpdatedAt: "updated_at",
}

// List は条件に一致するドキュメントを述語の並び順で返す。
// limit述語がない場合は model.MaxQueryLimit 件までを返す。
func (r *PostgresDocumentRepo) List(ctx context.Context, filter DocumentFilter) ([]model.Document, error) {
	query, args, err := buildListQuery(filter)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// buildListQuery は述語リストからSELECT文を組み立てる。
// 属性名と値はすべてプレースホルダで渡す。
func buildListQuery(filter DocumentFilter) (string, []any, error) {
	var sb strings.Builder
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString(`SELECT ` + documentColumns + ` FROM documents WHERE collection_id = ` + arg(filter.CollectionID))
	if filter.OwnerID != "" {
		sb.WriteString(` AND owner_id = ` + arg(filter.OwnerID))
	}

	var orders []string
	limit := model.MaxQueryLimit
	for _, q := range filter.Queries {
		switch q.Method {
		case model.QueryMethodEqual:
			switch q.Attribute {
			case model.AttrID:
				sb.WriteString(` AND id::text = ` + arg(model.ValueText(q.Values[0])))
			case model.AttrCreatedAt, model.AttrUpdatedAt:
				return "", nil, fmt.Errorf("equal is not supported on %s", q.Attribute)
			default:
				sb.WriteString(` AND data->>` + arg(q.Attribute) + ` = ` + arg(model.ValueText(q.Values[0])))
			}
		case model.QueryMethodOrderAsc, model.QueryMethodOrderDesc:
			dir := "ASC"
			if q.Method == model.QueryMethodOrderDesc {
				dir = "DESC"
			}
			col, ok := orderColumns[q.Attribute]
			if !ok {
				col = `data->` + arg(q.Attribute)
			}
			orders = append(orders, col+" "+dir)
		case model.QueryMethodLimit:
			limit = q.LimitValue()
		}
	}

	// 同順位は作成順
	orders = append(orders, "seq ASC")
	sb.WriteString(` ORDER BY ` + strings.Join(orders, ", "))
	sb.WriteString(` LIMIT ` + arg(limit))
	return sb.String(), args, nil
}

// FindByID は指定IDのドキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByID(ctx context.Context, collectionID, id string) (*model.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE collection_id = $1 AND id = $2`,
		collectionID, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to find document: %w", err)
		}
		return nil, nil
	}
	return scanDocument(rows)
}

// Create はドキュメントを作成する。
func (r *PostgresDocumentRepo) Create(ctx context.Context, doc *model.Document, uniqueKey string) error {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode document data: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection_id, owner_id, data, unique_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.Collection, nullString(doc.OwnerID), data, nullString(uniqueKey), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to insert document", err)
	}
	return nil
}

// Update はドキュメントのフィールドと一意キーを置き換える。
func (r *PostgresDocumentRepo) Update(ctx context.Context, doc *model.Document, uniqueKey string) error {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode document data: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE documents SET data = $3, unique_key = $4, updated_at = $5
		 WHERE collection_id = $1 AND id = $2`,
		doc.Collection, doc.ID, data, nullString(uniqueKey), doc.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("failed to update document", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("document not found: %s", doc.ID)
	}
	return nil
}

// Delete は指定IDのドキュメントを削除する。
func (r *PostgresDocumentRepo) Delete(ctx context.Context, collectionID, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection_id = $1 AND id = $2`,
		collectionID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	doc := &model.Document{}
	var data []byte
	if err := rows.Scan(&doc.ID, &doc.Collection, &doc.OwnerID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.Fields = map[string]any{}
	if err := json.Unmarshal(data, &doc.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode document data: %w", err)
	}
	return doc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// compile-time interface check
var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
