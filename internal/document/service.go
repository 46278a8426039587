// Package document はコレクション単位のドキュメント操作と、その認可を提供する。
package document

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/moviesync/internal/model"
	"github.com/hitoshi/moviesync/internal/repository"
)

// 認可スコープ
const (
	ScopeRead  = "documents.read"
	ScopeWrite = "documents.write"
)

// Service はドキュメントの一覧・作成・更新・削除を提供する。
// accountIDが空文字列の呼び出しはゲストとして扱う。
type Service struct {
	collectionRepo repository.CollectionRepository
	documentRepo   repository.DocumentRepository
}

// NewService はServiceを生成する。
func NewService(
	collectionRepo repository.CollectionRepository,
	documentRepo repository.DocumentRepository,
) *Service {
	return &Service{
		collectionRepo: collectionRepo,
		documentRepo:   documentRepo,
	}
}

// List は述語に一致するドキュメントを返す。
// 作成者専用のコレクションでは呼び出し元のドキュメントだけが対象になる。
func (s *Service) List(ctx context.Context, accountID, collectionID string, queries []model.Query) ([]model.Document, error) {
	// 1. 述語の検証
	for _, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, model.NewInvalidQueryError(err.Error())
		}
		if q.Method == model.QueryMethodEqual && (q.Attribute == model.AttrCreatedAt || q.Attribute == model.AttrUpdatedAt) {
			return nil, model.NewInvalidQueryError(fmt.Sprintf("equal is not supported on %s", q.Attribute))
		}
	}

	// 2. コレクションへのアクセス権を確認
	coll, err := s.authorize(ctx, accountID, collectionID, ScopeRead)
	if err != nil {
		return nil, err
	}

	// 3. 検索
	filter := repository.DocumentFilter{CollectionID: coll.ID, Queries: queries}
	if coll.OwnerScoped {
		filter.OwnerID = accountID
	}
	docs, err := s.documentRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Create はドキュメントを作成する。
// 一意フィールドの組み合わせが既存ドキュメントと重複する場合は document_already_exists を返す。
func (s *Service) Create(ctx context.Context, accountID, collectionID string, fields map[string]any) (*model.Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	coll, err := s.authorize(ctx, accountID, collectionID, ScopeWrite)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := &model.Document{
		ID:         uuid.New().String(),
		Collection: coll.ID,
		OwnerID:    accountID,
		Fields:     maps.Clone(fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.documentRepo.Create(ctx, doc, coll.DocumentKey(doc.OwnerID, doc.Fields)); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewDocumentAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return doc, nil
}

// Update は指定フィールドだけを上書きする。指定されなかったフィールドは保持する。
func (s *Service) Update(ctx context.Context, accountID, collectionID, id string, fields map[string]any) (*model.Document, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	coll, err := s.authorize(ctx, accountID, collectionID, ScopeWrite)
	if err != nil {
		return nil, err
	}
	doc, err := s.findAccessible(ctx, coll, accountID, id)
	if err != nil {
		return nil, err
	}

	// 既存フィールドに上書きして一意キーを再計算
	merged := maps.Clone(doc.Fields)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, fields)
	doc.Fields = merged
	doc.UpdatedAt = time.Now().UTC()

	if err := s.documentRepo.Update(ctx, doc, coll.DocumentKey(doc.OwnerID, merged)); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewDocumentAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

// Delete はドキュメントを削除する。
func (s *Service) Delete(ctx context.Context, accountID, collectionID, id string) error {
	coll, err := s.authorize(ctx, accountID, collectionID, ScopeWrite)
	if err != nil {
		return err
	}
	if _, err := s.findAccessible(ctx, coll, accountID, id); err != nil {
		return err
	}
	if err := s.documentRepo.Delete(ctx, coll.ID, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// authorize はコレクションの存在とスコープを確認する。
// ゲストはゲストアクセスを許可したコレクションだけを操作できる。
func (s *Service) authorize(ctx context.Context, accountID, collectionID, scope string) (*model.Collection, error) {
	coll, err := s.collectionRepo.FindByID(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find collection: %w", err)
	}
	if coll == nil {
		return nil, model.NewCollectionNotFoundError(collectionID)
	}
	if accountID == "" && !coll.GuestAccess {
		return nil, model.NewMissingScopeError(scope)
	}
	return coll, nil
}

// findAccessible は呼び出し元が操作できるドキュメントを取得する。
// 存在しないID、形式が不正なID、他人のドキュメントはいずれも document_not_found とする。
func (s *Service) findAccessible(ctx context.Context, coll *model.Collection, accountID, id string) (*model.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, model.NewDocumentNotFoundError(id)
	}
	doc, err := s.documentRepo.FindByID(ctx, coll.ID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	if doc == nil || (coll.OwnerScoped && doc.OwnerID != accountID) {
		return nil, model.NewDocumentNotFoundError(id)
	}
	return doc, nil
}

// validateFields はフィールド名を検証する。"$"で始まる名前はメタデータ用に予約されている。
func validateFields(fields map[string]any) error {
	if fields == nil {
		return model.NewInvalidRequestError("data is required")
	}
	for k := range fields {
		if k == "" || strings.HasPrefix(k, "$") {
			return model.NewInvalidRequestError(fmt.Sprintf("invalid field name %q", k))
		}
	}
	return nil
}
