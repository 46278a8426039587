package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/moviesync/internal/metrics"
	"github.com/hitoshi/moviesync/internal/middleware"
	"github.com/hitoshi/moviesync/internal/model"
)

// DocumentServiceInterface はドキュメントハンドラーが必要とするサービスインターフェース。
// accountIDが空文字列の呼び出しはゲストとして扱われる。
type DocumentServiceInterface interface {
	List(ctx context.Context, accountID, collectionID string, queries []model.Query) ([]model.Document, error)
	Create(ctx context.Context, accountID, collectionID string, fields map[string]any) (*model.Document, error)
	Update(ctx context.Context, accountID, collectionID, id string, fields map[string]any) (*model.Document, error)
	Delete(ctx context.Context, accountID, collectionID, id string) error
}

// DocumentHandler はコレクション内ドキュメントのHTTPハンドラー。
type DocumentHandler struct {
	service DocumentServiceInterface
	metrics metrics.MetricsCollector
}

// NewDocumentHandler はDocumentHandlerを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewDocumentHandler(service DocumentServiceInterface, collector metrics.MetricsCollector) *DocumentHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &DocumentHandler{
		service: service,
		metrics: collector,
	}
}

// documentWriteRequest はドキュメント作成・更新リクエストのボディ。
type documentWriteRequest struct {
	Data map[string]any `json:"data"`
}

// documentListResponse はドキュメント一覧のAPIレスポンス。
type documentListResponse struct {
	Total     int              `json:"total"`
	Documents []model.Document `json:"documents"`
}

// List は述語に一致するドキュメントを返す。
// GET /v1/collections/{collection}/documents?queries=[...]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	queries, err := model.DecodeQueries(r.URL.Query().Get("queries"))
	if err != nil {
		h.record(collection, "list", err)
		handleServiceError(w, model.NewInvalidQueryError(err.Error()))
		return
	}

	docs, err := h.service.List(r.Context(), accountID(r), collection, queries)
	h.record(collection, "list", err)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if docs == nil {
		docs = []model.Document{}
	}
	writeJSON(w, http.StatusOK, documentListResponse{Total: len(docs), Documents: docs})
}

// Create はドキュメントを作成する。
// POST /v1/collections/{collection}/documents
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")

	var req documentWriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.record(collection, "create", err)
		handleServiceError(w, err)
		return
	}

	doc, err := h.service.Create(r.Context(), accountID(r), collection, req.Data)
	h.record(collection, "create", err)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

// Update はドキュメントの指定フィールドを更新する。
// PATCH /v1/collections/{collection}/documents/{id}
func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	var req documentWriteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.record(collection, "update", err)
		handleServiceError(w, err)
		return
	}

	doc, err := h.service.Update(r.Context(), accountID(r), collection, id, req.Data)
	h.record(collection, "update", err)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// Delete はドキュメントを削除する。
// DELETE /v1/collections/{collection}/documents/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	err := h.service.Delete(r.Context(), accountID(r), collection, id)
	h.record(collection, "delete", err)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// record はドキュメント操作の結果を記録する。
// 存在しないコレクション名はラベルの種類を増やさないよう unknown にまとめる。
func (h *DocumentHandler) record(collection, operation string, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeCollectionNotFound {
		collection = "unknown"
	}
	h.metrics.RecordDocumentOperation(collection, operation, resultOf(err))
}

// accountID はリクエストのアカウントIDを返す。ゲストの場合は空文字列。
func accountID(r *http.Request) string {
	id, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		return ""
	}
	return id
}
