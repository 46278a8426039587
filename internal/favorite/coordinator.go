// Package favorite はお気に入りの作成・削除をリモートストアと整合させるトグル処理を提供する。
package favorite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

// Coordinator はお気に入りのトグルを調停する。
//
// 検索と作成・削除は別々の呼び出しで、トランザクションでは保護されない。
// 2台の端末からの同時トグルは重複レコードを生みうる。
// バックエンドに一意キーがある場合、作成時の重複エラーを「既に保存済み」として扱う。
type Coordinator struct {
	gw         gateway.Gateway
	collection string
	logger     *slog.Logger
}

// NewCoordinator はCoordinatorを生成する。collectionが空の場合は既定のfavoritesを使う。
func NewCoordinator(gw gateway.Gateway, collection string, logger *slog.Logger) *Coordinator {
	if collection == "" {
		collection = model.FavoritesCollection
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{gw: gw, collection: collection, logger: logger}
}

// Toggle は映画のお気に入り状態を切り替える。
// 既存レコードがあれば削除して Removed を、なければ作成して Saved を返す。
// 未認証の場合はネットワーク呼び出しを行わず model.ErrNotAuthenticated を返す。
func (c *Coordinator) Toggle(ctx context.Context, identity *model.Identity, movie model.Movie) (model.FavoriteToggleResult, error) {
	// 1. 認証確認
	if identity == nil {
		return "", model.ErrNotAuthenticated
	}

	// 2. 既存レコードの検索
	docs, err := c.gw.ListDocuments(ctx, c.collection,
		model.Equal(model.FieldUserID, identity.ID),
		model.Equal(model.FieldMovieID, movie.ID),
	)
	if err != nil {
		return "", c.fail("list favorites", identity, movie, err)
	}

	// 3. 既存レコードがあれば先頭を削除
	if len(docs) > 0 {
		if len(docs) > 1 {
			anomaly := &model.DataAnomaly{
				Kind:    model.AnomalyDuplicateFavorites,
				UserID:  identity.ID,
				MovieID: movie.ID,
				Count:   len(docs),
			}
			c.logger.Warn("duplicate favorite records",
				slog.String("anomaly", anomaly.Error()),
				slog.String("record_id", docs[0].ID),
			)
		}
		if err := c.gw.DeleteDocument(ctx, c.collection, docs[0].ID); err != nil {
			return "", c.fail("delete favorite", identity, movie, err)
		}
		c.logger.Info("favorite removed",
			slog.String("user_id", identity.ID),
			slog.Int64("movie_id", movie.ID),
		)
		return model.FavoriteRemoved, nil
	}

	// 4. なければ作成
	_, err = c.gw.CreateDocument(ctx, c.collection, map[string]any{
		model.FieldUserID:    identity.ID,
		model.FieldMovieID:   movie.ID,
		model.FieldTitle:     movie.Title,
		model.FieldPosterURL: movie.PosterURL(),
	})
	if err != nil {
		if gateway.IsConflict(err) {
			// 別の端末が先に作成した。結果は保存済み。
			c.logger.Info("favorite already exists",
				slog.String("user_id", identity.ID),
				slog.Int64("movie_id", movie.ID),
			)
			return model.FavoriteSaved, nil
		}
		return "", c.fail("create favorite", identity, movie, err)
	}

	c.logger.Info("favorite saved",
		slog.String("user_id", identity.ID),
		slog.Int64("movie_id", movie.ID),
	)
	return model.FavoriteSaved, nil
}

// List はユーザーのお気に入りを作成日時の降順で返す。
func (c *Coordinator) List(ctx context.Context, identity *model.Identity) ([]model.FavoriteRecord, error) {
	if identity == nil {
		return nil, model.ErrNotAuthenticated
	}

	docs, err := c.gw.ListDocuments(ctx, c.collection,
		model.Equal(model.FieldUserID, identity.ID),
		model.OrderDesc(model.AttrCreatedAt),
	)
	if err != nil {
		return nil, gateway.Classify(err)
	}

	records := make([]model.FavoriteRecord, 0, len(docs))
	for i := range docs {
		rec, err := model.FavoriteFromDocument(&docs[i])
		if err != nil {
			c.logger.Warn("skipping malformed favorite", slog.String("error", err.Error()))
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// IsSaved は映画がお気に入りに保存されているかどうかを返す。
func (c *Coordinator) IsSaved(ctx context.Context, identity *model.Identity, movieID int64) (bool, error) {
	if identity == nil {
		return false, model.ErrNotAuthenticated
	}

	docs, err := c.gw.ListDocuments(ctx, c.collection,
		model.Equal(model.FieldUserID, identity.ID),
		model.Equal(model.FieldMovieID, movieID),
		model.Limit(1),
	)
	if err != nil {
		return false, gateway.Classify(err)
	}
	return len(docs) > 0, nil
}

// fail はエラーをログに記録し、境界で分類して返す。
func (c *Coordinator) fail(op string, identity *model.Identity, movie model.Movie, err error) error {
	classified := gateway.Classify(err)
	c.logger.Warn("favorite toggle failed",
		slog.String("op", op),
		slog.String("user_id", identity.ID),
		slog.Int64("movie_id", movie.ID),
		slog.String("error", err.Error()),
	)
	if classified == model.ErrNotAuthenticated {
		return classified
	}
	return fmt.Errorf("%s: %w", op, classified)
}
