// Package search は検索語ごとの検索回数の集計と、トレンド映画の取得を提供する。
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/model"
)

// DefaultTrendingLimit はTrendingで件数が指定されなかった場合の件数。
const DefaultTrendingLimit = 5

// errConflictRetry は作成が一意キー競合で失敗し、加算に切り替えることを示す。
var errConflictRetry = errors.New("search term created concurrently")

// Aggregator は検索語ごとのカウンタドキュメントを更新する。
//
// 加算は楽観的並行性制御を行わない後勝ち更新で、同時加算は更新を失いうる。
type Aggregator struct {
	gw         gateway.Gateway
	collection string
	logger     *slog.Logger
}

// NewAggregator はAggregatorを生成する。collectionが空の場合は既定のsearch_countsを使う。
func NewAggregator(gw gateway.Gateway, collection string, logger *slog.Logger) *Aggregator {
	if collection == "" {
		collection = model.SearchCountsCollection
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{gw: gw, collection: collection, logger: logger}
}

// RecordSearch は検索語の検索回数を1増やす。
// 初回の検索ではその時点の映画のタイトルとポスターを記録したドキュメントをcount=1で作成する。
// エラーはログに記録したうえで呼び出し元に返す。
func (a *Aggregator) RecordSearch(ctx context.Context, term string, movie model.Movie) error {
	term = strings.TrimSpace(term)
	if term == "" {
		return fmt.Errorf("record search: empty search term")
	}

	err := a.recordOnce(ctx, term, movie)
	if errors.Is(err, errConflictRetry) {
		// 別の端末が先に作成した。加算の経路で一度だけ再試行する。
		err = a.recordOnce(ctx, term, movie)
		if errors.Is(err, errConflictRetry) {
			err = &model.RemoteError{Message: "search term could not be recorded", Err: err}
		}
	}
	if err != nil {
		a.logger.Error("failed to record search",
			slog.String("term", term),
			slog.Int64("movie_id", movie.ID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

func (a *Aggregator) recordOnce(ctx context.Context, term string, movie model.Movie) error {
	// 1. 既存レコードの検索
	docs, err := a.gw.ListDocuments(ctx, a.collection, model.Equal(model.FieldSearchTerm, term))
	if err != nil {
		return gateway.Classify(err)
	}

	// 2. 既存レコードがあれば加算
	if len(docs) > 0 {
		if len(docs) > 1 {
			anomaly := &model.DataAnomaly{
				Kind:    model.AnomalyDuplicateSearchTerm,
				MovieID: movie.ID,
				Count:   len(docs),
			}
			a.logger.Warn("duplicate search count records",
				slog.String("term", term),
				slog.String("anomaly", anomaly.Error()),
			)
		}
		doc := docs[0]
		count, err := doc.Int(model.FieldCount)
		if err != nil {
			return fmt.Errorf("search count %s: %w", doc.ID, err)
		}
		if _, err := a.gw.UpdateDocument(ctx, a.collection, doc.ID, map[string]any{
			model.FieldCount: count + 1,
		}); err != nil {
			return gateway.Classify(err)
		}
		a.logger.Debug("search count incremented",
			slog.String("term", term),
			slog.Int64("count", count+1),
		)
		return nil
	}

	// 3. なければcount=1で作成
	_, err = a.gw.CreateDocument(ctx, a.collection, map[string]any{
		model.FieldSearchTerm: term,
		model.FieldMovieID:    movie.ID,
		model.FieldTitle:      movie.Title,
		model.FieldPosterURL:  movie.PosterURL(),
		model.FieldCount:      1,
	})
	if err != nil {
		if gateway.IsConflict(err) {
			return errConflictRetry
		}
		return gateway.Classify(err)
	}
	a.logger.Debug("search count created", slog.String("term", term))
	return nil
}

// Trending は検索回数の多い順に検索語のレコードを返す。limitが0以下の場合は DefaultTrendingLimit 件を返す。
func (a *Aggregator) Trending(ctx context.Context, limit int) ([]model.SearchCountRecord, error) {
	if limit <= 0 {
		limit = DefaultTrendingLimit
	}
	if limit > model.MaxQueryLimit {
		limit = model.MaxQueryLimit
	}

	docs, err := a.gw.ListDocuments(ctx, a.collection,
		model.Limit(limit),
		model.OrderDesc(model.FieldCount),
	)
	if err != nil {
		classified := gateway.Classify(err)
		a.logger.Error("failed to fetch trending searches", slog.String("error", err.Error()))
		return nil, classified
	}

	records := make([]model.SearchCountRecord, 0, len(docs))
	for i := range docs {
		rec, err := model.SearchCountFromDocument(&docs[i])
		if err != nil {
			a.logger.Warn("skipping malformed search count", slog.String("error", err.Error()))
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}
