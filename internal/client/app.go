// Package client はアプリ本体の依存関係を組み立てるファサードを提供する。
// 画面側はこのパッケージを経由してセッション・お気に入り・検索を操作する。
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/moviesync/internal/catalog"
	"github.com/hitoshi/moviesync/internal/config"
	"github.com/hitoshi/moviesync/internal/favorite"
	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/gateway/rest"
	"github.com/hitoshi/moviesync/internal/model"
	"github.com/hitoshi/moviesync/internal/search"
	"github.com/hitoshi/moviesync/internal/security"
	"github.com/hitoshi/moviesync/internal/session"
)

// Catalog は映画カタログの操作を定義する。
type Catalog interface {
	SearchMovies(ctx context.Context, query string) ([]model.Movie, error)
	PopularMovies(ctx context.Context) ([]model.Movie, error)
	MovieDetails(ctx context.Context, id int64) (*model.MovieDetails, error)
}

// Deps はAppの依存関係。
type Deps struct {
	Gateway             gateway.Gateway
	Catalog             Catalog
	FavoritesCollection string
	SearchCollection    string
	Logger              *slog.Logger
}

// App はセッション・お気に入り・検索回数・カタログをまとめたファサード。
type App struct {
	Session   *session.Manager
	Favorites *favorite.Coordinator
	Searches  *search.Aggregator
	catalog   Catalog
	logger    *slog.Logger

	startOnce sync.Once
}

// New はAppを生成する。
func New(deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		Session:   session.NewManager(deps.Gateway, logger.With(slog.String("component", "session"))),
		Favorites: favorite.NewCoordinator(deps.Gateway, deps.FavoritesCollection, logger.With(slog.String("component", "favorite"))),
		Searches:  search.NewAggregator(deps.Gateway, deps.SearchCollection, logger.With(slog.String("component", "search"))),
		catalog:   deps.Catalog,
		logger:    logger,
	}
}

// NewFromConfig はクライアント設定からREST Gatewayとカタログクライアントを組み立ててAppを生成する。
func NewFromConfig(cfg *config.ClientConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var store rest.SessionStore
	if cfg.SessionFile != "" {
		store = rest.FileSessionStore{Path: cfg.SessionFile}
	}
	gw, err := rest.NewClient(rest.Config{
		Endpoint:     cfg.Endpoint,
		Timeout:      cfg.GatewayTimeout,
		SessionStore: store,
		Logger:       logger.With(slog.String("component", "gateway")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	guard := security.NewOutboundGuard()
	if err := guard.ValidateEndpoint(cfg.TMDBBaseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog endpoint: %w", err)
	}
	cat := catalog.NewClient(guard.NewClient(cfg.CatalogTimeout), catalog.Config{
		BaseURL:   cfg.TMDBBaseURL,
		APIKey:    cfg.TMDBAPIKey,
		RateLimit: cfg.CatalogRateLimit,
		Burst:     5,
	}, logger.With(slog.String("component", "catalog")))

	return New(Deps{
		Gateway:             gw,
		Catalog:             cat,
		FavoritesCollection: cfg.FavoritesCollection,
		SearchCollection:    cfg.SearchCollection,
		Logger:              logger,
	}), nil
}

// Start は起動時のセッション復元を行う。何度呼んでも復元は1回だけ実行される。
func (a *App) Start(ctx context.Context) *model.Identity {
	a.startOnce.Do(func() {
		a.Session.Restore(ctx)
	})
	return a.Session.Current()
}

// Search はカタログで映画を検索し、先頭の結果で検索回数を記録する。
// 検索回数の記録に失敗した場合は、検索結果とともに記録のエラーを返す。
func (a *App) Search(ctx context.Context, term string) ([]model.Movie, error) {
	movies, err := a.catalog.SearchMovies(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("search movies: %w", err)
	}
	if strings.TrimSpace(term) == "" || len(movies) == 0 {
		return movies, nil
	}
	if err := a.Searches.RecordSearch(ctx, term, movies[0]); err != nil {
		return movies, fmt.Errorf("record search: %w", err)
	}
	return movies, nil
}

// Trending は検索回数の多い検索語を返す。
func (a *App) Trending(ctx context.Context) ([]model.SearchCountRecord, error) {
	return a.Searches.Trending(ctx, search.DefaultTrendingLimit)
}

// Popular は人気順の映画一覧を返す。
func (a *App) Popular(ctx context.Context) ([]model.Movie, error) {
	return a.catalog.PopularMovies(ctx)
}

// MovieDetails は映画の詳細と、ログイン中であればお気に入り状態を返す。
func (a *App) MovieDetails(ctx context.Context, id int64) (*model.MovieDetails, bool, error) {
	details, err := a.catalog.MovieDetails(ctx, id)
	if err != nil {
		return nil, false, err
	}
	identity := a.Session.Current()
	if identity == nil {
		return details, false, nil
	}
	saved, err := a.Favorites.IsSaved(ctx, identity, id)
	if err != nil {
		a.logger.Warn("failed to check favorite state",
			slog.Int64("movie_id", id),
			slog.String("error", err.Error()),
		)
		return details, false, nil
	}
	return details, saved, nil
}

// ToggleFavorite は現在のIdentityで映画のお気に入りを切り替える。
// セッションが失効していた場合はIdentityを再取得して状態を揃える。
func (a *App) ToggleFavorite(ctx context.Context, movie model.Movie) (model.FavoriteToggleResult, error) {
	result, err := a.Favorites.Toggle(ctx, a.Session.Current(), movie)
	if errors.Is(err, model.ErrNotAuthenticated) && a.Session.Current() != nil {
		if _, rerr := a.Session.Refresh(ctx); rerr != nil {
			a.logger.Info("session refresh after scope loss failed", slog.String("error", rerr.Error()))
		}
	}
	return result, err
}

// SavedMovies は現在のユーザーのお気に入りを新しい順に返す。
func (a *App) SavedMovies(ctx context.Context) ([]model.FavoriteRecord, error) {
	return a.Favorites.List(ctx, a.Session.Current())
}
