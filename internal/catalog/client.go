// Package catalog は映画カタログAPI（TMDB v3）のクライアントを提供する。
// 検索・人気順一覧・詳細取得を行い、リクエストはレートリミッタで間引く。
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitoshi/moviesync/internal/model"
)

const (
	// DefaultBaseURL はTMDB v3 APIのベースURL。
	DefaultBaseURL = "https://api.themoviedb.org/3"
	// maxResponseSize はレスポンスボディの読み取り上限（2MB）。
	maxResponseSize = 2 << 20
)

// ErrMovieNotFound は指定IDの映画が存在しないことを表す。
var ErrMovieNotFound = errors.New("movie not found")

// Config はClientの設定。
type Config struct {
	BaseURL   string  // 空の場合は DefaultBaseURL
	APIKey    string  // v4 Read Access Token（Bearer）
	RateLimit float64 // 1秒あたりのリクエスト数。0以下の場合は制限しない
	Burst     int
}

// Client は映画カタログAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, cfg Config, logger *slog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    base,
		apiKey:     cfg.APIKey,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

type movieListResponse struct {
	Page         int           `json:"page"`
	Results      []model.Movie `json:"results"`
	TotalPages   int           `json:"total_pages"`
	TotalResults int           `json:"total_results"`
}

// SearchMovies はタイトルで映画を検索する。queryが空の場合は人気順の一覧を返す。
func (c *Client) SearchMovies(ctx context.Context, query string) ([]model.Movie, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.PopularMovies(ctx)
	}

	var resp movieListResponse
	params := url.Values{"query": {query}, "include_adult": {"false"}}
	if err := c.get(ctx, "/search/movie", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// PopularMovies は人気順の映画一覧を返す。
func (c *Client) PopularMovies(ctx context.Context) ([]model.Movie, error) {
	var resp movieListResponse
	params := url.Values{"sort_by": {"popularity.desc"}}
	if err := c.get(ctx, "/discover/movie", params, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// MovieDetails は映画の詳細を返す。存在しない場合は ErrMovieNotFound を返す。
func (c *Client) MovieDetails(ctx context.Context, id int64) (*model.MovieDetails, error) {
	var details model.MovieDetails
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// get はGETリクエストを送信し、レスポンスJSONをoutにデコードする。
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	// レート制限（コンテキストのキャンセルで中断する）
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "MovieSync/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("映画カタログAPIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrMovieNotFound
	case resp.StatusCode != http.StatusOK:
		c.logger.Error("映画カタログAPIがエラーステータスを返しました",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return fmt.Errorf("映画カタログAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Error("映画カタログAPIのレスポンスのパースに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
