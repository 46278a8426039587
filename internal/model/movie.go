package model

import (
	"fmt"
	"time"
)

const (
	// PosterBaseURL はTMDBのポスター画像（幅500px）のベースURL。
	PosterBaseURL = "https://image.tmdb.org/t/p/w500"
	// PlaceholderPosterURL はポスターを持たない映画に使う固定画像。
	PlaceholderPosterURL = "https://placehold.co/600x400/1a1a1a/FFFFFF.png"
)

// Movie は映画カタログ（TMDB）から取得した映画を表す。
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"poster_path"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

// PosterURL はポスター画像のURLを返す。
// ポスターパスがない場合はプレースホルダーURLを返す。
func (m Movie) PosterURL() string {
	if m.PosterPath == "" {
		return PlaceholderPosterURL
	}
	return PosterBaseURL + m.PosterPath
}

// MovieDetails は映画詳細画面で使う追加情報を含む映画を表す。
type MovieDetails struct {
	Movie
	Runtime             int       `json:"runtime"`
	Budget              int64     `json:"budget"`
	Revenue             int64     `json:"revenue"`
	Genres              []NamedID `json:"genres"`
	ProductionCompanies []NamedID `json:"production_companies"`
}

// NamedID はTMDBのジャンルや制作会社などの名前付きIDを表す。
type NamedID struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FavoriteRecord はユーザーと映画の「お気に入り」関係を表す。
// (UserID, MovieID)の組につき高々1件だけ存在する。
type FavoriteRecord struct {
	RecordID  string
	UserID    string
	MovieID   int64
	Title     string
	PosterURL string
	CreatedAt time.Time
}

// FavoriteToggleResult はお気に入りトグルの結果を表す。
type FavoriteToggleResult string

const (
	// FavoriteSaved はお気に入りが新規作成されたことを示す。
	FavoriteSaved FavoriteToggleResult = "saved"
	// FavoriteRemoved は既存のお気に入りが削除されたことを示す。
	FavoriteRemoved FavoriteToggleResult = "removed"
)

// SearchCountRecord は検索語ごとの検索回数を表す。
// 検索語につき高々1件だけ存在し、このモジュールから削除されることはない。
type SearchCountRecord struct {
	RecordID   string
	SearchTerm string
	MovieID    int64
	Title      string
	PosterURL  string
	Count      int
}

// お気に入り・検索回数ドキュメントのフィールド名
const (
	FieldUserID     = "user_id"
	FieldMovieID    = "movie_id"
	FieldTitle      = "title"
	FieldPosterURL  = "poster_url"
	FieldSearchTerm = "search_term"
	FieldCount      = "count"
)

// FavoriteFromDocument はfavoritesコレクションのドキュメントをFavoriteRecordに変換する。
func FavoriteFromDocument(doc *Document) (*FavoriteRecord, error) {
	movieID, err := doc.Int(FieldMovieID)
	if err != nil {
		return nil, fmt.Errorf("favorite %s: invalid %s: %w", doc.ID, FieldMovieID, err)
	}
	return &FavoriteRecord{
		RecordID:  doc.ID,
		UserID:    doc.String(FieldUserID),
		MovieID:   movieID,
		Title:     doc.String(FieldTitle),
		PosterURL: doc.String(FieldPosterURL),
		CreatedAt: doc.CreatedAt,
	}, nil
}

// SearchCountFromDocument はsearch_countsコレクションのドキュメントをSearchCountRecordに変換する。
// movie_idが欠けているドキュメントは0として扱う。
func SearchCountFromDocument(doc *Document) (*SearchCountRecord, error) {
	count, err := doc.Int(FieldCount)
	if err != nil {
		return nil, fmt.Errorf("search count %s: invalid %s: %w", doc.ID, FieldCount, err)
	}
	var movieID int64
	if _, ok := doc.Fields[FieldMovieID]; ok {
		if movieID, err = doc.Int(FieldMovieID); err != nil {
			return nil, fmt.Errorf("search count %s: invalid %s: %w", doc.ID, FieldMovieID, err)
		}
	}
	return &SearchCountRecord{
		RecordID:   doc.ID,
		SearchTerm: doc.String(FieldSearchTerm),
		MovieID:    movieID,
		Title:      doc.String(FieldTitle),
		PosterURL:  doc.String(FieldPosterURL),
		Count:      int(count),
	}, nil
}
