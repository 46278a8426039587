package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Document はリモートストアのコレクションに保存されるドキュメントを表す。
type Document struct {
	ID         string         `json:"$id"`
	Collection string         `json:"$collection"`
	OwnerID    string         `json:"$owner,omitempty"`
	Fields     map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"$createdAt"`
	UpdatedAt  time.Time      `json:"$updatedAt"`
}

// String は指定フィールドを文字列として返す。存在しない場合は空文字列を返す。
func (d *Document) String(field string) string {
	v, ok := d.Fields[field]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int は指定フィールドを整数として返す。
// JSONデコード由来のfloat64やjson.Numberも受け付ける。
func (d *Document) Int(field string) (int64, error) {
	return ToInt64(d.Fields[field])
}

// ToInt64 はドキュメントのフィールド値を整数に変換する。
func ToInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case nil:
		return 0, fmt.Errorf("field is missing")
	default:
		return 0, fmt.Errorf("unsupported number type %T", v)
	}
}

// Collection はバックエンドのコレクション定義を表す。
type Collection struct {
	ID           string
	Name         string
	GuestAccess  bool     // 未ログインユーザーの読み書きを許可する
	OwnerScoped  bool     // 作成者のドキュメントのみ参照・更新できる
	UniqueFields []string // 組み合わせが一意となるフィールド
}

// 既定のコレクション名
const (
	FavoritesCollection    = "favorites"
	SearchCountsCollection = "search_counts"
)

// DefaultCollections はバックエンドが初期状態で持つコレクション定義を返す。
// favoritesは作成者専用で(user_id, movie_id)が一意、search_countsはゲストも含めて共有で search_term が一意。
func DefaultCollections() []Collection {
	return []Collection{
		{
			ID:           FavoritesCollection,
			Name:         "Favorite movies",
			GuestAccess:  false,
			OwnerScoped:  true,
			UniqueFields: []string{FieldUserID, FieldMovieID},
		},
		{
			ID:           SearchCountsCollection,
			Name:         "Search counts",
			GuestAccess:  true,
			OwnerScoped:  false,
			UniqueFields: []string{FieldSearchTerm},
		},
	}
}

// uniqueKeySeparator は一意キーの要素の区切り（ASCII Unit Separator）。
const uniqueKeySeparator = "\x1f"

// UniqueKey はコレクションの一意フィールドからドキュメントの一意キーを組み立てる。
// 一意フィールドを持たないコレクション、またはフィールドが欠けている場合は空文字列を返す。
func (c Collection) UniqueKey(fields map[string]any) string {
	if len(c.UniqueFields) == 0 {
		return ""
	}
	key := ""
	for i, f := range c.UniqueFields {
		v, ok := fields[f]
		if !ok || v == nil {
			return ""
		}
		if i > 0 {
			key += uniqueKeySeparator
		}
		key += ValueText(v)
	}
	return key
}

// DocumentKey は一意制約に使うキーを返す。
// 作成者専用のコレクションでは作成者IDを先頭に付け、一意性を作成者ごとに閉じる。
// 他人のドキュメントは見えないため、作成者をまたいで衝突させてはならない。
func (c Collection) DocumentKey(ownerID string, fields map[string]any) string {
	key := c.UniqueKey(fields)
	if key == "" || !c.OwnerScoped {
		return key
	}
	return ownerID + uniqueKeySeparator + key
}

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8
