package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// QueryMethod はドキュメント検索述語の種類を表す。
type QueryMethod string

const (
	QueryMethodEqual     QueryMethod = "equal"
	QueryMethodOrderAsc  QueryMethod = "orderAsc"
	QueryMethodOrderDesc QueryMethod = "orderDesc"
	QueryMethodLimit     QueryMethod = "limit"
)

// 属性名のうち、ドキュメントのフィールドではなくメタデータを指すもの。
const (
	AttrID        = "$id"
	AttrCreatedAt = "$createdAt"
	AttrUpdatedAt = "$updatedAt"
)

// MaxQueryLimit はlimit述語に指定できる上限値。
const MaxQueryLimit = 100

// Query はListDocumentsに渡す述語の1つを表す。
// 述語は順序付きリストとして解釈され、等価条件はAND結合、並び順は出現順に適用される。
type Query struct {
	Method    QueryMethod `json:"method"`
	Attribute string      `json:"attribute,omitempty"`
	Values    []any       `json:"values,omitempty"`
}

// Equal は属性が値と等しいドキュメントに絞り込む述語を返す。
func Equal(attribute string, value any) Query {
	return Query{Method: QueryMethodEqual, Attribute: attribute, Values: []any{value}}
}

// OrderAsc は属性の昇順に並べる述語を返す。
func OrderAsc(attribute string) Query {
	return Query{Method: QueryMethodOrderAsc, Attribute: attribute}
}

// OrderDesc は属性の降順に並べる述語を返す。
func OrderDesc(attribute string) Query {
	return Query{Method: QueryMethodOrderDesc, Attribute: attribute}
}

// Limit は取得件数を制限する述語を返す。
func Limit(n int) Query {
	return Query{Method: QueryMethodLimit, Values: []any{n}}
}

// Validate は述語の形式を検証する。
func (q Query) Validate() error {
	switch q.Method {
	case QueryMethodEqual:
		if q.Attribute == "" {
			return fmt.Errorf("equal requires an attribute")
		}
		if len(q.Values) != 1 {
			return fmt.Errorf("equal requires exactly one value")
		}
		switch q.Values[0].(type) {
		case string, bool, float64, int, int64, json.Number:
		default:
			return fmt.Errorf("unsupported value type %T for %s", q.Values[0], q.Attribute)
		}
	case QueryMethodOrderAsc, QueryMethodOrderDesc:
		if q.Attribute == "" {
			return fmt.Errorf("%s requires an attribute", q.Method)
		}
	case QueryMethodLimit:
		if len(q.Values) != 1 {
			return fmt.Errorf("limit requires exactly one value")
		}
		n, err := ToInt64(q.Values[0])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if n < 1 || n > MaxQueryLimit {
			return fmt.Errorf("limit must be between 1 and %d", MaxQueryLimit)
		}
	default:
		return fmt.Errorf("unknown query method: %q", q.Method)
	}
	return nil
}

// LimitValue はlimit述語の値を返す。
func (q Query) LimitValue() int {
	n, _ := ToInt64(q.Values[0])
	return int(n)
}

// EncodeQueries は述語リストをクエリパラメータ用のJSON文字列に変換する。
func EncodeQueries(queries []Query) (string, error) {
	if len(queries) == 0 {
		return "", nil
	}
	b, err := json.Marshal(queries)
	if err != nil {
		return "", fmt.Errorf("failed to encode queries: %w", err)
	}
	return string(b), nil
}

// DecodeQueries はJSON文字列から述語リストを復元し、各述語を検証する。
// 空文字列の場合は空のリストを返す。
func DecodeQueries(raw string) ([]Query, error) {
	if raw == "" {
		return nil, nil
	}
	var queries []Query
	if err := json.Unmarshal([]byte(raw), &queries); err != nil {
		return nil, fmt.Errorf("failed to decode queries: %w", err)
	}
	for _, q := range queries {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	return queries, nil
}

// ValueText は等価比較用に値を正規化した文字列を返す。
// 数値は 42 と 42.0 を区別しないよう、最短表現に揃える。
// PostgreSQLの fields->>'attr' が返すテキストと一致する。
func ValueText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
