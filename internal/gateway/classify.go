package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/moviesync/internal/model"
)

// scopeMarkers はスコープ不足・認可失敗を示すメッセージ断片。
var scopeMarkers = []string{
	"missing scope",
	model.ErrCodeUserUnauthorized,
}

// Classify はゲートウェイのエラーを境界で分類する。
// 認可・スコープ失敗は model.ErrNotAuthenticated に、それ以外は *model.RemoteError に正規化する。
// nilはnilのまま返す。分類済みのエラーはそのまま返す。
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, model.ErrNotAuthenticated) {
		return err
	}
	var remoteErr *model.RemoteError
	if errors.As(err, &remoteErr) {
		return err
	}
	if IsUnauthorized(err) {
		return model.ErrNotAuthenticated
	}
	return &model.RemoteError{Message: remoteMessage(err), Err: err}
}

// IsUnauthorized はエラーが認可・スコープ失敗を示すかどうかを判定する。
func IsUnauthorized(err error) bool {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		if gwErr.Type == model.ErrCodeUserUnauthorized {
			return true
		}
		if containsScopeMarker(gwErr.Message) {
			return true
		}
		return false
	}
	return containsScopeMarker(err.Error())
}

// ClassifyAuth はログイン・登録・パスワード更新のエラーをAuthErrorに分類する。
// スコープ失効は model.ErrNotAuthenticated とし、
// 該当する認証エラー種別がない場合はNetworkErrorとして扱う。
func ClassifyAuth(err error) error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		switch {
		case gwErr.Type == model.ErrCodeInvalidCredentials:
			return model.NewAuthError(model.AuthInvalidCredentials, err)
		case IsUnauthorized(err):
			return model.ErrNotAuthenticated
		case gwErr.Type == model.ErrCodeUserAlreadyExists || gwErr.Status == http.StatusConflict:
			return model.NewAuthError(model.AuthDuplicateEmail, err)
		case gwErr.Type == model.ErrCodePasswordTooWeak:
			return model.NewAuthError(model.AuthWeakPassword, err)
		case gwErr.Status == http.StatusUnauthorized:
			return model.NewAuthError(model.AuthInvalidCredentials, err)
		}
	}
	return model.NewAuthError(model.AuthNetworkError, err)
}

func containsScopeMarker(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range scopeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func remoteMessage(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}

func asError(err error, target **Error) bool {
	return err != nil && errors.As(err, target)
}
