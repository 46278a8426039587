package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hitoshi/moviesync/internal/client"
	"github.com/hitoshi/moviesync/internal/config"
	"github.com/hitoshi/moviesync/internal/logger"
)

// runClient は環境変数のクライアント設定でAppを組み立て、1つの操作を実行する。
// ログは操作結果と混ざらないよう標準エラーに出す。
func runClient(w io.Writer, in io.Reader, args []string) error {
	logger.SetupDefault(os.Stderr, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("failed to load client config: %w", err)
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = defaultSessionFile()
	}

	a, err := client.NewFromConfig(cfg, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return client.RunCommand(ctx, a, in, w, args)
}

// defaultSessionFile はコマンド間でセッションを引き継ぐためのトークンファイルの既定パスを返す。
// ユーザー設定ディレクトリがない環境では空文字列（プロセス内でのみ保持）を返す。
func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "moviesync", "session")
}
