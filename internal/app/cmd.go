package app

import (
	"fmt"
	"io"
	"strings"
)

// Command はmoviesyncバイナリのサブコマンドを表す。
type Command string

const (
	// CommandServe はREST APIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを定期削除するワーカーを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマを最新バージョンまで適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は起動中のサーバーの /health を確認する。
	// distrolessイメージにはcurlがないため、バイナリ自身で行う。
	CommandHealthcheck Command = "healthcheck"
	// CommandClient はバックエンドに接続するクライアントとして1つの操作を実行する。
	CommandClient Command = "client"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

type commandInfo struct {
	cmd     Command
	aliases []string
	summary string
}

// 表示順
var commands = []commandInfo{
	{CommandServe, nil, "start the REST API server (default)"},
	{CommandWorker, nil, "purge expired sessions periodically"},
	{CommandMigrate, nil, "apply pending database migrations"},
	{CommandHealthcheck, nil, "check /health of a running server"},
	{CommandClient, nil, "run a client action (moviesync client for the list)"},
	{CommandHelp, []string{"-h", "--help"}, "show this message"},
}

// ParseCommand は os.Args[1:] の先頭からサブコマンドを取り出す。
// 引数がなければ CommandServe を返し、未知のコマンドはエラーにする。
// 2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	name := strings.TrimSpace(args[0])
	for _, c := range commands {
		if name == string(c.cmd) {
			return c.cmd, nil
		}
		for _, a := range c.aliases {
			if name == a {
				return c.cmd, nil
			}
		}
	}
	return "", fmt.Errorf("unknown command %q", name)
}

// Usage はサブコマンドの一覧を書き出す。
func Usage(w io.Writer) {
	fmt.Fprintln(w, "usage: moviesync [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", c.cmd, c.summary)
	}
}
