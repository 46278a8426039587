package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

// ErrPasswordRequired は標準入力からパスワードを読めなかったことを示す。
var ErrPasswordRequired = errors.New("password is required on the first line of stdin")

type action struct {
	name    string
	args    string
	minArgs int
	summary string
	run     func(ctx context.Context, a *App, in io.Reader, out io.Writer, args []string) error
}

// 表示順
var actions = []action{
	{"whoami", "", 0, "show the restored identity", runWhoami},
	{"login", "<email>", 1, "create a session (password from stdin)", runLogin},
	{"signup", "<email> <name>", 2, "create an account and log in (password from stdin)", runSignup},
	{"logout", "", 0, "delete the current session", runLogout},
	{"search", "<term>", 1, "search movies and record the term", runSearch},
	{"trending", "", 0, "list the most searched terms", runTrending},
	{"popular", "", 0, "list popular movies", runPopular},
	{"favorites", "", 0, "list saved movies, newest first", runFavorites},
	{"toggle", "<movie-id>", 1, "save or remove a movie", runToggle},
}

// RunCommand は `moviesync client` の引数を解釈して1つの操作を実行し、結果をoutに書き出す。
// 操作の前に保存済みセッションの復元を行う。
func RunCommand(ctx context.Context, a *App, in io.Reader, out io.Writer, args []string) error {
	if len(args) == 0 {
		CommandUsage(out)
		return errors.New("client: missing action")
	}
	for _, act := range actions {
		if act.name != args[0] {
			continue
		}
		rest := args[1:]
		if len(rest) < act.minArgs {
			return fmt.Errorf("client %s: usage: moviesync client %s %s", act.name, act.name, act.args)
		}
		a.Start(ctx)
		return act.run(ctx, a, in, out, rest)
	}
	CommandUsage(out)
	return fmt.Errorf("client: unknown action %q", args[0])
}

// CommandUsage は操作の一覧を書き出す。
func CommandUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: moviesync client <action> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "actions:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, act := range actions {
		fmt.Fprintf(tw, "  %s %s\t%s\n", act.name, act.args, act.summary)
	}
	tw.Flush()
}

func readPassword(in io.Reader) (string, error) {
	sc := bufio.NewScanner(in)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return "", ErrPasswordRequired
	}
	password := strings.TrimRight(sc.Text(), "\r")
	if password == "" {
		return "", ErrPasswordRequired
	}
	return password, nil
}

func runWhoami(_ context.Context, a *App, _ io.Reader, out io.Writer, _ []string) error {
	identity := a.Session.Current()
	if identity == nil {
		fmt.Fprintln(out, "anonymous")
		return nil
	}
	fmt.Fprintf(out, "%s\t%s\t%s\n", identity.ID, identity.Email, identity.Name)
	return nil
}

func runLogin(ctx context.Context, a *App, in io.Reader, out io.Writer, args []string) error {
	password, err := readPassword(in)
	if err != nil {
		return err
	}
	identity, err := a.Session.Login(ctx, args[0], password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(out, "logged in as %s (%s)\n", identity.Name, identity.Email)
	return nil
}

func runSignup(ctx context.Context, a *App, in io.Reader, out io.Writer, args []string) error {
	password, err := readPassword(in)
	if err != nil {
		return err
	}
	identity, err := a.Session.Signup(ctx, strings.Join(args[1:], " "), args[0], password)
	if err != nil {
		return fmt.Errorf("signup: %w", err)
	}
	fmt.Fprintf(out, "signed up as %s (%s)\n", identity.Name, identity.Email)
	return nil
}

func runLogout(ctx context.Context, a *App, _ io.Reader, out io.Writer, _ []string) error {
	a.Session.Logout(ctx)
	fmt.Fprintln(out, "logged out")
	return nil
}

func runSearch(ctx context.Context, a *App, _ io.Reader, out io.Writer, args []string) error {
	movies, err := a.Search(ctx, strings.Join(args, " "))
	// 記録に失敗しても検索結果は表示する
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, m := range movies {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", m.ID, m.Title, m.ReleaseDate)
	}
	tw.Flush()
	return err
}

func runTrending(ctx context.Context, a *App, _ io.Reader, out io.Writer, _ []string) error {
	records, err := a.Trending(ctx)
	if err != nil {
		return fmt.Errorf("trending: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Count, r.SearchTerm, r.Title)
	}
	return tw.Flush()
}

func runPopular(ctx context.Context, a *App, _ io.Reader, out io.Writer, _ []string) error {
	movies, err := a.Popular(ctx)
	if err != nil {
		return fmt.Errorf("popular: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, m := range movies {
		fmt.Fprintf(tw, "%d\t%s\t%.1f\n", m.ID, m.Title, m.VoteAverage)
	}
	return tw.Flush()
}

func runFavorites(ctx context.Context, a *App, _ io.Reader, out io.Writer, _ []string) error {
	records, err := a.SavedMovies(ctx)
	if err != nil {
		return fmt.Errorf("favorites: %w", err)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\n", r.MovieID, r.Title)
	}
	return tw.Flush()
}

func runToggle(ctx context.Context, a *App, _ io.Reader, out io.Writer, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("toggle: invalid movie id %q", args[0])
	}
	details, _, err := a.MovieDetails(ctx, id)
	if err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	result, err := a.ToggleFavorite(ctx, details.Movie)
	if err != nil {
		return fmt.Errorf("toggle: %w", err)
	}
	fmt.Fprintf(out, "%s\t%d\t%s\n", result, details.ID, details.Title)
	return nil
}
