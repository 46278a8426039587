package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/moviesync/internal/model"
)

// --- compile-time interface checks ---

func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ AccountRepository = (*PostgresAccountRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ CollectionRepository = (*PostgresCollectionRepo)(nil)
	var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
}

// --- accounts ---

func TestPostgresAccountRepo_FindByEmail_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE email = $1`)).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "prefs", "created_at", "updated_at"}))

	repo := NewPostgresAccountRepo(db)
	account, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if account != nil {
		t.Errorf("expected nil account, got %+v", account)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresAccountRepo_FindByID_DecodesPrefs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM accounts WHERE id = $1`)).
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "password_hash", "prefs", "created_at", "updated_at"}).
			AddRow("acc-1", "a@example.com", "Alice", "$argon2id$...", []byte(`{"theme":"dark"}`), now, now))

	repo := NewPostgresAccountRepo(db)
	account, err := repo.FindByID(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if account.Email != "a@example.com" || account.Name != "Alice" {
		t.Errorf("unexpected account: %+v", account)
	}
	if account.Preferences["theme"] != "dark" {
		t.Errorf("expected prefs to be decoded, got %v", account.Preferences)
	}
}

func TestPostgresAccountRepo_Create_DuplicateEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "accounts_email_key"})

	repo := NewPostgresAccountRepo(db)
	err = repo.Create(context.Background(), &model.Account{ID: "acc-1", Email: "a@example.com"})
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestPostgresAccountRepo_UpdateName_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET name = $2`)).
		WithArgs("missing", "Bob").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresAccountRepo(db)
	if err := repo.UpdateName(context.Background(), "missing", "Bob"); err == nil {
		t.Fatal("expected error for missing account")
	}
}

// --- sessions ---

func TestPostgresSessionRepo_FindByID_Expired(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE id = $1 AND expires_at > now()`)).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "expires_at", "created_at"}))

	repo := NewPostgresSessionRepo(db)
	session, err := repo.FindByID(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session != nil {
		t.Errorf("expected nil session, got %+v", session)
	}
}

func TestPostgresSessionRepo_DeleteExpiredBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewPostgresSessionRepo(db)
	n, err := repo.DeleteExpiredBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

// --- collections ---

func TestPostgresCollectionRepo_FindByID_ScansUniqueFields(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM collections WHERE id = $1`)).
		WithArgs("favorites").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "guest_access", "owner_scoped", "unique_fields"}).
			AddRow("favorites", "Favorite movies", false, true, "{user_id,movie_id}"))

	repo := NewPostgresCollectionRepo(db)
	c, err := repo.FindByID(context.Background(), "favorites")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.OwnerScoped || c.GuestAccess {
		t.Errorf("unexpected flags: %+v", c)
	}
	if len(c.UniqueFields) != 2 || c.UniqueFields[0] != "user_id" || c.UniqueFields[1] != "movie_id" {
		t.Errorf("unique fields = %v", c.UniqueFields)
	}
}

// --- documents ---

func TestBuildListQuery_FavoriteLookup(t *testing.T) {
	query, args, err := buildListQuery(DocumentFilter{
		CollectionID: "favorites",
		OwnerID:      "acc-1",
		Queries: []model.Query{
			model.Equal("user_id", "acc-1"),
			model.Equal("movie_id", float64(42)),
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := `WHERE collection_id = $1 AND owner_id = $2 AND data->>$3 = $4 AND data->>$5 = $6 ORDER BY seq ASC LIMIT $7`
	if !strings.Contains(query, want) {
		t.Errorf("query = %q, want to contain %q", query, want)
	}
	wantArgs := []any{"favorites", "acc-1", "user_id", "acc-1", "movie_id", "42", model.MaxQueryLimit}
	if len(args) != len(wantArgs) {
		t.Fatalf("args = %v, want %v", args, wantArgs)
	}
	for i := range wantArgs {
		if args[i] != wantArgs[i] {
			t.Errorf("args[%d] = %v, want %v", i, args[i], wantArgs[i])
		}
	}
}

func TestBuildListQuery_TrendingOrder(t *testing.T) {
	query, args, err := buildListQuery(DocumentFilter{
		CollectionID: "search_counts",
		Queries: []model.Query{
			model.Limit(5),
			model.OrderDesc("count"),
			model.OrderDesc(model.AttrCreatedAt),
		},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(query, `ORDER BY data->$2 DESC, created_at DESC, seq ASC LIMIT $3`) {
		t.Errorf("unexpected query: %q", query)
	}
	if args[1] != "count" || args[2] != 5 {
		t.Errorf("unexpected args: %v", args)
	}
}

func TestBuildListQuery_EqualOnTimestampRejected(t *testing.T) {
	_, _, err := buildListQuery(DocumentFilter{
		CollectionID: "favorites",
		Queries:      []model.Query{model.Equal(model.AttrCreatedAt, "2026-01-01")},
	})
	if err == nil {
		t.Fatal("expected error for equal on $createdAt")
	}
}

func TestPostgresDocumentRepo_List_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM documents WHERE collection_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "collection_id", "owner_id", "data", "created_at", "updated_at"}).
			AddRow("doc-1", "favorites", "acc-1", []byte(`{"user_id":"acc-1","movie_id":42,"title":"Dune"}`), now, now))

	repo := NewPostgresDocumentRepo(db)
	docs, err := repo.List(context.Background(), DocumentFilter{CollectionID: "favorites", OwnerID: "acc-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].OwnerID != "acc-1" || docs[0].String("title") != "Dune" {
		t.Errorf("unexpected document: %+v", docs[0])
	}
	if id, _ := docs[0].Int("movie_id"); id != 42 {
		t.Errorf("movie_id = %d, want 42", id)
	}
}

func TestPostgresDocumentRepo_Create_UniqueKeyConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "documents_collection_unique_key"})

	repo := NewPostgresDocumentRepo(db)
	err = repo.Create(context.Background(), &model.Document{
		ID:         "doc-2",
		Collection: "search_counts",
		Fields:     map[string]any{"search_term": "dune", "count": 1},
	}, "dune")
	if !errors.Is(err, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestPostgresDocumentRepo_Create_GuestDocumentHasNullOwner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO documents`)).
		WithArgs("doc-3", "search_counts", nil, sqlmock.AnyArg(), "dune", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresDocumentRepo(db)
	err = repo.Create(context.Background(), &model.Document{
		ID:         "doc-3",
		Collection: "search_counts",
		Fields:     map[string]any{"search_term": "dune", "count": 1},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, "dune")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresDocumentRepo_Update_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE documents SET data = $3`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresDocumentRepo(db)
	err = repo.Update(context.Background(), &model.Document{ID: "gone", Collection: "search_counts"}, "")
	if err == nil {
		t.Fatal("expected error for missing document")
	}
}
