package search

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/hitoshi/moviesync/internal/gateway"
	"github.com/hitoshi/moviesync/internal/gateway/gatewaytest"
	"github.com/hitoshi/moviesync/internal/gateway/memgw"
	"github.com/hitoshi/moviesync/internal/model"
)

var dune = model.Movie{ID: 42, Title: "Dune", PosterPath: "/abc.jpg"}

func countFor(t *testing.T, gw *memgw.Gateway, term string) (int64, string, int) {
	t.Helper()
	docs, err := gw.ListDocuments(context.Background(), model.SearchCountsCollection,
		model.Equal(model.FieldSearchTerm, term))
	if err != nil {
		t.Fatalf("ListDocuments returned error: %v", err)
	}
	if len(docs) == 0 {
		return 0, "", 0
	}
	count, err := docs[0].Int(model.FieldCount)
	if err != nil {
		t.Fatalf("invalid count: %v", err)
	}
	return count, docs[0].String(model.FieldTitle), len(docs)
}

func TestRecordSearch_CreatesThenIncrements(t *testing.T) {
	gw := memgw.New()
	a := NewAggregator(gw, "", nil)
	ctx := context.Background()

	if err := a.RecordSearch(ctx, "dune", dune); err != nil {
		t.Fatalf("first RecordSearch returned error: %v", err)
	}
	count, _, n := countFor(t, gw, "dune")
	if count != 1 || n != 1 {
		t.Fatalf("expected one record with count 1, got %d records with count %d", n, count)
	}

	if err := a.RecordSearch(ctx, "dune", dune); err != nil {
		t.Fatalf("second RecordSearch returned error: %v", err)
	}
	count, _, n = countFor(t, gw, "dune")
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
	if n != 1 {
		t.Errorf("expected a single record for the term, got %d", n)
	}
	if total := gw.Backend().DocumentCount(model.SearchCountsCollection); total != 1 {
		t.Errorf("expected 1 document in collection, got %d", total)
	}
}

func TestRecordSearch_CreatedFields(t *testing.T) {
	var created map[string]any
	mock := &gatewaytest.Mock{
		CreateDocumentFn: func(_ context.Context, collection string, fields map[string]any) (*model.Document, error) {
			created = fields
			return &model.Document{ID: "s1", Collection: collection, Fields: fields}, nil
		},
	}
	a := NewAggregator(mock, "", nil)

	if err := a.RecordSearch(context.Background(), "dune", dune); err != nil {
		t.Fatalf("RecordSearch returned error: %v", err)
	}
	if created[model.FieldSearchTerm] != "dune" {
		t.Errorf("expected search_term dune, got %v", created[model.FieldSearchTerm])
	}
	if created[model.FieldMovieID] != int64(42) {
		t.Errorf("expected movie_id 42, got %v", created[model.FieldMovieID])
	}
	if created[model.FieldCount] != 1 {
		t.Errorf("expected count 1, got %v", created[model.FieldCount])
	}
	if created[model.FieldPosterURL] != "https://image.tmdb.org/t/p/w500/abc.jpg" {
		t.Errorf("unexpected poster_url: %v", created[model.FieldPosterURL])
	}
}

func TestRecordSearch_KeepsFirstOccurrenceSnapshot(t *testing.T) {
	gw := memgw.New()
	a := NewAggregator(gw, "", nil)
	ctx := context.Background()

	if err := a.RecordSearch(ctx, "dune", dune); err != nil {
		t.Fatalf("RecordSearch returned error: %v", err)
	}
	renamed := dune
	renamed.Title = "Dune: Part One"
	if err := a.RecordSearch(ctx, "dune", renamed); err != nil {
		t.Fatalf("RecordSearch returned error: %v", err)
	}

	_, title, _ := countFor(t, gw, "dune")
	if title != "Dune" {
		t.Errorf("expected title snapshot %q, got %q", "Dune", title)
	}
}

func TestRecordSearch_CreateConflict_FallsBackToIncrement(t *testing.T) {
	lists := 0
	var updated map[string]any
	mock := &gatewaytest.Mock{
		ListDocumentsFn: func(_ context.Context, _ string, _ ...model.Query) ([]model.Document, error) {
			lists++
			if lists == 1 {
				return nil, nil
			}
			return []model.Document{{
				ID:     "s1",
				Fields: map[string]any{model.FieldSearchTerm: "dune", model.FieldCount: float64(1)},
			}}, nil
		},
		CreateDocumentFn: func(_ context.Context, _ string, _ map[string]any) (*model.Document, error) {
			return nil, &gateway.Error{Status: http.StatusConflict, Type: model.ErrCodeDocumentAlreadyExists}
		},
		UpdateDocumentFn: func(_ context.Context, _, id string, fields map[string]any) (*model.Document, error) {
			updated = fields
			return &model.Document{ID: id, Fields: fields}, nil
		},
	}
	a := NewAggregator(mock, "", nil)

	if err := a.RecordSearch(context.Background(), "dune", dune); err != nil {
		t.Fatalf("RecordSearch returned error: %v", err)
	}
	if updated[model.FieldCount] != int64(2) {
		t.Errorf("expected count 2, got %v", updated[model.FieldCount])
	}
	if mock.Calls("CreateDocument") != 1 {
		t.Errorf("expected one create attempt, got %d", mock.Calls("CreateDocument"))
	}
}

func TestRecordSearch_RemoteError_Returned(t *testing.T) {
	mock := &gatewaytest.Mock{
		ListDocumentsFn: func(_ context.Context, _ string, _ ...model.Query) ([]model.Document, error) {
			return nil, errors.New("context deadline exceeded")
		},
	}
	a := NewAggregator(mock, "", nil)

	err := a.RecordSearch(context.Background(), "dune", dune)
	var remoteErr *model.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestRecordSearch_EmptyTerm(t *testing.T) {
	mock := &gatewaytest.Mock{}
	a := NewAggregator(mock, "", nil)

	if err := a.RecordSearch(context.Background(), "  ", dune); err == nil {
		t.Fatal("expected error for empty term")
	}
	if n := mock.TotalCalls(); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}
}

func TestTrending_OrderedByCount(t *testing.T) {
	gw := memgw.New()
	a := NewAggregator(gw, "", nil)
	ctx := context.Background()

	searches := map[string]int{"dune": 3, "alien": 1, "heat": 5, "up": 2, "jaws": 4, "cars": 1}
	id := int64(1)
	for term, n := range searches {
		movie := model.Movie{ID: id, Title: term}
		id++
		for range n {
			if err := a.RecordSearch(ctx, term, movie); err != nil {
				t.Fatalf("RecordSearch(%q) returned error: %v", term, err)
			}
		}
	}

	records, err := a.Trending(ctx, 0)
	if err != nil {
		t.Fatalf("Trending returned error: %v", err)
	}
	if len(records) != DefaultTrendingLimit {
		t.Fatalf("expected %d records, got %d", DefaultTrendingLimit, len(records))
	}
	wantTerms := []string{"heat", "jaws", "dune", "up"}
	for i, want := range wantTerms {
		if records[i].SearchTerm != want {
			t.Errorf("record %d: expected %q, got %q", i, want, records[i].SearchTerm)
		}
	}
	if records[0].Count != 5 {
		t.Errorf("expected top count 5, got %d", records[0].Count)
	}
	if records[0].PosterURL != model.PlaceholderPosterURL {
		t.Errorf("expected placeholder poster, got %q", records[0].PosterURL)
	}
}
