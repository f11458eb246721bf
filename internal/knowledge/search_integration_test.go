//go:build integration

package knowledge

import (
	"context"
	"math"
	"testing"

	"github.com/firebase/genkit/go/genkit"
	"github.com/google/uuid"

	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
	"github.com/woodpecker023/woo-ai-chatbot/internal/log"
	"github.com/woodpecker023/woo-ai-chatbot/internal/testutil"
)

const dim = int(config.VectorDimension)

// axis returns a unit vector along the given dimension. Orthogonal axes
// give exact cosine similarity 0; blends give any similarity in between.
func axis(i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

// blend returns a unit vector with cosine similarity sim to axis(0).
func blend(sim float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(sim)
	v[1] = float32(math.Sqrt(1 - sim*sim))
	return v
}

type searchFixture struct {
	retriever *Retriever
	embedder  *testutil.MockEmbedder
	storeID   uuid.UUID
	db        *testutil.TestDB
}

func setupSearch(t *testing.T) *searchFixture {
	t.Helper()

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	g := genkit.Init(ctx)

	mock := testutil.NewMockEmbedder(dim)
	embedder := mock.Register(g)

	retriever, err := NewRetriever(db.Pool, embedder, config.Retrieval{
		SemanticWeight:       0.6,
		KeywordWeight:        0.4,
		KeywordScale:         2.0,
		DefaultMinSimilarity: 0.2,
		FocusedMinSimilarity: 0.3,
		StrictMinSimilarity:  0.4,
		ProductLimit:         5,
		FaqLimit:             3,
		MaxLimit:             20,
	}, log.NewNop())
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	var storeID uuid.UUID
	err = db.Pool.QueryRow(ctx,
		`INSERT INTO stores (name, api_key) VALUES ($1, $2) RETURNING id`,
		"Fixture Store", "key-"+uuid.NewString(),
	).Scan(&storeID)
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	return &searchFixture{retriever: retriever, embedder: mock, storeID: storeID, db: db}
}

func (f *searchFixture) addProduct(t *testing.T, name, description string, vec []float32) uuid.UUID {
	t.Helper()
	f.embedder.SetVector(name+" "+description, vec)
	id, err := f.retriever.AddProduct(context.Background(), f.storeID, ProductInput{
		Name: name, Description: description, Price: "19.90", URL: "https://shop.example/" + name,
	})
	if err != nil {
		t.Fatalf("AddProduct %q: %v", name, err)
	}
	return id
}

func TestSearch_SemanticRankingAndFloor(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	near := f.addProduct(t, "Winter Jacket", "warm insulated parka", blend(0.9))
	mid := f.addProduct(t, "Autumn Coat", "light transitional coat", blend(0.5))
	f.addProduct(t, "Beach Towel", "striped cotton towel", axis(1)) // similarity 0

	f.embedder.SetVector("something warm for cold days", axis(0))
	results, err := f.retriever.Search(ctx, f.storeID, CorpusProduct, "something warm for cold days", 0, Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (towel is below the floor with no lexical match)", len(results))
	}
	if results[0].Item.ID != near || results[1].Item.ID != mid {
		t.Errorf("ranking wrong: got %s then %s", results[0].Item.Title, results[1].Item.Title)
	}
	if results[0].Semantic < results[1].Semantic {
		t.Errorf("semantic scores out of order: %v then %v", results[0].Semantic, results[1].Semantic)
	}
}

func TestSearch_LexicalRescueBelowFloor(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	// Orthogonal embedding, but the name shares a token with the query.
	rescued := f.addProduct(t, "Elder Wand Replica", "collectible prop", axis(1))

	f.embedder.SetVector("wand", axis(0))
	results, err := f.retriever.Search(ctx, f.storeID, CorpusProduct, "wand", 0, Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 1 || results[0].Item.ID != rescued {
		t.Fatalf("lexical match must rescue a below-floor candidate, got %d results", len(results))
	}
	if results[0].Keyword <= 0 {
		t.Errorf("rescued result should carry a keyword score, got %v", results[0].Keyword)
	}
	if results[0].Keyword > 1 {
		t.Errorf("keyword score must be capped at 1, got %v", results[0].Keyword)
	}
}

func TestSearch_PrefixTokenMatches(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	f.addProduct(t, "Harry Figurine", "hand painted", axis(1))

	f.embedder.SetVector("harr", axis(0))
	results, err := f.retriever.Search(ctx, f.storeID, CorpusProduct, "harr", 0, Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("prefix token should match via :* expansion, got %d results", len(results))
	}
}

func TestSearch_FaqCategoryFilter(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	add := func(question, answer, category string) {
		t.Helper()
		f.embedder.SetVector(question+" "+answer, axis(0))
		if _, err := f.retriever.AddFaq(ctx, f.storeID, FaqInput{
			Question: question, Answer: answer, Category: category,
		}); err != nil {
			t.Fatalf("AddFaq: %v", err)
		}
	}
	add("How long does delivery take?", "Three to five days.", "shipping")
	add("Can I pay by invoice?", "Yes, within Germany.", "payment")

	f.embedder.SetVector("delivery time", axis(0))
	results, err := f.retriever.Search(ctx, f.storeID, CorpusFaq, "delivery time", 0, Filters{
		Categories: []string{"shipping"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 after category filtering", len(results))
	}
	if results[0].Item.Category != "shipping" {
		t.Errorf("category = %q, want shipping", results[0].Item.Category)
	}
}

func TestSearch_TenantIsolation(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	f.addProduct(t, "Exclusive Lamp", "only in this store", blend(0.9))

	f.embedder.SetVector("lamp", axis(0))
	results, err := f.retriever.Search(ctx, uuid.New(), CorpusProduct, "lamp", 0, Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("another tenant's search must not see this store's products, got %d", len(results))
	}
}

func TestAddProduct_BumpsCounter(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	f.addProduct(t, "Candle", "beeswax", axis(0))
	f.addProduct(t, "Candle Holder", "brass", axis(0))

	var count int
	if err := f.db.Pool.QueryRow(ctx,
		`SELECT product_count FROM stores WHERE id = $1`, f.storeID,
	).Scan(&count); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	if count != 2 {
		t.Errorf("product_count = %d, want 2", count)
	}
}

func TestDemandRecorder_Record(t *testing.T) {
	f := setupSearch(t)
	ctx := context.Background()

	var sessionID uuid.UUID
	err := f.db.Pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (store_id, session_token) VALUES ($1, 'tok') RETURNING id`,
		f.storeID,
	).Scan(&sessionID)
	if err != nil {
		t.Fatalf("seeding session: %v", err)
	}

	rec := NewDemandRecorder(f.db.Pool)
	err = rec.Record(ctx, MissingDemandEntry{
		StoreID:   f.storeID,
		SessionID: sessionID,
		Query:     "left-handed scissors",
		QueryType: QueryTypeProduct,
		Tools:     []string{"search_products"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var queryType string
	var tools []string
	err = f.db.Pool.QueryRow(ctx,
		`SELECT query_type, tools_used FROM missing_demand WHERE store_id = $1`, f.storeID,
	).Scan(&queryType, &tools)
	if err != nil {
		t.Fatalf("reading missing demand: %v", err)
	}
	if queryType != "product" || len(tools) != 1 {
		t.Errorf("stored entry = %q %v", queryType, tools)
	}
}
