package skiptrace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadscout-engine/internal/domain"
)

func TestNew_Defaults(t *testing.T) {
	c := New("https://api.example.com/", "k")
	assert.Equal(t, "https://api.example.com", c.baseURL)
	assert.Equal(t, 10*time.Second, c.PollInterval)
	assert.Equal(t, 12, c.MaxAttempts)
}

func TestSubmitBatch_MultipartShape(t *testing.T) {
	var gotAuth string
	var gotMappings map[string]string
	var gotCSV string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/lists", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotMappings = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotMappings[k] = v[0]
		}
		f, _, err := r.FormFile("csv_file")
		require.NoError(t, err)
		defer f.Close()
		buf := make([]byte, 1<<20)
		n, _ := f.Read(buf)
		gotCSV = string(buf[:n])

		_ = json.NewEncoder(w).Encode(map[string]string{"queue_id": "q-42"})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	id, err := c.SubmitBatch(context.Background(), []domain.Listing{
		{Address: "100 Oak St, Unit 2", City: "Fort Worth", State: "TX", Zip: "76102"},
	})
	require.NoError(t, err)
	assert.Equal(t, "q-42", id)
	assert.Equal(t, "Bearer secret", gotAuth)

	for _, col := range batchColumns {
		assert.Equal(t, col, gotMappings[col+"_column"])
	}
	assert.Contains(t, gotCSV, "address,city,state,zip,first_name,last_name,mail_address,mail_city,mail_zip\n")
	assert.Contains(t, gotCSV, `"100 Oak St, Unit 2",Fort Worth,TX,76102,,,,,`)
}

func TestEnrich_SubmitFailureReturnsOriginals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	in := []domain.Listing{{Address: "1 Main St"}}
	out, matches := c.Enrich(context.Background(), in)

	require.Len(t, out, 1)
	assert.Equal(t, "1 Main St", out[0].Address)
	assert.Empty(t, out[0].OwnerName)
	assert.Nil(t, matches)
}

func TestEnrich_SkipsWithoutKeyOrListings(t *testing.T) {
	c := New("http://unused", "")
	in := []domain.Listing{{Address: "1 Main St"}}

	out, matches := c.Enrich(context.Background(), in)
	assert.Equal(t, in, out)
	assert.Nil(t, matches)

	c = New("http://unused", "k")
	out, matches = c.Enrich(context.Background(), nil)
	assert.Nil(t, out)
	assert.Nil(t, matches)
}

func TestPollUntilReady_BudgetExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "processing", "pending": true})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	c.PollInterval = time.Millisecond
	c.MaxAttempts = 3

	_, ok := c.PollUntilReady(context.Background(), "q-1")
	assert.False(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollUntilReady_DefaultBudgetIsTwelve(t *testing.T) {
	if testing.Short() {
		t.Skip("rate-limited status checks make this take a few seconds")
	}

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "processing"})
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	c.PollInterval = time.Millisecond // keep the default 12-attempt cap

	_, ok := c.PollUntilReady(context.Background(), "q-1")
	assert.False(t, ok)
	assert.Equal(t, int32(12), calls.Load())
}

func TestPollUntilReady_TransientErrorsBurnAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "flaky", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, "k")
	c.PollInterval = time.Millisecond
	c.MaxAttempts = 2

	_, ok := c.PollUntilReady(context.Background(), "q-1")
	assert.False(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEnrich_HappyPath(t *testing.T) {
	var statusCalls atomic.Int32

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/api/v1/lists", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"list_id": "q-7"})
	})
	mux.HandleFunc("/api/v1/lists/q-7", func(w http.ResponseWriter, r *http.Request) {
		if statusCalls.Add(1) < 2 {
			_ = json.NewEncoder(w).Encode(map[string]any{"state": "processing"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"state":        "Completed",
			"download_url": srv.URL + "/results.csv",
		})
	})
	mux.HandleFunc("/results.csv", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		fmt.Fprint(w, "Address,Owner Name,Mobile Phone\n100 Oak St,Jane Seller,555-0101\n")
	})

	c := New(srv.URL, "k")
	c.PollInterval = time.Millisecond

	out, matches := c.Enrich(context.Background(), []domain.Listing{
		{Address: "100 Oak St", City: "Fort Worth"},
		{Address: "200 Elm St"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "Jane Seller", out[0].OwnerName)
	assert.Equal(t, "555-0101", out[0].OwnerPhone)
	assert.Empty(t, out[1].OwnerName)

	require.Len(t, matches, 1)
	assert.Equal(t, "100 Oak St", matches[0].ListingAddress)
	assert.Equal(t, domain.ConfidenceWeak, matches[0].Confidence)
}

func TestCheckStatus_CompletionSpellings(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
		done bool
	}{
		{"status completed", map[string]any{"status": "completed", "url": "u"}, true},
		{"status done", map[string]any{"status": "done", "url": "u"}, true},
		{"state complete", map[string]any{"state": "Complete", "url": "u"}, true},
		{"pending false", map[string]any{"pending": false, "result_url": "u"}, true},
		{"pending true", map[string]any{"pending": true}, false},
		{"still processing", map[string]any{"status": "processing"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, "k")
			_, done, err := c.checkStatus(context.Background(), "q")
			require.NoError(t, err)
			assert.Equal(t, tt.done, done)
		})
	}
}

func TestCsvField(t *testing.T) {
	assert.Equal(t, "plain", csvField("plain"))
	assert.Equal(t, `"a, b"`, csvField("a, b"))
	assert.Equal(t, `"say ""hi"""`, csvField(`say "hi"`))
}
