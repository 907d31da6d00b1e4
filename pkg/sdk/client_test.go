package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_InvalidBaseURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestClient_Concepts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/concepts" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"concepts": []string{"climate", "supply"}})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ids, err := client.Concepts(context.Background())
	if err != nil {
		t.Fatalf("Concepts: %v", err)
	}
	if len(ids) != 2 || ids[0] != "climate" {
		t.Errorf("concepts = %v, want [climate supply]", ids)
	}
}

func TestClient_Retrieve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/concepts/climate/retrieve" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["k_per_pattern"] != float64(200) {
			t.Errorf("k_per_pattern = %v, want 200", body["k_per_pattern"])
		}
		if body["segment"] != "qa" {
			t.Errorf("segment = %v, want qa", body["segment"])
		}
		writeTestJSON(w, http.StatusOK, map[string]any{
			"concept_id": "climate",
			"matches": []Match{
				{ParagraphID: "p1", ConceptID: "climate", Similarity: 0.91, PatternID: "climate/000"},
			},
			"total": 1,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	matches, err := client.Retrieve(context.Background(), "climate", RetrieveOptions{K: 200, Segment: "qa"})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(matches) != 1 || matches[0].ParagraphID != "p1" {
		t.Errorf("matches = %+v, want one match for p1", matches)
	}
}

func TestClient_Retrieve_MissingThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"code":    "missing_threshold",
			"message": "no threshold calibrated for concept",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Retrieve(context.Background(), "climate", RetrieveOptions{})
	if !errors.Is(err, ErrMissingThreshold) {
		t.Fatalf("expected ErrMissingThreshold, got %v", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatal("expected APIError")
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Code != "missing_threshold" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func TestClient_Measure(t *testing.T) {
	avg := 0.8
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/measure" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req MeasureRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.SplitBySegment || len(req.Concepts) != 1 {
			t.Errorf("unexpected request: %+v", req)
		}
		writeTestJSON(w, http.StatusOK, MeasureResult{
			Records: []ExposureRecord{
				{CallID: "call-a", ConceptID: "climate", Exposure: 1, AvgSimilarity: &avg, NMatches: 2},
				{CallID: "call-b", ConceptID: "climate", Exposure: 0, AvgSimilarity: nil},
			},
			MatchesByConcept: map[string]int{"climate": 2},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	res, err := client.Measure(context.Background(), MeasureRequest{
		Concepts:       []string{"climate"},
		SplitBySegment: true,
	})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}
	if res.Records[0].AvgSimilarity == nil || *res.Records[0].AvgSimilarity != 0.8 {
		t.Errorf("avg_similarity must survive the round trip: %+v", res.Records[0])
	}
	if res.Records[1].AvgSimilarity != nil {
		t.Error("nil avg_similarity must stay nil, not become zero")
	}
}

func TestClient_Calibrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/concepts/climate/calibrate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		writeTestJSON(w, http.StatusOK, Calibration{
			Threshold: Threshold{ConceptID: "climate", Value: 0.55, Version: "v1"},
			AUC:       1.0,
			Curve: []ROCPoint{
				{Threshold: 0.9, TPR: 0.5, FPR: 0},
				{Threshold: 0.55, TPR: 1, FPR: 0},
			},
			Relevant:   2,
			Irrelevant: 2,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	cal, err := client.Calibrate(context.Background(), "climate", []LabeledPair{
		{ParagraphID: "a", Similarity: 0.9, Relevant: true},
		{ParagraphID: "b", Similarity: 0.55, Relevant: true},
		{ParagraphID: "c", Similarity: 0.3, Relevant: false},
		{ParagraphID: "d", Similarity: 0.2, Relevant: false},
	}, "v1")
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if cal.Threshold.Value != 0.55 || cal.AUC != 1.0 {
		t.Errorf("unexpected calibration: %+v", cal)
	}
	if cal.Relevant != 2 || cal.Irrelevant != 2 {
		t.Errorf("label counts = (%d, %d), want (2, 2)", cal.Relevant, cal.Irrelevant)
	}
}

func TestClient_ThresholdRoundTrip(t *testing.T) {
	var stored Threshold
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			if err := json.NewDecoder(r.Body).Decode(&stored); err != nil {
				t.Errorf("decode put body: %v", err)
			}
			writeTestJSON(w, http.StatusOK, stored)
		case http.MethodGet:
			writeTestJSON(w, http.StatusOK, stored)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	if _, err := client.SetThreshold(ctx, "climate", 0.42, "manual"); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	tau, err := client.Threshold(ctx, "climate")
	if err != nil {
		t.Fatalf("Threshold: %v", err)
	}
	if tau.Value != 0.42 || tau.Version != "manual" {
		t.Errorf("threshold = %+v, want value 0.42 version manual", tau)
	}
}

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body["query"] != "wildfire risk" {
			t.Errorf("query = %v, want wildfire risk", body["query"])
		}
		writeTestJSON(w, http.StatusOK, map[string]any{
			"hits": []SearchHit{
				{ParagraphID: "p1", Region: "us", Similarity: 0.88, Text: "wildfire exposure"},
			},
			"total": 1,
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	hits, err := client.Search(context.Background(), "wildfire risk", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Region != "us" {
		t.Errorf("hits = %+v, want one us hit", hits)
	}
}

func TestClient_Search_NotConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusNotImplemented, map[string]string{
			"code":    "embedding_not_configured",
			"message": "no embedding vectorizer configured",
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if _, err := client.Search(context.Background(), "anything", 5); !errors.Is(err, ErrEmbeddingDisabled) {
		t.Fatalf("expected ErrEmbeddingDisabled, got %v", err)
	}
}

func TestClient_Health_Degraded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeTestJSON(w, http.StatusServiceUnavailable, HealthStatus{
			Status:  "degraded",
			Checks:  map[string]string{"index": "error"},
			Regions: map[string]int{},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health on degraded server must return the report, got %v", err)
	}
	if status.Status != "degraded" || status.Checks["index"] != "error" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestClient_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("authorization = %q, want Bearer secret", r.Header.Get("Authorization"))
		}
		writeTestJSON(w, http.StatusOK, map[string]any{"concepts": []string{}})
	}))
	defer srv.Close()

	client, err := New(srv.URL, WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Concepts(context.Background()); err != nil {
		t.Fatalf("Concepts: %v", err)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Concepts(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("unexpected APIError: %+v", apiErr)
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := New(baseURL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func writeTestJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
