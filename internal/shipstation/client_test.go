package shipstation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/metscube/shipsync/internal/config"
)

func testConfig(baseURL string) config.APIConfig {
	return config.APIConfig{
		BaseURL:        baseURL,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
		RequestSpacing: time.Millisecond,
		PageSize:       100,
	}
}

func TestGet_RetriesOn503ThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"shipments":[],"total":0,"page":1,"pages":1}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	result, err := c.Get(context.Background(), "/shipments", nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if result.Attempts != 4 {
		t.Errorf("expected 4 total attempts, got %d", result.Attempts)
	}
	if calls != 4 {
		t.Errorf("expected 4 requests to server, got %d", calls)
	}
}

func TestGet_ExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Get(context.Background(), "/shipments", nil)
	if err == nil {
		t.Fatal("expected terminal error after exhausting retries")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected last status 500, got %d", apiErr.StatusCode)
	}
	if apiErr.Attempts != 4 {
		t.Errorf("expected 4 attempts recorded, got %d", apiErr.Attempts)
	}
	if calls != 4 {
		t.Errorf("expected 4 requests, got %d", calls)
	}
}

func TestGet_DoesNotRetryOn404(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	_, err := c.Get(context.Background(), "/shipments", nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if calls != 1 {
		t.Errorf("404 must not be retried, got %d requests", calls)
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 for a non-retryable status", apiErr.Attempts)
	}
}

func TestGet_Retries429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	result, err := c.Get(context.Background(), "/anything", nil)
	if err != nil {
		t.Fatalf("expected success after 429 retry, got %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
}

func TestGet_NonJSONBodyIsNotFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain text body"))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	result, err := c.Get(context.Background(), "/raw", nil)
	if err != nil {
		t.Fatalf("non-JSON 200 must not fail, got %v", err)
	}
	if result.Data != nil {
		t.Error("expected Data to be nil for non-JSON body")
	}
	if string(result.Body) != "plain text body" {
		t.Errorf("raw body should be returned, got %q", result.Body)
	}
}

func TestListShipments_AcceptsBareArrayPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"shipmentId":101,"orderNumber":"ABC-0001"},{"shipmentId":102,"orderNumber":"ABC-0002"}]`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	page, err := c.ListShipments(context.Background(), time.Now().Add(-time.Hour), time.Now(), 1)
	if err != nil {
		t.Fatalf("bare array page must be accepted, got %v", err)
	}
	if len(page.Shipments) != 2 {
		t.Fatalf("got %d shipments, want 2", len(page.Shipments))
	}
	if page.Shipments[1].OrderNumber != "ABC-0002" {
		t.Errorf("OrderNumber = %q", page.Shipments[1].OrderNumber)
	}
	// No envelope means no further pages.
	if page.Pages != page.Page {
		t.Errorf("Pages = %d, want %d so pagination stops", page.Pages, page.Page)
	}
}

func TestRetryDelay_Increases(t *testing.T) {
	c := New(config.APIConfig{RetryBaseDelay: time.Second})
	// Jitter is bounded by 200ms, so consecutive expected delays are
	// strictly separated: 1s, 2s, 4s.
	for attempt := 0; attempt < 3; attempt++ {
		d := c.retryDelay(attempt)
		lower := time.Second << uint(attempt)
		upper := lower + retryJitterMax
		if d < lower || d > upper {
			t.Errorf("attempt %d: delay %v out of [%v, %v]", attempt, d, lower, upper)
		}
	}
}

func TestValidateShape(t *testing.T) {
	shipments := &Result{
		Body: []byte(`{"shipments":[{"shipmentId":1}],"total":1}`),
		Data: mustParse(t, `{"shipments":[{"shipmentId":1}],"total":1}`),
	}
	if v := ValidateShape(shipments, ShapeShipments); !v.Valid {
		t.Errorf("valid shipments page rejected: %s", v.Reason)
	}

	missing := &Result{
		Body: []byte(`{"orders":[]}`),
		Data: mustParse(t, `{"orders":[]}`),
	}
	if v := ValidateShape(missing, ShapeShipments); v.Valid {
		t.Error("page without shipments property should fail validation")
	}

	notArray := &Result{
		Body: []byte(`{"shipments":{"a":1}}`),
		Data: mustParse(t, `{"shipments":{"a":1}}`),
	}
	if v := ValidateShape(notArray, ShapeShipments); v.Valid {
		t.Error("non-array shipments should fail validation")
	}

	arr := &Result{Body: []byte(`[{"id":1}]`)}
	if v := ValidateShape(arr, ShapeArray); !v.Valid {
		t.Errorf("bare array rejected: %s", v.Reason)
	}

	if v := ValidateShape(nil, ShapeShipments); v.Valid {
		t.Error("nil result should fail validation")
	}
}

func mustParse(t *testing.T, s string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("parse test payload: %v", err)
	}
	return m
}
