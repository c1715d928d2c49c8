package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/timedeal/timesale/internal/adapter/storage"
	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/core/service"
	"github.com/timedeal/timesale/internal/core/strategy"
)

func newTestServer(t *testing.T, stock int) (*httptest.Server, *storage.MemoryAdapter) {
	t.Helper()

	mem := storage.NewMemoryAdapter()
	now := time.Now()
	mem.SeedProduct(domain.Product{
		ID:        "item-1",
		Name:      "test item",
		Quantity:  stock,
		SaleStart: now.Add(-time.Hour),
		SaleEnd:   now.Add(time.Hour),
	})
	mem.SeedUser(domain.User{ID: "user-1", LoginID: "alice"})

	svc := service.NewOrderService(mem, mem, mem, storage.NewMemoryGuard(), strategy.NewExclusiveRow(mem), nil)

	mux := http.NewServeMux()
	NewHTTPHandler(svc).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mem
}

func postPurchase(t *testing.T, srv *httptest.Server, body string) (*http.Response, PurchaseHTTPResponse) {
	t.Helper()

	resp, err := http.Post(srv.URL+"/api/purchase", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var out PurchaseHTTPResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestHTTP_PurchaseFlow(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	resp, out := postPurchase(t, srv, `{"login_id":"alice","product_id":"item-1"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.StatusCode, out.Message)
	}
	if !out.Success || out.OrderID == "" {
		t.Fatalf("unexpected response: %+v", out)
	}

	// Fetch the order back.
	getResp, err := http.Get(srv.URL + "/api/orders/" + out.OrderID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", getResp.StatusCode)
	}
	var order OrderHTTPResponse
	if err := json.NewDecoder(getResp.Body).Decode(&order); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if order.ID != out.OrderID || order.UserID != "user-1" {
		t.Errorf("unexpected order: %+v", order)
	}

	// Cancel it.
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/orders/"+out.OrderID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", delResp.StatusCode)
	}

	// Gone now.
	getResp2, _ := http.Get(srv.URL + "/api/orders/" + out.OrderID)
	getResp2.Body.Close()
	if getResp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after cancel, got %d", getResp2.StatusCode)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		stock      int
		body       string
		wantStatus int
	}{
		{"unknown user", 5, `{"login_id":"nobody","product_id":"item-1"}`, http.StatusNotFound},
		{"unknown product", 5, `{"login_id":"alice","product_id":"missing"}`, http.StatusNotFound},
		{"sold out", 0, `{"login_id":"alice","product_id":"item-1"}`, http.StatusGone},
		{"missing fields", 5, `{"login_id":"alice"}`, http.StatusBadRequest},
		{"bad json", 5, `{`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tc.stock)
			resp, _ := postPurchase(t, srv, tc.body)
			if resp.StatusCode != tc.wantStatus {
				t.Errorf("expected %d, got %d", tc.wantStatus, resp.StatusCode)
			}
		})
	}
}

func TestHTTP_DuplicateConflict(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	if resp, _ := postPurchase(t, srv, `{"login_id":"alice","product_id":"item-1"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("first purchase failed with %d", resp.StatusCode)
	}

	resp, out := postPurchase(t, srv, `{"login_id":"alice","product_id":"item-1"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d (%s)", resp.StatusCode, out.Message)
	}
}

func TestHTTP_ListUserOrders(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	if resp, _ := postPurchase(t, srv, `{"login_id":"alice","product_id":"item-1"}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("purchase failed with %d", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/api/users/alice/orders?page=0&size=10")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var orders []OrderHTTPResponse
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(orders) != 1 {
		t.Errorf("expected 1 order, got %d", len(orders))
	}

	missing, _ := http.Get(srv.URL + "/api/users/nobody/orders")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown user, got %d", missing.StatusCode)
	}
}
