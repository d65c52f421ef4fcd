package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/joostmulder/AuditPro/internal/model"
	"github.com/sirupsen/logrus"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := NewWithConfig(&Config{BaseURL: srv.URL + "/api", Timeout: 5 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}
	return c
}

func respond(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}
}

func TestLogin(t *testing.T) {
	var path string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()
		io.WriteString(w, `{"status":"success","message":"","data":{"session_id":"abc123"}}`)
	}))

	token, err := c.Login(context.Background(), "dana@example.com", "p/ss")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}
	if path != "/api/login/dana@example.com/p%2Fss" {
		t.Errorf("path = %q", path)
	}
}

func TestLogin_EnvelopeWithoutMessage(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","data":{"session_id":"abc123"}}`))
	token, err := c.Login(context.Background(), "dana@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if token != "abc123" {
		t.Errorf("token = %q, want abc123", token)
	}
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want string
	}{
		{"server error status", `{"status":"error","message":"Invalid credentials","data":{}}`, 200, "Invalid credentials"},
		{"not json", `<html>oops</html>`, 200, "Unexpected response from login request"},
		{"success without message", `{"status":"success","data":{}}`, 200, "Missing login token"},
		{"error without message", `{"status":"fail","data":{}}`, 200, "fail"},
		{"error with empty message", `{"status":"fail","message":"","data":{}}`, 200, "fail"},
		{"status not a string", `{"status":1,"message":"","data":{}}`, 200, "Unexpected response from login request"},
		{"scalar data", `{"status":"success","message":"","data":"x"}`, 200, "Unexpected response from login request"},
		{"http failure", `{"status":"success","message":"","data":{}}`, 500, "Unexpected response from login request"},
		{"no token", `{"status":"success","message":"","data":{}}`, 200, "Missing login token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				io.WriteString(w, tt.body)
			}))
			_, err := c.Login(context.Background(), "a", "b")
			var ge *Error
			if !errors.As(err, &ge) {
				t.Fatalf("Login() error = %v, want *Error", err)
			}
			if ge.Message != tt.want {
				t.Errorf("Message = %q, want %q", ge.Message, tt.want)
			}
		})
	}
}

func TestFetchCurrentUser(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","message":"","data":{
		"user_id":"7","user_first_name":"Dana","user_last_name":"Reyes","user_email":"dana@example.com",
		"role_id":2,"role_name":"Auditor","role_rank":10,"client_id":3,"client_name":"Fizz Co",
		"client_settings":[{"setting_name":"print_voids","setting_value":"true"},{"setting_value":"orphan"}],
		"sku_conditions":[{"sku_condition_id":2,"sku_condition_name":"Damaged","sku_condition_description":"Torn"}]
	}}`))

	u, err := c.FetchCurrentUser(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchCurrentUser() failed: %v", err)
	}
	want := model.User{
		ID: 7, FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com",
		RoleID: 2, RoleName: "Auditor", RoleRank: 10, ClientID: 3, ClientName: "Fizz Co",
		Settings:      []model.Setting{{Name: "print_voids", Value: "true"}},
		SKUConditions: []model.SKUCondition{{ID: 2, Name: "Damaged", Description: "Torn"}},
	}
	if diff := cmp.Diff(want, u); diff != "" {
		t.Errorf("user mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchCurrentUser_Invalid(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","message":"","data":{"user_id":0,"user_first_name":"Dana"}}`))
	_, err := c.FetchCurrentUser(context.Background(), "tok")
	if got := Message(err); got != "Missing user response" {
		t.Errorf("Message() = %q, want Missing user response", got)
	}
	if _, err := c.FetchCurrentUser(context.Background(), ""); err == nil {
		t.Error("FetchCurrentUser() without token succeeded")
	}
}

func TestFetchStores(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","message":"","data":[
		{"store_id":1,"client_id":3,"chain_id":10,"chain_name":"Acme","chain_code":"AC","store_name":"Acme 1",
		 "store_lat":"40.5","store_lon":-74.25,
		 "audit_history":[{"audit_id":"x","percent_in_stock":80,"last_audit_date":"2019-01-02"}]},
		{"store_id":2,"client_id":3,"chain_id":10,"store_name":"Half located","store_lat":40.5,"store_lon":null},
		{"store_id":0,"client_id":3,"chain_id":10,"store_name":"No id"},
		{"store_id":4,"client_id":3,"chain_id":10,"store_name":""}
	]}`))

	stores, err := c.FetchStores(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchStores() failed: %v", err)
	}
	if len(stores) != 2 {
		t.Fatalf("FetchStores() = %d stores, want 2", len(stores))
	}
	first := stores[0]
	if first.Latitude == nil || *first.Latitude != 40.5 || first.Longitude == nil || *first.Longitude != -74.25 {
		t.Errorf("location = %v, %v", first.Latitude, first.Longitude)
	}
	if diff := cmp.Diff([]model.AuditHistory{{AuditID: "x", PercentInStock: 80, LastAuditDate: "2019-01-02"}}, first.History); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if stores[1].Latitude != nil || stores[1].Longitude != nil {
		t.Errorf("half location kept: %v, %v", stores[1].Latitude, stores[1].Longitude)
	}
}

func TestFetchStores_NoneValid(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","message":"","data":[{"store_id":0}]}`))
	_, err := c.FetchStores(context.Background(), "tok")
	if got := Message(err); got != "No valid stores received from web service" {
		t.Errorf("Message() = %q", got)
	}
}

func TestFetchProducts(t *testing.T) {
	c := newTestClient(t, respond(`{"status":"success","message":"","data":[
		{"chain_x_product_id":555,"client_id":3,"chain_id":10,"product_id":9,"brand_name":"Fizz","product_name":"Cola",
		 "upc":"0123","msrp":"1.99","is_random_weight":"1","retail_price_min":null,
		 "last_scanned_at":"2019-04-01T12:00:00-04:00","last_scan_was_sale":true,
		 "chain_sku":"C-1","in_stock_price_min":1,"in_stock_price_max":"3.5"},
		{"chain_x_product_id":556,"client_id":3,"chain_id":10,"product_id":9,"product_name":""}
	]}`))

	products, err := c.FetchProducts(context.Background(), "tok")
	if err != nil {
		t.Fatalf("FetchProducts() failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("FetchProducts() = %d products, want 1", len(products))
	}
	p := products[0]
	if p.MSRP == nil || *p.MSRP != 1.99 || p.RetailPriceMin != nil {
		t.Errorf("prices = %v, %v", p.MSRP, p.RetailPriceMin)
	}
	if !p.IsRandomWeight {
		t.Error("IsRandomWeight = false for \"1\"")
	}
	wantScan := time.Date(2019, 4, 1, 16, 0, 0, 0, time.UTC)
	if p.LastScannedAt == nil || !p.LastScannedAt.Equal(wantScan) {
		t.Errorf("LastScannedAt = %v, want %v", p.LastScannedAt, wantScan)
	}
	if p.InStockPriceMax == nil || *p.InStockPriceMax != 3.5 {
		t.Errorf("InStockPriceMax = %v", p.InStockPriceMax)
	}
}

func TestUploadAuditPayload(t *testing.T) {
	var gotBody, gotType, gotMethod string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType, gotMethod = string(b), r.Header.Get("Content-Type"), r.Method
		io.WriteString(w, `{"status":"success","message":"Saved"}`)
	}))

	if err := c.UploadAuditPayload(context.Background(), "tok", `{"id":"x"}`); err != nil {
		t.Fatalf("UploadAuditPayload() failed: %v", err)
	}
	if gotMethod != http.MethodPost || gotBody != `{"id":"x"}` || !strings.HasPrefix(gotType, "application/json") {
		t.Errorf("request = %s %q %q", gotMethod, gotType, gotBody)
	}
	if err := c.UploadAuditPayload(context.Background(), "", "{}"); err == nil {
		t.Error("UploadAuditPayload() without token succeeded")
	}
}

func TestBusyAndCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	errc := make(chan error, 1)
	go func() {
		_, err := c.FetchStores(context.Background(), "tok")
		errc <- err
	}()
	<-started

	if _, err := c.FetchProducts(context.Background(), "tok"); !errors.Is(err, ErrBusy) {
		t.Fatalf("concurrent call error = %v, want ErrBusy", err)
	}

	c.Cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("canceled call error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("canceled call did not return")
	}
	if c.Busy() {
		t.Error("client still busy after cancel")
	}
}

func TestContextCancel(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchStores(ctx, "tok")
	var ge *Error
	if !errors.As(err, &ge) {
		t.Fatalf("FetchStores() error = %v, want *Error", err)
	}
}
