package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	checkoutsvc "github.com/novamart/novamart-backend/internal/checkout"
	"github.com/novamart/novamart-backend/pkg/db/models"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
	"github.com/novamart/novamart-backend/pkg/types"
)

type fakeCheckoutService struct {
	calls  int
	input  checkoutsvc.Input
	result *checkoutsvc.Result
	err    error
}

func (f *fakeCheckoutService) Execute(_ context.Context, input checkoutsvc.Input) (*checkoutsvc.Result, error) {
	f.calls++
	f.input = input
	return f.result, f.err
}

func checkoutBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"buyer_ref": "buyer-001",
		"items": []map[string]any{
			{"sku_id": uuid.NewString(), "name": "widget", "qty": 2, "unit_price_cents": 1995},
		},
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return body
}

func TestCheckoutCreatesOrder(t *testing.T) {
	dueAt := time.Now().Add(30 * time.Minute).UTC()
	svc := &fakeCheckoutService{
		result: &checkoutsvc.Result{
			Order: &models.Order{
				ID:           uuid.New(),
				OrderNumber:  42,
				AmountUSD:    decimal.RequireFromString("39.90"),
				Status:       enums.OrderStatusPending,
				PaymentDueAt: &dueAt,
			},
			Payment: &models.Payment{
				ExternalPaymentID: "ext-001",
				PayAddress:        "bc1qtestaddress",
				PayAmount:         decimal.RequireFromString("0.00071"),
				PayCurrency:       "btc",
			},
		},
	}
	handler := Checkout(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(checkoutBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected service called once, got %d", svc.calls)
	}
	if svc.input.BuyerRef != "buyer-001" || len(svc.input.Items) != 1 || svc.input.Items[0].Qty != 2 {
		t.Fatalf("unexpected service input %+v", svc.input)
	}

	var envelope types.SuccessEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := envelope.Data.(map[string]any)
	if data["amount_usd"] != "39.90" {
		t.Fatalf("unexpected amount %v", data["amount_usd"])
	}
	payment := data["payment"].(map[string]any)
	if payment["pay_address"] != "bc1qtestaddress" {
		t.Fatalf("unexpected payment payload %v", payment)
	}
}

func TestCheckoutRejectsInvalidBody(t *testing.T) {
	svc := &fakeCheckoutService{}
	handler := Checkout(svc, nil)

	for name, body := range map[string]string{
		"empty items":    `{"buyer_ref":"b","items":[]}`,
		"missing buyer":  `{"items":[{"sku_id":"` + uuid.NewString() + `","name":"w","qty":1,"unit_price_cents":100}]}`,
		"zero qty":       `{"buyer_ref":"b","items":[{"sku_id":"` + uuid.NewString() + `","name":"w","qty":0,"unit_price_cents":100}]}`,
		"unknown field":  `{"buyer_ref":"b","items":[],"extra":true}`,
		"malformed json": `{"buyer_ref":`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader([]byte(body)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
	}
	if svc.calls != 0 {
		t.Fatalf("service must not run on invalid input, got %d calls", svc.calls)
	}
}

func TestCheckoutSurfacesInsufficientStock(t *testing.T) {
	svc := &fakeCheckoutService{
		err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"sku_id": uuid.NewString()}),
	}
	handler := Checkout(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(checkoutBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeInsufficientStock) {
		t.Fatalf("unexpected error code %s", envelope.Error.Code)
	}
	if envelope.Error.Details == nil {
		t.Fatalf("expected sku details in stock error")
	}
}
