package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novamart/novamart-backend/pkg/config"
	"github.com/novamart/novamart-backend/pkg/enums"
	pkgerrors "github.com/novamart/novamart-backend/pkg/errors"
)

const (
	apiKeyHeader              = "x-api-key"
	defaultTimeout            = 10 * time.Second
	responseBodyReadLimit     = 1024
	expirationTimestampLayout = time.RFC3339
)

var (
	errAPIKeyRequired  = errors.New("gateway api key is required")
	errBaseURLRequired = errors.New("gateway base url is required")
)

// Client speaks to the external crypto payment gateway. Every call is a
// single-shot HTTP request with a bounded timeout; retry policy belongs to
// the caller.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	payCurrency string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds the gateway client. Credentials are validated up front so
// a misconfigured invocation fails before any side effect.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, errAPIKeyRequired, "gateway client")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfig, errBaseURLRequired, "gateway client")
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	payCurrency := strings.TrimSpace(strings.ToLower(cfg.PayCurrency))
	if payCurrency == "" {
		payCurrency = "btc"
	}

	client := &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		payCurrency: payCurrency,
		httpClient:  &http.Client{Timeout: timeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// OpenPaymentRequest is the payload for opening a payment at the gateway.
type OpenPaymentRequest struct {
	OrderRef  string
	AmountUSD decimal.Decimal
	PayerRef  string
}

// OpenPaymentResult holds the gateway's answer to an opened payment.
type OpenPaymentResult struct {
	ExternalPaymentID string
	PayAddress        string
	PayAmount         decimal.Decimal
	PayCurrency       string
	PriceAmount       decimal.Decimal
	ExpiryTime        *time.Time
}

// StatusResult carries the raw gateway status plus the mapped internal one.
type StatusResult struct {
	RawStatus    string
	Status       enums.PaymentStatus
	ActuallyPaid decimal.Decimal
}

// RefundResult describes a refund accepted by the gateway.
type RefundResult struct {
	RefundID         string
	CreditedAmount   decimal.Decimal
	CreditedCurrency string
	ExchangeRate     decimal.Decimal
}

// OpenPayment creates a payment and returns the deposit address, the pay
// amount in the configured crypto currency, and the expiry time. Callers must
// not assume partial success on error.
func (c *Client) OpenPayment(ctx context.Context, req OpenPaymentRequest) (*OpenPaymentResult, error) {
	if strings.TrimSpace(req.OrderRef) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
	}
	if req.AmountUSD.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	payload := map[string]any{
		"price_amount":   req.AmountUSD,
		"price_currency": "usd",
		"pay_currency":   c.payCurrency,
		"order_id":       req.OrderRef,
	}
	if req.PayerRef != "" {
		payload["order_description"] = req.PayerRef
	}

	var apiResp struct {
		PaymentID     json.Number `json:"payment_id"`
		PayAddress    string      `json:"pay_address"`
		PayAmount     string      `json:"pay_amount"`
		PayCurrency   string      `json:"pay_currency"`
		PriceAmount   string      `json:"price_amount"`
		ExpirationEst string      `json:"expiration_estimate_date"`
	}
	if err := c.do(ctx, http.MethodPost, "payment", payload, &apiResp); err != nil {
		return nil, err
	}

	payAmount, err := decimal.NewFromString(apiResp.PayAmount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "parse pay amount")
	}
	priceAmount, err := decimal.NewFromString(apiResp.PriceAmount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "parse price amount")
	}

	result := &OpenPaymentResult{
		ExternalPaymentID: apiResp.PaymentID.String(),
		PayAddress:        apiResp.PayAddress,
		PayAmount:         payAmount,
		PayCurrency:       apiResp.PayCurrency,
		PriceAmount:       priceAmount,
	}
	if apiResp.ExpirationEst != "" {
		if expiry, perr := time.Parse(expirationTimestampLayout, apiResp.ExpirationEst); perr == nil {
			result.ExpiryTime = &expiry
		}
	}
	return result, nil
}

// QueryStatus fetches the gateway's view of a payment and maps its status
// into the internal vocabulary.
func (c *Client) QueryStatus(ctx context.Context, externalPaymentID string) (*StatusResult, error) {
	id := strings.TrimSpace(externalPaymentID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment id is required")
	}

	var apiResp struct {
		PaymentStatus string      `json:"payment_status"`
		ActuallyPaid  json.Number `json:"actually_paid"`
	}
	if err := c.do(ctx, http.MethodGet, "payment/"+url.PathEscape(id), nil, &apiResp); err != nil {
		return nil, err
	}

	paid := decimal.Zero
	if apiResp.ActuallyPaid != "" {
		parsed, err := decimal.NewFromString(apiResp.ActuallyPaid.String())
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "parse actually paid amount")
		}
		paid = parsed
	}

	return &StatusResult{
		RawStatus:    apiResp.PaymentStatus,
		Status:       MapStatus(apiResp.PaymentStatus),
		ActuallyPaid: paid,
	}, nil
}

// IssueRefund asks the gateway to send amountUSD worth of crypto to the
// payout address for the given payment.
func (c *Client) IssueRefund(ctx context.Context, externalPaymentID string, amountUSD decimal.Decimal, payoutAddress string) (*RefundResult, error) {
	id := strings.TrimSpace(externalPaymentID)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "external payment id is required")
	}
	if amountUSD.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if strings.TrimSpace(payoutAddress) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout address is required")
	}

	payload := map[string]any{
		"amount":   amountUSD,
		"currency": "usd",
		"address":  payoutAddress,
	}

	var apiResp struct {
		RefundID     json.Number `json:"refund_id"`
		Amount       string      `json:"amount"`
		Currency     string      `json:"currency"`
		ExchangeRate string      `json:"exchange_rate"`
	}
	if err := c.do(ctx, http.MethodPost, "payment/"+url.PathEscape(id)+"/refund", payload, &apiResp); err != nil {
		return nil, err
	}

	credited, err := decimal.NewFromString(apiResp.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "parse credited amount")
	}
	rate := decimal.Zero
	if apiResp.ExchangeRate != "" {
		parsed, perr := decimal.NewFromString(apiResp.ExchangeRate)
		if perr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, perr, "parse exchange rate")
		}
		rate = parsed
	}

	return &RefundResult{
		RefundID:         apiResp.RefundID.String(),
		CreditedAmount:   credited,
		CreditedCurrency: apiResp.Currency,
		ExchangeRate:     rate,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "marshal gateway request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "build gateway request")
	}
	httpReq.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Timeouts and transport failures are transient: the payment's true
		// state at the gateway is unknown, so the caller must not treat this
		// as a terminal failure.
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "execute gateway request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "gateway request failed")
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode gateway response")
	}
	return nil
}
