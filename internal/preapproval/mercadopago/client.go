// Package mercadopago fetches preapproval agreements from the Mercado Pago
// API. Responses are parsed into the verifier's domain types; nothing here
// performs validation beyond shape checks.
package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wearly/wearly/internal/config"
	preapprovaldomain "github.com/wearly/wearly/internal/preapproval/domain"
	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	log         *zap.Logger
}

func NewClient(cfg config.Config, log *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.MercadoPagoBaseURL, "/"),
		accessToken: cfg.MercadoPagoAccessToken,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		log:         log.Named("mercadopago.client"),
	}
}

type searchResponse struct {
	Results []preapprovalPayload `json:"results"`
}

type preapprovalPayload struct {
	ID                string        `json:"id"`
	PayerID           json.Number   `json:"payer_id"`
	ExternalReference string        `json:"external_reference"`
	Status            string        `json:"status"`
	NextPaymentDate   string        `json:"next_payment_date"`
	AutoRecurring     autoRecurring `json:"auto_recurring"`
}

type autoRecurring struct {
	CurrencyID        string  `json:"currency_id"`
	TransactionAmount float64 `json:"transaction_amount"`
}

// FindByExternalReference looks up the agreement the processor holds for a
// checkout reference. A missing agreement is not an error of the processor,
// so it maps to ErrPreapprovalNotFound rather than ErrProcessorUnavailable.
func (c *Client) FindByExternalReference(ctx context.Context, externalReference string) (*preapprovaldomain.Preapproval, error) {
	endpoint := fmt.Sprintf("%s/preapproval/search?external_reference=%s",
		c.baseURL, url.QueryEscape(externalReference))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, preapprovaldomain.ErrProcessorUnavailable
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("preapproval fetch failed", zap.Error(err))
		return nil, preapprovaldomain.ErrProcessorUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, preapprovaldomain.ErrPreapprovalNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("preapproval fetch non-success", zap.Int("status", resp.StatusCode))
		return nil, preapprovaldomain.ErrProcessorUnavailable
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, preapprovaldomain.ErrProcessorUnavailable
	}
	if len(payload.Results) == 0 {
		return nil, preapprovaldomain.ErrPreapprovalNotFound
	}

	return normalize(payload.Results[0]), nil
}

func normalize(payload preapprovalPayload) *preapprovaldomain.Preapproval {
	item := &preapprovaldomain.Preapproval{
		ID:                strings.TrimSpace(payload.ID),
		PayerID:           payload.PayerID.String(),
		ExternalReference: strings.TrimSpace(payload.ExternalReference),
		Status:            strings.ToLower(strings.TrimSpace(payload.Status)),
		CurrencyID:        strings.ToUpper(strings.TrimSpace(payload.AutoRecurring.CurrencyID)),
		TransactionAmount: payload.AutoRecurring.TransactionAmount,
		RawStatus:         payload.Status,
	}
	if raw := strings.TrimSpace(payload.NextPaymentDate); raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			utc := parsed.UTC()
			item.NextPaymentDate = &utc
		}
	}
	return item
}
