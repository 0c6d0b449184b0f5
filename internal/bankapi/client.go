// Package bankapi is the HTTP/JSON client for the remote bank backend.
package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/common"
	"github.com/Veraticus/wedding-ledger/internal/model"
	"github.com/Veraticus/wedding-ledger/internal/service"
	"github.com/shopspring/decimal"
)

// DefaultTimeout bounds every request unless overridden.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client errors.
var (
	ErrInvalidBaseURL = errors.New("invalid bank API base URL")
	ErrInvalidPIN     = errors.New("pin must be digits")
)

// Client implements the verifier, account, holder, and transfer ports
// against the bank backend.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	token      string
	retry      service.RetryOptions
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetryOptions configures retries of idempotent lookups.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(c *Client) {
		c.retry = opts
	}
}

// NewClient creates a client for baseURL authenticating with a bearer token.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	c := &Client{
		baseURL:    u,
		token:      token,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		retry:      service.RetryOptions{MaxAttempts: 2, InitialDelay: 200 * time.Millisecond},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type accountResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	AccountNumber string `json:"account_number"`
	BankCode      string `json:"bank_code"`
	Balance       string `json:"balance"`
	IsSafe        bool   `json:"is_safe"`
}

type holderResponse struct {
	HolderName string `json:"holder_name"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type depositRequest struct {
	SessionID     string `json:"session_id"`
	FromAccountID string `json:"from_account_id"`
	Amount        string `json:"amount"`
	Memo          string `json:"memo,omitempty"`
}

type withdrawRequest struct {
	SessionID     string `json:"session_id"`
	FromAccountID string `json:"from_account_id"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	HolderName    string `json:"holder_name"`
	Amount        string `json:"amount"`
	Memo          string `json:"memo,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Verify implements service.Verifier. The request body is built in a scratch
// buffer that is zeroed once the request completes.
func (c *Client) Verify(ctx context.Context, code []byte) (bool, error) {
	body := make([]byte, 0, len(code)+16)
	body = append(body, `{"pin":"`...)
	for _, b := range code {
		if b < '0' || b > '9' {
			clear(body)
			return false, ErrInvalidPIN
		}
		body = append(body, b)
	}
	body = append(body, `"}`...)
	defer clear(body)

	var resp verifyResponse
	if err := c.do(ctx, http.MethodPost, "/auth/pin/verify", nil, bytes.NewReader(body), "", &resp); err != nil {
		return false, err
	}
	return resp.Valid, nil
}

// GetAccount implements service.AccountLookup.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	var resp accountResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil, nil, "", &resp)
	})
	if err != nil {
		return nil, err
	}

	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return nil, fmt.Errorf("invalid balance %q for account %s: %w", resp.Balance, accountID, err)
	}
	return &model.Account{
		ID:            resp.ID,
		Name:          resp.Name,
		AccountNumber: resp.AccountNumber,
		BankCode:      resp.BankCode,
		Balance:       balance,
		IsSafe:        resp.IsSafe,
	}, nil
}

// ResolveHolder implements service.HolderLookup.
func (c *Client) ResolveHolder(ctx context.Context, bankCode, accountNumber string) (string, error) {
	query := url.Values{}
	query.Set("bank_code", bankCode)
	query.Set("account_number", accountNumber)

	var resp holderResponse
	err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/accounts/holder", query, nil, "", &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.HolderName == "" {
		return "", fmt.Errorf("holder %s/%s: %w", bankCode, accountNumber, common.ErrNotFound)
	}
	return resp.HolderName, nil
}

// CreateDeposit implements service.TransferService. It is sent once; the
// session id doubles as the idempotency key.
func (c *Client) CreateDeposit(ctx context.Context, req model.DepositRequest) error {
	payload, err := json.Marshal(depositRequest{
		SessionID:     req.SessionID,
		FromAccountID: req.FromAccountID,
		Amount:        req.Amount.String(),
		Memo:          req.Memo,
	})
	if err != nil {
		return fmt.Errorf("failed to encode deposit: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/transfers/deposit", nil, bytes.NewReader(payload), req.SessionID, nil)
}

// CreateWithdraw implements service.TransferService.
func (c *Client) CreateWithdraw(ctx context.Context, req model.WithdrawRequest) error {
	payload, err := json.Marshal(withdrawRequest{
		SessionID:     req.SessionID,
		FromAccountID: req.FromAccountID,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		HolderName:    req.HolderName,
		Amount:        req.Amount.String(),
		Memo:          req.Memo,
	})
	if err != nil {
		return fmt.Errorf("failed to encode withdrawal: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/transfers/withdraw", nil, bytes.NewReader(payload), req.SessionID, nil)
}

func (c *Client) withRetry(ctx context.Context, op func() error) error {
	return common.WithRetry(ctx, func() error {
		err := op()
		if err != nil && !common.IsRetryable(err) {
			return common.Permanent(err)
		}
		return err
	}, c.retry)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, idempotencyKey string, out any) error {
	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	slog.Debug("Calling bank API", "method", method, "path", u.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrBankUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", u.Path, err)
	}
	return nil
}

// decodeError maps a non-2xx response to a sentinel, carrying the backend's
// message as a common.UserError when one is present.
func decodeError(resp *http.Response) error {
	var payload errorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &payload)
	}

	var cause error
	switch {
	case payload.Code == "INSUFFICIENT_BALANCE":
		cause = common.ErrInsufficientBalance
	case resp.StatusCode == http.StatusNotFound:
		cause = common.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		cause = common.ErrDuplicateEntry
	case resp.StatusCode == http.StatusTooManyRequests:
		cause = common.ErrRateLimit
	case resp.StatusCode >= 500:
		cause = common.ErrBankUnavailable
	default:
		cause = fmt.Errorf("bank API returned %d", resp.StatusCode)
	}

	if payload.Message == "" {
		return fmt.Errorf("bank API %d: %w", resp.StatusCode, cause)
	}
	return common.NewUserError(payload.Message, cause)
}
