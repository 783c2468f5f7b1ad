// Package actual is a client for the actual-http-api REST bridge in front
// of an Actual Budget server.
//
// All calls are scoped to one budget (its sync id). Authentication uses the
// bridge's API key; an end-to-end encrypted budget also needs its password,
// sent on every request.
package actual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"buckets-migrator/internal/models"
	"buckets-migrator/pkg/errors"
	"buckets-migrator/pkg/logger"
)

const (
	headerAPIKey         = "x-api-key"
	headerBudgetPassword = "budget-encryption-password"
	defaultTimeout       = 30 * time.Second
)

// Config holds the connection settings for one budget
type Config struct {
	ServerURL      string
	APIKey         string
	BudgetID       string
	BudgetPassword string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Client talks to one budget through actual-http-api
type Client struct {
	baseURL        string
	apiKey         string
	budgetPassword string
	http           *http.Client
	logger         logger.Logger
}

// NewClient creates a client. ServerURL and BudgetID are required.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "server-url", nil, nil)
	}
	if strings.TrimSpace(cfg.BudgetID) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "budget-id", nil, nil)
	}
	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "server-url", cfg.ServerURL, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.ServerURL, "/") + "/v1/budgets/" + url.PathEscape(cfg.BudgetID),
		apiKey:         cfg.APIKey,
		budgetPassword: cfg.BudgetPassword,
		http:           httpClient,
		logger:         log.WithComponent("actual_client"),
	}, nil
}

// APIError is a non-2xx response from the bridge
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// dataResponse is the envelope every successful response uses
type dataResponse[T any] struct {
	Data T `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}
	if c.budgetPassword != "" {
		req.Header.Set(headerBudgetPassword, c.budgetPassword)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.WithFields(logger.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	}).Debug("Target request")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var parsed errorResponse
		if json.Unmarshal(raw, &parsed) == nil {
			if parsed.Error != "" {
				apiErr.Message = parsed.Error
			} else if parsed.Message != "" {
				apiErr.Message = parsed.Message
			}
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type accountPayload struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	OffBudget bool   `json:"offbudget"`
}

// CreateAccount creates an on-budget account with an opening balance.
func (c *Client) CreateAccount(ctx context.Context, name, accountType string, openingBalance int64) (models.TargetID, error) {
	body := map[string]interface{}{
		"account":        accountPayload{Name: name, Type: accountType},
		"initialBalance": openingBalance,
	}
	var resp dataResponse[models.TargetID]
	if err := c.do(ctx, http.MethodPost, "/accounts", body, &resp); err != nil {
		return "", errors.RemoteOperationFailed("create account", err).WithContext("account", name)
	}
	return resp.Data, nil
}

// Account is an account as listed by the target
type Account struct {
	ID        models.TargetID `json:"id"`
	Name      string          `json:"name"`
	OffBudget bool            `json:"offbudget"`
	Closed    bool            `json:"closed"`
}

// ListAccounts returns every account in the budget
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var resp dataResponse[[]Account]
	if err := c.do(ctx, http.MethodGet, "/accounts", nil, &resp); err != nil {
		return nil, errors.RemoteOperationFailed("list accounts", err)
	}
	return resp.Data, nil
}

// DeleteAccount removes an account and its transactions
func (c *Client) DeleteAccount(ctx context.Context, id models.TargetID) error {
	if err := c.do(ctx, http.MethodDelete, "/accounts/"+url.PathEscape(id.String()), nil, nil); err != nil {
		return errors.RemoteOperationFailed("delete account", err).WithContext("account_id", id)
	}
	return nil
}

// CreateCategoryGroup creates a category group
func (c *Client) CreateCategoryGroup(ctx context.Context, name string) (models.TargetID, error) {
	body := map[string]interface{}{
		"category_group": map[string]interface{}{"name": name},
	}
	var resp dataResponse[models.TargetID]
	if err := c.do(ctx, http.MethodPost, "/categorygroups", body, &resp); err != nil {
		return "", errors.RemoteOperationFailed("create category group", err).WithContext("group", name)
	}
	return resp.Data, nil
}

// CreateCategory creates a category under a group. A name clash is
// reported as a DuplicateCategory warning so callers can continue.
func (c *Client) CreateCategory(ctx context.Context, name string, group models.TargetID) (models.TargetID, error) {
	body := map[string]interface{}{
		"category": map[string]interface{}{"name": name, "group_id": group},
	}
	var resp dataResponse[models.TargetID]
	if err := c.do(ctx, http.MethodPost, "/categories", body, &resp); err != nil {
		if isDuplicate(err) {
			return "", errors.DuplicateCategory(name, err).WithContext("group_id", group)
		}
		return "", errors.RemoteOperationFailed("create category", err).
			WithContext("category", name).
			WithContext("group_id", group)
	}
	return resp.Data, nil
}

func isDuplicate(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	if apiErr.StatusCode == http.StatusConflict {
		return true
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate")
}

// Category is a category as listed by the target
type Category struct {
	ID      models.TargetID `json:"id"`
	Name    string          `json:"name"`
	GroupID models.TargetID `json:"group_id"`
}

// CategoryGroup is a category group with its categories
type CategoryGroup struct {
	ID         models.TargetID `json:"id"`
	Name       string          `json:"name"`
	IsIncome   bool            `json:"is_income"`
	Categories []Category      `json:"categories"`
}

// ListCategoryGroups returns every group with its categories
func (c *Client) ListCategoryGroups(ctx context.Context) ([]CategoryGroup, error) {
	var resp dataResponse[[]CategoryGroup]
	if err := c.do(ctx, http.MethodGet, "/categorygroups", nil, &resp); err != nil {
		return nil, errors.RemoteOperationFailed("list category groups", err)
	}
	return resp.Data, nil
}

// DeleteCategoryGroup removes a category group
func (c *Client) DeleteCategoryGroup(ctx context.Context, id models.TargetID) error {
	if err := c.do(ctx, http.MethodDelete, "/categorygroups/"+url.PathEscape(id.String()), nil, nil); err != nil {
		return errors.RemoteOperationFailed("delete category group", err).WithContext("group_id", id)
	}
	return nil
}

// DeleteCategory removes a category
func (c *Client) DeleteCategory(ctx context.Context, id models.TargetID) error {
	if err := c.do(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id.String()), nil, nil); err != nil {
		return errors.RemoteOperationFailed("delete category", err).WithContext("category_id", id)
	}
	return nil
}

// ListPayees returns every payee, including the transfer payee the target
// creates for each account.
func (c *Client) ListPayees(ctx context.Context) ([]models.Payee, error) {
	var resp dataResponse[[]models.Payee]
	if err := c.do(ctx, http.MethodGet, "/payees", nil, &resp); err != nil {
		return nil, errors.RemoteOperationFailed("list payees", err)
	}
	return resp.Data, nil
}

// AddTransactions submits one account's batch. runTransfers lets the target
// create the opposite leg for every transaction with a transfer payee.
func (c *Client) AddTransactions(ctx context.Context, account models.TargetID, transactions []*models.NormalizedTransaction) error {
	body := map[string]interface{}{
		"learnCategories": false,
		"runTransfers":    true,
		"transactions":    transactions,
	}
	path := "/accounts/" + url.PathEscape(account.String()) + "/transactions/batch"
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return errors.RemoteOperationFailed("add transactions", err).
			WithContext("account_id", account).
			WithContext("count", len(transactions))
	}
	return nil
}

// Transaction is a transaction as listed by the target
type Transaction struct {
	ID      models.TargetID `json:"id"`
	Account models.TargetID `json:"account"`
	Date    string          `json:"date"`
	Amount  int64           `json:"amount"`
}

// ListTransactions returns an account's transactions since the given date
func (c *Client) ListTransactions(ctx context.Context, account models.TargetID, since time.Time) ([]Transaction, error) {
	query := url.Values{"since_date": {since.Format(models.DateLayout)}}
	path := "/accounts/" + url.PathEscape(account.String()) + "/transactions?" + query.Encode()
	var resp dataResponse[[]Transaction]
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, errors.RemoteOperationFailed("list transactions", err).WithContext("account_id", account)
	}
	return resp.Data, nil
}

// DeleteTransaction removes one transaction
func (c *Client) DeleteTransaction(ctx context.Context, id models.TargetID) error {
	if err := c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id.String()), nil, nil); err != nil {
		return errors.RemoteOperationFailed("delete transaction", err).WithContext("transaction_id", id)
	}
	return nil
}
