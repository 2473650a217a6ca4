package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"finlink-server/src/errs"
)

const (
	defaultTimeout   = 60 * time.Second
	connectionsPath  = "/connections"
	accountsPath     = "/accounts"
	balancePath      = "/balance"
	transactionsPath = "/transactions"
)

// HTTPClient talks to the aggregation provider's REST API. Each request
// is authenticated with the per-connection access token resolved through
// the injected CredentialSource.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	creds      CredentialSource
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, creds CredentialSource) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    baseURL,
		creds:      creds,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *HTTPClient) GetConnection(ctx context.Context, connectionID string) (*Connection, error) {
	token, err := c.creds.TokenForConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	var conn Connection
	if err := c.get(ctx, connectionsPath+"/"+url.PathEscape(connectionID), token, nil, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

func (c *HTTPClient) GetAccounts(ctx context.Context, connectionID string) ([]Account, error) {
	token, err := c.creds.TokenForConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []Account `json:"results"`
	}
	query := url.Values{"itemId": {connectionID}}
	if err := c.get(ctx, accountsPath, token, query, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *HTTPClient) GetAccountBalance(ctx context.Context, accountID string) (*Balance, error) {
	token, err := c.creds.TokenForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	var balance Balance
	if err := c.get(ctx, accountsPath+"/"+url.PathEscape(accountID)+balancePath, token, nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *HTTPClient) GetTransactions(ctx context.Context, accountID string, from, to time.Time, page, pageSize int) (*TransactionPage, error) {
	token, err := c.creds.TokenForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	query := url.Values{
		"accountId": {accountID},
		"from":      {from.Format("2006-01-02")},
		"to":        {to.Format("2006-01-02")},
		"page":      {strconv.Itoa(page)},
		"pageSize":  {strconv.Itoa(pageSize)},
	}
	var result TransactionPage
	if err := c.get(ctx, transactionsPath, token, query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// get performs an authenticated GET and decodes the response, tagging
// failures with the retry taxonomy: 401/403 auth, 429 upstream rate
// limit, everything else (including network failures) transport.
func (c *HTTPClient) get(ctx context.Context, path, token string, query url.Values, out interface{}) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errs.Newf(errs.KindTransport, "request %s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Newf(errs.KindTransport, "failed to read response body: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		detail := string(body)
		if json.Unmarshal(body, &errResp) == nil && errResp.Message != "" {
			detail = errResp.Error + " - " + errResp.Message
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return errs.Newf(errs.KindAuth, "provider rejected credentials (status %d): %s", resp.StatusCode, detail)
		case http.StatusTooManyRequests:
			return errs.Newf(errs.KindRateLimitedUpstream, "provider throttled request (status %d): %s", resp.StatusCode, detail)
		default:
			return errs.Newf(errs.KindTransport, "provider request failed (status %d): %s", resp.StatusCode, detail)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errs.Newf(errs.KindTransport, "failed to unmarshal response: %v", err)
	}
	return nil
}
