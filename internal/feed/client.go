package feed

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/plaid/plaid-go/v20/plaid"

	"github.com/pennyflow/pennyflow/internal/common"
	"github.com/pennyflow/pennyflow/internal/model"
	"github.com/pennyflow/pennyflow/internal/service"
)

// Config holds Plaid API configuration.
type Config struct {
	ClientID    string
	Secret      string
	Environment string // sandbox or production
}

// Validate ensures all required fields are present.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("plaid client ID is required: %w", common.ErrMissingConfig)
	}
	if c.Secret == "" {
		return fmt.Errorf("plaid secret is required: %w", common.ErrMissingConfig)
	}
	if c.Environment != "sandbox" && c.Environment != "production" {
		return fmt.Errorf("invalid plaid environment %q: %w", c.Environment, common.ErrInvalidConfig)
	}
	return nil
}

// PlaidClient implements Client against the Plaid API.
type PlaidClient struct {
	client      *plaid.APIClient
	logger      *slog.Logger
	retryOpts   *service.RetryOptions
	jwkCache    map[string]*ecdsa.PublicKey
	jwkMu       sync.Mutex
	environment string
}

// NewPlaidClient creates a Plaid-backed feed client.
func NewPlaidClient(cfg Config) (*PlaidClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configuration := plaid.NewConfiguration()
	configuration.AddDefaultHeader("PLAID-CLIENT-ID", cfg.ClientID)
	configuration.AddDefaultHeader("PLAID-SECRET", cfg.Secret)

	switch cfg.Environment {
	case "sandbox":
		configuration.UseEnvironment(plaid.Sandbox)
	case "production":
		configuration.UseEnvironment(plaid.Production)
	}

	return &PlaidClient{
		client:      plaid.NewAPIClient(configuration),
		environment: cfg.Environment,
		jwkCache:    map[string]*ecdsa.PublicKey{},
		logger:      slog.Default().With("component", "feed"),
		retryOpts: &service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		},
	}, nil
}

// SyncBatch fetches one page of the incremental transaction stream.
func (c *PlaidClient) SyncBatch(ctx context.Context, accessToken, cursor string) (*SyncBatch, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context cannot be nil")
	}

	var resp plaid.TransactionsSyncResponse
	retryErr := common.WithRetry(ctx, func() error {
		request := plaid.NewTransactionsSyncRequest(accessToken)
		if cursor != "" {
			request.SetCursor(cursor)
		}

		r, _, err := c.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*request).Execute()
		if err != nil {
			return c.wrapPlaidError("sync transactions", err)
		}
		resp = r
		return nil
	}, *c.retryOpts)
	if retryErr != nil {
		return nil, retryErr
	}

	batch := &SyncBatch{
		NextCursor: resp.GetNextCursor(),
		HasMore:    resp.GetHasMore(),
	}
	for _, pt := range resp.GetAdded() {
		batch.Added = append(batch.Added, c.mapTransaction(pt))
	}
	for _, pt := range resp.GetModified() {
		batch.Modified = append(batch.Modified, c.mapTransaction(pt))
	}
	for _, rt := range resp.GetRemoved() {
		batch.Removed = append(batch.Removed, rt.GetTransactionId())
	}

	c.logger.Debug("fetched sync batch",
		"added", len(batch.Added),
		"modified", len(batch.Modified),
		"removed", len(batch.Removed),
		"has_more", batch.HasMore)
	return batch, nil
}

// CreateLinkToken starts the link flow for a user.
func (c *PlaidClient) CreateLinkToken(ctx context.Context, userID string) (string, error) {
	user := plaid.LinkTokenCreateRequestUser{
		ClientUserId: userID,
	}

	request := plaid.NewLinkTokenCreateRequest(
		"Pennyflow",
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		user,
	)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})

	resp, _, err := c.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err != nil {
		return "", c.wrapPlaidError("create link token", err)
	}
	return resp.GetLinkToken(), nil
}

// ExchangePublicToken trades the link public token for an access token.
func (c *PlaidClient) ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error) {
	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := c.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err != nil {
		return "", "", c.wrapPlaidError("exchange public token", err)
	}
	return resp.GetAccessToken(), resp.GetItemId(), nil
}

// GetInstitution resolves the institution behind an access token.
func (c *PlaidClient) GetInstitution(ctx context.Context, accessToken string) (*model.Institution, error) {
	itemReq := plaid.NewItemGetRequest(accessToken)
	itemResp, _, err := c.client.PlaidApi.ItemGet(ctx).ItemGetRequest(*itemReq).Execute()
	if err != nil {
		return nil, c.wrapPlaidError("get item", err)
	}

	item := itemResp.GetItem()
	institutionID := item.GetInstitutionId()
	if institutionID == "" {
		return &model.Institution{}, nil
	}

	instReq := plaid.NewInstitutionsGetByIdRequest(
		institutionID,
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
	)
	instResp, _, err := c.client.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*instReq).Execute()
	if err != nil {
		return nil, c.wrapPlaidError("get institution", err)
	}

	inst := instResp.GetInstitution()
	return &model.Institution{
		ID:   inst.GetInstitutionId(),
		Name: inst.GetName(),
	}, nil
}

// GetBalances fetches current balances for the item's accounts.
func (c *PlaidClient) GetBalances(ctx context.Context, accessToken string) ([]model.AccountBalance, error) {
	request := plaid.NewAccountsBalanceGetRequest(accessToken)
	resp, _, err := c.client.PlaidApi.AccountsBalanceGet(ctx).AccountsBalanceGetRequest(*request).Execute()
	if err != nil {
		return nil, c.wrapPlaidError("get balances", err)
	}

	accounts := resp.GetAccounts()
	balances := make([]model.AccountBalance, 0, len(accounts))
	for _, account := range accounts {
		b := account.GetBalances()
		balances = append(balances, model.AccountBalance{
			AccountID: account.GetAccountId(),
			Name:      account.GetName(),
			Type:      string(account.GetType()),
			Current:   b.GetCurrent(),
			Available: b.GetAvailable(),
		})
	}
	return balances, nil
}

// RemoveItem revokes the access token at the aggregator.
func (c *PlaidClient) RemoveItem(ctx context.Context, accessToken string) error {
	request := plaid.NewItemRemoveRequest(accessToken)
	_, _, err := c.client.PlaidApi.ItemRemove(ctx).ItemRemoveRequest(*request).Execute()
	if err != nil {
		return c.wrapPlaidError("remove item", err)
	}
	return nil
}

// wrapPlaidError converts API errors into our taxonomy. Rate limits come
// back as retryable so WithRetry keeps going.
func (c *PlaidClient) wrapPlaidError(op string, err error) error {
	if plaidError := extractPlaidError(err); plaidError != nil {
		if plaidError.ErrorCode == "RATE_LIMIT_EXCEEDED" {
			c.logger.Warn("rate limit hit, will retry", "operation", op)
			return &common.RetryableError{Err: common.ErrFeedRateLimit, Retryable: true}
		}
		if plaidError.ErrorCode == "ITEM_LOGIN_REQUIRED" {
			return fmt.Errorf("%s: %s: %w", op, plaidError.ErrorMessage, common.ErrItemNotLinked)
		}
		return fmt.Errorf("%s: plaid error %s: %s", op, plaidError.ErrorCode, plaidError.ErrorMessage)
	}
	return fmt.Errorf("%s: %w: %v", op, common.ErrFeedConnection, err)
}

func (c *PlaidClient) mapTransaction(pt plaid.Transaction) Record {
	date, err := time.Parse("2006-01-02", pt.GetDate())
	if err != nil {
		c.logger.Error("failed to parse transaction date", "date", pt.GetDate(), "error", err)
		date = time.Now()
	}

	merchantName := pt.GetMerchantName()
	if merchantName == "" {
		merchantName = pt.GetName()
	}
	merchantName = CleanMerchantName(merchantName)

	return Record{
		ExternalID:   pt.GetTransactionId(),
		Amount:       pt.GetAmount(),
		Name:         pt.GetName(),
		MerchantName: merchantName,
		Date:         date,
		Categories:   pt.GetCategory(),
		Pending:      pt.GetPending(),
	}
}

// extractPlaidError attempts to extract a structured Plaid error.
func extractPlaidError(err error) *plaid.PlaidError {
	plaidErr, convErr := plaid.ToPlaidError(err)
	if convErr != nil {
		return nil
	}
	return &plaidErr
}

// CleanMerchantName standardizes merchant names: title case, trailing
// reference numbers stripped, common corporate suffixes removed.
func CleanMerchantName(name string) string {
	words := strings.Fields(strings.ToLower(name))
	for i, word := range words {
		runes := []rune(word)
		for j := range runes {
			if j == 0 || !isLetter(runes[j-1]) {
				runes[j] = toUpper(runes[j])
			}
		}
		words[i] = string(runes)
	}

	// A long all-digit tail is almost always a reference number.
	if len(words) > 1 {
		last := words[len(words)-1]
		if len(last) > 5 && isAllDigits(last) {
			words = words[:len(words)-1]
		}
	}
	name = strings.Join(words, " ")

	suffixes := []string{" Llc", " Inc", " Corp", " Corporation", " Company", " Co", " Ltd", " Limited"}
	changed := true
	for changed {
		changed = false
		for _, suffix := range suffixes {
			if strings.HasSuffix(name, suffix) {
				name = strings.TrimSuffix(name, suffix)
				changed = true
			}
		}
	}

	return strings.TrimSpace(name)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

var _ Client = (*PlaidClient)(nil)
