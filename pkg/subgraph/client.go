// Package subgraph fetches token transfer events from the remote
// date-partitioned transaction log (a GraphQL subgraph). The remote source is
// an external collaborator; this client owns pagination and network retry.
package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/OlympusDAO/token-holder-balances/pkg/date"
	"github.com/OlympusDAO/token-holder-balances/pkg/model"
	"github.com/OlympusDAO/token-holder-balances/pkg/retry"
)

// ErrSourceUnavailable is returned when the transaction source is
// unreachable or keeps returning malformed pages after bounded retries. A
// day is never returned partially: either every page arrived or the fetch
// fails with this error.
var ErrSourceUnavailable = errors.New("transaction source unavailable")

// ErrNoTransactions is returned by the date-boundary queries when the source
// holds no transactions at all.
var ErrNoTransactions = errors.New("no transactions in source")

// DefaultPageSize is the source's page cap: a response shorter than this is
// the last page of a window.
const DefaultPageSize = 1000

// windowWorkers bounds concurrent hourly-window fetches within one day.
const windowWorkers = 6

// Opts configures a Client.
type Opts struct {
	URL      string
	PageSize int
	Timeout  time.Duration
	Retry    retry.Config
	// HTTPClient overrides the default client, used by tests.
	HTTPClient *http.Client
}

// Client queries the subgraph. Safe for concurrent use.
type Client struct {
	url      string
	pageSize int
	http     *http.Client
	retryCfg retry.Config
	logger   *zap.Logger
}

// NewClient creates a Client with sane defaults for unset options.
func NewClient(logger *zap.Logger, o Opts) *Client {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry = retry.DefaultConfig()
	}
	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	}
	return &Client{
		url:      o.URL,
		pageSize: o.PageSize,
		http:     client,
		retryCfg: o.Retry,
		logger:   logger,
	}
}

// FetchDay returns every transaction whose partition key equals day, in no
// particular order. The day is split into 24 one-hour windows fetched
// concurrently; each window is paginated until a short page. Pages are
// reassembled before returning, so callers see a single blocking call.
func (c *Client) FetchDay(ctx context.Context, day date.Day) ([]model.Transaction, error) {
	const hours = 24
	start := day.Time()

	results := make([][]model.Transaction, hours)
	errs := make([]error, hours)

	pool := pond.NewPool(windowWorkers)
	defer pool.StopAndWait()
	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for i := 0; i < hours; i++ {
		group.Submit(func() {
			if groupCtx.Err() != nil {
				return
			}
			windowStart := start.Add(time.Duration(i) * time.Hour)
			windowFinish := windowStart.Add(time.Hour)
			results[i], errs[i] = c.fetchWindow(groupCtx, windowStart, windowFinish)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("window fetch group error", zap.String("day", day.String()), zap.Error(err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []model.Transaction
	for i := 0; i < hours; i++ {
		if errs[i] != nil {
			return nil, errs[i]
		}
		all = append(all, results[i]...)
	}
	c.logger.Debug("fetched day from source",
		zap.String("day", day.String()),
		zap.Int("transactions", len(all)))
	return all, nil
}

// fetchWindow pages through [start, finish) with an explicit loop: the page
// offset grows until the source returns fewer records than the page cap.
func (c *Client) fetchWindow(ctx context.Context, start, finish time.Time) ([]model.Transaction, error) {
	var all []model.Transaction
	for page := 0; ; page++ {
		records, err := c.fetchPage(ctx, page, start, finish)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
		if len(records) < c.pageSize {
			return all, nil
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, page int, start, finish time.Time) ([]model.Transaction, error) {
	variables := map[string]any{
		"count":      c.pageSize,
		"skip":       c.pageSize * page,
		"startDate":  start.UTC().Format(time.RFC3339),
		"finishDate": finish.UTC().Format(time.RFC3339),
	}

	var resp transactionsResponse
	err := retry.WithBackoff(ctx, c.retryCfg, c.logger, "subgraph_transactions", func() error {
		return c.query(ctx, transactionsQuery, variables, &resp)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d of %s: %v", ErrSourceUnavailable, page, start.UTC().Format(time.RFC3339), err)
	}

	transactions := make([]model.Transaction, 0, len(resp.Data.TokenHolderTransactions))
	for _, wire := range resp.Data.TokenHolderTransactions {
		tx, err := fromWire(wire)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
		}
		transactions = append(transactions, tx)
	}
	return transactions, nil
}

// LatestTransactionDate returns the partition day of the newest transaction.
func (c *Client) LatestTransactionDate(ctx context.Context) (date.Day, error) {
	return c.boundaryDate(ctx, latestTransactionQuery, "latest")
}

// EarliestTransactionDate returns the partition day of the oldest transaction.
func (c *Client) EarliestTransactionDate(ctx context.Context) (date.Day, error) {
	return c.boundaryDate(ctx, earliestTransactionQuery, "earliest")
}

func (c *Client) boundaryDate(ctx context.Context, query, which string) (date.Day, error) {
	var resp transactionsResponse
	err := retry.WithBackoff(ctx, c.retryCfg, c.logger, "subgraph_"+which+"_transaction", func() error {
		return c.query(ctx, query, nil, &resp)
	})
	if err != nil {
		return date.Day{}, fmt.Errorf("%w: %s transaction date: %v", ErrSourceUnavailable, which, err)
	}
	if len(resp.Data.TokenHolderTransactions) == 0 {
		return date.Day{}, ErrNoTransactions
	}
	t, err := time.Parse(time.RFC3339, resp.Data.TokenHolderTransactions[0].Date)
	if err != nil {
		return date.Day{}, fmt.Errorf("%w: %s transaction date %q: %v",
			ErrSourceUnavailable, which, resp.Data.TokenHolderTransactions[0].Date, err)
	}
	return date.FromTime(t), nil
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out *transactionsResponse) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	*out = transactionsResponse{}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", out.Errors[0].Message)
	}
	return nil
}

// fromWire flattens the subgraph's nested record into the engine's model,
// stamping the partition day derived from the record timestamp.
func fromWire(w wireTransaction) (model.Transaction, error) {
	t, err := time.Parse(time.RFC3339, w.Date)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s has invalid date %q: %v", w.ID, w.Date, err)
	}
	return model.Transaction{
		ID:          w.ID,
		Holder:      w.Holder.Holder,
		Token:       w.Holder.Token.Name,
		Blockchain:  w.Holder.Token.Blockchain,
		Value:       w.Value,
		Date:        date.FromTime(t),
		Transaction: w.Transaction,
	}, nil
}
