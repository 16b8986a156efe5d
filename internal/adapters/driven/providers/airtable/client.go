// Package airtable implements the Airtable provider client on the records
// REST API. Airtable has no push channels; its triggers are cron-driven.
package airtable

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// Verify interface compliance
var _ driven.ProviderClient = (*Client)(nil)

const (
	apiBaseURL = "https://api.airtable.com/v0"

	oauthTokenURL = "https://airtable.com/oauth2/v1/token"
	oauthAuthURL  = "https://airtable.com/oauth2/v1/authorize"

	// Records per page; Airtable's maximum
	pageSize = 100
)

// recordIDColumn keys snapshot rows. Airtable field order is not stable
// across records, so the record id is the only reliable row identity.
const recordIDColumn = "record_id"

// Client talks to the Airtable REST API on behalf of a data source,
// exchanging the source's refresh token per call.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// Config holds configuration for the Airtable client.
type Config struct {
	// ClientID and ClientSecret identify the OAuth integration the
	// refresh tokens were issued to
	ClientID     string
	ClientSecret string
}

// NewClient creates a new Airtable provider client.
func NewClient(cfg Config) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  oauthAuthURL,
				TokenURL: oauthTokenURL,
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type record struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

type listResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// DownloadSnapshot pages through all records of the configured table and
// flattens them into a snapshot keyed by record id.
func (c *Client) DownloadSnapshot(ctx context.Context, source *domain.DataSource) (*snapshot.Table, error) {
	if source.Config.BaseID == "" || source.Config.TableID == "" {
		return nil, fmt.Errorf("data source %s has no base/table: %w", source.ID, domain.ErrInvalidInput)
	}

	var records []record
	offset := ""
	for {
		page, err := c.listPage(ctx, source, offset)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	return buildTable(records), nil
}

// RegisterChangeWebhook is unsupported; Airtable sources sync on cron.
func (c *Client) RegisterChangeWebhook(ctx context.Context, source *domain.DataSource, triggerID, channelID, token string, lease time.Duration) (*driven.WebhookSubscription, error) {
	return nil, fmt.Errorf("airtable does not support change webhooks: %w", domain.ErrInvalidInput)
}

// StopChangeWebhook is unsupported; Airtable sources sync on cron.
func (c *Client) StopChangeWebhook(ctx context.Context, source *domain.DataSource, subscriptionID, resourceID string) error {
	return fmt.Errorf("airtable does not support change webhooks: %w", domain.ErrInvalidInput)
}

func (c *Client) listPage(ctx context.Context, source *domain.DataSource, offset string) (*listResponse, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?pageSize=%d", apiBaseURL,
		url.PathEscape(source.Config.BaseID), url.PathEscape(source.Config.TableID), pageSize)
	if offset != "" {
		endpoint += "&offset=" + url.QueryEscape(offset)
	}

	var page listResponse
	if err := c.doRequest(ctx, source, http.MethodGet, endpoint, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) doRequest(ctx context.Context, source *domain.DataSource, method, endpoint string, response any) error {
	if source.Config.RefreshToken == "" {
		return fmt.Errorf("data source %s has no refresh token: %w", source.ID, domain.ErrInvalidInput)
	}

	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: source.Config.RefreshToken,
	}).Token()
	if err != nil {
		return fmt.Errorf("exchange refresh token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+token.AccessToken)
	req.Header.Add("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("airtable error (%d): %s", res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(response)
}

// buildTable flattens records into a rectangular snapshot. Columns are the
// sorted union of field names, prefixed with the record id key column, so
// the layout is deterministic across cycles.
func buildTable(records []record) *snapshot.Table {
	fieldSet := map[string]bool{}
	for _, r := range records {
		for name := range r.Fields {
			fieldSet[name] = true
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for name := range fieldSet {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	table := &snapshot.Table{
		Columns: append([]string{recordIDColumn}, fields...),
	}
	for _, r := range records {
		row := make([]string, 0, len(fields)+1)
		row = append(row, r.ID)
		for _, name := range fields {
			if value, ok := r.Fields[name]; ok {
				row = append(row, fmt.Sprint(value))
			} else {
				row = append(row, "")
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
