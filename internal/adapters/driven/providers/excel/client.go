// Package excel implements the Microsoft Excel provider client against the
// Microsoft Graph workbook API. Graph offers no durable change channels for
// workbook content, so this provider is snapshot-only; its triggers are
// cron-driven.
package excel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// Verify interface compliance
var _ driven.ProviderClient = (*Client)(nil)

const graphBaseURL = "https://graph.microsoft.com/v1.0"

// Client talks to the Microsoft Graph API on behalf of a data source,
// exchanging the source's refresh token per call.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// Config holds configuration for the Excel client.
type Config struct {
	// ClientID and ClientSecret identify the Azure AD application the
	// refresh tokens were issued to
	ClientID     string
	ClientSecret string

	// Tenant scopes token exchange; defaults to "common"
	Tenant string
}

// NewClient creates a new Microsoft Excel provider client.
func NewClient(cfg Config) *Client {
	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// DownloadSnapshot reads the used range of the configured worksheet.
// The first row is the header.
func (c *Client) DownloadSnapshot(ctx context.Context, source *domain.DataSource) (*snapshot.Table, error) {
	if source.Config.WorkbookID == "" || source.Config.WorksheetName == "" {
		return nil, fmt.Errorf("data source %s has no workbook/worksheet: %w", source.ID, domain.ErrInvalidInput)
	}

	url := fmt.Sprintf("%s/me/drive/items/%s/workbook/worksheets/%s/usedRange?$select=values",
		graphBaseURL, source.Config.WorkbookID, source.Config.WorksheetName)

	var response struct {
		Values [][]interface{} `json:"values"`
	}
	if err := c.doRequest(ctx, source, http.MethodGet, url, &response); err != nil {
		return nil, err
	}
	if len(response.Values) == 0 {
		return nil, fmt.Errorf("worksheet %s has no header row: %w", source.Config.WorksheetName, domain.ErrInvalidInput)
	}

	table := &snapshot.Table{
		Columns: cellsToStrings(response.Values[0]),
	}
	for _, row := range response.Values[1:] {
		table.Rows = append(table.Rows, cellsToStrings(row))
	}
	return table, nil
}

// RegisterChangeWebhook is unsupported; Excel sources sync on cron.
func (c *Client) RegisterChangeWebhook(ctx context.Context, source *domain.DataSource, triggerID, channelID, token string, lease time.Duration) (*driven.WebhookSubscription, error) {
	return nil, fmt.Errorf("microsoft excel does not support change webhooks: %w", domain.ErrInvalidInput)
}

// StopChangeWebhook is unsupported; Excel sources sync on cron.
func (c *Client) StopChangeWebhook(ctx context.Context, source *domain.DataSource, subscriptionID, resourceID string) error {
	return fmt.Errorf("microsoft excel does not support change webhooks: %w", domain.ErrInvalidInput)
}

func (c *Client) doRequest(ctx context.Context, source *domain.DataSource, method, url string, response any) error {
	if source.Config.RefreshToken == "" {
		return fmt.Errorf("data source %s has no refresh token: %w", source.ID, domain.ErrInvalidInput)
	}

	token, err := c.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: source.Config.RefreshToken,
	}).Token()
	if err != nil {
		return fmt.Errorf("exchange refresh token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
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
		return fmt.Errorf("graph error (%d): %s", res.StatusCode, string(b))
	}
	return json.NewDecoder(res.Body).Decode(response)
}

func cellsToStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = fmt.Sprint(cell)
	}
	return out
}
