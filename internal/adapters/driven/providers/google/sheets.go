// Package google implements the Google Sheets provider client. Snapshots
// come from the Sheets API; change webhooks are Drive watch channels on
// the spreadsheet file.
package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// Verify interface compliance
var _ driven.ProviderClient = (*Client)(nil)

// defaultSheetRange covers the whole first sheet when the source does not
// pin a range.
const defaultSheetRange = "A1:ZZ"

// Client talks to the Google Sheets and Drive APIs on behalf of a data
// source, exchanging the source's refresh token per call.
type Client struct {
	oauth       *oauth2.Config
	callbackURL string
}

// Config holds configuration for the Google Sheets client.
type Config struct {
	// ClientID and ClientSecret identify the OAuth application the
	// refresh tokens were issued to
	ClientID     string
	ClientSecret string

	// CallbackURL is the public base URL Drive pushes change
	// notifications to
	CallbackURL string
}

// NewClient creates a new Google Sheets provider client.
func NewClient(cfg Config) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     googleoauth.Endpoint,
		},
		callbackURL: cfg.CallbackURL,
	}
}

// tokenSource exchanges the source's refresh token for access tokens.
func (c *Client) tokenSource(ctx context.Context, source *domain.DataSource) (oauth2.TokenSource, error) {
	if source.Config.RefreshToken == "" {
		return nil, fmt.Errorf("data source %s has no refresh token: %w", source.ID, domain.ErrInvalidInput)
	}
	return c.oauth.TokenSource(ctx, &oauth2.Token{
		RefreshToken: source.Config.RefreshToken,
	}), nil
}

// DownloadSnapshot fetches the full current content of the spreadsheet.
// The first value row is the header.
func (c *Client) DownloadSnapshot(ctx context.Context, source *domain.DataSource) (*snapshot.Table, error) {
	if source.Config.SpreadsheetID == "" {
		return nil, fmt.Errorf("data source %s has no spreadsheet id: %w", source.ID, domain.ErrInvalidInput)
	}

	ts, err := c.tokenSource(ctx, source)
	if err != nil {
		return nil, err
	}
	svc, err := sheets.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	sheetRange := source.Config.SheetRange
	if sheetRange == "" {
		sheetRange = defaultSheetRange
	}

	values, err := svc.Spreadsheets.Values.Get(source.Config.SpreadsheetID, sheetRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read spreadsheet values: %w", err)
	}
	if len(values.Values) == 0 {
		return nil, fmt.Errorf("spreadsheet %s has no header row: %w", source.Config.SpreadsheetID, domain.ErrInvalidInput)
	}

	table := &snapshot.Table{
		Columns: cellsToStrings(values.Values[0]),
	}
	for _, row := range values.Values[1:] {
		table.Rows = append(table.Rows, cellsToStrings(row))
	}
	return table, nil
}

// RegisterChangeWebhook opens a Drive watch channel on the spreadsheet
// file. Drive echoes the channel id and token back on every notification.
func (c *Client) RegisterChangeWebhook(ctx context.Context, source *domain.DataSource, triggerID, channelID, token string, lease time.Duration) (*driven.WebhookSubscription, error) {
	if c.callbackURL == "" {
		return nil, errors.New("webhook callback url is not configured")
	}

	ts, err := c.tokenSource(ctx, source)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	channel := &drive.Channel{
		Id:         channelID,
		Type:       "web_hook",
		Address:    fmt.Sprintf("%s/triggers/google-sheets/%s", c.callbackURL, triggerID),
		Token:      token,
		Expiration: time.Now().Add(lease).UnixMilli(),
	}
	created, err := svc.Files.Watch(source.Config.SpreadsheetID, channel).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("watch spreadsheet file: %w", err)
	}

	return &driven.WebhookSubscription{
		ID:         created.Id,
		ResourceID: created.ResourceId,
		Token:      token,
		ExpiresAt:  time.UnixMilli(created.Expiration),
	}, nil
}

// StopChangeWebhook closes a Drive watch channel.
func (c *Client) StopChangeWebhook(ctx context.Context, source *domain.DataSource, subscriptionID, resourceID string) error {
	ts, err := c.tokenSource(ctx, source)
	if err != nil {
		return err
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return fmt.Errorf("create drive service: %w", err)
	}

	err = svc.Channels.Stop(&drive.Channel{
		Id:         subscriptionID,
		ResourceId: resourceID,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("stop drive channel: %w", err)
	}
	return nil
}

func cellsToStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = fmt.Sprint(cell)
	}
	return out
}
