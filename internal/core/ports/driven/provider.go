package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/snapshot"
)

// WebhookSubscription is a bounded-lifetime push channel with a provider.
type WebhookSubscription struct {
	// ID is the channel/subscription identifier we generated
	ID string

	// ResourceID is the provider-assigned handle needed to stop the channel
	ResourceID string

	// Token is the channel token echoed back on deliveries
	Token string

	// ExpiresAt is the provider-granted expiration
	ExpiresAt time.Time
}

// ProviderClient is the per-provider API surface the core consumes.
// Implementations are opaque, swappable collaborators.
type ProviderClient interface {
	// DownloadSnapshot fetches the full current snapshot of the source
	DownloadSnapshot(ctx context.Context, source *domain.DataSource) (*snapshot.Table, error)

	// RegisterChangeWebhook opens a push subscription with the given
	// channel id, token and requested lease, returning the provider's
	// actual handle and expiration. The trigger id addresses the delivery
	// callback route.
	RegisterChangeWebhook(ctx context.Context, source *domain.DataSource, triggerID, channelID, token string, lease time.Duration) (*WebhookSubscription, error)

	// StopChangeWebhook tears down a push subscription
	StopChangeWebhook(ctx context.Context, source *domain.DataSource, subscriptionID, resourceID string) error
}

// ProviderClients is the dispatch table keyed by provider type, built
// explicitly at startup.
type ProviderClients map[domain.ProviderType]ProviderClient

// Get returns the client for a provider type; an unknown provider is a
// configuration error.
func (p ProviderClients) Get(providerType domain.ProviderType) (ProviderClient, error) {
	client, ok := p[providerType]
	if !ok {
		return nil, domain.ErrUnknownProvider
	}
	return client, nil
}
