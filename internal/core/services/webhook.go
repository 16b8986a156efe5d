package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
)

const (
	// renewalSafetyMarginSeconds is subtracted from the provider lease so a
	// subscription is renewed before the provider expires it.
	renewalSafetyMarginSeconds = 1800

	// devRenewalInterval is the fixed renewal cadence outside production,
	// where leases are short enough that margin arithmetic underflows.
	devRenewalInterval = 1600 * time.Second
)

// resourceStateUpdate is the only delivery state that signals changed
// content; "sync" handshakes and "trash" notifications are dropped.
const resourceStateUpdate = "update"

// WebhookManager owns provider push subscriptions end to end: channel
// creation, renewal scheduling, teardown and delivery verification.
//
// Renewal is intentionally not transactional. The old channel is stopped
// best-effort and a fresh one is always created; a provider that already
// expired the old channel must not block the new lease.
type WebhookManager struct {
	providers driven.ProviderClients
	triggers  driven.TriggerStore
	jobs      driven.JobStore
	secret    []byte
	prod      bool
	logger    *slog.Logger
}

// WebhookManagerConfig holds dependencies for WebhookManager.
type WebhookManagerConfig struct {
	Providers driven.ProviderClients
	Triggers  driven.TriggerStore
	Jobs      driven.JobStore

	// TokenSecret signs channel tokens carried on deliveries
	TokenSecret []byte

	// Production selects margin-based renewal intervals; outside
	// production a fixed short interval is used instead
	Production bool

	Logger *slog.Logger
}

// NewWebhookManager creates a new webhook subscription manager.
func NewWebhookManager(cfg WebhookManagerConfig) *WebhookManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookManager{
		providers: cfg.Providers,
		triggers:  cfg.Triggers,
		jobs:      cfg.Jobs,
		secret:    cfg.TokenSecret,
		prod:      cfg.Production,
		logger:    logger,
	}
}

type channelClaims struct {
	TriggerID string `json:"trigger_id"`
	ChannelID string `json:"channel_id"`
	jwt.RegisteredClaims
}

func (m *WebhookManager) signChannelToken(triggerID, channelID string, lease time.Duration) (string, error) {
	claims := channelClaims{
		TriggerID: triggerID,
		ChannelID: channelID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lease)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *WebhookManager) verifyChannelToken(token, triggerID, channelID string) error {
	parsed, err := jwt.ParseWithClaims(token, &channelClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return fmt.Errorf("parse channel token: %w", err)
	}
	claims, ok := parsed.Claims.(*channelClaims)
	if !ok || claims.TriggerID != triggerID || claims.ChannelID != channelID {
		return fmt.Errorf("channel token does not match delivery")
	}
	return nil
}

// renewalInterval computes how often the renewal job fires for a lease.
func (m *WebhookManager) renewalInterval(lease time.Duration) time.Duration {
	if m.prod {
		return lease - renewalSafetyMarginSeconds*time.Second
	}
	return devRenewalInterval
}

// Create opens a push channel with the provider and stores the resulting
// subscription on the trigger. Does not touch renewal scheduling.
func (m *WebhookManager) Create(ctx context.Context, trigger *domain.Trigger, source *domain.DataSource) error {
	if trigger.Webhook == nil {
		return fmt.Errorf("trigger %s has no webhook config: %w", trigger.ID, domain.ErrInvalidInput)
	}
	client, err := m.providers.Get(source.ProviderType)
	if err != nil {
		return err
	}

	lease := time.Duration(trigger.Webhook.LeaseSeconds) * time.Second
	channelID := uuid.NewString()
	token, err := m.signChannelToken(trigger.ID, channelID, lease)
	if err != nil {
		return fmt.Errorf("sign channel token: %w", err)
	}

	sub, err := client.RegisterChangeWebhook(ctx, source, trigger.ID, channelID, token, lease)
	if err != nil {
		return fmt.Errorf("register change webhook: %w", err)
	}

	trigger.Webhook.SubscriptionID = sub.ID
	trigger.Webhook.ResourceID = sub.ResourceID
	trigger.Webhook.ChannelToken = sub.Token
	trigger.Webhook.ExpiresAt = sub.ExpiresAt
	trigger.UpdatedAt = time.Now()
	if err := m.triggers.Save(ctx, trigger); err != nil {
		return fmt.Errorf("save trigger: %w", err)
	}

	m.logger.Info("webhook subscription created",
		"trigger_id", trigger.ID,
		"subscription_id", sub.ID,
		"expires_at", sub.ExpiresAt,
	)
	return nil
}

// CreateWebhook opens the initial channel for a trigger and registers the
// recurring renewal job that keeps it alive.
func (m *WebhookManager) CreateWebhook(ctx context.Context, trigger *domain.Trigger, source *domain.DataSource) error {
	if err := m.Create(ctx, trigger, source); err != nil {
		return err
	}

	interval := m.renewalInterval(time.Duration(trigger.Webhook.LeaseSeconds) * time.Second)
	renewalJobID := uuid.NewString()
	if err := m.jobs.AddInterval(ctx, renewalJobID, interval, domain.JobKindRenewWebhook, map[string]string{
		"trigger_id": trigger.ID,
	}); err != nil {
		return fmt.Errorf("schedule renewal job: %w", err)
	}

	trigger.Webhook.RenewalJobID = renewalJobID
	trigger.Webhook.RefreshIntervalMS = interval.Milliseconds()
	trigger.UpdatedAt = time.Now()
	if err := m.triggers.Save(ctx, trigger); err != nil {
		return fmt.Errorf("save trigger: %w", err)
	}
	return nil
}

// Renew replaces the trigger's channel. The old channel is stopped
// best-effort; creation of the replacement is unconditional.
func (m *WebhookManager) Renew(ctx context.Context, trigger *domain.Trigger, source *domain.DataSource) error {
	if trigger.Webhook == nil {
		return fmt.Errorf("trigger %s has no webhook config: %w", trigger.ID, domain.ErrInvalidInput)
	}

	if trigger.Webhook.SubscriptionID != "" {
		client, err := m.providers.Get(source.ProviderType)
		if err != nil {
			return err
		}
		if err := client.StopChangeWebhook(ctx, source, trigger.Webhook.SubscriptionID, trigger.Webhook.ResourceID); err != nil {
			m.logger.Warn("failed to stop expiring webhook channel",
				"trigger_id", trigger.ID,
				"subscription_id", trigger.Webhook.SubscriptionID,
				"error", err,
			)
		}
	}

	return m.Create(ctx, trigger, source)
}

// Stop tears down the trigger's channel and its renewal job.
func (m *WebhookManager) Stop(ctx context.Context, trigger *domain.Trigger, source *domain.DataSource) error {
	if trigger.Webhook == nil {
		return nil
	}

	if trigger.Webhook.RenewalJobID != "" {
		interval := trigger.Webhook.RefreshInterval()
		if err := m.jobs.RemoveInterval(ctx, trigger.Webhook.RenewalJobID, interval); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("remove renewal job: %w", err)
			}
			m.logger.Warn("renewal job already removed", "trigger_id", trigger.ID)
		}
	}

	if trigger.Webhook.SubscriptionID != "" {
		client, err := m.providers.Get(source.ProviderType)
		if err != nil {
			return err
		}
		if err := client.StopChangeWebhook(ctx, source, trigger.Webhook.SubscriptionID, trigger.Webhook.ResourceID); err != nil {
			m.logger.Warn("failed to stop webhook channel",
				"trigger_id", trigger.ID,
				"subscription_id", trigger.Webhook.SubscriptionID,
				"error", err,
			)
		}
	}
	return nil
}

// WebhookDelivery is one inbound provider notification, already stripped
// down to the headers the core cares about.
type WebhookDelivery struct {
	ChannelID     string
	ChannelToken  string
	ResourceState string
}

// AcceptDelivery decides whether an inbound notification should fire the
// trigger. Handshakes, stale channels and bad tokens are acceptable drops;
// only a verified content-change delivery passes.
func (m *WebhookManager) AcceptDelivery(trigger *domain.Trigger, delivery WebhookDelivery) domain.Outcome {
	if trigger.Webhook == nil {
		return domain.Skip("trigger has no webhook subscription")
	}
	if delivery.ResourceState != resourceStateUpdate {
		return domain.Skip(fmt.Sprintf("resource state %q is not a content change", delivery.ResourceState))
	}
	if delivery.ChannelID != trigger.Webhook.SubscriptionID {
		return domain.Skip("delivery from a stale channel")
	}
	if err := m.verifyChannelToken(delivery.ChannelToken, trigger.ID, delivery.ChannelID); err != nil {
		return domain.Skip("channel token verification failed")
	}
	return domain.OK()
}
