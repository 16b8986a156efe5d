package services

import (
	"context"
	"testing"
	"time"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven"
	"github.com/custodia-labs/syncflow-core/internal/core/ports/driven/mocks"
)

func createTestWebhookManager(t *testing.T, production bool) (*WebhookManager, *mocks.MockTriggerStore, *mocks.MockJobStore, *mocks.MockProviderClient) {
	t.Helper()

	triggers := mocks.NewMockTriggerStore()
	jobs := mocks.NewMockJobStore()
	provider := mocks.NewMockProviderClient()

	manager := NewWebhookManager(WebhookManagerConfig{
		Providers: driven.ProviderClients{
			domain.ProviderTypeGoogleSheets: provider,
		},
		Triggers:    triggers,
		Jobs:        jobs,
		TokenSecret: []byte("test-secret"),
		Production:  production,
	})
	return manager, triggers, jobs, provider
}

func seedWebhookTrigger(t *testing.T, triggers *mocks.MockTriggerStore, leaseSeconds int64) *domain.Trigger {
	t.Helper()
	trigger := domain.NewTrigger("sheets-webhook", domain.TriggerTypeWebhook, domain.WorkflowRef{
		ID:   "flow-1",
		Name: "google-sheets-full-refresh",
		Type: domain.WorkflowTypeSyncflow,
	})
	trigger.Webhook = &domain.WebhookConfig{LeaseSeconds: leaseSeconds}
	if err := triggers.Create(context.Background(), trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	return trigger
}

func sheetsSource() *domain.DataSource {
	return &domain.DataSource{
		ID:           "src-1",
		ProviderType: domain.ProviderTypeGoogleSheets,
		Config:       domain.DataSourceConfig{SpreadsheetID: "sheet-1"},
	}
}

func TestCreateWebhookProductionInterval(t *testing.T) {
	manager, triggers, jobs, _ := createTestWebhookManager(t, true)
	trigger := seedWebhookTrigger(t, triggers, 518400)

	if err := manager.CreateWebhook(context.Background(), trigger, sheetsSource()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := triggers.Get(context.Background(), trigger.ID)
	want := (518400 - 1800) * time.Second
	if stored.Webhook.RefreshInterval() != want {
		t.Errorf("refresh interval = %v, want %v", stored.Webhook.RefreshInterval(), want)
	}

	job := jobs.Job(stored.Webhook.RenewalJobID)
	if job == nil {
		t.Fatal("expected renewal job registered")
	}
	if job.Kind != domain.JobKindRenewWebhook {
		t.Errorf("job kind = %s, want renew_webhook", job.Kind)
	}
	if job.Interval != want {
		t.Errorf("job interval = %v, want %v", job.Interval, want)
	}
}

func TestCreateWebhookDevInterval(t *testing.T) {
	manager, triggers, jobs, _ := createTestWebhookManager(t, false)
	trigger := seedWebhookTrigger(t, triggers, 518400)

	if err := manager.CreateWebhook(context.Background(), trigger, sheetsSource()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := triggers.Get(context.Background(), trigger.ID)
	if stored.Webhook.RefreshInterval() != devRenewalInterval {
		t.Errorf("refresh interval = %v, want fixed %v outside production",
			stored.Webhook.RefreshInterval(), devRenewalInterval)
	}
	job := jobs.Job(stored.Webhook.RenewalJobID)
	if job == nil || job.Interval != devRenewalInterval {
		t.Error("expected renewal job at the fixed dev interval")
	}
}

func TestCreateStoresSubscription(t *testing.T) {
	manager, triggers, _, provider := createTestWebhookManager(t, true)
	trigger := seedWebhookTrigger(t, triggers, 518400)

	if err := manager.Create(context.Background(), trigger, sheetsSource()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registered := provider.Registered()
	if len(registered) != 1 {
		t.Fatalf("expected 1 registration, got %d", len(registered))
	}
	stored, _ := triggers.Get(context.Background(), trigger.ID)
	if stored.Webhook.SubscriptionID != registered[0].ID {
		t.Error("stored subscription id should match the registered channel")
	}
	if stored.Webhook.ChannelToken == "" {
		t.Error("expected channel token stored")
	}
	if stored.Webhook.ExpiresAt.IsZero() {
		t.Error("expected provider expiration stored")
	}
}

func TestCreateDoesNotMutatePriorSnapshots(t *testing.T) {
	manager, triggers, _, _ := createTestWebhookManager(t, true)
	trigger := seedWebhookTrigger(t, triggers, 518400)

	before, err := triggers.Get(context.Background(), trigger.ID)
	if err != nil {
		t.Fatalf("get trigger: %v", err)
	}

	fresh, _ := triggers.Get(context.Background(), trigger.ID)
	if err := manager.Create(context.Background(), fresh, sheetsSource()); err != nil {
		t.Fatalf("create: %v", err)
	}

	// the earlier read must be a snapshot, not a view of the store
	if before.Webhook.SubscriptionID != "" {
		t.Error("prior snapshot mutated by a later write")
	}
	stored, _ := triggers.Get(context.Background(), trigger.ID)
	if stored.Webhook.SubscriptionID == "" {
		t.Error("expected subscription persisted")
	}
}

func TestRenewStopsOldChannelBestEffort(t *testing.T) {
	manager, triggers, _, provider := createTestWebhookManager(t, true)
	trigger := seedWebhookTrigger(t, triggers, 518400)

	if err := manager.Create(context.Background(), trigger, sheetsSource()); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := triggers.Get(context.Background(), trigger.ID)

	// provider already expired the channel; stop fails but renewal proceeds
	provider.StopErr = context.DeadlineExceeded

	if err := manager.Renew(context.Background(), before, sheetsSource()); err != nil {
		t.Fatalf("renewal must survive a failed stop, got %v", err)
	}

	after, _ := triggers.Get(context.Background(), trigger.ID)
	if after.Webhook.SubscriptionID == before.Webhook.SubscriptionID {
		t.Error("expected a fresh channel regardless of the failed stop")
	}
	if len(provider.Stopped()) != 1 {
		t.Errorf("expected one stop attempt, got %d", len(provider.Stopped()))
	}
}

func TestAcceptDelivery(t *testing.T) {
	manager, triggers, _, _ := createTestWebhookManager(t, true)
	trigger := seedWebhookTrigger(t, triggers, 518400)

	if err := manager.Create(context.Background(), trigger, sheetsSource()); err != nil {
		t.Fatalf("create: %v", err)
	}
	stored, _ := triggers.Get(context.Background(), trigger.ID)

	tests := []struct {
		name     string
		delivery WebhookDelivery
		accepted bool
	}{
		{
			name: "content change passes",
			delivery: WebhookDelivery{
				ChannelID:     stored.Webhook.SubscriptionID,
				ChannelToken:  stored.Webhook.ChannelToken,
				ResourceState: "update",
			},
			accepted: true,
		},
		{
			name: "sync handshake dropped",
			delivery: WebhookDelivery{
				ChannelID:     stored.Webhook.SubscriptionID,
				ChannelToken:  stored.Webhook.ChannelToken,
				ResourceState: "sync",
			},
		},
		{
			name: "trash notification dropped",
			delivery: WebhookDelivery{
				ChannelID:     stored.Webhook.SubscriptionID,
				ChannelToken:  stored.Webhook.ChannelToken,
				ResourceState: "trash",
			},
		},
		{
			name: "stale channel dropped",
			delivery: WebhookDelivery{
				ChannelID:     "previous-channel",
				ChannelToken:  stored.Webhook.ChannelToken,
				ResourceState: "update",
			},
		},
		{
			name: "forged token dropped",
			delivery: WebhookDelivery{
				ChannelID:     stored.Webhook.SubscriptionID,
				ChannelToken:  "forged",
				ResourceState: "update",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := manager.AcceptDelivery(stored, tt.delivery)
			if tt.accepted && outcome.Skipped() {
				t.Errorf("expected delivery accepted, got skip: %s", outcome.Reason)
			}
			if !tt.accepted && !outcome.Skipped() {
				t.Errorf("expected delivery dropped, got %+v", outcome)
			}
		})
	}
}
