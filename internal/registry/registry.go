// Package registry holds the static table of syncflow and trigger
// definitions per provider type. The table is built once at startup and
// passed by reference; it is never mutated afterwards.
package registry

import (
	"fmt"

	"github.com/custodia-labs/syncflow-core/internal/core/domain"
)

// TriggerDef describes the trigger created for a syncflow definition.
type TriggerDef struct {
	Name           string
	Type           domain.TriggerType
	CronExpression string // CRON triggers
	LeaseSeconds   int64  // EVENT_WEBHOOK triggers
}

// SyncflowDef describes one syncflow created when a connection is opened.
type SyncflowDef struct {
	Name       string
	Attributes domain.SyncflowAttributes
	Trigger    TriggerDef
}

// Registry maps provider types to their syncflow definitions.
type Registry struct {
	defs map[domain.ProviderType][]SyncflowDef
}

const (
	// DriveLeaseSeconds is the lifetime Google grants a Drive change channel.
	DriveLeaseSeconds = 518400

	defaultCronExpression = "0 */6 * * *"
)

// New builds the registry from the static definition table.
func New() *Registry {
	fullRefresh := domain.SyncflowAttributes{
		Direction:  "pull",
		SyncMethod: "snapshot",
		SyncTarget: "table",
		SyncType:   "full_refresh",
	}

	return &Registry{
		defs: map[domain.ProviderType][]SyncflowDef{
			domain.ProviderTypeGoogleSheets: {
				{
					Name:       "google-sheets-full-refresh",
					Attributes: fullRefresh,
					Trigger: TriggerDef{
						Name:         "google-sheets-change-webhook",
						Type:         domain.TriggerTypeWebhook,
						LeaseSeconds: DriveLeaseSeconds,
					},
				},
			},
			domain.ProviderTypeMicrosoftExcel: {
				{
					Name:       "microsoft-excel-full-refresh",
					Attributes: fullRefresh,
					Trigger: TriggerDef{
						Name:           "microsoft-excel-cron",
						Type:           domain.TriggerTypeCron,
						CronExpression: defaultCronExpression,
					},
				},
			},
			domain.ProviderTypeAirtable: {
				{
					Name:       "airtable-full-refresh",
					Attributes: fullRefresh,
					Trigger: TriggerDef{
						Name:           "airtable-cron",
						Type:           domain.TriggerTypeCron,
						CronExpression: defaultCronExpression,
					},
				},
			},
		},
	}
}

// Definitions returns the syncflow definitions for a provider type.
// An unknown provider is a configuration error, not a runtime condition.
func (r *Registry) Definitions(providerType domain.ProviderType) ([]SyncflowDef, error) {
	defs, ok := r.defs[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, providerType)
	}
	return defs, nil
}

// Providers lists the provider types with registered definitions.
func (r *Registry) Providers() []domain.ProviderType {
	types := make([]domain.ProviderType, 0, len(r.defs))
	for pt := range r.defs {
		types = append(types, pt)
	}
	return types
}
