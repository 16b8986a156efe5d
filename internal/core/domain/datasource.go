package domain

import "time"

// ProviderType identifies a spreadsheet-like data source provider.
type ProviderType string

const (
	ProviderTypeGoogleSheets   ProviderType = "google_sheets"
	ProviderTypeMicrosoftExcel ProviderType = "microsoft_excel"
	ProviderTypeAirtable       ProviderType = "airtable"
)

// DataSourceConfig holds provider-specific connection parameters.
type DataSourceConfig struct {
	RefreshToken string `json:"refresh_token,omitempty"`

	// Google Sheets
	SpreadsheetID string `json:"spreadsheet_id,omitempty"`
	SheetRange    string `json:"sheet_range,omitempty"`

	// Microsoft Excel
	WorkbookID    string `json:"workbook_id,omitempty"`
	WorksheetName string `json:"worksheet_name,omitempty"`

	// Airtable
	BaseID  string `json:"base_id,omitempty"`
	TableID string `json:"table_id,omitempty"`

	// Destination table name in the load store
	DestinationTable string `json:"destination_table,omitempty"`
}

// DataSourceStatistics are the aggregate counters maintained after each cycle.
type DataSourceStatistics struct {
	RowsNumber int64 `json:"rows_number"`
}

// DataSource is the external source entity. The orchestration core only
// reads the provider type and config, and writes aggregate statistics.
type DataSource struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	ProviderType ProviderType         `json:"provider_type"`
	Config       DataSourceConfig     `json:"config"`
	Statistics   DataSourceStatistics `json:"statistics"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	DeletedAt    *time.Time           `json:"deleted_at,omitempty"`
}
