package sheets

import (
	"time"

	"github.com/questbot/questbot/pkg/utils"
)

// DefaultWorksheet is the tab the ledger lives on unless configured otherwise.
const DefaultWorksheet = "Points Tracking"

// Config locates the ledger worksheet and the service account used to reach it.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
	// Timeout bounds every API call. A timed out batch counts as failed.
	Timeout time.Duration
}

// ConfigFromEnv reads GOOGLE_CREDENTIALS_FILE, SHEETS_SPREADSHEET_ID, SHEETS_WORKSHEET
// and SHEETS_TIMEOUT.
func ConfigFromEnv() Config {
	return Config{
		CredentialsFile: utils.Env("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
		SpreadsheetID:   utils.Env("SHEETS_SPREADSHEET_ID", ""),
		Worksheet:       utils.Env("SHEETS_WORKSHEET", DefaultWorksheet),
		Timeout:         utils.EnvDuration("SHEETS_TIMEOUT", 15*time.Second),
	}
}
