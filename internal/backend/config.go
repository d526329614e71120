package backend

import (
	"fmt"
	"strings"

	"flotta/internal/config"
	"flotta/internal/sheets/google"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets; also the report source of the sqlite backend when set
	Sheets      google.Config
	Credentials google.Credentials

	// Seed plates file location for memory and sqlite
	DataDirectory string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		Sheets: google.Config{
			SpreadsheetID:     appConfig.GoogleSpreadsheetID,
			SheetName:         appConfig.GoogleSheetName,
			RequestsPerSecond: appConfig.SheetsRequestsPerSecond,
			Burst:             appConfig.SheetsBurst,
		},
		Credentials: google.Credentials{
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenJSON:     appConfig.GoogleOAuthTokenJSON,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
		},

		DataDirectory: appConfig.DataDirectory,
	}, nil
}

// HasSheets reports whether a spreadsheet is configured.
func (c Config) HasSheets() bool {
	return strings.TrimSpace(c.Sheets.SpreadsheetID) != ""
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if !c.HasSheets() {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if !c.Credentials.HasServiceAccount() && !c.Credentials.HasOAuthClient() {
			return fmt.Errorf("Google credentials are required for sheets backend")
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SheetsBackend, SQLiteBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
