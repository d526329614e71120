package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Credentials selects how the client authenticates. A service account wins
// over OAuth user credentials when both are set.
type Credentials struct {
	ServiceAccountJSON string
	ServiceAccountFile string
	OAuthClientJSON    string
	OAuthClientFile    string
	OAuthTokenJSON     string
	OAuthTokenFile     string
}

var errNoCredentials = errors.New("missing credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_OAUTH_CLIENT_JSON/FILE)")

// HasServiceAccount reports whether service account credentials are configured.
func (c Credentials) HasServiceAccount() bool {
	return strings.TrimSpace(c.ServiceAccountJSON) != "" || strings.TrimSpace(c.ServiceAccountFile) != ""
}

// HasOAuthClient reports whether an OAuth client is configured.
func (c Credentials) HasOAuthClient() bool {
	return strings.TrimSpace(c.OAuthClientJSON) != "" || strings.TrimSpace(c.OAuthClientFile) != ""
}

// ClientOptions turns credentials into API client options.
func ClientOptions(ctx context.Context, creds Credentials) ([]goption.ClientOption, error) {
	switch {
	case creds.HasServiceAccount():
		b, err := readInlineOrFile(creds.ServiceAccountJSON, creds.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account: %w", err)
		}
		slog.InfoContext(ctx, "Using service account credentials", "credentials_size", len(b))
		return []goption.ClientOption{goption.WithCredentialsJSON(b)}, nil

	case creds.HasOAuthClient():
		// Token refreshes and API calls share the pooled transport.
		ctx = context.WithValue(ctx, oauth2.HTTPClient, NewHTTPClient())
		ts, err := oauthTokenSource(ctx, creds)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "Using OAuth user credentials")
		return []goption.ClientOption{goption.WithHTTPClient(oauth2.NewClient(ctx, ts))}, nil

	default:
		return nil, errNoCredentials
	}
}

// OAuthConfig parses an OAuth client secret for the Sheets scope.
func OAuthConfig(clientJSON, clientFile string) (*oauth2.Config, error) {
	b, err := readInlineOrFile(clientJSON, clientFile)
	if err != nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func oauthTokenSource(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(creds.OAuthClientJSON, creds.OAuthClientFile)
	if err != nil {
		return nil, err
	}
	b, err := readInlineOrFile(creds.OAuthTokenJSON, creds.OAuthTokenFile)
	if err != nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE, see oauth-init)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

func readInlineOrFile(inline, path string) ([]byte, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return []byte(s), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		return os.ReadFile(p)
	}
	return nil, errors.New("not set")
}
