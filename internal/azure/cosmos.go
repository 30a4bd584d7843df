package azure

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
	"github.com/Azure/azure-sdk-for-go/sdk/tracing/azotel"
	"go.opentelemetry.io/otel/trace"
)

// CosmosConfig selects a Cosmos DB account and how to authenticate to it.
type CosmosConfig struct {
	// Account is the account name; the endpoint is derived from it when
	// Endpoint is empty.
	Account string
	// Endpoint overrides the account endpoint, e.g. for the emulator.
	Endpoint string
	// Key authenticates with an account key instead of Entra ID.
	Key string
	// Database is the database holding all containers.
	Database string
	// ClientID selects a user-assigned managed identity in production.
	ClientID string
	// Production switches from DefaultAzureCredential to ManagedIdentityCredential.
	Production bool
}

// Validate checks that the configuration can produce a client.
func (c CosmosConfig) Validate() error {
	if c.Account == "" && c.Endpoint == "" {
		return errors.New("cosmos: account or endpoint is required")
	}
	if c.Database == "" {
		return errors.New("cosmos: database is required")
	}
	if c.Production && c.Key == "" && c.ClientID == "" {
		return errors.New("cosmos: AZURE_CLIENT_ID is required for managed identity in production")
	}
	return nil
}

// EndpointURL returns the account endpoint.
func (c CosmosConfig) EndpointURL() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	return fmt.Sprintf("https://%s.documents.azure.com:443/", c.Account)
}

// NewCosmosDatabase connects to the configured database.
// Azure SDK spans are reported through tp.
func NewCosmosDatabase(cfg CosmosConfig, tp trace.TracerProvider, logger *slog.Logger) (*azcosmos.DatabaseClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := &azcosmos.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			TracingProvider: azotel.NewTracingProvider(tp, nil),
		},
	}

	var (
		client *azcosmos.Client
		err    error
	)
	switch {
	case cfg.Key != "":
		cred, credErr := azcosmos.NewKeyCredential(cfg.Key)
		if credErr != nil {
			return nil, fmt.Errorf("cosmos: build key credential: %w", credErr)
		}
		logger.Info("using account key for Cosmos DB", "component", "azure")
		client, err = azcosmos.NewClientWithKey(cfg.EndpointURL(), cred, opts)
	case cfg.Production:
		cred, credErr := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
			ID: azidentity.ClientID(cfg.ClientID),
		})
		if credErr != nil {
			return nil, fmt.Errorf("cosmos: build managed identity credential: %w", credErr)
		}
		logger.Info("using managed identity credential for Cosmos DB", "component", "azure")
		client, err = azcosmos.NewClient(cfg.EndpointURL(), cred, opts)
	default:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("cosmos: build default credential: %w", credErr)
		}
		logger.Info("using default Azure credential for Cosmos DB", "component", "azure")
		client, err = azcosmos.NewClient(cfg.EndpointURL(), cred, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("cosmos: create client: %w", err)
	}

	db, err := client.NewDatabase(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("cosmos: open database %q: %w", cfg.Database, err)
	}
	return db, nil
}

// IsNotFound reports whether err is an Azure 404 response.
func IsNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusNotFound
	}
	return false
}

// IsConflict reports whether err is an Azure 409 response.
func IsConflict(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == http.StatusConflict
	}
	return false
}

// ValidateItemID checks an item id against the characters Cosmos DB rejects.
func ValidateItemID(id string) error {
	if id == "" {
		return errors.New("cosmos: item id must not be empty")
	}
	if len(id) > 255 {
		return fmt.Errorf("cosmos: item id is %d characters, limit is 255", len(id))
	}
	if i := strings.IndexAny(id, `/\?#`); i >= 0 {
		return fmt.Errorf("cosmos: item id %q contains invalid character %q", id, id[i])
	}
	return nil
}
