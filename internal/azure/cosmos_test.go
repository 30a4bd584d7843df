package azure

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestCosmosConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CosmosConfig
		wantErr bool
	}{
		{"account and database", CosmosConfig{Account: "acct", Database: "db"}, false},
		{"endpoint only", CosmosConfig{Endpoint: "https://localhost:8081/", Database: "db"}, false},
		{"missing account", CosmosConfig{Database: "db"}, true},
		{"missing database", CosmosConfig{Account: "acct"}, true},
		{"production without client id", CosmosConfig{Account: "acct", Database: "db", Production: true}, true},
		{"production with client id", CosmosConfig{Account: "acct", Database: "db", Production: true, ClientID: "id"}, false},
		{"production with key", CosmosConfig{Account: "acct", Database: "db", Production: true, Key: "k"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "err = %v", err)
		})
	}
}

func TestCosmosConfig_EndpointURL(t *testing.T) {
	assert.Equal(t, "https://acct.documents.azure.com:443/", CosmosConfig{Account: "acct"}.EndpointURL())
	assert.Equal(t, "https://localhost:8081/", CosmosConfig{Account: "acct", Endpoint: "https://localhost:8081/"}.EndpointURL())
}

func TestNewCosmosDatabase_InvalidConfig(t *testing.T) {
	_, err := NewCosmosDatabase(CosmosConfig{}, noop.NewTracerProvider(), nil)
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	notFound := &azcore.ResponseError{StatusCode: http.StatusNotFound}
	conflict := &azcore.ResponseError{StatusCode: http.StatusConflict}

	assert.True(t, IsNotFound(notFound))
	assert.True(t, IsNotFound(errors.Join(errors.New("read item"), notFound)))
	assert.False(t, IsNotFound(conflict))
	assert.False(t, IsNotFound(errors.New("timeout")))
	assert.False(t, IsNotFound(nil))

	assert.True(t, IsConflict(conflict))
	assert.False(t, IsConflict(notFound))
}

func TestValidateItemID(t *testing.T) {
	assert.NoError(t, ValidateItemID("oauth-clients:abc123"))
	assert.Error(t, ValidateItemID(""))
	assert.Error(t, ValidateItemID("clients:a/b"))
	assert.Error(t, ValidateItemID("clients:a#b"))
	assert.Error(t, ValidateItemID(string(make([]byte, 256))))
}
