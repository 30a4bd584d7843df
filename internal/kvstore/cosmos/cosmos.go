// Package cosmos implements kvstore.Backend on an Azure Cosmos DB container.
//
// The container must be partitioned on /collection. Item-level TTL only takes
// effect when the container has a default TTL configured (-1 enables it
// without expiring other items).
package cosmos

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/teemow/expenses-mcp/internal/azure"
	"github.com/teemow/expenses-mcp/internal/kvstore"
)

// PartitionKeyPath is the partition key path the container must use.
const PartitionKeyPath = "/collection"

// Container is the subset of *azcosmos.ContainerClient the backend needs.
type Container interface {
	ReadItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	UpsertItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	DeleteItem(ctx context.Context, partitionKey azcosmos.PartitionKey, itemID string, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
}

// Backend stores documents as Cosmos DB items.
type Backend struct {
	container Container
}

var _ kvstore.Backend = (*Backend)(nil)

// New creates a backend over container.
func New(container Container) *Backend {
	return &Backend{container: container}
}

// NewFromDatabase opens containerName in db.
func NewFromDatabase(db *azcosmos.DatabaseClient, containerName string) (*Backend, error) {
	if containerName == "" {
		return nil, fmt.Errorf("cosmos: container name is required")
	}
	c, err := db.NewContainer(containerName)
	if err != nil {
		return nil, fmt.Errorf("cosmos: open container %q: %w", containerName, err)
	}
	return New(c), nil
}

// Kind implements kvstore.Backend.
func (b *Backend) Kind() string {
	return "cosmos"
}

// ReadDocument implements kvstore.Backend.
func (b *Backend) ReadDocument(ctx context.Context, collection, id string) (*kvstore.Document, error) {
	resp, err := b.container.ReadItem(ctx, azcosmos.NewPartitionKeyString(collection), id, nil)
	if err != nil {
		if azure.IsNotFound(err) {
			return nil, kvstore.ErrNotFound
		}
		return nil, fmt.Errorf("cosmos: read item %q: %w", id, err)
	}
	return kvstore.UnmarshalDocument(resp.Value)
}

// UpsertDocument implements kvstore.Backend.
func (b *Backend) UpsertDocument(ctx context.Context, doc *kvstore.Document) error {
	if err := azure.ValidateItemID(doc.ID); err != nil {
		return err
	}
	data, err := kvstore.MarshalDocument(doc)
	if err != nil {
		return err
	}
	if _, err := b.container.UpsertItem(ctx, azcosmos.NewPartitionKeyString(doc.Collection), data, nil); err != nil {
		return fmt.Errorf("cosmos: upsert item %q: %w", doc.ID, err)
	}
	return nil
}

// DeleteDocument implements kvstore.Backend.
func (b *Backend) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := b.container.DeleteItem(ctx, azcosmos.NewPartitionKeyString(collection), id, nil)
	if err != nil {
		if azure.IsNotFound(err) {
			return kvstore.ErrNotFound
		}
		return fmt.Errorf("cosmos: delete item %q: %w", id, err)
	}
	return nil
}
