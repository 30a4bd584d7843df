package expenses

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"

	"github.com/teemow/expenses-mcp/internal/azure"
)

// listByUserQuery selects one user's expenses, newest first.
const listByUserQuery = "SELECT * FROM c WHERE c.user_id = @uid ORDER BY c.date DESC"

// Container is the subset of *azcosmos.ContainerClient the repository needs.
type Container interface {
	CreateItem(ctx context.Context, partitionKey azcosmos.PartitionKey, item []byte, o *azcosmos.ItemOptions) (azcosmos.ItemResponse, error)
	NewQueryItemsPager(query string, partitionKey azcosmos.PartitionKey, o *azcosmos.QueryOptions) *runtime.Pager[azcosmos.QueryItemsResponse]
}

// CosmosRepository stores expenses in a container partitioned on /user_id.
type CosmosRepository struct {
	container Container
}

var _ Repository = (*CosmosRepository)(nil)

// NewCosmosRepository creates a repository over container.
func NewCosmosRepository(container Container) *CosmosRepository {
	return &CosmosRepository{container: container}
}

// Kind implements Repository.
func (r *CosmosRepository) Kind() string {
	return "cosmos"
}

// Create implements Repository.
func (r *CosmosRepository) Create(ctx context.Context, e Expense) error {
	if e.UserID == "" {
		return ErrMissingUser
	}
	if err := azure.ValidateItemID(e.ID); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode expense: %w", err)
	}
	if _, err := r.container.CreateItem(ctx, azcosmos.NewPartitionKeyString(e.UserID), data, nil); err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// ListByUser implements Repository.
func (r *CosmosRepository) ListByUser(ctx context.Context, userID string) ([]Expense, error) {
	if userID == "" {
		return nil, ErrMissingUser
	}
	pager := r.container.NewQueryItemsPager(listByUserQuery, azcosmos.NewPartitionKeyString(userID), &azcosmos.QueryOptions{
		QueryParameters: []azcosmos.QueryParameter{{Name: "@uid", Value: userID}},
	})

	var out []Expense
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query expenses: %w", err)
		}
		for _, item := range page.Items {
			var e Expense
			if err := json.Unmarshal(item, &e); err != nil {
				return nil, fmt.Errorf("failed to decode expense: %w", err)
			}
			out = append(out, e)
		}
	}
	return out, nil
}
