// Package azure builds the Azure SDK clients shared by the key-value store
// and the expense repository: credential selection, Cosmos DB client
// construction and error classification.
package azure
