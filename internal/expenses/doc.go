// Package expenses holds the expense model, its validation and the
// repositories storing expenses per user.
//
// Expenses are partitioned by user ID. The Cosmos DB repository expects a
// container with partition key /user_id.
package expenses
