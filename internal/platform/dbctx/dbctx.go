// Package dbctx carries the request context and, when a caller opened
// one, the surrounding GORM transaction down into the repos.
package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context is what every repo method takes in place of a bare
// context.Context. Tx is nil outside a transaction; repos fall back to
// their own connection handle then. The rotator and the aggregation
// trigger set Tx so their multi-step relabels commit atomically.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}
