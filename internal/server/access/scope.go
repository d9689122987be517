// Package access enforces account ownership at the query and mutation
// boundary. Every read of an account-scoped table goes through a Scope
// predicate, and every mutation re-verifies ownership with a Guard first.
// Ownership failures are reported as common.ErrorNotFound so that callers
// cannot discover ids belonging to someone else.
package access

import (
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/common"
)

// Scope is the caller identity a query runs under. AccountID may be empty
// for user-wide queries.
type Scope struct {
	UserID    string
	AccountID string
}

// Validate rejects a scope without an owner: an unscoped query must never
// reach a repository.
func (s Scope) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("%w: empty owner scope", common.ErrorNotFound)
	}
	return nil
}

// Predicate renders
//
//	owner = $n AND (scope = $n+1 OR scope IS NULL)
//
// for the given column names, numbering placeholders from next. When the
// scope has no account the scope clause is dropped and only the owner is
// matched. It returns the SQL fragment, its arguments and the next free
// placeholder index.
func (s Scope) Predicate(ownerCol, scopeCol string, next int) (string, []any, int) {
	if s.AccountID == "" {
		return fmt.Sprintf("%s = $%d", ownerCol, next), []any{s.UserID}, next + 1
	}
	clause := fmt.Sprintf("%s = $%d AND (%s = $%d OR %s IS NULL)", ownerCol, next, scopeCol, next+1, scopeCol)
	return clause, []any{s.UserID, s.AccountID}, next + 2
}

// Allows reports whether a row with the given owner and scope is visible
// under s. It is the in-memory twin of Predicate.
func (s Scope) Allows(owner string, scope *string) bool {
	if owner != s.UserID || s.UserID == "" {
		return false
	}
	if s.AccountID == "" || scope == nil {
		return true
	}
	return *scope == s.AccountID
}
