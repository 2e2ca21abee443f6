package session

import (
	"fmt"
	"strings"

	"github.com/zentity-io/zentity/pkg/entity"
)

// LoadError wraps a driver failure during a read. No partial state is
// created: the failed load registers nothing with the session.
type LoadError struct {
	Entity string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Entity, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CommitError wraps a driver failure during Commit. The transaction
// was rolled back in full and every record kept its pre-commit state.
type CommitError struct {
	Entity string
	Key    entity.Key
	Err    error
}

func (e *CommitError) Error() string {
	switch {
	case e.Entity == "":
		return fmt.Sprintf("commit: %v", e.Err)
	case e.Key.IsZero():
		// Inserts can fail before the backend assigns a key.
		return fmt.Sprintf("commit %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("commit %s: %v", e.Key, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// CycleError reports a dependency cycle among the entities pending in
// a commit. No statement was issued. It unwraps to
// entity.ErrCyclicDependency.
type CycleError struct {
	Entities []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("commit: cycle among %s", strings.Join(e.Entities, ", "))
}

func (e *CycleError) Unwrap() error { return entity.ErrCyclicDependency }
