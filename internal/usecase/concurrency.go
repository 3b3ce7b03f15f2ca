package usecase

import (
	"fmt"

	"github.com/contentgraph/publishing/internal/domain"
)

// CheckVersion validates a caller-supplied optimistic lock token
// against the current counter. A nil token skips the check; a stale
// token is the sole way concurrent writers to one document lose, and
// they lose fast with Conflict rather than blocking.
func CheckVersion(current int64, previousVersion *int64) error {
	if previousVersion == nil {
		return nil
	}
	if *previousVersion != current {
		return domain.ConflictError{
			Message: fmt.Sprintf("Conflict: lock version is %d, but previous_version was %d", current, *previousVersion),
		}
	}
	return nil
}
