package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSQLiteConflictDetection(t *testing.T) {
	assert.False(t, IsSQLiteConflictError(nil))
	assert.False(t, IsSQLiteConflictError(errors.New("no such table")))
	assert.True(t, IsSQLiteBusyError(errors.New("exec: SQLITE_BUSY")))
	assert.True(t, IsSQLiteLockedError(fmt.Errorf("save: %w", errors.New("database is locked (5)"))))
	assert.True(t, IsSQLiteConflictError(errors.New("database is locked")))
}
