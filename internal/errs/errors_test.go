package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormattedWrappersUnwrap(t *testing.T) {
	err := Validationf("project %q is empty", "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), `project "" is empty`)

	assert.ErrorIs(t, Referencef("node %s missing", "novel:character:mira"), ErrReference)
	assert.ErrorIs(t, Storagef("write failed"), ErrStorage)
}

func TestDimensionError(t *testing.T) {
	err := fmt.Errorf("add entry: %w", &DimensionError{Got: 384, Want: 1536})
	assert.ErrorIs(t, err, ErrEmbedding)

	var dim *DimensionError
	require.ErrorAs(t, err, &dim)
	assert.Equal(t, 384, dim.Got)
	assert.Equal(t, 1536, dim.Want)
}

func TestTransient(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.False(t, Transient(Validationf("bad input")))
	assert.False(t, Transient(Referencef("dangling")))
	assert.False(t, Transient(&DimensionError{Got: 3, Want: 4}))
	assert.False(t, Transient(ErrConsistencyBlocking))
	assert.False(t, Transient(ErrNotFound))
	assert.False(t, Transient(context.Canceled))

	assert.True(t, Transient(Storagef("connection reset")))
	assert.True(t, Transient(errors.New("temporary provider hiccup")))
	assert.True(t, Transient(ErrGenerationTimeout))
}
