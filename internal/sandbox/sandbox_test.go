package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefusingStub_AlwaysFails(t *testing.T) {
	var e Executor = RefusingStub{}
	result, err := e.Execute(context.Background(), "print('hi')", nil)
	require.Error(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}
