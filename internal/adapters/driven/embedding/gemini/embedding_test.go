package gemini

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

func TestNewEmbeddingService_RequiresKey(t *testing.T) {
	_, err := NewEmbeddingService(context.Background(), Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAuthentication)
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&googleapi.Error{Code: http.StatusUnauthorized}), domain.ErrAuthentication)
	assert.ErrorIs(t, classify(&googleapi.Error{Code: http.StatusInternalServerError}), domain.ErrProvider)
	assert.ErrorIs(t, classify(context.DeadlineExceeded), domain.ErrTimeout)
}
