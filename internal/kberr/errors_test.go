package kberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuotaErrorMatching(t *testing.T) {
	err := fmt.Errorf("admitting upload: %w", QuotaExceeded(QuotaDocumentCount, 10))

	assert.ErrorIs(t, err, ErrQuotaExceeded)

	kind, ok := QuotaKindOf(err)
	assert.True(t, ok)
	assert.Equal(t, QuotaDocumentCount, kind)

	var qe *QuotaError
	assert.True(t, errors.As(err, &qe))
	assert.Equal(t, 10, qe.Limit)
}

func TestQuotaKindOfNonQuota(t *testing.T) {
	_, ok := QuotaKindOf(ErrPermissionDenied)
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("search: %w", ErrUpstreamTransient)))
	assert.False(t, IsRetryable(ErrUpstreamPermanent))
	assert.False(t, IsRetryable(nil))
}
