package instagram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	errs "igtags/pkg/errors"
)

func TestPageFailureIsPerItem(t *testing.T) {
	err := pageFailure(context.Background(), context.DeadlineExceeded, "navigate %s", GetPostURL("Cx1"))

	assert.True(t, errs.IsType(err, errs.ErrorTypeNetwork), "tab timeout should skip the post, got %v", err)
	assert.Contains(t, err.Error(), "navigate https://www.instagram.com/p/Cx1/")
}

func TestPageFailureKeepsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pageFailure(ctx, errors.New("target closed"), "read page html")

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errs.IsTyped(err))
}
