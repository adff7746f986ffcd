package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, "timeout", Classify(fmt.Errorf("fetch: %w", context.DeadlineExceeded)))
	assert.Equal(t, "canceled", Classify(context.Canceled))
	assert.Equal(t, "errors_errorstring", Classify(goerrors.New("boom")))
	assert.Equal(t, "errors_parsefailure", Classify(fmt.Errorf("outer: %w", &parseFailure{})))
}

type parseFailure struct{}

func (*parseFailure) Error() string { return "parse failure" }
