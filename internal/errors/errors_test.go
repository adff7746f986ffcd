package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "message only",
			err:  NotFound("ticket not found"),
			want: "ticket not found",
		},
		{
			name: "with cause",
			err:  Wrap(errors.New("connection refused"), ErrCodeInternal, "query failed"),
			want: "query failed: connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, ErrCodeInternal, "wrapped")
	assert.ErrorIs(t, err, cause)
}

func TestWrap_NilError(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nope"))
	assert.Nil(t, Wrapf(nil, ErrCodeInternal, "nope %d", 1))
}

func TestCodePredicates(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found matches", NotFound("x"), IsNotFound, true},
		{"conflict matches", Conflict("x"), IsConflict, true},
		{"validation matches", Validation("x"), IsValidation, true},
		{"internal matches", Internal("x"), IsInternal, true},
		{"not found does not match conflict", NotFound("x"), IsConflict, false},
		{"plain error matches nothing", errors.New("x"), IsNotFound, false},
		{"nil matches nothing", nil, IsValidation, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestCodePredicates_ThroughWrapping(t *testing.T) {
	inner := Conflict("duplicate ticket token")
	outer := fmt.Errorf("create ticket: %w", inner)
	assert.True(t, IsConflict(outer))
	assert.Equal(t, ErrCodeConflict, GetCode(outer))
}

func TestGetField(t *testing.T) {
	err := ValidationField("ticket", "this field is required")
	assert.Equal(t, "ticket", GetField(err))
	assert.Empty(t, GetField(errors.New("plain")))
}

func TestFormattedConstructors(t *testing.T) {
	err := NotFoundf("ticket %q not found", "abc")
	require.NotNil(t, err)
	assert.Equal(t, `ticket "abc" not found`, err.Message)
	assert.Equal(t, ErrCodeNotFound, err.Code)

	cErr := Conflictf("token %s taken", "abc")
	assert.Equal(t, "token abc taken", cErr.Message)

	vErr := Validationf("bad status %q", "done")
	assert.Equal(t, `bad status "done"`, vErr.Message)

	iErr := Internalf("boom %d", 7)
	assert.Equal(t, "boom 7", iErr.Message)
}
