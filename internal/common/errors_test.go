package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindAndGRPCCode(t *testing.T) {
	cases := []struct {
		err  error
		kind string
		code codes.Code
	}{
		{nil, "", codes.OK},
		{MissingInput("no %s", "events"), "MissingInputError", codes.NotFound},
		{fmt.Errorf("line 3: %w", ErrMalformedRegion), "MalformedRegionError", codes.InvalidArgument},
		{ErrInvalidRegion, "InvalidRegionError", codes.InvalidArgument},
		{fmt.Errorf("wrap: %w", ErrTransform), "TransformError", codes.FailedPrecondition},
		{ExternalTool("evselect", errors.New("exit 1")), "ExternalToolError", codes.Unavailable},
		{errors.New("boom"), "UnitError", codes.Unknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, Kind(tc.err), "%v", tc.err)
		assert.Equal(t, tc.code, GRPCCode(tc.err), "%v", tc.err)
	}
}

func TestAppError(t *testing.T) {
	err := NewAppError("UNIT_FAILED", "obs 0112", ErrUnit)
	assert.Equal(t, "UNIT_FAILED: obs 0112: observation unit failed", err.Error())
	assert.ErrorIs(t, err, ErrUnit)
	assert.Equal(t, "X: y", NewAppError("X", "y", nil).Error())
}

func TestStatusError(t *testing.T) {
	assert.NoError(t, StatusError(nil))
	st, ok := status.FromError(StatusError(MissingInput("ccf.cif")))
	assert.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
}
