package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagesmith/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func echoDescriptor() schemas.ToolDescriptor {
	return schemas.ToolDescriptor{
		Name:        "echo",
		Description: "test tool",
		Parameters: schemas.ObjectSchema(map[string]schemas.PropertySpec{
			"message": {Type: "string"},
			"count":   {Type: "integer"},
			"loud":    {Type: "boolean"},
			"mode":    {Type: "string", Enum: []string{"plain", "fancy"}},
		}, "message"),
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	handler := func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
		return schemas.TextResult("ok"), nil
	}
	require.NoError(t, r.Register(echoDescriptor(), handler))
	assert.Error(t, r.Register(echoDescriptor(), handler))
	assert.Error(t, r.Register(schemas.ToolDescriptor{}, handler))
	assert.Error(t, r.Register(schemas.ToolDescriptor{Name: "nilguy"}, nil))
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	handler := func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
		return schemas.TextResult("ok"), nil
	}
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(schemas.ToolDescriptor{Name: name, Parameters: schemas.ObjectSchema(nil)}, handler))
	}
	listed := r.List()
	require.Len(t, listed, 3)
	assert.Equal(t, "zeta", listed[0].Name)
	assert.Equal(t, "alpha", listed[1].Name)
	assert.Equal(t, "mid", listed[2].Name)
}

func TestCallUnknownToolResolvesLocally(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	result, err := r.Call(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, schemas.CodeNotFound, result.ErrorCode)
	assert.NotEmpty(t, result.Suggestions)
}

func TestValidationRunsBeforeHandler(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	invoked := 0
	require.NoError(t, r.Register(echoDescriptor(), func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
		invoked++
		return schemas.TextResult("ok"), nil
	}))

	cases := map[string]map[string]interface{}{
		"missing required": {},
		"nil required":     {"message": nil},
		"wrong type":       {"message": 7.0},
		"bad integer":      {"message": "hi", "count": 1.5},
		"bad boolean":      {"message": "hi", "loud": "yes"},
		"bad enum":         {"message": "hi", "mode": "shouty"},
		"unknown property": {"message": "hi", "volume": 11},
	}
	for name, args := range cases {
		result, err := r.Call(context.Background(), "echo", args)
		require.NoError(t, err, name)
		assert.True(t, result.IsError, name)
		assert.Equal(t, schemas.CodeInvalidArguments, result.ErrorCode, name)
	}
	assert.Zero(t, invoked, "rejected calls must not reach the handler")

	result, err := r.Call(context.Background(), "echo", map[string]interface{}{
		"message": "hi", "count": 2.0, "loud": true, "mode": "fancy",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 1, invoked)
}

func TestPanicBecomesInternalError(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(schemas.ToolDescriptor{Name: "boom", Parameters: schemas.ObjectSchema(nil)},
		func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
			panic("nil map write")
		}))

	result, err := r.Call(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Nil(t, result)
	te, ok := schemas.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, schemas.CodeInternal, te.Code)
	// The panic payload never leaks into the message.
	assert.NotContains(t, te.Message, "nil map write")
}

func TestRecoverableHandlerErrorResolvesLocally(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(schemas.ToolDescriptor{Name: "finder", Parameters: schemas.ObjectSchema(nil)},
		func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
			return nil, schemas.NewToolError(schemas.CodeElementNotFound, "no such element", "broaden the selector")
		}))

	result, err := r.Call(context.Background(), "finder", nil)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, schemas.CodeElementNotFound, result.ErrorCode)
	assert.Equal(t, []string{"broaden the selector"}, result.Suggestions)
}

func TestHardHandlerErrorPropagates(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(schemas.ToolDescriptor{Name: "downer", Parameters: schemas.ObjectSchema(nil)},
		func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
			return nil, schemas.NewToolError(schemas.CodeUnavailable, "session is gone")
		}))

	result, err := r.Call(context.Background(), "downer", nil)
	require.Error(t, err)
	assert.Nil(t, result)
	te, ok := schemas.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, schemas.CodeUnavailable, te.Code)
}

func TestNilResultIsInternalError(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	require.NoError(t, r.Register(schemas.ToolDescriptor{Name: "empty", Parameters: schemas.ObjectSchema(nil)},
		func(ctx context.Context, args map[string]interface{}) (*schemas.ToolResult, error) {
			return nil, nil
		}))

	_, err := r.Call(context.Background(), "empty", nil)
	require.Error(t, err)
	te, ok := schemas.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, schemas.CodeInternal, te.Code)
}
