package validators

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func requestWithParams(payload string) *shared.Message {
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	id := schema.RequestIDFromInt64(1)
	raw := json.RawMessage(payload)
	return &shared.Message{Session: session, ID: &id, Params: &raw}
}

func TestMessageSizeValidator_RejectsOversizedParams(t *testing.T) {
	v := NewMessageSizeValidator(16)
	msg := requestWithParams(`{"text":"0123456789abcdef"}`)

	err := v.Validate(msg)
	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorResourceLimit, rpcErr.Code)

	v.SetMaxSize(1024)
	assert.NoError(t, v.Validate(msg))
}

func TestMessageSizeValidator_MeasuresResults(t *testing.T) {
	v := NewMessageSizeValidator(8)
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)
	id := schema.RequestIDFromInt64(2)
	raw := json.RawMessage(`{"body":"a large response payload"}`)
	msg := &shared.Message{Session: session, ID: &id, Result: &raw}

	err := v.Validate(msg)
	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorResourceLimit, rpcErr.Code)
}

func TestMessageSizeValidator_RejectsHugeRequestID(t *testing.T) {
	v := NewMessageSizeValidator(1024)
	var id schema.RequestID
	require.NoError(t, json.Unmarshal([]byte(`"`+strings.Repeat("x", 300)+`"`), &id))
	session := shared.NewBaseSession(zap.NewNop(), nil, nil)

	err := v.Validate(&shared.Message{Session: session, ID: &id})
	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorResourceLimit, rpcErr.Code)
}

func TestThrottling_PerSecondBudget(t *testing.T) {
	v := NewThrottling(2, 0)
	msg := requestWithParams(`{}`)

	assert.NoError(t, v.Validate(msg))
	assert.NoError(t, v.Validate(msg))

	err := v.Validate(msg)
	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorResourceLimit, rpcErr.Code)
}

func TestThrottling_SessionOverride(t *testing.T) {
	v := NewThrottling(1, 0)
	msg := requestWithParams(`{}`)
	msg.Session.GetParams().Store(PerSecondParamKey, 5)

	for i := 0; i < 5; i++ {
		assert.NoError(t, v.Validate(msg), "request %d", i)
	}
	assert.Error(t, v.Validate(msg))
}

func TestThrottling_ZeroBudgetsDisableLimiting(t *testing.T) {
	v := NewThrottling(0, 0)
	msg := requestWithParams(`{}`)
	for i := 0; i < 100; i++ {
		require.NoError(t, v.Validate(msg))
	}
}

func TestCreateDefaultValidators_UsesConfigLimits(t *testing.T) {
	cfg := config.NewInternalConfig()
	cfg.MaxMessageSizeValue = 8

	vals := CreateDefaultValidators(cfg)
	require.Len(t, vals, 3)

	var sizeValidator *MessageSizeValidator
	for _, v := range vals {
		if sv, ok := v.(*MessageSizeValidator); ok {
			sizeValidator = sv
		}
	}
	require.NotNil(t, sizeValidator)

	assert.Error(t, sizeValidator.Validate(requestWithParams(`{"text":"more than eight bytes"}`)))
	assert.NoError(t, sizeValidator.Validate(requestWithParams(`{}`)))
}
