package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relay4ai/mcp/shared"
	"github.com/relay4ai/mcp/shared/config"
	"github.com/relay4ai/mcp/shared/mcp/2025/schema"
)

func newSessionFixture(t *testing.T) *Session {
	t.Helper()
	manager, err := NewManager(context.Background(), zap.NewNop(), config.NewInternalConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		manager.CloseAllSessions()
		manager.Stop()
	})
	return manager.CreateSession("user-1", &sync.Map{}).(*Session)
}

func TestElicit_RequiresElicitationCapability(t *testing.T) {
	session := newSessionFixture(t)
	session.SetClientInfo(schema.Implementation{Name: "c", Version: "1"}, schema.ClientCapabilities{})

	_, err := session.Elicit(context.Background(), &schema.ElicitRequestParams{
		Message: "anything",
	})
	assert.ErrorIs(t, err, ErrNoElicitationCapability)
}

func TestElicit_URLModeWithoutClientSupport(t *testing.T) {
	session := newSessionFixture(t)
	session.SetClientInfo(schema.Implementation{Name: "c", Version: "1"}, schema.ClientCapabilities{
		Elicitation: &schema.ElicitationCapability{Form: true},
	})

	params := &schema.ElicitRequestParams{
		Mode:          schema.ElicitationModeURL,
		Message:       "approve the payment",
		URL:           "https://example.com/approve",
		ElicitationID: "pay-1",
	}
	_, err := session.Elicit(context.Background(), params)

	var rpcErr *shared.JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, shared.JSONRPCErrorURLElicitationRequired, rpcErr.Code)

	data, ok := rpcErr.Data.(schema.URLElicitationRequiredErrorData)
	require.True(t, ok)
	require.Len(t, data.Elicitations, 1)
	assert.Equal(t, "pay-1", data.Elicitations[0].ElicitationID)
	assert.Equal(t, "https://example.com/approve", data.Elicitations[0].URL)
}

func TestElicit_URLModeRequiresFields(t *testing.T) {
	session := newSessionFixture(t)
	session.SetClientInfo(schema.Implementation{Name: "c", Version: "1"}, schema.ClientCapabilities{
		Elicitation: &schema.ElicitationCapability{URL: true},
	})

	_, err := session.Elicit(context.Background(), &schema.ElicitRequestParams{
		Mode:    schema.ElicitationModeURL,
		Message: "missing url",
	})
	assert.Error(t, err)
}
