package middleware_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/revisit/pkg/adapters/memory"
	"github.com/aretw0/revisit/pkg/persistence/middleware"
	"github.com/aretw0/revisit/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPIIMiddleware_MasksTidyColumns(t *testing.T) {
	underlyingStore := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"(?i)email", "^prolific"})
	require.NoError(t, err)
	store := mw(underlyingStore)
	ctx := context.Background()

	value := `{"header":["participantId","email","prolificId","answer"],"rows":[["p1","a@b.c","X1","yes"],["p2",null,"X2",3]]}`
	require.NoError(t, store.Set(ctx, ports.FieldExportTidy, json.RawMessage(value)))

	stored, err := underlyingStore.Get(ctx, ports.FieldExportTidy)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"header":["participantId","email","prolificId","answer"],"rows":[["p1","***","***","yes"],["p2",null,"***",3]]}`,
		string(stored))
}

func TestPIIMiddleware_MasksJSONKeys(t *testing.T) {
	underlyingStore := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"password", "ssn"})
	require.NoError(t, err)
	store := mw(underlyingStore)
	ctx := context.Background()

	value := `[{"username":"jdoe","user_password":"secret123","details":{"address":"123 St","ssn_number":"999"}}]`
	require.NoError(t, store.Set(ctx, ports.FieldExportJSON, json.RawMessage(value)))

	stored, err := store.Get(ctx, ports.FieldExportJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"username":"jdoe","user_password":"***","details":{"address":"123 St","ssn_number":"***"}}]`, string(stored))
}

func TestPIIMiddleware_LeavesOtherFields(t *testing.T) {
	underlyingStore := memory.NewStore()
	mw, err := middleware.NewPIIMiddleware([]string{"sequence"})
	require.NoError(t, err)
	store := mw(underlyingStore)

	cfg := json.RawMessage(`{"sequence":{"components":["A"]}}`)
	require.NoError(t, store.Set(context.Background(), ports.FieldConfig, cfg))
	stored, err := underlyingStore.Get(context.Background(), ports.FieldConfig)
	require.NoError(t, err)
	assert.JSONEq(t, string(cfg), string(stored))
}

func TestPIIMiddleware_InvalidPattern(t *testing.T) {
	_, err := middleware.NewPIIMiddleware([]string{"("})
	assert.Error(t, err)
}

func TestChain_MasksBeforeEncrypting(t *testing.T) {
	underlyingStore := memory.NewStore()
	pii, err := middleware.NewPIIMiddleware([]string{"email"})
	require.NoError(t, err)
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	require.NoError(t, err)

	store := middleware.Chain(underlyingStore, pii, enc)
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, ports.FieldExportTidy, json.RawMessage(`{"header":["email"],"rows":[["a@b.c"]]}`)))

	stored, err := underlyingStore.Get(ctx, ports.FieldExportTidy)
	require.NoError(t, err)
	assert.Contains(t, string(stored), "__encrypted__")

	loaded, err := store.Get(ctx, ports.FieldExportTidy)
	require.NoError(t, err)
	assert.JSONEq(t, `{"header":["email"],"rows":[["***"]]}`, string(loaded))
}
