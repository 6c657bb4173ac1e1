package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

func seedDelivery(t *testing.T, store *storage.MemoryStore, endpoint, secret string) (*hooks.Hook, *tasks.Task) {
	t.Helper()
	ctx := context.Background()

	store.RegisterUser("user-1", "alice")
	hook, err := hooks.NewHook(hooks.HookTypePackage, "user-1", "@cnpmcore/foo", endpoint, secret)
	require.NoError(t, err)
	require.NoError(t, store.CreateHook(ctx, hook))

	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "latest")
	task, err := tasks.NewTriggerHookTask(event, hook.HookID)
	require.NoError(t, err)
	return hook, task
}

func TestDeliverySignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSignature, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(hooks.SignatureHeader)
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := storage.NewMemoryStore()
	_, task := seedDelivery(t, store, server.URL, "shhh")

	svc := NewDeliveryService(store, store, server.Client(), nil)
	require.NoError(t, svc.Execute(context.Background(), task))

	assert.Equal(t, "application/json", gotContentType)
	assert.True(t, hooks.VerifySignature(gotBody, gotSignature, "shhh"))

	var envelope map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "package:publish", envelope["event"])
	assert.Equal(t, "@cnpmcore/foo", envelope["name"])
	assert.Equal(t, "1.0.0", envelope["version"])
	assert.Equal(t, "latest", envelope["dist-tag"])
	assert.Equal(t, map[string]interface{}{"username": "alice"}, envelope["hookOwner"])
}

func TestDeliveryNon2xxIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := storage.NewMemoryStore()
	_, task := seedDelivery(t, store, server.URL, "s")

	svc := NewDeliveryService(store, store, server.Client(), nil)
	err := svc.Execute(context.Background(), task)
	require.Error(t, err)
	assert.False(t, isPermanentErr(err))
	assert.Contains(t, err.Error(), "status 500")
}

type failingClient struct{}

func (failingClient) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestDeliveryTransportErrorIsRetryable(t *testing.T) {
	store := storage.NewMemoryStore()
	_, task := seedDelivery(t, store, "http://unreachable.invalid", "s")

	svc := NewDeliveryService(store, store, failingClient{}, nil)
	err := svc.Execute(context.Background(), task)
	require.Error(t, err)
	assert.False(t, isPermanentErr(err))
}

func TestDeliveryMissingHookIsPermanent(t *testing.T) {
	store := storage.NewMemoryStore()

	event := hooks.NewPublishEvent("@cnpmcore/foo", "change-1", "1.0.0", "")
	task, err := tasks.NewTriggerHookTask(event, "gone")
	require.NoError(t, err)

	svc := NewDeliveryService(store, store, failingClient{}, nil)
	err = svc.Execute(context.Background(), task)
	require.Error(t, err)
	assert.True(t, isPermanentErr(err))
}

func TestDeliveryDisabledHookIsPermanent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.RegisterUser("user-1", "alice")

	hook, err := hooks.NewHook(hooks.HookTypePackage, "user-1", "foo", "http://a", "")
	require.NoError(t, err)
	hook.Enabled = false
	require.NoError(t, store.CreateHook(ctx, hook))

	event := hooks.NewPublishEvent("foo", "change-1", "1.0.0", "")
	task, err := tasks.NewTriggerHookTask(event, hook.HookID)
	require.NoError(t, err)

	svc := NewDeliveryService(store, store, failingClient{}, nil)
	err = svc.Execute(ctx, task)
	require.Error(t, err)
	assert.True(t, isPermanentErr(err))
}

func TestDeliveryMissingOwnerIsPermanent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	// hook exists but its owner does not resolve
	hook, err := hooks.NewHook(hooks.HookTypePackage, "ghost", "foo", "http://a", "")
	require.NoError(t, err)
	require.NoError(t, store.CreateHook(ctx, hook))

	event := hooks.NewPublishEvent("foo", "change-1", "1.0.0", "")
	task, err := tasks.NewTriggerHookTask(event, hook.HookID)
	require.NoError(t, err)

	svc := NewDeliveryService(store, store, failingClient{}, nil)
	err = svc.Execute(ctx, task)
	require.Error(t, err)
	assert.True(t, isPermanentErr(err))
}

type staticResolver struct {
	payload json.RawMessage
}

func (r staticResolver) ResolvePayload(context.Context, hooks.HookEvent) (json.RawMessage, error) {
	return r.payload, nil
}

func TestDeliveryUsesResolvedPayload(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := storage.NewMemoryStore()
	_, task := seedDelivery(t, store, server.URL, "s")

	manifest := json.RawMessage(`{"name":"@cnpmcore/foo","dist-tags":{"latest":"1.0.0"}}`)
	svc := NewDeliveryService(store, store, server.Client(), nil,
		WithPayloadResolver(staticResolver{payload: manifest}))
	require.NoError(t, svc.Execute(context.Background(), task))

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.JSONEq(t, string(manifest), string(envelope.Payload))
}

func isPermanentErr(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}
