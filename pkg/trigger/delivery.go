package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/hubcap/pkg/hooks"
	"github.com/platinummonkey/hubcap/pkg/observability"
	"github.com/platinummonkey/hubcap/pkg/storage"
	"github.com/platinummonkey/hubcap/pkg/tasks"
)

// HTTPClient is the pluggable outbound transport. *http.Client satisfies it;
// tests substitute a fake without any global mocking.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PayloadResolver supplies the event-specific payload object embedded in the
// envelope (e.g. the full version manifest) so subscribers can act without a
// follow-up fetch. Optional; a nil resolver yields a minimal payload.
type PayloadResolver interface {
	ResolvePayload(ctx context.Context, event hooks.HookEvent) (json.RawMessage, error)
}

// DeliveryService handles TriggerHook tasks: load the hook snapshot, build
// and sign the envelope, POST it, map the outcome.
type DeliveryService struct {
	hooks    storage.HookRepository
	users    storage.UserRepository
	client   HTTPClient
	payloads PayloadResolver
	timeout  time.Duration
	metrics  *observability.Metrics
	log      *logrus.Logger
}

// DeliveryOption configures a DeliveryService.
type DeliveryOption func(*DeliveryService)

// WithTimeout bounds each outbound request. A hung endpoint never holds a
// worker past this.
func WithTimeout(d time.Duration) DeliveryOption {
	return func(s *DeliveryService) { s.timeout = d }
}

// WithPayloadResolver wires the richer payload lookup.
func WithPayloadResolver(r PayloadResolver) DeliveryOption {
	return func(s *DeliveryService) { s.payloads = r }
}

// WithMetrics wires delivery metrics.
func WithMetrics(m *observability.Metrics) DeliveryOption {
	return func(s *DeliveryService) { s.metrics = m }
}

// NewDeliveryService creates the delivery stage handler.
func NewDeliveryService(hookRepo storage.HookRepository, users storage.UserRepository, client HTTPClient, log *logrus.Logger, opts ...DeliveryOption) *DeliveryService {
	if log == nil {
		log = logrus.New()
	}
	s := &DeliveryService{
		hooks:   hookRepo,
		users:   users,
		client:  client,
		timeout: 10 * time.Second,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute performs exactly one delivery attempt for one TriggerHook task.
// A 2xx response is success. A missing or disabled hook, an unresolvable
// owner, or a malformed payload is permanent; everything else is retryable.
func (s *DeliveryService) Execute(ctx context.Context, task *tasks.Task) error {
	data, err := task.DeliveryData()
	if err != nil {
		return Permanent(err)
	}
	event := data.HookEvent

	hook, err := s.hooks.GetHook(ctx, data.HookID)
	if err != nil {
		if errors.Is(err, storage.ErrHookNotFound) {
			return Permanentf("hook %s no longer exists", data.HookID)
		}
		return fmt.Errorf("load hook %s: %w", data.HookID, err)
	}
	if !hook.Enabled {
		return Permanentf("hook %s is disabled", hook.HookID)
	}

	username, err := s.users.FindUserName(ctx, hook.OwnerID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return Permanentf("hook %s owner %s no longer exists", hook.HookID, hook.OwnerID)
		}
		return fmt.Errorf("resolve owner %s: %w", hook.OwnerID, err)
	}

	var payload json.RawMessage
	if s.payloads != nil {
		payload, err = s.payloads.ResolvePayload(ctx, event)
		if err != nil {
			return fmt.Errorf("resolve payload for %s: %w", event.ChangeID, err)
		}
	}

	body, err := hooks.BuildEnvelope(hook, event, username, payload).Serialize()
	if err != nil {
		return Permanentf("serialize envelope for %s: %v", task.BizID, err)
	}

	start := time.Now()
	status, err := s.post(ctx, hook.Endpoint, body, hook.Secret)
	if s.metrics != nil {
		s.metrics.ObserveDelivery(string(event.Event), status, time.Since(start))
	}
	if err != nil {
		return fmt.Errorf("deliver %s to %s: %w", task.BizID, hook.Endpoint, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("deliver %s to %s: endpoint returned status %d", task.BizID, hook.Endpoint, status)
	}

	s.log.WithFields(logrus.Fields{
		"biz_id":   task.BizID,
		"endpoint": hook.Endpoint,
		"status":   status,
	}).Info("Hook delivered")
	return nil
}

// post issues the signed POST. Returns the response status, or 0 with a
// transport error.
func (s *DeliveryService) post(ctx context.Context, endpoint string, body []byte, secret string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(hooks.SignatureHeader, hooks.Sign(body, secret))

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
