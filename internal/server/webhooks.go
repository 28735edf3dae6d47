package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"cleanops/internal/config"
	"cleanops/internal/domain"
	"cleanops/internal/repo"
)

const (
	defaultWebhookInterval = 2 * time.Second
	defaultWebhookTimeout  = 5 * time.Second
	defaultWebhookBatch    = 100
	signatureHeader        = "X-Cleanops-Signature"
)

// WebhookDispatcher pushes new events to the configured endpoints. Each hook
// keeps its own cursor, starting at the newest event seen when it first runs,
// and only advances past a batch once the endpoint accepted it.
type WebhookDispatcher struct {
	repo     repo.Repo
	webhooks []config.WebhookConfig
	client   *http.Client
	logger   *slog.Logger
	interval time.Duration
	mu       sync.Mutex
	cursors  map[int]int64
}

func NewWebhookDispatcher(r repo.Repo, hooks []config.WebhookConfig, logger *slog.Logger) *WebhookDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		repo:     r,
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		logger:   logger,
		interval: defaultWebhookInterval,
		cursors:  make(map[int]int64),
	}
}

// Run dispatches on a ticker until ctx is done.
func (d *WebhookDispatcher) Run(ctx context.Context) {
	if len(d.webhooks) == 0 {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		d.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *WebhookDispatcher) DispatchAll(ctx context.Context) {
	for i, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		d.dispatchWebhook(ctx, i, hook)
	}
}

func (d *WebhookDispatcher) dispatchWebhook(ctx context.Context, idx int, hook config.WebhookConfig) {
	cursor, ok := d.cursorFor(ctx, idx)
	if !ok {
		return
	}
	events, err := d.repo.EventsAfter(ctx, cursor, defaultWebhookBatch, "", "")
	if err != nil {
		d.logger.Warn("webhook: fetch events failed", "url", hook.URL, "error", err)
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(hook.EventTypes)
	batch := make([]domain.Event, 0, len(events))
	for _, evt := range events {
		if filter.match(evt.Type) {
			batch = append(batch, evt)
		}
	}
	last := events[len(events)-1].ID
	if len(batch) > 0 {
		if err := d.postBatch(ctx, hook, batch); err != nil {
			d.logger.Warn("webhook: delivery failed", "url", hook.URL, "first_id", batch[0].ID, "error", err)
			return
		}
		d.logger.Debug("webhook: delivered", "url", hook.URL, "events", len(batch), "last_id", last)
	}
	d.setCursor(idx, last)
}

func (d *WebhookDispatcher) cursorFor(ctx context.Context, idx int) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur, true
	}
	cur, err := d.repo.LatestEventID(ctx)
	if err != nil {
		d.logger.Warn("webhook: init cursor failed", "error", err)
		return 0, false
	}
	d.cursors[idx] = cur
	return cur, true
}

func (d *WebhookDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type webhookBatch struct {
	Events []domain.Event `json:"events"`
}

// Sign returns the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *WebhookDispatcher) postBatch(ctx context.Context, hook config.WebhookConfig, batch []domain.Event) error {
	data, err := json.Marshal(webhookBatch{Events: batch})
	if err != nil {
		return err
	}
	client := d.client
	if hook.Timeout > 0 && hook.Timeout != d.client.Timeout {
		client = &http.Client{Timeout: hook.Timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Cleanops-Delivery", fmt.Sprintf("%d-%d", batch[0].ID, batch[len(batch)-1].ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set(signatureHeader, Sign(hook.Secret, data))
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	if len(types) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		key := strings.TrimSpace(t)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
