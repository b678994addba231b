package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"lineledger/core/types"
)

// Header names set on every delivery.
const (
	SignatureHeader = "X-Lineledger-Signature"
	TypeHeader      = "X-Lineledger-Event"
)

var errClosed = errors.New("webhook: sink closed")

// Config describes one webhook endpoint.
type Config struct {
	Endpoint string
	Secret   []byte
	// Types holds record type prefixes ("credit.", "line.status_updated").
	// Empty delivers every record.
	Types []string
	// Attempts bounds deliveries per record. Zero means 5.
	Attempts int
	// Backoff is the first retry delay, doubled up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
	QueueSize  int
	Client     *http.Client
}

func (c *Config) normalize() error {
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		return errors.New("webhook: endpoint required")
	}
	if len(c.Secret) == 0 {
		return errors.New("webhook: secret required")
	}
	if c.Attempts <= 0 {
		c.Attempts = 5
	}
	if c.Backoff <= 0 {
		c.Backoff = 2 * time.Second
	}
	if c.MaxBackoff < c.Backoff {
		c.MaxBackoff = 15 * c.Backoff
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: 15 * time.Second}
	}
	var kept []string
	for _, p := range c.Types {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	c.Types = kept
	return nil
}

// Envelope is the JSON body of a delivery. DeliveryID equals the record id so
// receivers can drop retried duplicates.
type Envelope struct {
	DeliveryID string       `json:"deliveryId"`
	Type       string       `json:"type"`
	SentAt     time.Time    `json:"sentAt"`
	Record     *types.Event `json:"record"`
}

type job struct {
	kind string
	body []byte
}

// Sink posts audit records to an HTTP endpoint from a background worker.
type Sink struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	jobs chan job
	stop chan struct{}
	once sync.Once
	done sync.WaitGroup
}

// New validates cfg and starts the delivery worker.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		jobs:   make(chan job, cfg.QueueSize),
		stop:   make(chan struct{}),
	}
	s.done.Add(1)
	go s.loop()
	return s, nil
}

// Sign returns the signature header value for body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Accepts reports whether records of eventType are delivered.
func (s *Sink) Accepts(eventType string) bool {
	if len(s.cfg.Types) == 0 {
		return true
	}
	for _, p := range s.cfg.Types {
		if strings.HasPrefix(eventType, p) {
			return true
		}
	}
	return false
}

// Emit implements events.Emitter. It blocks while the queue is full.
func (s *Sink) Emit(evt *types.Event) {
	if evt == nil || !s.Accepts(evt.Type) {
		return
	}
	if err := s.Enqueue(evt); err != nil {
		s.logger.Warn("webhook: record dropped", slog.String("id", evt.ID), slog.Any("error", err))
	}
}

// Enqueue schedules one delivery of evt regardless of the type filter.
func (s *Sink) Enqueue(evt *types.Event) error {
	body, err := json.Marshal(Envelope{
		DeliveryID: evt.ID,
		Type:       evt.Type,
		SentAt:     s.now().UTC(),
		Record:     evt,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", evt.ID, err)
	}
	select {
	case <-s.stop:
		return errClosed
	default:
	}
	select {
	case s.jobs <- job{kind: evt.Type, body: body}:
		return nil
	case <-s.stop:
		return errClosed
	}
}

// Close stops the worker. Queued records not yet delivered are discarded.
func (s *Sink) Close() {
	s.once.Do(func() { close(s.stop) })
	s.done.Wait()
}

func (s *Sink) loop() {
	defer s.done.Done()
	for {
		select {
		case <-s.stop:
			return
		case j := <-s.jobs:
			s.deliver(j)
		}
	}
}

func (s *Sink) deliver(j job) {
	delay := s.cfg.Backoff
	var err error
	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		if err = s.post(j); err == nil {
			return
		}
		if attempt == s.cfg.Attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		if delay *= 2; delay > s.cfg.MaxBackoff {
			delay = s.cfg.MaxBackoff
		}
	}
	s.logger.Error("webhook: giving up on delivery",
		slog.String("type", j.kind),
		slog.Int("attempts", s.cfg.Attempts),
		slog.Any("error", err))
}

func (s *Sink) post(j job) error {
	ctx := context.Background()
	if timeout := s.cfg.Client.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(j.body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TypeHeader, j.kind)
	req.Header.Set(SignatureHeader, Sign(s.cfg.Secret, j.body))
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook: endpoint answered %d", resp.StatusCode)
	}
	return nil
}
