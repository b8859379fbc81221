package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/config"
)

var ErrNotConfigured = errors.New("email provider is not configured")

// Mailer sends transactional email through the provider's HTTP API.
type Mailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
	logger   *zap.Logger
}

func New(cfg *config.EmailConfig, logger *zap.Logger) *Mailer {
	return &Mailer{
		endpoint: cfg.APIEndpoint,
		apiKey:   cfg.APIKey,
		from:     cfg.FromAddress,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *Mailer) Send(ctx context.Context, to, subject, html string) error {
	if m.apiKey == "" {
		// Mirrors a missing provider key in lower environments: nothing goes
		// out, the caller sees a failure it can retry once the key is set.
		m.logger.Warn("email api key not set, send skipped", zap.String("to", to))
		return ErrNotConfigured
	}

	payload, err := json.Marshal(sendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("email provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email provider returned %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
