// Package mailer encapsule l'envoi d'e-mails transactionnels via
// l'API Resend.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAPIBase = "https://api.resend.com"

// Client encapsule les appels à l'API d'envoi.
type Client struct {
	httpClient *http.Client
	apiToken   string
	from       string
	baseURL    string
}

// Config décrit les identifiants requis par le client.
type Config struct {
	APIToken string
	From     string
	APIBase  string
}

// New crée un client prêt à l'emploi.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("mailer: api token obligatoire")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mailer: expéditeur obligatoire")
	}

	apiBase := strings.TrimSpace(cfg.APIBase)
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiToken:   cfg.APIToken,
		from:       cfg.From,
		baseURL:    strings.TrimRight(apiBase, "/"),
	}, nil
}

// LogSender remplace l'envoi en développement local.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.Warn().Str("to", to).Str("subject", subject).Msg("mailer non configuré, e-mail non envoyé")
	return nil
}

// Send envoie un e-mail HTML.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("mailer: destinataire vide")
	}

	body := map[string]any{
		"from":    c.from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiResp)
		if strings.TrimSpace(apiResp.Message) != "" {
			return fmt.Errorf("mailer: status %d: %s", resp.StatusCode, apiResp.Message)
		}
		return fmt.Errorf("mailer: status %d", resp.StatusCode)
	}
	return nil
}
