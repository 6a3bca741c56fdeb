// Package sms encapsule la passerelle d'envoi de SMS utilisée pour les
// codes de connexion des locataires.
package sms

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

const defaultAPIBase = "https://api.nimbasms.com/v1"

// Client encapsule les appels à l'API de la passerelle SMS.
type Client struct {
	httpClient *http.Client
	apiToken   string
	sender     string
	baseURL    string
}

// Config décrit les identifiants requis par le client.
type Config struct {
	APIToken string
	Sender   string
	APIBase  string
}

// New crée un client prêt à l'emploi.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, errors.New("sms: api token obligatoire")
	}
	if strings.TrimSpace(cfg.Sender) == "" {
		return nil, errors.New("sms: expéditeur obligatoire")
	}

	apiBase := strings.TrimSpace(cfg.APIBase)
	if apiBase == "" {
		apiBase = defaultAPIBase
	}

	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		apiToken:   cfg.APIToken,
		sender:     cfg.Sender,
		baseURL:    strings.TrimRight(apiBase, "/"),
	}, nil
}

// LogSender remplace la passerelle en développement local. Le contenu
// des messages n'est jamais journalisé.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, _ string) error {
	log.Warn().Str("to", to).Msg("passerelle sms non configurée, message non envoyé")
	return nil
}

// Send envoie un SMS au numéro en format international.
func (c *Client) Send(ctx context.Context, to, message string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("sms: destinataire vide")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("sms: message vide")
	}

	body := map[string]any{
		"sender_name": c.sender,
		"to":          []string{to},
		"message":     message,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

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
			return fmt.Errorf("sms: status %d: %s", resp.StatusCode, apiResp.Message)
		}
		return fmt.Errorf("sms: status %d", resp.StatusCode)
	}
	return nil
}
