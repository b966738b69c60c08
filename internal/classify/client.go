// Package classify — клиент необязательного сервиса подсказок.
// Любая ошибка (нет URL, сеть, неверный ответ) означает "подсказок нет".
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/model"
)

// maxSuggestions — больше подсказок UI не покажет.
const maxSuggestions = 10

// Client вызывает сервис классификации. Если URL пустой — методы no-op.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент. baseURL пустой — подсказки отключены.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return &Client{}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Enabled сообщает, настроен ли сервис.
func (c *Client) Enabled() bool { return c.baseURL != "" }

type suggestRequest struct {
	Text string `json:"text"`
}

type suggestResponse struct {
	Suggestions []model.Suggestion `json:"suggestions"`
}

// Suggest отправляет текст и возвращает подсказки. Никогда не возвращает ошибку:
// сбой сервиса логируется и даёт пустой результат.
func (c *Client) Suggest(ctx context.Context, text string) []model.Suggestion {
	if c.baseURL == "" || strings.TrimSpace(text) == "" {
		return nil
	}
	out, err := c.suggest(ctx, text)
	if err != nil {
		logger.Warnf("classify suggest: %v", err)
		return nil
	}
	return out
}

func (c *Client) suggest(ctx context.Context, text string) ([]model.Suggestion, error) {
	body, err := json.Marshal(suggestRequest{Text: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/suggest", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var sr suggestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	out := make([]model.Suggestion, 0, len(sr.Suggestions))
	for _, s := range sr.Suggestions {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out, nil
}
