package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"
)

// Client загружает файлы в файловый сервис шлюза.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент. baseURL — адрес шлюза, например "http://localhost:8090".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Upload отправляет файл multipart-запросом и возвращает абсолютную ссылку. Реализует composer.Uploader.
func (c *Client) Upload(ctx context.Context, p string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("path", p); err != nil {
		return "", err
	}
	fw, err := mw.CreateFormFile("file", path.Base(p))
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+strings.TrimSuffix(FilesPrefix, "/"), &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob.Client.Upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return "", fmt.Errorf("blob.Client.Upload: %d %s", resp.StatusCode, e.Error)
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("blob.Client.Upload: decode: %w", err)
	}
	if strings.HasPrefix(out.URL, "/") {
		return c.baseURL + out.URL, nil
	}
	return out.URL, nil
}
