package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/pkg/api"
)

// DefaultTimeout таймаут HTTP запросов по умолчанию
const DefaultTimeout = 30 * time.Second

const contentTypeZip = "application/zip"

var (
	// ErrMissingCredentials возвращается, если не задан ровно один способ аутентификации
	ErrMissingCredentials = errors.New("exactly one of api key or bearer token must be set")

	// ErrUnauthorized возвращается при ответе 401/403
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformedResponse возвращается, если тело ответа не удалось разобрать
	ErrMalformedResponse = errors.New("malformed response")
)

// Credentials данные аутентификации: статический API ключ или bearer токен
type Credentials struct {
	APIKey      string
	BearerToken string
}

// Validate проверяет, что задан ровно один способ аутентификации
func (c Credentials) Validate() error {
	hasKey := strings.TrimSpace(c.APIKey) != ""
	hasToken := strings.TrimSpace(c.BearerToken) != ""
	if hasKey == hasToken {
		return ErrMissingCredentials
	}
	return nil
}

func (c Credentials) apply(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set(api.HeaderAPIKey, c.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.BearerToken)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient  *http.Client
	baseURL     string
	credentials Credentials
}

// Option настраивает Client
type Option func(*Client)

// WithHTTPClient задает HTTP клиент (используется в тестах)
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout задает таймаут запросов
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient создает новый API клиент
func NewClient(baseURL string, credentials Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: credentials,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки аутентификации при редиректе
				for _, h := range []string{"Authorization", api.HeaderAPIKey} {
					if v := via[0].Header.Get(h); v != "" {
						req.Header.Set(h, v)
					}
				}
				return nil
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL возвращает адрес сервера
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Sync отправляет локальные изменения и получает изменения сервера
func (c *Client) Sync(ctx context.Context, req api.SyncRequest) (*api.SyncResponse, error) {
	var resp api.SyncResponse
	if err := c.doJSON(ctx, http.MethodPost, "/sync", req, &resp); err != nil {
		return nil, fmt.Errorf("sync request failed: %w", err)
	}
	return &resp, nil
}

// SyncLogs возвращает журнал синхронизаций, наблюдаемый сервером
func (c *Client) SyncLogs(ctx context.Context) ([]api.SyncEvent, error) {
	var resp api.SyncLogsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/sync?logs=true", nil, &resp); err != nil {
		return nil, fmt.Errorf("sync logs request failed: %w", err)
	}
	return resp.Logs, nil
}

// ListRecords возвращает активные записи или, при deleted=true, корзину
func (c *Client) ListRecords(ctx context.Context, deleted bool) ([]api.Record, error) {
	path := "/records"
	if deleted {
		path += "?deleted=true"
	}

	var records []api.Record
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, fmt.Errorf("list records request failed: %w", err)
	}
	return records, nil
}

// GetRecord возвращает запись по ключу
func (c *Client) GetRecord(ctx context.Context, key string) (*api.Record, error) {
	var record api.Record
	if err := c.doJSON(ctx, http.MethodGet, recordPath(key), nil, &record); err != nil {
		return nil, fmt.Errorf("get record request failed: %w", err)
	}
	return &record, nil
}

// PutRecord создает или перезаписывает запись
func (c *Client) PutRecord(ctx context.Context, record api.Record) error {
	if err := c.doJSON(ctx, http.MethodPost, "/records", record, nil); err != nil {
		return fmt.Errorf("put record request failed: %w", err)
	}
	return nil
}

// DeleteRecord перемещает запись в корзину
func (c *Client) DeleteRecord(ctx context.Context, key string) error {
	if err := c.doJSON(ctx, http.MethodDelete, recordPath(key), nil, nil); err != nil {
		return fmt.Errorf("delete record request failed: %w", err)
	}
	return nil
}

// PurgeRecord безвозвратно удаляет запись из корзины
func (c *Client) PurgeRecord(ctx context.Context, key string) error {
	if err := c.doJSON(ctx, http.MethodDelete, recordPath(key)+"?purge=true", nil, nil); err != nil {
		return fmt.Errorf("purge record request failed: %w", err)
	}
	return nil
}

// RestoreRecord возвращает запись из корзины
func (c *Client) RestoreRecord(ctx context.Context, key string) error {
	if err := c.doJSON(ctx, http.MethodPost, recordPath(key)+"/restore", nil, nil); err != nil {
		return fmt.Errorf("restore record request failed: %w", err)
	}
	return nil
}

// ExportRecords скачивает zip архив активных записей
func (c *Client) ExportRecords(ctx context.Context) ([]byte, error) {
	blob, err := c.do(ctx, http.MethodGet, "/records/export", "", nil)
	if err != nil {
		return nil, fmt.Errorf("export request failed: %w", err)
	}
	return blob, nil
}

// ImportRecords загружает zip архив записей
func (c *Client) ImportRecords(ctx context.Context, blob []byte) (*api.ImportResponse, error) {
	respBody, err := c.do(ctx, http.MethodPost, "/records/import", contentTypeZip, bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("import request failed: %w", err)
	}

	var resp api.ImportResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return &resp, nil
}

func recordPath(key string) string {
	return "/records/" + url.PathEscape(key)
}

// doJSON выполняет запрос с JSON телом и декодирует JSON ответ в result
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	contentType := ""
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal request body: %w", storage.ErrInvalidData, err)
		}
		bodyReader = bytes.NewReader(jsonData)
		contentType = "application/json"
	}

	respBody, err := c.do(ctx, method, path, contentType, bodyReader)
	if err != nil {
		return err
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	return nil
}

// do выполняет HTTP запрос и возвращает тело успешного ответа
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	if err := c.credentials.Validate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	c.credentials.apply(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", storage.ErrNetwork, err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

// statusError переводит HTTP статус в таксономию ошибок storage
func statusError(status int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		message = errResp.Error
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("%w: %w: %s", ErrUnauthorized, storage.ErrPermissionDenied, message)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", storage.ErrNotFound, message)
	case status == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", storage.ErrInvalidData, message)
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", storage.ErrDuplicate, message)
	case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return fmt.Errorf("%w: server error (%d): %s", storage.ErrNetwork, status, message)
	default:
		return fmt.Errorf("%w: request failed with status %d: %s", storage.ErrUnknown, status, message)
	}
}
