package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scanhub/scanhub/internal/config"
)

const clientTimeout = 30 * time.Second

// apiClient is a small HTTP client for talking to a running daemon.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

// apiError is a non-2xx response from the daemon.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// newAPIClient builds a client pointed at the daemon address from the
// loaded configuration, unless --server overrides it.
func newAPIClient() (*apiClient, error) {
	baseURL := serverAddress
	if baseURL == "" {
		cfg, err := config.Load(configFilePath())
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		baseURL = cfg.APIAddress()
	}

	return &apiClient{
		baseURL:    "http://" + baseURL,
		httpClient: &http.Client{Timeout: clientTimeout},
	}, nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *apiClient) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// post performs a POST request with a JSON body and decodes the JSON
// response into out. body may be nil.
func (c *apiClient) post(path string, body, out any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed (is the daemon running?): %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		message := http.StatusText(resp.StatusCode)
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			message = body.Error
		}
		return &apiError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
