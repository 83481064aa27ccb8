package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/careloop/patientsync/pkg/common/logger"
	"github.com/careloop/patientsync/pkg/common/models"
)

// ErrUnavailable wraps any transport or non-2xx failure from the third-party
// store. Callers that can render partial results check for it with errors.Is.
var ErrUnavailable = errors.New("third-party patient store unavailable")

// ErrNotFound means the store answered but has no such patient.
var ErrNotFound = errors.New("patient not found in third-party store")

// Patient is the third-party store's own representation. Its id is our
// third_party_id; the store knows nothing about local provenance.
type Patient struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	DOB              string `json:"dob"`
	Sex              string `json:"sex"`
	EthnicBackground string `json:"ethnic_background"`
}

type ListResponse struct {
	Patients []Patient `json:"patients"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PerPage  int       `json:"per_page"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	attempts   int
	baseDelay  time.Duration
}

func NewClient(baseURL string, timeout time.Duration, attempts int, baseDelay time.Duration) *Client {
	if attempts <= 0 {
		attempts = 1
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: newHTTPClient(timeout),
		attempts:   attempts,
		baseDelay:  baseDelay,
	}
}

func (c *Client) ListPatients(ctx context.Context, page int) (*ListResponse, error) {
	if page < 1 {
		page = 1
	}
	var out ListResponse
	url := c.baseURL + "/patients?page=" + strconv.Itoa(page)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var out Patient
	url := c.baseURL + "/patients/" + id
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePatient(ctx context.Context, req models.CreatePatientRequest) (*Patient, error) {
	var out Patient
	url := c.baseURL + "/patients"
	if err := c.doJSON(ctx, http.MethodPost, url, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ProcessPatient(ctx context.Context, id string, req models.ProcessRequest) (*models.ProcessResult, error) {
	var out models.ProcessResult
	url := c.baseURL + "/patients/" + id + "/process"
	if err := c.doJSON(ctx, http.MethodPost, url, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
	}

	return retry(ctx, c.attempts, c.baseDelay, func() error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Log.WithError(err).WithField("url", url).Warn("upstream request failed")
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			logger.Log.WithFields(map[string]interface{}{
				"url":    url,
				"status": resp.StatusCode,
				"body":   string(snippet),
			}).Warn("upstream returned error status")
			return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
		return nil
	})
}
