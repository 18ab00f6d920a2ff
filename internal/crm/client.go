package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hampstead-renovations/voice-agent/pkg/logging"
)

const (
	defaultBaseURL  = "https://api.hubapi.com"
	defaultTimeout  = 15 * time.Second
	maxAttempts     = 3
	initialBackoff  = 500 * time.Millisecond
	callAssociation = 194
	dealAssociation = 3
)

// ErrContactNotFound is returned when no contact matches a phone lookup.
var ErrContactNotFound = errors.New("crm: contact not found")

// Client wraps the HubSpot-style CRM REST API. All calls retry transient
// failures up to three times with exponential backoff.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *logging.Logger
}

// NewClient constructs a CRM client. apiKey is the private-app bearer
// token.
func NewClient(baseURL, apiKey string, logger *logging.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		logger:     logger,
	}
}

// SearchByPhone finds a contact by the last ten digits of its phone
// number, which tolerates the varying +44 / 0 prefixes customers use.
func (c *Client) SearchByPhone(ctx context.Context, phone string) (*Contact, error) {
	digits := lastDigits(phone, 10)
	if digits == "" {
		return nil, ErrContactNotFound
	}

	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{{
			PropertyName: "phone",
			Operator:     "CONTAINS_TOKEN",
			Value:        "*" + digits,
		}}}},
		Properties: []string{"firstname", "lastname", "email", "phone", "address", "zip",
			"project_type", "project_description", "project_timeline", "budget_range",
			"property_type", "lead_score", "lead_tier", "lead_source"},
		Limit: 1,
	}

	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return nil, fmt.Errorf("search contact: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, ErrContactNotFound
	}
	return &resp.Results[0], nil
}

// UpsertContact creates the contact if no phone match exists, otherwise
// patches the match. Empty property values are never sent, so existing
// CRM fields survive partial updates.
func (c *Client) UpsertContact(ctx context.Context, props ContactProperties) (string, error) {
	existing, err := c.SearchByPhone(ctx, props.Phone)
	if err != nil && !errors.Is(err, ErrContactNotFound) {
		return "", err
	}

	if existing == nil {
		var resp idResponse
		if err := c.doJSON(ctx, http.MethodPost, "/crm/v3/objects/contacts", contactRequest{Properties: props}, &resp); err != nil {
			return "", fmt.Errorf("create contact: %w", err)
		}
		c.logger.Info("crm contact created", "contact_id", resp.ID)
		return resp.ID, nil
	}

	path := "/crm/v3/objects/contacts/" + existing.ID
	if err := c.doJSON(ctx, http.MethodPatch, path, contactRequest{Properties: props}, nil); err != nil {
		return "", fmt.Errorf("update contact: %w", err)
	}
	return existing.ID, nil
}

// LogCall records a call engagement against a contact.
func (c *Client) LogCall(ctx context.Context, contactID, summary string) error {
	req := engagementRequest{
		Properties: map[string]string{
			"hs_timestamp":      strconv.FormatInt(time.Now().UnixMilli(), 10),
			"hs_call_body":      summary,
			"hs_call_direction": "INBOUND",
			"hs_call_status":    "COMPLETED",
		},
	}
	req.Associations = contactAssociations(contactID, callAssociation)

	if err := c.doJSON(ctx, http.MethodPost, "/crm/v3/objects/calls", req, nil); err != nil {
		return fmt.Errorf("log call: %w", err)
	}
	return nil
}

// CreateDeal opens a deal associated with the contact.
func (c *Client) CreateDeal(ctx context.Context, contactID, name, stage, amount string) (string, error) {
	props := map[string]string{
		"dealname":  name,
		"dealstage": stage,
	}
	if amount != "" {
		props["amount"] = amount
	}
	req := dealRequest{
		Properties:   props,
		Associations: contactAssociations(contactID, dealAssociation),
	}

	var resp idResponse
	if err := c.doJSON(ctx, http.MethodPost, "/crm/v3/objects/deals", req, &resp); err != nil {
		return "", fmt.Errorf("create deal: %w", err)
	}
	return resp.ID, nil
}

func contactAssociations(contactID string, typeID int) []association {
	a := association{Types: []associationType{{Category: "HUBSPOT_DEFINED", TypeID: typeID}}}
	a.To.ID = contactID
	return []association{a}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		lastErr = c.doOnce(ctx, method, path, payload, out)
		if lastErr == nil {
			return nil
		}
		var re *retryableError
		if !errors.As(lastErr, &re) {
			return lastErr
		}
		c.logger.Warn("crm request retrying", "path", path, "attempt", attempt, "error", lastErr)
	}
	return fmt.Errorf("crm request failed after %d attempts: %w", maxAttempts, lastErr)
}

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte, out interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &retryableError{err: fmt.Errorf("crm API returned %d: %s", resp.StatusCode, truncate(respBody, 300))}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("crm API non-2xx response", "status", resp.StatusCode, "path", path, "body", truncate(respBody, 300))
		return fmt.Errorf("crm API returned %d: %s", resp.StatusCode, truncate(respBody, 300))
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n]
	}
	return s
}

func lastDigits(phone string, n int) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}
