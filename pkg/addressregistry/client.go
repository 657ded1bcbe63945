package addressregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultBaseURL              = "https://online-gateway.ghn.vn/shiip/public-api"
	defaultTimeout              = 5 * time.Second
	responseBodyReadLimit int64 = 1024

	opListProvinces = "list_provinces"
	opListDistricts = "list_districts"
	opListWards     = "list_wards"
)

var errTokenRequired = errors.New("address registry token is required")

// Division is one node of the province > district > ward hierarchy.
type Division struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Registry lists administrative divisions. Child lists are scoped to the
// parent's identifier.
type Registry interface {
	ListProvinces(ctx context.Context) ([]Division, error)
	ListDistricts(ctx context.Context, provinceID string) ([]Division, error)
	ListWards(ctx context.Context, districtID string) ([]Division, error)
}

// Client talks to a GHN-compatible master-data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	metrics    *metrics.DependencyMetrics
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the registry base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every registry call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithMetrics(m *metrics.DependencyMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient builds the registry client given an API token.
func NewClient(token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		token:      trimmed,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

func (c *Client) ListProvinces(ctx context.Context) ([]Division, error) {
	var rows []struct {
		ProvinceID   flexibleID `json:"ProvinceID"`
		ProvinceName string     `json:"ProvinceName"`
	}
	if err := c.get(ctx, opListProvinces, "master-data/province", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]Division, 0, len(rows))
	for _, row := range rows {
		out = append(out, Division{ID: string(row.ProvinceID), Name: row.ProvinceName})
	}
	return out, nil
}

func (c *Client) ListDistricts(ctx context.Context, provinceID string) ([]Division, error) {
	var rows []struct {
		DistrictID   flexibleID `json:"DistrictID"`
		ProvinceID   flexibleID `json:"ProvinceID"`
		DistrictName string     `json:"DistrictName"`
	}
	query := url.Values{"province_id": []string{provinceID}}
	if err := c.get(ctx, opListDistricts, "master-data/district", query, &rows); err != nil {
		return nil, err
	}
	out := make([]Division, 0, len(rows))
	for _, row := range rows {
		out = append(out, Division{ID: string(row.DistrictID), Name: row.DistrictName, ParentID: string(row.ProvinceID)})
	}
	return out, nil
}

func (c *Client) ListWards(ctx context.Context, districtID string) ([]Division, error) {
	var rows []struct {
		WardCode   flexibleID `json:"WardCode"`
		DistrictID flexibleID `json:"DistrictID"`
		WardName   string     `json:"WardName"`
	}
	query := url.Values{"district_id": []string{districtID}}
	if err := c.get(ctx, opListWards, "master-data/ward", query, &rows); err != nil {
		return nil, err
	}
	out := make([]Division, 0, len(rows))
	for _, row := range rows {
		out = append(out, Division{ID: string(row.WardCode), Name: row.WardName, ParentID: string(row.DistrictID)})
	}
	return out, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, dest any) (err error) {
	if c == nil {
		return Unavailable(errors.New("client not configured"))
	}
	started := time.Now()
	defer func() {
		c.metrics.Observe(op, outcomeOf(err), time.Since(started))
	}()

	endpoint := c.buildURL(path)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Unavailable(fmt.Errorf("build %s request: %w", op, err))
	}
	req.Header.Set("Token", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Timeout(err)
		}
		return Unavailable(fmt.Errorf("execute %s request: %w", op, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return Unavailable(fmt.Errorf("%s status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if isTimeout(err) {
			return Timeout(err)
		}
		return Unavailable(fmt.Errorf("decode %s response: %w", op, err))
	}
	if env.Code != 0 && env.Code != http.StatusOK {
		return Unavailable(fmt.Errorf("%s returned code %d: %s", op, env.Code, env.Message))
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return Unavailable(fmt.Errorf("decode %s data: %w", op, err))
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

// Unavailable marks a registry failure that is not a timeout.
func Unavailable(cause error) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "address validation service unavailable").
		WithReason(pkgerrors.ReasonRegistryUnavailable)
}

// Timeout marks a registry call that ran out of time; callers may retry.
func Timeout(cause error) *pkgerrors.Error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, cause, "address validation service timed out").
		WithReason(pkgerrors.ReasonRegistryTimeout)
}

// AsDependencyError normalizes any registry failure into Unavailable or Timeout.
func AsDependencyError(err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeDependency {
		return typed
	}
	if isTimeout(err) {
		return Timeout(err)
	}
	return Unavailable(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case pkgerrors.HasReason(err, pkgerrors.ReasonRegistryTimeout):
		return "timeout"
	default:
		return "error"
	}
}

// flexibleID accepts identifiers encoded as JSON numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}
