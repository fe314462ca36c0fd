package vera

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/nerrad567/vera-bridge/internal/infrastructure/config"
)

// Controller data_request ids.
const (
	requestSnapshot = "lu_sdata"
	requestStatus   = "status"

	// defaultRequestTimeout bounds every controller call.
	defaultRequestTimeout = 10 * time.Second

	// maxDocumentSize caps a controller response (8MB).
	maxDocumentSize = 8 << 20
)

// Client talks to the controller's data_request REST endpoint.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a controller client from the controller configuration.
func NewClient(cfg config.ControllerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: "http://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the controller root, e.g. "http://192.168.4.10:3480".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchSnapshot retrieves the full rooms/devices/scenes dump.
func (c *Client) FetchSnapshot(ctx context.Context) (*SnapshotDocument, error) {
	var doc SnapshotDocument
	if err := c.get(ctx, requestSnapshot, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchStatus retrieves the incremental status report.
func (c *Client) FetchStatus(ctx context.Context) (*StatusDocument, error) {
	var doc StatusDocument
	if err := c.get(ctx, requestStatus, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// get performs one data_request call and decodes the JSON answer into out.
func (c *Client) get(ctx context.Context, id string, out any) error {
	query := url.Values{}
	query.Set("id", id)
	query.Set("output_format", "json")
	endpoint := c.baseURL + "/data_request?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrControllerUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrControllerUnavailable, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // Drain for connection reuse
		return fmt.Errorf("%w: %s: HTTP %d", ErrControllerUnavailable, id, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDocument, id, err)
	}
	return nil
}
