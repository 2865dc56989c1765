package voip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var _ Connector = (*HTTPConnector)(nil)

// HTTPConnector talks to the PBX management API over HTTP.
type HTTPConnector struct {
	baseURL string
	client  *http.Client
}

func NewHTTPConnector(baseURL string) *HTTPConnector {
	return &HTTPConnector{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPConnector) get(ctx context.Context, path string, query url.Values, out any) (int, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("connector returned %s for %s", resp.Status, path)
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPConnector) Version(ctx context.Context) (string, error) {
	var payload struct {
		Version string `json:"version"`
	}
	if _, err := c.get(ctx, "/version", nil, &payload); err != nil {
		return "", err
	}
	return payload.Version, nil
}

func (c *HTTPConnector) ListExtensions(ctx context.Context) ([]Extension, error) {
	var payload struct {
		Extensions []Extension `json:"extensions"`
	}
	if _, err := c.get(ctx, "/extensions", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Extensions, nil
}

func (c *HTTPConnector) ExtensionDetails(ctx context.Context, extension string) (ExtensionDetails, bool, error) {
	var details ExtensionDetails
	status, err := c.get(ctx, "/extension", url.Values{"extension": {extension}}, &details)
	if err != nil {
		return ExtensionDetails{}, false, err
	}
	if status == http.StatusNotFound {
		return ExtensionDetails{}, false, nil
	}
	return details, true, nil
}

func (c *HTTPConnector) RegistrationInfo(ctx context.Context, extension string) (RegistrationInfo, bool, error) {
	var info RegistrationInfo
	status, err := c.get(ctx, "/registration", url.Values{"extension": {extension}}, &info)
	if err != nil {
		return RegistrationInfo{}, false, err
	}
	if status == http.StatusNotFound {
		return RegistrationInfo{}, false, nil
	}
	return info, true, nil
}
