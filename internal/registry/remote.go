package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"deskbroker/internal/model"
	brokerrors "deskbroker/internal/shared/errors"
)

// RemoteClient queries one remote registry endpoint for servers matching
// query. Network errors and non-2xx responses are the caller's concern;
// RemoteClient implementations should return an error rather than
// silently returning an empty slice, so the resolver can distinguish
// "no match" from "source unreachable" for logging, even though both are
// treated the same by the cascade.
type RemoteClient interface {
	Search(ctx context.Context, query string) ([]model.ToolServerDescriptor, error)
}

// HTTPRemoteClient queries a registry that answers HTTP GET with a JSON
// body of the shape {"servers": [...], "metadata": {...}}.
type HTTPRemoteClient struct {
	Name       string
	BaseURL    string
	httpClient *http.Client
}

func NewHTTPRemoteClient(name, baseURL string) *HTTPRemoteClient {
	return &HTTPRemoteClient{
		Name:       name,
		BaseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type remoteServerEntry struct {
	ServerName  string                           `json:"server_name"`
	PackageName string                           `json:"package_name"`
	Description string                           `json:"description"`
	Category    string                           `json:"category"`
	Validated   bool                             `json:"validated"`
	Transport   string                           `json:"transport"`
	Invocation  []string                         `json:"invocation"`
	Tools       map[string]model.ToolDescriptor  `json:"tools"`
}

type remoteSearchResponse struct {
	Servers  []remoteServerEntry `json:"servers"`
	Metadata map[string]any      `json:"metadata"`
}

func (c *HTTPRemoteClient) Search(ctx context.Context, query string) ([]model.ToolServerDescriptor, error) {
	if c.BaseURL == "" {
		return nil, brokerrors.New(brokerrors.KindUnsupported, "registry endpoint not configured")
	}

	endpoint, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "parse registry base url")
	}
	q := endpoint.Query()
	q.Set("q", query)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindInternal, err, "build registry request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindTransport, err, fmt.Sprintf("query %s registry", c.Name))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, brokerrors.New(brokerrors.KindTransport, fmt.Sprintf("%s registry returned status %d", c.Name, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindTransport, err, "read registry response")
	}

	var parsed remoteSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, brokerrors.Wrap(brokerrors.KindProtocol, err, "parse registry response")
	}

	out := make([]model.ToolServerDescriptor, 0, len(parsed.Servers))
	for _, entry := range parsed.Servers {
		out = append(out, model.ToolServerDescriptor{
			ServerName:  entry.ServerName,
			PackageName: entry.PackageName,
			Description: entry.Description,
			Category:    entry.Category,
			Validated:   entry.Validated,
			Transport:   model.Transport(entry.Transport),
			Invocation:  entry.Invocation,
			Tools:       entry.Tools,
		})
	}
	return out, nil
}
