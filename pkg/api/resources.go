package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/getpassage/passage-go/pkg/intenttoken"
)

const resourceFetchLimit = 1000

// irregularPlurals maps resource names whose URL path segment is not just
// name+"s".
var irregularPlurals = map[string]string{
	"trip":        "trips",
	"accountInfo": "account-info",
}

// ResourcePath derives the URL path segment for a requested resource string
// by stripping its access suffix ("-read"/"-write") and pluralizing.
func ResourcePath(resource string) string {
	name := strings.TrimSuffix(strings.TrimSuffix(resource, "-read"), "-write")
	if p, ok := irregularPlurals[name]; ok {
		return p
	}
	return name + "s"
}

// Resource is one fetched resource payload.
type Resource struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// FetchResource retrieves one resource for the session identified by token.
func (c *Client) FetchResource(ctx context.Context, token, sessionID, resource string) (*Resource, error) {
	path := ResourcePath(resource)
	u := fmt.Sprintf("%s/connections/%s/%s?limit=%d",
		c.baseURL, url.PathEscape(sessionID), path, resourceFetchLimit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build resource request: %w", err)
	}
	req.Header.Set("x-intent-token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s failed: %s", path, unwrapAPIError(resp.StatusCode, data))
	}

	return &Resource{Name: path, Data: data}, nil
}

// FetchPermitted fetches every requested resource the token actually grants,
// concurrently. Requested resources absent from the token's grants are
// silently filtered out, not errors.
func (c *Client) FetchPermitted(ctx context.Context, token string, requested []string) ([]Resource, error) {
	claims, err := intenttoken.Decode(token)
	if err != nil {
		return nil, err
	}

	var (
		mu  sync.Mutex
		out []Resource
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, resource := range requested {
		if !claims.Permits(resource) {
			continue
		}
		g.Go(func() error {
			r, err := c.FetchResource(ctx, token, claims.SessionID, resource)
			if err != nil {
				return err
			}
			mu.Lock()
			out = append(out, *r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
