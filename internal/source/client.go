// Package source provides the reference HTTP client for the remote
// collection API the sync engine mirrors from.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"refdex/internal/sync"
)

// Client talks to a JSON REST collection API. Transport failures are wrapped
// with sync.ErrConnection so the engine can tell an unreachable host apart
// from a bad record.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a source client for the given API base URL.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type collectionResponse struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	ParentKey *string `json:"parent_key,omitempty"`
	Version   int64   `json:"version"`
}

type itemResponse struct {
	Key      string          `json:"key"`
	ItemType string          `json:"item_type"`
	Title    string          `json:"title"`
	Date     string          `json:"date"`
	URL      string          `json:"url"`
	Metadata json.RawMessage `json:"metadata"`
	Version  int64           `json:"version"`
}

type childResponse struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Title       string `json:"title,omitempty"`
	Content     string `json:"content,omitempty"`
	Version     int64  `json:"version"`
}

// Collection fetches a single collection node by key.
func (c *Client) Collection(ctx context.Context, key string) (*sync.RemoteCollection, error) {
	var resp collectionResponse
	if err := c.getJSON(ctx, "/collections/"+url.PathEscape(key), &resp); err != nil {
		return nil, err
	}
	return remoteCollection(resp), nil
}

// Subcollections fetches every descendant collection of a collection.
func (c *Client) Subcollections(ctx context.Context, key string) ([]*sync.RemoteCollection, error) {
	var resp []collectionResponse
	if err := c.getJSON(ctx, "/collections/"+url.PathEscape(key)+"/subcollections", &resp); err != nil {
		return nil, err
	}
	out := make([]*sync.RemoteCollection, 0, len(resp))
	for _, rc := range resp {
		out = append(out, remoteCollection(rc))
	}
	return out, nil
}

// Items fetches the items that are members of a collection.
func (c *Client) Items(ctx context.Context, collectionKey string) ([]*sync.RemoteItem, error) {
	var resp []itemResponse
	if err := c.getJSON(ctx, "/collections/"+url.PathEscape(collectionKey)+"/items", &resp); err != nil {
		return nil, err
	}
	out := make([]*sync.RemoteItem, 0, len(resp))
	for _, it := range resp {
		out = append(out, &sync.RemoteItem{
			Key:      it.Key,
			ItemType: it.ItemType,
			Title:    it.Title,
			Date:     it.Date,
			URL:      it.URL,
			Metadata: string(it.Metadata),
			Version:  it.Version,
		})
	}
	return out, nil
}

// Children fetches the attachments and notes owned by an item.
func (c *Client) Children(ctx context.Context, itemKey string) ([]*sync.RemoteChild, error) {
	var resp []childResponse
	if err := c.getJSON(ctx, "/items/"+url.PathEscape(itemKey)+"/children", &resp); err != nil {
		return nil, err
	}
	out := make([]*sync.RemoteChild, 0, len(resp))
	for _, ch := range resp {
		out = append(out, &sync.RemoteChild{
			Key:         ch.Key,
			Kind:        sync.ChildKind(ch.Kind),
			Filename:    ch.Filename,
			ContentType: ch.ContentType,
			Title:       ch.Title,
			Content:     ch.Content,
			Version:     ch.Version,
		})
	}
	return out, nil
}

// DownloadAttachment fetches the raw bytes of an attachment.
func (c *Client) DownloadAttachment(ctx context.Context, key string) ([]byte, error) {
	resp, err := c.do(ctx, "/attachments/"+url.PathEscape(key)+"/file")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment body: %w", err)
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s: %v: %w", path, err, sync.ErrConnection)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, fmt.Errorf("source API returned status %d for %s: %w", resp.StatusCode, path, sync.ErrConnection)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("source API returned status %d for %s: %s", resp.StatusCode, path, body)
	}
	return resp, nil
}

func remoteCollection(resp collectionResponse) *sync.RemoteCollection {
	return &sync.RemoteCollection{
		Key:       resp.Key,
		Name:      resp.Name,
		ParentKey: resp.ParentKey,
		Version:   resp.Version,
	}
}
