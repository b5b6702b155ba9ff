// client/client.go
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"concord/internal/conflict"
	"concord/internal/document"
	apperrors "concord/internal/errors"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// do sends body as JSON and decodes the response into out when the status
// matches want. Error bodies are returned as *apperrors.Error.
func (c *Client) do(ctx context.Context, method, path string, body, out any, want int) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e struct {
			Error *apperrors.Error `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != nil {
			return e.Error
		}
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// File operations
func (c *Client) CreateFile(ctx context.Context, id, fileName, content, modifiedBy string) (*document.File, error) {
	req := map[string]string{
		"id":          id,
		"file_name":   fileName,
		"content":     content,
		"modified_by": modifiedBy,
	}

	var f document.File
	if err := c.do(ctx, http.MethodPost, "/api/files", req, &f, http.StatusCreated); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) GetFile(ctx context.Context, id string) (*document.File, error) {
	var f document.File
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id), nil, &f, http.StatusOK); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]*document.File, error) {
	var files []*document.File
	if err := c.do(ctx, http.MethodGet, "/api/files", nil, &files, http.StatusOK); err != nil {
		return nil, err
	}
	return files, nil
}

// WriteFile commits content based on version. A stale version is reported
// through the returned result rather than as an error.
func (c *Client) WriteFile(ctx context.Context, id, content string, version int, modifiedBy string) (*conflict.WriteResult, error) {
	req := struct {
		Content    string `json:"content"`
		Version    int    `json:"version"`
		ModifiedBy string `json:"modified_by,omitempty"`
	}{content, version, modifiedBy}

	var res conflict.WriteResult
	if err := c.do(ctx, http.MethodPut, "/api/files/"+url.PathEscape(id), req, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, nil, http.StatusNoContent)
}

// ListVersions returns the snapshot versions kept for a file
func (c *Client) ListVersions(ctx context.Context, id string) ([]int, error) {
	var res struct {
		Versions []int `json:"versions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/files/"+url.PathEscape(id)+"/versions", nil, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return res.Versions, nil
}

// Conflict operations
func (c *Client) DetectConflict(ctx context.Context, p conflict.DetectParams) (*conflict.DetectResult, error) {
	var res conflict.DetectResult
	if err := c.do(ctx, http.MethodPost, "/api/conflicts/detect", p, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ResolveConflict(ctx context.Context, fileID string, strategy conflict.Strategy, mergedContent *string, resolvedBy string) (*conflict.ResolveResult, error) {
	req := struct {
		Strategy      conflict.Strategy `json:"strategy"`
		MergedContent *string           `json:"merged_content,omitempty"`
		ResolvedBy    string            `json:"resolved_by,omitempty"`
	}{strategy, mergedContent, resolvedBy}

	var res conflict.ResolveResult
	path := "/api/conflicts/" + url.PathEscape(fileID) + "/resolve"
	if err := c.do(ctx, http.MethodPost, path, req, &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) ActiveConflicts(ctx context.Context) ([]*conflict.Record, error) {
	var records []*conflict.Record
	if err := c.do(ctx, http.MethodGet, "/api/conflicts", nil, &records, http.StatusOK); err != nil {
		return nil, err
	}
	return records, nil
}

// History returns resolved conflicts. A non-positive limit uses the server default.
func (c *Client) History(ctx context.Context, limit int) ([]*conflict.Record, error) {
	path := "/api/conflicts/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var records []*conflict.Record
	if err := c.do(ctx, http.MethodGet, path, nil, &records, http.StatusOK); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) ClearHistory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/conflicts/history", nil, nil, http.StatusNoContent)
}
