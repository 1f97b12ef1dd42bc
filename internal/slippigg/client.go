// SPDX-License-Identifier: MIT

// Package slippigg talks to the remote report endpoint.
//
// The endpoint speaks a GraphQL-shaped JSON protocol: every call is a POST of
// {query, variables} and the response carries {data, errors}. Replay payloads
// are uploaded separately via a signed URL returned by the game report
// mutation.
package slippigg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is a thin wrapper over the shared HTTP client. It is safe for
// concurrent use and cheap to pass around.
type Client struct {
	base      string
	userAgent string
	http      *http.Client
}

// New returns a client for the given endpoint base URL. The semver string is
// embedded in the user agent so the server can distinguish client builds.
func New(base, semver string) *Client {
	return &Client{
		base:      base,
		userAgent: fmt.Sprintf("exibridge/%s", semver),
		http: &http.Client{
			Timeout:   5 * time.Second,
			Transport: &http.Transport{MaxIdleConnsPerHost: 5},
		},
	}
}

// CloseIdleConnections releases pooled connections. Called on device teardown
// so no transport goroutines outlive the owning device.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

type graphqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// execute posts a GraphQL document and returns the named field of the data
// object. Transport failures, non-2xx statuses and GraphQL-level errors are
// all returned as plain errors; callers decide whether to retry.
func (c *Client) execute(ctx context.Context, query string, variables any, field string) (json.RawMessage, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("endpoint returned status %d", res.StatusCode)
	}

	var parsed graphqlResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", parsed.Errors[0].Message)
	}
	if parsed.Data == nil {
		return nil, fmt.Errorf("no data field in response")
	}

	raw, ok := parsed.Data[field]
	if !ok {
		return nil, fmt.Errorf("no %q field in response data", field)
	}
	return raw, nil
}

// ReportGame sends a finalized game report. On success it returns the replay
// upload URL, which may be empty if the server does not want the replay.
func (c *Client) ReportGame(ctx context.Context, payload *GameReportPayload) (string, error) {
	const mutation = `
		mutation ($report: OnlineGameReportInput!) {
			reportOnlineGame (report: $report) {
				success
				uploadUrl
			}
		}
	`

	raw, err := c.execute(ctx, mutation, map[string]any{"report": payload}, "reportOnlineGame")
	if err != nil {
		return "", err
	}

	var result struct {
		Success   bool   `json:"success"`
		UploadURL string `json:"uploadUrl"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode report result: %w", err)
	}
	if !result.Success {
		return "", fmt.Errorf("report was not accepted")
	}
	return result.UploadURL, nil
}

// StatusReport carries a match lifecycle notification.
type StatusReport struct {
	UID     string `json:"fbUid"`
	PlayKey string `json:"playKey"`
	MatchID string `json:"matchId"`
	Status  string `json:"status"`
	EndMode *int   `json:"endMode,omitempty"`
}

// ReportMatchStatus sends a match lifecycle notification (session start,
// completion, abandonment).
func (c *Client) ReportMatchStatus(ctx context.Context, report StatusReport) error {
	const mutation = `
		mutation ($report: OnlineMatchStatusReportInput!) {
			reportOnlineMatchStatus (report: $report)
		}
	`

	raw, err := c.execute(ctx, mutation, map[string]any{"report": report}, "reportOnlineMatchStatus")
	if err != nil {
		return err
	}
	if string(raw) != "true" {
		return fmt.Errorf("status report rejected: %s", raw)
	}
	return nil
}

// UploadReplay PUTs gzipped replay bytes to the signed URL returned by
// ReportGame.
func (c *Client) UploadReplay(ctx context.Context, uploadURL string, gzipped []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(gzipped))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("X-Goog-Content-Length-Range", "0,10000000")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("upload returned status %d", res.StatusCode)
	}
	return nil
}

// ValidateUser checks a uid/play-key pair against the server. On success it
// returns the latest client version known to the server.
func (c *Client) ValidateUser(ctx context.Context, uid, playKey string) (string, error) {
	const query = `
		query ($fbUid: String!, $playKey: String!) {
			validateUserKey (fbUid: $fbUid, playKey: $playKey) {
				valid
				latestVersion
			}
		}
	`

	raw, err := c.execute(ctx, query, map[string]any{"fbUid": uid, "playKey": playKey}, "validateUserKey")
	if err != nil {
		return "", err
	}

	var result struct {
		Valid         bool   `json:"valid"`
		LatestVersion string `json:"latestVersion"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode validation result: %w", err)
	}
	if !result.Valid {
		return "", fmt.Errorf("credentials rejected by server")
	}
	return result.LatestVersion, nil
}
