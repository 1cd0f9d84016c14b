package ctis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/metrics"
)

var tracer = otel.Tracer("github.com/hive-corporation/rf-ctis-bridge/internal/adapter/ctis")

// Kind classifies the result of a submission.
type Kind int

const (
	Created Kind = iota + 1
	Conflict
	Failed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Conflict:
		return "conflict"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of submitting one resource document.
//
//	Created:  ID holds the assigned id (Body holds the full response for
//	          relationship endpoints)
//	Conflict: ExistingID holds the id of the resource already on the
//	          platform; relationship endpoints keep the raw Body instead
//	Failed:   Body holds the raw error
//
// Issues is filled from the "_issues" object whenever the platform sends one.
type Outcome struct {
	Kind       Kind
	Status     int
	ID         string
	ExistingID string
	Body       []byte
	Issues     map[string]json.RawMessage
}

// HasIssue reports whether the platform flagged the given field.
func (o Outcome) HasIssue(field string) bool {
	_, ok := o.Issues[field]
	return ok
}

type createdResponse struct {
	ID string `json:"_id"`
}

type errorResponse struct {
	Error struct {
		Message json.RawMessage `json:"message"`
	} `json:"_error"`
	Issues map[string]json.RawMessage `json:"_issues"`
}

type listResponse[T any] struct {
	Items []T `json:"_items"`
	Links struct {
		Next *struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

func isRelationshipPath(path string) bool {
	return strings.HasPrefix(path, "/relationship")
}

// submit posts a singleton array holding doc to a collection endpoint and
// classifies the response. Transport errors are returned as errors; every
// HTTP status maps to exactly one Outcome kind.
func (c *Client) submit(ctx context.Context, path string, doc any) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "ctis.submit")
	defer span.End()
	span.SetAttributes(attribute.String("ctis.path", path))

	payload, err := json.Marshal([]any{doc})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to marshal %s document: %w", path, err)
	}

	status, body, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(payload), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, err
	}

	out := classify(path, status, body)
	span.SetAttributes(attribute.String("ctis.outcome", out.Kind.String()), attribute.Int("http.status_code", status))
	metrics.RecordCTISRequest(strings.TrimPrefix(path, "/"), out.Kind.String())
	return out, nil
}

func classify(path string, status int, body []byte) Outcome {
	out := Outcome{Status: status, Body: body}

	switch status {
	case http.StatusCreated:
		out.Kind = Created
		if isRelationshipPath(path) {
			return out
		}
		var created createdResponse
		if err := json.Unmarshal(body, &created); err == nil {
			out.ID = created.ID
		}

	case http.StatusConflict:
		out.Kind = Conflict
		if isRelationshipPath(path) {
			return out
		}
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			out.Issues = errResp.Issues
			var existing createdResponse
			if json.Unmarshal(errResp.Error.Message, &existing) == nil {
				out.ExistingID = existing.ID
			}
		}

	default:
		out.Kind = Failed
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			out.Issues = errResp.Issues
		}
	}

	return out
}

// getJSON issues an authenticated GET and decodes a 200 response into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	status, body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &OperationError{Op: "GET " + path, Status: status, Body: body}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// patchJSON issues a conditional PATCH gated on etag.
func (c *Client) patchJSON(ctx context.Context, path, etag string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal patch for %s: %w", path, err)
	}
	status, body, err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(payload), map[string]string{"If-Match": etag})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &OperationError{Op: "PATCH " + path, Status: status, Body: body}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.session.Token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return resp.StatusCode, data, nil
}

// whereQuery builds an Eve-style lookup on a single exact field match.
func whereQuery(field, value string) url.Values {
	where, _ := json.Marshal(map[string]string{field: value})
	q := url.Values{}
	q.Set("where", string(where))
	return q
}
