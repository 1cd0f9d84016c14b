package ctis

import (
	"context"
	"log/slog"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

type eeiDocument struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Author      string             `json:"author"`
	Sources     []domain.SourceTag `json:"x-sources"`
}

type alertDocument struct {
	EntityType string             `json:"entity_type"`
	AlertType  string             `json:"alert_type"`
	Labels     []string           `json:"labels"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	From       string             `json:"from"`
	Role       string             `json:"role"`
	Sources    []domain.SourceTag `json:"x-sources"`
}

type idRecord struct {
	ID string `json:"_id"`
}

// findOne looks up the first record of a collection whose field equals
// value. Any failure reads as "not found": a broken lookup must not block
// a creation attempt.
func (c *Client) findOne(ctx context.Context, collection, field, value string) (string, bool) {
	q := whereQuery(field, value)
	q.Set("page", "1")
	q.Set("max_results", "25")

	var list listResponse[idRecord]
	if err := c.getJSON(ctx, "/"+collection, q, &list); err != nil {
		slog.Debug("existence check failed, assuming absent", "collection", collection, "value", value, "error", err)
		return "", false
	}
	if len(list.Items) == 0 || list.Items[0].ID == "" {
		return "", false
	}
	return list.Items[0].ID, true
}

// CheckAlertExists reports whether the alert node for a vendor alert is
// already on the platform.
func (c *Client) CheckAlertExists(ctx context.Context, vendorID, title string) bool {
	_, found := c.findOne(ctx, domain.CollectionAlerts, "title", domain.CompositeTitle(title, vendorID))
	return found
}

// CheckEEIExists returns the id of the EEI for a rule of a vendor alert.
func (c *Client) CheckEEIExists(ctx context.Context, vendorID, name string) (string, bool) {
	return c.findOne(ctx, domain.CollectionEEIs, "name", domain.CompositeTitle(name, vendorID))
}

// AddEEI returns the id of the EEI representing the alert's rule, creating
// it when the composite name is not on the platform yet.
func (c *Client) AddEEI(ctx context.Context, vendorID string, rule domain.RuleSummary) (string, error) {
	if id, found := c.CheckEEIExists(ctx, vendorID, rule.Name); found {
		slog.Debug("eei already exists", "rule", rule.Name, "id", id)
		return id, nil
	}

	doc := eeiDocument{
		Name:        domain.CompositeTitle(rule.Name, vendorID),
		Description: rule.URL,
		Author:      rule.Owner,
		Sources:     c.ResolveSources(ctx),
	}

	out, err := c.submit(ctx, "/"+domain.CollectionEEIs, doc)
	if err != nil {
		return "", err
	}

	switch out.Kind {
	case Created:
		return out.ID, nil
	case Conflict:
		if out.ExistingID == "" {
			return "", failed("create eei "+doc.Name, out)
		}
		return out.ExistingID, nil
	default:
		return "", failed("create eei "+doc.Name, out)
	}
}

// AddAlert creates the alert node. created is false when the platform
// already holds it, meaning the vendor alert was processed before.
func (c *Client) AddAlert(ctx context.Context, vendorID, title, message string) (string, bool, error) {
	doc := alertDocument{
		EntityType: "report",
		AlertType:  "notify-frontend",
		Labels:     []string{"rf"},
		Title:      domain.CompositeTitle(title, vendorID),
		Message:    message,
		From:       "rf",
		Role:       "analyst",
		Sources:    c.ResolveSources(ctx),
	}

	out, err := c.submit(ctx, "/"+domain.CollectionAlerts, doc)
	if err != nil {
		return "", false, err
	}

	switch out.Kind {
	case Created:
		return out.ID, true, nil
	case Conflict:
		return "", false, nil
	default:
		return "", false, failed("create alert "+doc.Title, out)
	}
}
