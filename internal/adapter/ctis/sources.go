package ctis

import (
	"context"
	"log/slog"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

const wildcardSource = "*"

type sourceRecord struct {
	ID             string `json:"_id"`
	SourceName     string `json:"source_name"`
	Classification int    `json:"classification"`
	Releasability  int    `json:"releasability"`
	TLP            int    `json:"tlp"`
}

// ResolveSources returns the attribution tags for one creation call.
// The result is never empty: the platform rejects resources without one.
func (c *Client) ResolveSources(ctx context.Context) []domain.SourceTag {
	filter := c.opts.SourceFilter
	if len(filter) == 0 {
		return []domain.SourceTag{domain.DefaultSourceTag()}
	}
	for _, name := range filter {
		if name == wildcardSource {
			return []domain.SourceTag{domain.DefaultSourceTag()}
		}
	}

	var tags []domain.SourceTag
	for _, name := range filter {
		rec, ok := c.lookupSource(ctx, name)
		if !ok {
			continue
		}
		tags = append(tags, domain.SourceTag{
			SourceName:     rec.SourceName,
			Classification: rec.Classification,
			Releasability:  rec.Releasability,
			TLP:            rec.TLP,
		})
	}

	if len(tags) == 0 {
		return []domain.SourceTag{domain.DefaultSourceTag()}
	}
	return tags
}

func (c *Client) lookupSource(ctx context.Context, name string) (sourceRecord, bool) {
	var list listResponse[sourceRecord]
	if err := c.getJSON(ctx, "/"+domain.CollectionSources, whereQuery("source_name", name), &list); err != nil {
		slog.Debug("source lookup failed", "source", name, "error", err)
		return sourceRecord{}, false
	}
	for _, rec := range list.Items {
		if rec.SourceName == name {
			return rec, true
		}
	}
	return sourceRecord{}, false
}
