package ctis

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

type identityDocument struct {
	Confidence    int                `json:"confidence"`
	Name          string             `json:"name"`
	IdentityClass string             `json:"identity_class"`
	Sources       []domain.SourceTag `json:"x-sources"`
}

type identityRecord struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// maxIdentityPages bounds the alias scan if the platform keeps sending
// next links.
const maxIdentityPages = 1000

// CheckAliases scans every identity for an exact, case-sensitive alias
// match and returns its id.
func (c *Client) CheckAliases(ctx context.Context, name string) (string, bool, error) {
	for page := 1; page <= maxIdentityPages; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))

		var list listResponse[identityRecord]
		if err := c.getJSON(ctx, "/"+domain.CollectionIdentities, q, &list); err != nil {
			return "", false, fmt.Errorf("failed to list identities: %w", err)
		}
		for _, rec := range list.Items {
			for _, alias := range rec.Aliases {
				if alias == name {
					return rec.ID, true, nil
				}
			}
		}
		if list.Links.Next == nil || len(list.Items) == 0 {
			break
		}
	}
	return "", false, nil
}

// AddIdentity returns the id of the organization identity for name,
// creating it only when no identity already lists name as an alias.
func (c *Client) AddIdentity(ctx context.Context, name string) (string, error) {
	id, found, err := c.CheckAliases(ctx, name)
	if err != nil {
		return "", err
	}
	if found {
		slog.Debug("identity found by alias", "name", name, "id", id)
		return id, nil
	}

	if alias, ok := c.opts.IdentityAliases[name]; ok {
		name = alias
	}

	doc := identityDocument{
		Confidence:    100,
		Name:          name,
		IdentityClass: "organization",
		Sources:       []domain.SourceTag{domain.DefaultSourceTag()},
	}

	out, err := c.submit(ctx, "/"+domain.CollectionIdentities, doc)
	if err != nil {
		return "", err
	}

	switch out.Kind {
	case Created:
		return out.ID, nil
	case Conflict:
		if out.ExistingID == "" {
			return "", failed("create identity "+name, out)
		}
		return out.ExistingID, nil
	default:
		return "", failed("create identity "+name, out)
	}
}
