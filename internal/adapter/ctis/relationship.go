package ctis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

// AddRelationship draws a relType edge from src to dst.
// A conflict means the edge is already there and is not an error.
func (c *Client) AddRelationship(ctx context.Context, relType string, src, dst domain.NodeRef) (*domain.Relationship, error) {
	return c.addRelationship(ctx, relType, "", src, dst)
}

// AddVictimRelationship draws an alert→victim edge, marked is_victim.
func (c *Client) AddVictimRelationship(ctx context.Context, relType string, src, dst domain.NodeRef) (*domain.Relationship, error) {
	return c.addRelationship(ctx, relType, domain.IsVictim, src, dst)
}

func (c *Client) addRelationship(ctx context.Context, relType, subType string, src, dst domain.NodeRef) (*domain.Relationship, error) {
	rel := domain.Relationship{
		Type:             "relationship",
		Confidence:       100,
		SubType:          subType,
		RelationshipType: relType,
		SourceRef:        src.ID,
		SourceType:       src.Collection,
		TargetRef:        dst.ID,
		TargetType:       dst.Collection,
	}

	out, err := c.submit(ctx, "/"+domain.CollectionRelationships, rel)
	if err != nil {
		return nil, err
	}

	switch out.Kind {
	case Created, Conflict:
		// The body echoes the stored relationship; fall back to what was
		// sent when it carries less than that.
		var stored domain.Relationship
		if json.Unmarshal(out.Body, &stored) == nil {
			if stored.SourceRef != "" && stored.TargetRef != "" {
				return &stored, nil
			}
			rel.ID = stored.ID
		}
		return &rel, nil
	default:
		kind := "relationship"
		if subType != "" {
			kind = subType + " relationship"
		}
		return nil, failed(fmt.Sprintf("create %s %s→%s", kind, src.Collection, dst.Collection), out)
	}
}

// GetRelationship fetches a relationship by id.
func (c *Client) GetRelationship(ctx context.Context, id string) (*domain.Relationship, error) {
	var rel domain.Relationship
	if err := c.getJSON(ctx, "/"+domain.CollectionRelationships+"/"+url.PathEscape(id), nil, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}
