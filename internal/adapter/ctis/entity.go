package ctis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/metrics"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

// DefaultMissingEntitiesFile is where unmapped entity types are recorded.
const DefaultMissingEntitiesFile = "/files/missing_entities.txt"

// AddEntity creates an entity from a document reference. Unmapped vendor
// types are recorded in the side file and skipped with created=false.
func (c *Client) AddEntity(ctx context.Context, value, vendorType, descriptionHTML string) (domain.NodeRef, bool, error) {
	mapping, ok := c.opts.Mappings.Lookup(vendorType)
	if !ok {
		metrics.RecordEntitySkipped("unmapped")
		if err := c.recordMissingEntity(value, vendorType, descriptionHTML); err != nil {
			slog.Warn("failed to record unmapped entity type", "type", vendorType, "error", err)
		}
		return domain.NodeRef{}, false, nil
	}

	key := domain.EntityKey(vendorType, value)
	if id, found := c.ledgerLookup(ctx, ledgerEntity, key); found {
		return domain.NodeRef{ID: id, Collection: mapping.Collection}, true, nil
	}

	description, err := entityDescription(vendorType, descriptionHTML)
	if err != nil {
		return domain.NodeRef{}, false, err
	}

	// Field names come from the mapping table, so the document is a map.
	doc := map[string]any{
		"x-sources": c.ResolveSources(ctx),
	}
	if mapping.DescriptionField != "" {
		doc[mapping.DescriptionField] = description
	}
	if mapping.ValueField != "" {
		doc[mapping.ValueField] = value
	}
	if mapping.Class != "" {
		doc["identity_class"] = mapping.Class
	}

	out, err := c.submit(ctx, "/"+mapping.Collection, doc)
	if err != nil {
		return domain.NodeRef{}, false, err
	}

	// A conflict without an id carries validation issues only.
	id := out.ID
	if out.Kind == Conflict {
		id = out.ExistingID
	}
	if id == "" {
		return domain.NodeRef{}, false, failed(fmt.Sprintf("create entity %s of type %s", value, vendorType), out)
	}

	c.ledgerRecord(ctx, ledgerEntity, key, id)
	return domain.NodeRef{ID: id, Collection: mapping.Collection}, true, nil
}

func (c *Client) recordMissingEntity(value, vendorType, description string) error {
	path := c.opts.MissingEntitiesFile
	if path == "" {
		path = DefaultMissingEntitiesFile
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	line := fmt.Sprintf("Entity type doesn't exist in mapping: %s; param: %s; description: %s\n",
		vendorType, value, strings.ReplaceAll(description, "\n", " "))
	_, err = f.WriteString(line)
	return err
}

var (
	blankRun  = regexp.MustCompile(`[ \t\f\v]+`)
	extraRows = regexp.MustCompile(`\n{3,}`)
)

// entityDescription renders the vendor HTML fragment as plain text
// prefixed with the vendor type, with "\n" line endings.
func entityDescription(vendorType, fragment string) (string, error) {
	text, err := htmlToText(fragment)
	if err != nil {
		return "", fmt.Errorf("failed to parse description of %s entity: %w", vendorType, err)
	}
	return normalizeNewlines("RF type: " + vendorType + "\n" + text), nil
}

func htmlToText(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6").AfterHtml("\n")

	lines := strings.Split(normalizeNewlines(doc.Text()), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(blankRun.ReplaceAllString(l, " "))
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	return extraRows.ReplaceAllString(text, "\n\n") + "\n", nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
