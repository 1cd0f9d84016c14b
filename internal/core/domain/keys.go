package domain

import (
	"strings"

	"github.com/google/uuid"
)

// bridgeNamespace scopes idempotency keys generated by this bridge.
var bridgeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/hive-corporation/rf-ctis-bridge"))

// DossierKey derives a stable key for a document so that a restarted run
// finds the dossier it already created instead of creating a duplicate.
// The key is taken from the raw document, before random title or source
// fallbacks are applied. A document with neither URL nor title has no
// identity and gets an empty key.
func DossierKey(doc Document) string {
	if doc.URL == "" && doc.Title == "" {
		return ""
	}
	source := ""
	if doc.Source != nil {
		source = doc.Source.Name
	}
	return idempotencyKey("dossier", doc.URL, doc.Title, source)
}

// EntityKey derives a stable key for an entity value of a vendor type.
func EntityKey(vendorType, value string) string {
	return idempotencyKey("entity", vendorType, value)
}

func idempotencyKey(kind string, parts ...string) string {
	name := kind + "\x00" + strings.Join(parts, "\x00")
	return uuid.NewSHA1(bridgeNamespace, []byte(name)).String()
}
