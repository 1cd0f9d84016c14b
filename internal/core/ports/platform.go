package ports

import (
	"context"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

// DossierInput is what the bridge knows about a document when creating
// its dossier.
type DossierInput struct {
	Key        string
	Name       string
	Originator string
	Addressees []string
	Text       string
}

// Platform is the set of CTIS operations the alert transformer drives.
type Platform interface {
	CheckAlertExists(ctx context.Context, vendorID, title string) bool
	AddIdentity(ctx context.Context, name string) (string, error)
	AddEEI(ctx context.Context, vendorID string, rule domain.RuleSummary) (string, error)
	AddDossier(ctx context.Context, in DossierInput) (string, error)

	// AddEntity returns created=false when the vendor type is not mapped
	AddEntity(ctx context.Context, value, vendorType, descriptionHTML string) (ref domain.NodeRef, created bool, err error)

	// AddAlert returns created=false when the alert already exists
	AddAlert(ctx context.Context, vendorID, title, message string) (id string, created bool, err error)

	AddRelationship(ctx context.Context, relType string, src, dst domain.NodeRef) (*domain.Relationship, error)
	AddVictimRelationship(ctx context.Context, relType string, src, dst domain.NodeRef) (*domain.Relationship, error)
}
