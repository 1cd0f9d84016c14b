// Package service turns Recorded Future alerts into CTIS graphs.
//
// Alerts are handled one at a time. For each alert the whole sub-graph
// (victim identities, rule EEI, document dossiers and their entities) is
// created before the alert node, so the alert node marks a completed alert
// and a re-run skips it.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/metrics"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

var tracer = otel.Tracer("github.com/hive-corporation/rf-ctis-bridge/internal/core/service")

// Notification texts.
const (
	MsgStarting    = "Starting sync"
	MsgFinished    = "Finished, exiting"
	ctxEntityError = "Entity creation error"
)

const (
	fallbackTokenLength = 16
	defaultSearchLimit  = 100
)

// Stats summarises one run.
type Stats struct {
	Alerts       int
	Created      int
	Skipped      int
	EntityErrors int
}

type Bridge struct {
	source   ports.AlertSource
	platform ports.Platform
	notifier ports.Notifier
	limit    int
}

func NewBridge(source ports.AlertSource, platform ports.Platform, notifier ports.Notifier, limit int) *Bridge {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &Bridge{
		source:   source,
		platform: platform,
		notifier: notifier,
		limit:    limit,
	}
}

// Run performs one synchronization pass. The first error that is not an
// entity failure aborts the pass and is returned.
func (b *Bridge) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	b.notifier.SendInfo(MsgStarting)

	refs, err := b.source.SearchAlerts(ctx, b.limit)
	if err != nil {
		return stats, fmt.Errorf("failed to search %s alerts: %w", b.source.Name(), err)
	}
	slog.Info("alerts fetched", "source", b.source.Name(), "count", len(refs))

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Alerts++

		res, err := b.processAlert(ctx, ref)
		stats.EntityErrors += res.entityErrors
		if err != nil {
			metrics.RecordAlert("failed")
			return stats, fmt.Errorf("alert %s: %w", ref.ID, err)
		}
		if res.created {
			stats.Created++
			metrics.RecordAlert("created")
		} else {
			stats.Skipped++
			metrics.RecordAlert("skipped")
		}
	}

	b.notifier.SendInfo(MsgFinished)
	return stats, nil
}

type alertResult struct {
	created      bool
	entityErrors int
}

// processAlert builds the graph of one alert. created is false when the
// alert node was already on the platform.
func (b *Bridge) processAlert(ctx context.Context, ref domain.AlertRef) (res alertResult, err error) {
	ctx, span := tracer.Start(ctx, "bridge.alert",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("rf.alert_id", ref.ID)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	alert, err := b.source.LookupAlert(ctx, ref.ID)
	if err != nil {
		return res, err
	}

	if alert.Rule == nil {
		return res, fmt.Errorf("alert %s has no rule", ref.ID)
	}

	title := strings.ReplaceAll(alert.Title, "\n", "")
	if b.platform.CheckAlertExists(ctx, ref.ID, title) {
		slog.Debug("alert already exists, skipping", "alert", ref.ID, "title", title)
		return res, nil
	}

	summary := domain.AlertSummary{Title: title, URL: alert.URL}

	var owners []domain.NodeRef
	for _, org := range alert.OwnerOrganisationDetails.Organisations {
		id, err := b.platform.AddIdentity(ctx, org.OrganisationName)
		if err != nil {
			return res, err
		}
		summary.Owners = append(summary.Owners, org.OrganisationName)
		owners = append(owners, domain.NodeRef{ID: id, Collection: domain.CollectionIdentities})
	}

	summary.Rule = domain.RuleSummary{
		Name:  alert.Rule.Name,
		URL:   alert.Rule.URL,
		Owner: alert.Rule.OwnerName,
	}
	eeiID, err := b.platform.AddEEI(ctx, ref.ID, summary.Rule)
	if err != nil {
		return res, err
	}

	var dossiers []domain.NodeRef
	for _, element := range alert.Entities {
		sets := []struct {
			docs []domain.Document
			into *[]domain.DocumentSummary
		}{
			{element.Documents, &summary.Docs},
			{documentsOf(element.Entity), &summary.Ent},
			{documentsOf(element.Risk), &summary.Risk},
			{documentsOf(element.Trend), &summary.Trend},
		}
		for _, set := range sets {
			for _, doc := range set.docs {
				ds, dossier, failures, err := b.processDocument(ctx, doc, summary.Owners)
				res.entityErrors += failures
				if err != nil {
					return res, err
				}
				*set.into = append(*set.into, ds)
				// The same document can sit in several sets.
				if !slices.ContainsFunc(dossiers, func(d domain.NodeRef) bool { return d.ID == dossier.ID }) {
					dossiers = append(dossiers, dossier)
				}
			}
		}
	}

	message, err := summary.Message()
	if err != nil {
		return res, err
	}
	alertID, created, err := b.platform.AddAlert(ctx, ref.ID, title, message)
	if err != nil {
		return res, err
	}
	if !created {
		slog.Info("alert created concurrently, relationships left as they are", "alert", ref.ID)
		return res, nil
	}
	alertRef := domain.NodeRef{ID: alertID, Collection: domain.CollectionAlerts}

	eei := domain.NodeRef{ID: eeiID, Collection: domain.CollectionEEIs}
	if _, err := b.platform.AddRelationship(ctx, domain.RelatedTo, eei, alertRef); err != nil {
		return res, err
	}
	for _, owner := range owners {
		if _, err := b.platform.AddVictimRelationship(ctx, domain.RelatedTo, alertRef, owner); err != nil {
			return res, err
		}
	}
	for _, dossier := range dossiers {
		if _, err := b.platform.AddRelationship(ctx, domain.RelatedTo, alertRef, dossier); err != nil {
			return res, err
		}
	}

	slog.Info("alert synchronized", "alert", ref.ID, "title", title,
		"owners", len(owners), "dossiers", len(dossiers), "entity_errors", res.entityErrors)
	res.created = true
	return res, nil
}

func documentsOf(set *domain.DocumentSet) []domain.Document {
	if set == nil {
		return nil
	}
	return set.Documents
}

// processDocument creates the dossier of a document and the entities it
// references. Entity failures are reported and counted, never returned.
func (b *Bridge) processDocument(ctx context.Context, doc domain.Document, owners []string) (domain.DocumentSummary, domain.NodeRef, int, error) {
	fallback := domain.RandomToken(fallbackTokenLength)

	ds := domain.DocumentSummary{
		Title:  doc.Title,
		URL:    doc.URL,
		Source: fallback,
	}
	if ds.Title == "" {
		ds.Title = fallback
	}
	if doc.Source != nil && doc.Source.Name != "" {
		ds.Source = doc.Source.Name
	}
	for _, a := range doc.Authors {
		ds.Authors = append(ds.Authors, a.Name)
	}

	dossierID, err := b.platform.AddDossier(ctx, ports.DossierInput{
		Key:        domain.DossierKey(doc),
		Name:       ds.Title,
		Originator: ds.Source,
		Addressees: owners,
		Text:       ds.DossierText(),
	})
	if err != nil {
		return ds, domain.NodeRef{}, 0, err
	}
	dossier := domain.NodeRef{ID: dossierID, Collection: domain.CollectionDossiers}

	failures := 0
	for _, ref := range doc.References {
		fr := domain.FragmentRefs{Fragment: ref.Fragment}
		for _, e := range ref.Entities {
			fr.Refs = append(fr.Refs, e.Name)
			if err := b.linkEntity(ctx, dossier, e, ref.Fragment); err != nil {
				failures++
				metrics.RecordEntitySkipped("error")
				slog.Error("non fatal error while creating entity", "entity", e.Name, "type", e.Type, "error", err)
				b.notifier.SendError(ctxEntityError,
					fmt.Sprintf("Entity %s of type %s with fragment %s\n%v", e.Name, e.Type, ref.Fragment, err), false)
			}
		}
		ds.Refs = append(ds.Refs, fr)
	}

	return ds, dossier, failures, nil
}

func (b *Bridge) linkEntity(ctx context.Context, dossier domain.NodeRef, e domain.ReferenceEntity, fragment string) error {
	entity, created, err := b.platform.AddEntity(ctx, e.Name, e.Type, fragment)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	_, err = b.platform.AddRelationship(ctx, domain.RelatedTo, dossier, entity)
	return err
}
