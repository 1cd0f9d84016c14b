package ctis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/metrics"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

// Whitelist settings consulted by dossier validation.
const (
	SettingAddresseeAllowed  = "xdossiers_addressee_allowed"
	SettingOriginatorAllowed = "xdossiers_originator_allowed"
)

type dossierDocument struct {
	Name       string             `json:"name"`
	Type       string             `json:"type"`
	Sources    []domain.SourceTag `json:"x-sources"`
	IDDossier  string             `json:"id_dossier"`
	Originator string             `json:"originator"`
	Addressee  []string           `json:"addressee"`
	Text       string             `json:"text"`
}

// CheckDossierExists looks a dossier up by its id_dossier key.
func (c *Client) CheckDossierExists(ctx context.Context, key string) (string, bool) {
	return c.findOne(ctx, domain.CollectionDossiers, "id_dossier", key)
}

// AddDossier creates the dossier for a document.
//
// A first attempt rejected because the originator or addressee is not on
// the platform whitelist teaches the platform the missing values and tries
// exactly once more. Anything else that is not a creation is fatal.
func (c *Client) AddDossier(ctx context.Context, in ports.DossierInput) (string, error) {
	if in.Key == "" {
		in.Key = domain.RandomToken(16)
	} else {
		if id, found := c.ledgerLookup(ctx, ledgerDossier, in.Key); found {
			return id, nil
		}
		if id, found := c.CheckDossierExists(ctx, in.Key); found {
			c.ledgerRecord(ctx, ledgerDossier, in.Key, id)
			return id, nil
		}
	}

	addressees := in.Addressees
	if addressees == nil {
		addressees = []string{}
	}
	doc := dossierDocument{
		Name:       in.Name,
		Type:       "x-dossier",
		Sources:    c.ResolveSources(ctx),
		IDDossier:  in.Key,
		Originator: in.Originator,
		Addressee:  addressees,
		Text:       in.Text,
	}

	out, err := c.submit(ctx, "/"+domain.CollectionDossiers, doc)
	if err != nil {
		return "", err
	}

	if out.Kind == Conflict && out.ExistingID != "" && len(out.Issues) == 0 {
		c.ledgerRecord(ctx, ledgerDossier, in.Key, out.ExistingID)
		return out.ExistingID, nil
	}

	if out.Kind != Created {
		addressee, originator := out.HasIssue("addressee"), out.HasIssue("originator")
		if !addressee && !originator {
			return "", failed("create dossier "+in.Name, out)
		}

		if addressee {
			if err := c.UpdateSetting(ctx, SettingAddresseeAllowed, in.Addressees); err != nil {
				return "", fmt.Errorf("failed to allow addressees for dossier %s: %w", in.Name, err)
			}
		}
		if originator {
			if err := c.UpdateSetting(ctx, SettingOriginatorAllowed, []string{in.Originator}); err != nil {
				return "", fmt.Errorf("failed to allow originator for dossier %s: %w", in.Name, err)
			}
		}

		slog.Info("whitelist repaired, retrying dossier", "dossier", in.Name, "addressee", addressee, "originator", originator)
		out, err = c.submit(ctx, "/"+domain.CollectionDossiers, doc)
		if err != nil {
			return "", err
		}
		if out.Kind != Created {
			return "", failed("create dossier "+in.Name+" after whitelist update", out)
		}
	}

	c.ledgerRecord(ctx, ledgerDossier, in.Key, out.ID)
	return out.ID, nil
}

type settingRecord struct {
	ID             string                     `json:"_id"`
	ETag           string                     `json:"_etag"`
	ParameterName  string                     `json:"parameter_name"`
	ParameterValue map[string]json.RawMessage `json:"parameter_value"`
}

type settingPatch struct {
	ParameterValue map[string]json.RawMessage `json:"parameter_value"`
}

// UpdateSetting appends values to the list of a whitelist setting. Values
// already present are not repeated. The update is conditional on the
// setting's etag and fails if someone changed it in between.
func (c *Client) UpdateSetting(ctx context.Context, name string, values []string) error {
	var list listResponse[settingRecord]
	if err := c.getJSON(ctx, "/"+domain.CollectionSettings, whereQuery("parameter_name", name), &list); err != nil {
		return fmt.Errorf("failed to fetch setting %s: %w", name, err)
	}
	if len(list.Items) == 0 {
		return fmt.Errorf("setting %s not found", name)
	}
	cur := list.Items[0]

	var current []string
	if raw, ok := cur.ParameterValue["list_values"]; ok {
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("setting %s has unexpected list_values: %w", name, err)
		}
	}

	merged := current
	for _, v := range values {
		if !slices.Contains(merged, v) {
			merged = append(merged, v)
		}
	}

	value := make(map[string]json.RawMessage, len(cur.ParameterValue)+1)
	for k, v := range cur.ParameterValue {
		value[k] = v
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	value["list_values"] = encoded

	if err := c.patchJSON(ctx, "/"+domain.CollectionSettings+"/"+url.PathEscape(cur.ID), cur.ETag, settingPatch{ParameterValue: value}); err != nil {
		return fmt.Errorf("failed to update setting %s: %w", name, err)
	}

	metrics.RecordWhitelistRepair(name)
	return nil
}
