package domain

// Recorded Future alert detail schema. Only the fields the bridge consumes
// are declared; a missing required section is a schema violation.

type Alert struct {
	ID                       string                   `json:"id"`
	Title                    string                   `json:"title"`
	URL                      string                   `json:"url"`
	OwnerOrganisationDetails OwnerOrganisationDetails `json:"owner_organisation_details"`
	Rule                     *AlertRule               `json:"rule"`
	Entities                 []AlertEntity            `json:"entities"`
}

type OwnerOrganisationDetails struct {
	Organisations []OwnerOrganisation `json:"organisations"`
}

type OwnerOrganisation struct {
	OrganisationName string `json:"organisation_name"`
}

type AlertRule struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	OwnerName string `json:"owner_name"`
}

// AlertEntity carries the four document-bearing substructures. The general
// documents sit directly on the element; the others are nested.
type AlertEntity struct {
	Documents []Document   `json:"documents"`
	Entity    *DocumentSet `json:"entity"`
	Risk      *DocumentSet `json:"risk"`
	Trend     *DocumentSet `json:"trend"`
}

type DocumentSet struct {
	Documents []Document `json:"documents"`
}

type Document struct {
	Title      string          `json:"title"`
	Source     *DocumentSource `json:"source"`
	URL        string          `json:"url"`
	Authors    []Author        `json:"authors"`
	References []Reference     `json:"references"`
}

type DocumentSource struct {
	Name string `json:"name"`
}

type Author struct {
	Name string `json:"name"`
}

type Reference struct {
	Fragment string            `json:"fragment"`
	Entities []ReferenceEntity `json:"entities"`
}

type ReferenceEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// AlertRef is a search hit from the vendor feed.
type AlertRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
