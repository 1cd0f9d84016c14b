package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentSummary is the normalized view of a vendor document.
type DocumentSummary struct {
	Title   string         `yaml:"title"`
	Source  string         `yaml:"source"`
	URL     string         `yaml:"url"`
	Authors []string       `yaml:"authors"`
	Refs    []FragmentRefs `yaml:"ref"`
}

// FragmentRefs lists the entity names found in one reference fragment.
type FragmentRefs struct {
	Fragment string   `yaml:"fragment"`
	Refs     []string `yaml:"refs"`
}

// RuleSummary is the triggering rule of an alert.
type RuleSummary struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Owner string `yaml:"owner"`
}

// AlertSummary is the snapshot embedded in the alert node message.
type AlertSummary struct {
	Title  string            `yaml:"title"`
	URL    string            `yaml:"url"`
	Owners []string          `yaml:"owners"`
	Rule   RuleSummary       `yaml:"rule"`
	Docs   []DocumentSummary `yaml:"docs,omitempty"`
	Ent    []DocumentSummary `yaml:"ent,omitempty"`
	Risk   []DocumentSummary `yaml:"risk,omitempty"`
	Trend  []DocumentSummary `yaml:"trend,omitempty"`
}

// Message renders the alert node body.
func (s AlertSummary) Message() (string, error) {
	out, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to render alert summary: %w", err)
	}
	return fmt.Sprintf("RF alert url: %s\nALERT SUMMARY:\n%s", s.URL, out), nil
}

// DossierText is the free text body of a dossier.
func (d DocumentSummary) DossierText() string {
	return fmt.Sprintf("Url: %s\nAuthors: [%s]", d.URL, strings.Join(d.Authors, ", "))
}

// CompositeTitle joins a title and vendor id the way the platform keys
// alerts and EEIs.
func CompositeTitle(title, vendorID string) string {
	return title + " - " + vendorID
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyz"

// RandomToken returns n random lowercase letters.
func RandomToken(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = tokenAlphabet[rand.IntN(len(tokenAlphabet))]
	}
	return string(b)
}
