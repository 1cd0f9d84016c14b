// Package ctis is the adaptation layer for the CTIS threat-intelligence
// platform: request classification, typed add/check operations, source
// attribution and the settings whitelist repair used for dossiers.
package ctis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/httpx"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/ports"
)

// Ledger kinds.
const (
	ledgerDossier = "dossier"
	ledgerEntity  = "entity"
)

// Options is the static configuration of a client. It is read once and
// never modified by the client.
type Options struct {
	Mappings            domain.MappingTable
	IdentityAliases     map[string]string
	SourceFilter        []string
	MissingEntitiesFile string
	Ledger              ports.Ledger
}

// Client talks to one CTIS instance on behalf of one session.
type Client struct {
	session domain.Session
	http    httpx.Doer
	opts    Options
}

var _ ports.Platform = (*Client)(nil)

func NewClient(session domain.Session, doer httpx.Doer, opts Options) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if opts.Mappings == nil {
		opts.Mappings = domain.MappingTable{}
	}
	return &Client{
		session: session,
		http:    doer,
		opts:    opts,
	}
}

type loginResponse struct {
	Data struct {
		AccessToken string `json:"access_token"`
	} `json:"data"`
}

// Login performs the basic-auth exchange and returns the bearer session.
// There is no renewal: a lapsed token fails every later request.
func Login(ctx context.Context, doer httpx.Doer, baseURL, username, password string) (domain.Session, error) {
	if doer == nil {
		doer = http.DefaultClient
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/login", nil)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to create login request: %w", err)
	}
	req.SetBasicAuth(username, password)
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrLogin, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Session{}, fmt.Errorf("%w: status %d", ErrLogin, resp.StatusCode)
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return domain.Session{}, fmt.Errorf("%w: failed to decode login response: %v", ErrLogin, err)
	}
	if data.Data.AccessToken == "" {
		return domain.Session{}, fmt.Errorf("%w: empty access token", ErrLogin)
	}

	return domain.Session{BaseURL: baseURL, Token: data.Data.AccessToken}, nil
}
