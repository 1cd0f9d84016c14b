package service

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/hive-corporation/rf-ctis-bridge/internal/adapter/ctis"
	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
	"github.com/hive-corporation/rf-ctis-bridge/internal/ctistest"
)

type fakeSource struct {
	refs      []domain.AlertRef
	alerts    map[string]*domain.Alert
	searchErr error
}

func (f *fakeSource) Name() string { return "fake-rf" }

func (f *fakeSource) SearchAlerts(_ context.Context, _ int) ([]domain.AlertRef, error) {
	return f.refs, f.searchErr
}

func (f *fakeSource) LookupAlert(_ context.Context, id string) (*domain.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return nil, errors.New("alert not found")
	}
	return a, nil
}

type notice struct {
	context string
	detail  string
	fatal   bool
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []notice
}

func (n *recordingNotifier) SendInfo(info string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, info)
}

func (n *recordingNotifier) SendError(context, detail string, fatal bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, notice{context, detail, fatal})
}

var testMappings = domain.MappingTable{
	"IpAddress": {Collection: "indicators", ValueField: "pattern", DescriptionField: "description"},
}

func newPlatform(t *testing.T, srv *ctistest.Server) *ctis.Client {
	t.Helper()
	session, err := ctis.Login(context.Background(), nil, srv.URL, ctistest.Username, ctistest.Password)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return ctis.NewClient(session, nil, ctis.Options{
		Mappings:            testMappings,
		MissingEntitiesFile: filepath.Join(t.TempDir(), "missing_entities.txt"),
	})
}

func suspiciousLogin() *domain.Alert {
	return &domain.Alert{
		ID:    "RF-1",
		Title: "Suspicious login",
		URL:   "https://app.recordedfuture.com/alert/RF-1",
		OwnerOrganisationDetails: domain.OwnerOrganisationDetails{
			Organisations: []domain.OwnerOrganisation{{OrganisationName: "Acme"}},
		},
		Rule: &domain.AlertRule{Name: "Rule A", URL: "https://app.recordedfuture.com/rule/A", OwnerName: "analyst1"},
	}
}

func singleAlert(a *domain.Alert) *fakeSource {
	return &fakeSource{
		refs:   []domain.AlertRef{{ID: a.ID, Title: a.Title}},
		alerts: map[string]*domain.Alert{a.ID: a},
	}
}

func TestRun_AlertWithoutDocuments(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()
	notifier := &recordingNotifier{}

	bridge := NewBridge(singleAlert(suspiciousLogin()), newPlatform(t, srv), notifier, 0)
	stats, err := bridge.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Alerts != 1 || stats.Created != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if got := len(srv.Docs("identities")); got != 1 {
		t.Errorf("Expected 1 identity, got %d", got)
	}
	eeis := srv.Docs("eeis")
	if len(eeis) != 1 || eeis[0]["name"] != "Rule A - RF-1" {
		t.Errorf("Expected EEI 'Rule A - RF-1', got %v", eeis)
	}
	alerts := srv.Docs("alerts")
	if len(alerts) != 1 || alerts[0]["title"] != "Suspicious login - RF-1" {
		t.Fatalf("Expected alert 'Suspicious login - RF-1', got %v", alerts)
	}
	if got := len(srv.Docs("relationships")); got != 2 {
		t.Errorf("Expected 2 relationships, got %d", got)
	}
	if got := len(srv.Docs("x-dossiers")); got != 0 {
		t.Errorf("Expected no dossiers, got %d", got)
	}
	if got := len(srv.Docs("indicators")); got != 0 {
		t.Errorf("Expected no entities, got %d", got)
	}

	message, _ := alerts[0]["message"].(string)
	if !strings.HasPrefix(message, "RF alert url: https://app.recordedfuture.com/alert/RF-1\nALERT SUMMARY:\n") {
		t.Errorf("Unexpected alert message: %q", message)
	}

	if len(notifier.infos) != 2 || notifier.infos[0] != MsgStarting || notifier.infos[1] != MsgFinished {
		t.Errorf("Expected start and finish notifications, got %v", notifier.infos)
	}
}

func TestRun_RelationshipsPointAtCreatedNodes(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	bridge := NewBridge(singleAlert(suspiciousLogin()), newPlatform(t, srv), &recordingNotifier{}, 0)
	if _, err := bridge.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	eeiID := srv.Docs("eeis")[0]["_id"]
	alertID := srv.Docs("alerts")[0]["_id"]
	identityID := srv.Docs("identities")[0]["_id"]

	rels := srv.Docs("relationships")
	var eeiToAlert, victim bool
	for _, r := range rels {
		switch {
		case r["source_ref"] == eeiID && r["target_ref"] == alertID && r["source_type"] == "eeis":
			eeiToAlert = true
		case r["source_ref"] == alertID && r["target_ref"] == identityID && r["sub-type"] == domain.IsVictim:
			victim = true
		}
	}
	if !eeiToAlert {
		t.Error("Expected EEI to alert relationship")
	}
	if !victim {
		t.Error("Expected alert to victim relationship")
	}
}

func TestRun_AlreadySynchronizedAlertMakesNoWrites(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()
	srv.Seed("alerts", map[string]any{"title": "Suspicious login - RF-1"})

	bridge := NewBridge(singleAlert(suspiciousLogin()), newPlatform(t, srv), &recordingNotifier{}, 0)
	stats, err := bridge.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.Skipped != 1 {
		t.Errorf("Expected alert to be skipped, got %+v", stats)
	}
	if srv.Writes() != 0 {
		t.Errorf("Expected zero writes, got %d", srv.Writes())
	}
}

func TestRun_StripsNewlinesFromTitle(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	alert := suspiciousLogin()
	alert.Title = "Suspicious login\n"
	bridge := NewBridge(singleAlert(alert), newPlatform(t, srv), &recordingNotifier{}, 0)
	if _, err := bridge.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := srv.Docs("alerts")[0]["title"]; got != "Suspicious login - RF-1" {
		t.Errorf("Expected newline-free title, got %q", got)
	}
}

func TestRun_DocumentsAndEntities(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()
	notifier := &recordingNotifier{}

	alert := suspiciousLogin()
	alert.OwnerOrganisationDetails.Organisations = append(alert.OwnerOrganisationDetails.Organisations,
		domain.OwnerOrganisation{OrganisationName: "Globex"})
	alert.Entities = []domain.AlertEntity{
		{
			Entity: &domain.DocumentSet{Documents: []domain.Document{{
				Title:   "Credential dump",
				Source:  &domain.DocumentSource{Name: "Dark Web Forum"},
				URL:     "https://forum.example/post/1",
				Authors: []domain.Author{{Name: "mallory"}},
				References: []domain.Reference{{
					Fragment: "<p>login from 203.0.113.7</p>",
					Entities: []domain.ReferenceEntity{
						{Name: "203.0.113.7", Type: "IpAddress"},
						{Name: "mallory@example.com", Type: "EmailAddress"},
					},
				}},
			}}},
		},
		{
			Documents: []domain.Document{{Title: "Paste", URL: "https://paste.example/abc"}},
		},
	}

	bridge := NewBridge(singleAlert(alert), newPlatform(t, srv), notifier, 0)
	if _, err := bridge.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	dossiers := srv.Docs("x-dossiers")
	if len(dossiers) != 2 {
		t.Fatalf("Expected a dossier per document across elements, got %d", len(dossiers))
	}
	if dossiers[0]["originator"] != "Dark Web Forum" || dossiers[0]["text"] != "Url: https://forum.example/post/1\nAuthors: [mallory]" {
		t.Errorf("Unexpected dossier: %v", dossiers[0])
	}
	if addressees := dossiers[0]["addressee"].([]any); len(addressees) != 2 {
		t.Errorf("Expected both owners as addressees, got %v", addressees)
	}
	if got := len(srv.Docs("indicators")); got != 1 {
		t.Errorf("Expected only the mapped entity, got %d", got)
	}

	// eei→alert, 2 victims, 2 alert→dossier, 1 dossier→entity
	if got := len(srv.Docs("relationships")); got != 6 {
		t.Errorf("Expected 6 relationships, got %d", got)
	}
	victims := 0
	for _, r := range srv.Docs("relationships") {
		if r["sub-type"] == domain.IsVictim {
			victims++
		}
	}
	if victims != 2 {
		t.Errorf("Expected a victim relationship per owner, got %d", victims)
	}

	message := srv.Docs("alerts")[0]["message"].(string)
	for _, want := range []string{"Credential dump", "Paste", "203.0.113.7", "mallory@example.com"} {
		if !strings.Contains(message, want) {
			t.Errorf("Expected alert summary to mention %q", want)
		}
	}
	if len(notifier.errors) != 0 {
		t.Errorf("Expected no error notifications, got %v", notifier.errors)
	}
}

func TestRun_SharedDocumentIsLinkedOnce(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	doc := domain.Document{Title: "Combo list", URL: "https://paste.example/abc"}
	alert := suspiciousLogin()
	alert.Entities = []domain.AlertEntity{{
		Documents: []domain.Document{doc},
		Risk:      &domain.DocumentSet{Documents: []domain.Document{doc}},
	}}

	bridge := NewBridge(singleAlert(alert), newPlatform(t, srv), &recordingNotifier{}, 0)
	if _, err := bridge.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := len(srv.Docs("x-dossiers")); got != 1 {
		t.Fatalf("Expected one dossier for the shared document, got %d", got)
	}
	// eei→alert, victim, alert→dossier
	if got := len(srv.Docs("relationships")); got != 3 {
		t.Errorf("Expected 3 relationships, got %d", got)
	}
	if got := srv.Count(http.MethodPost, "/relationships"); got != 3 {
		t.Errorf("Expected 3 relationship submissions, got %d", got)
	}
}

func TestRun_FallbackTitleAndSource(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	alert := suspiciousLogin()
	alert.Entities = []domain.AlertEntity{{Documents: []domain.Document{{URL: "https://x.example"}}}}

	bridge := NewBridge(singleAlert(alert), newPlatform(t, srv), &recordingNotifier{}, 0)
	if _, err := bridge.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	dossier := srv.Docs("x-dossiers")[0]
	name, _ := dossier["name"].(string)
	if len(name) != 16 || strings.ToLower(name) != name {
		t.Errorf("Expected 16 lowercase letters, got %q", name)
	}
	if dossier["originator"] != name {
		t.Errorf("Expected the same fallback for source, got %v", dossier["originator"])
	}
}

func TestRun_EntityFailureIsNotFatal(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()
	srv.FailNext("indicators", http.StatusBadRequest, `{"_issues": {"pattern": "invalid"}}`)
	notifier := &recordingNotifier{}

	alert := suspiciousLogin()
	alert.Entities = []domain.AlertEntity{{Documents: []domain.Document{{
		Title: "Doc",
		URL:   "https://doc.example",
		References: []domain.Reference{{
			Fragment: "frag",
			Entities: []domain.ReferenceEntity{
				{Name: "bad", Type: "IpAddress"},
				{Name: "198.51.100.1", Type: "IpAddress"},
			},
		}},
	}}}}

	bridge := NewBridge(singleAlert(alert), newPlatform(t, srv), notifier, 0)
	stats, err := bridge.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.EntityErrors != 1 || stats.Created != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if got := len(srv.Docs("indicators")); got != 1 {
		t.Errorf("Expected the second entity to be created, got %d", got)
	}

	if len(notifier.errors) != 1 {
		t.Fatalf("Expected 1 error notification, got %d", len(notifier.errors))
	}
	n := notifier.errors[0]
	if n.fatal || n.context != "Entity creation error" || !strings.Contains(n.detail, "Entity bad of type IpAddress with fragment frag") {
		t.Errorf("Unexpected notification: %+v", n)
	}
}

func TestRun_DossierFailureAborts(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()
	srv.FailNext("x-dossiers", http.StatusBadRequest, `{"_error": {"message": "bad dossier"}}`)
	notifier := &recordingNotifier{}

	alert := suspiciousLogin()
	alert.Entities = []domain.AlertEntity{{Documents: []domain.Document{{Title: "Doc", URL: "https://doc.example"}}}}

	bridge := NewBridge(singleAlert(alert), newPlatform(t, srv), notifier, 0)
	_, err := bridge.Run(context.Background())

	var opErr *ctis.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("Expected *ctis.OperationError, got %v", err)
	}
	if got := len(srv.Docs("alerts")); got != 0 {
		t.Errorf("Expected no alert node after an aborted sub-graph, got %d", got)
	}
	if len(notifier.infos) != 1 {
		t.Errorf("Expected no finish notification, got %v", notifier.infos)
	}
}

func TestRun_EEIConflictWithoutIDAborts(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()
	srv.FailNext("eeis", http.StatusConflict, `{"_issues": {"author": "not allowed"}}`)

	bridge := NewBridge(singleAlert(suspiciousLogin()), newPlatform(t, srv), &recordingNotifier{}, 0)
	_, err := bridge.Run(context.Background())

	var opErr *ctis.OperationError
	if !errors.As(err, &opErr) || opErr.Status != http.StatusConflict {
		t.Fatalf("Expected a 409 *ctis.OperationError, got %v", err)
	}
	if got := len(srv.Docs("alerts")); got != 0 {
		t.Errorf("Expected no alert node without its EEI, got %d", got)
	}
}

func TestRun_SearchFailure(t *testing.T) {
	source := &fakeSource{searchErr: errors.New("feed down")}

	bridge := NewBridge(source, nil, &recordingNotifier{}, 0)
	if _, err := bridge.Run(context.Background()); err == nil {
		t.Fatal("Expected search error")
	}
}

func TestRun_LookupFailure(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	source := &fakeSource{refs: []domain.AlertRef{{ID: "RF-404"}}}
	bridge := NewBridge(source, newPlatform(t, srv), &recordingNotifier{}, 0)

	_, err := bridge.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "RF-404") {
		t.Errorf("Expected error naming the alert, got %v", err)
	}
}

func TestRun_ExistingNodesAreLinked(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	identityID := srv.Seed("identities", map[string]any{"name": "Acme Corporation", "aliases": []string{"Acme"}})
	eeiID := srv.Seed("eeis", map[string]any{"name": "Rule A - RF-1"})

	bridge := NewBridge(singleAlert(suspiciousLogin()), newPlatform(t, srv), &recordingNotifier{}, 0)
	if _, err := bridge.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := len(srv.Docs("identities")); got != 1 {
		t.Errorf("Expected no new identity, got %d", got)
	}
	if got := len(srv.Docs("eeis")); got != 1 {
		t.Errorf("Expected no new EEI, got %d", got)
	}

	refs := map[any]bool{}
	for _, r := range srv.Docs("relationships") {
		refs[r["source_ref"]] = true
		refs[r["target_ref"]] = true
	}
	if !refs[identityID] || !refs[eeiID] {
		t.Errorf("Expected relationships to found nodes, got %v", refs)
	}
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	srv := ctistest.NewServer()
	defer srv.Close()

	alert := suspiciousLogin()
	alert.Entities = []domain.AlertEntity{{Documents: []domain.Document{{Title: "Doc", URL: "https://doc.example"}}}}
	platform := newPlatform(t, srv)

	if _, err := NewBridge(singleAlert(alert), platform, &recordingNotifier{}, 0).Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	writes := srv.Writes()

	stats, err := NewBridge(singleAlert(alert), platform, &recordingNotifier{}, 0).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if stats.Skipped != 1 || srv.Writes() != writes {
		t.Errorf("Expected second run to write nothing, got %d new writes", srv.Writes()-writes)
	}
}
