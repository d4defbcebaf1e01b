package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mammoth-cyber/mammothctl/internal/api"
)

// fakePortal is an in-memory stand-in for the management portal, backing
// the generic v1 resource endpoints the provisioning flows use.
type fakePortal struct {
	mu        sync.Mutex
	seq       int
	resources map[string]map[string]api.Resource // collection -> id -> object
	unlinks   []string                           // "teams/t1/users:jane@example.com"
}

func newFakePortal() *fakePortal {
	return &fakePortal{resources: make(map[string]map[string]api.Resource)}
}

func (p *fakePortal) put(coll string, obj api.Resource) api.Resource {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resources[coll] == nil {
		p.resources[coll] = make(map[string]api.Resource)
	}
	id, _ := obj["id"].(string)
	if id == "" {
		p.seq++
		id = fmt.Sprintf("%s-%d", coll, p.seq)
		obj["id"] = id
	}
	p.resources[coll][id] = obj
	return obj
}

func (p *fakePortal) ids(coll string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for id := range p.resources[coll] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (p *fakePortal) get(coll, id string) (api.Resource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.resources[coll][id]
	return obj, ok
}

func (p *fakePortal) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux.HandleFunc("POST /api/v1/{coll}", func(w http.ResponseWriter, r *http.Request) {
		var obj api.Resource
		require.NoError(t, json.NewDecoder(r.Body).Decode(&obj))
		writeJSON(w, p.put(r.PathValue("coll"), obj))
	})

	mux.HandleFunc("GET /api/v1/{coll}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		list := make([]api.Resource, 0)
		for _, obj := range p.resources[r.PathValue("coll")] {
			list = append(list, obj)
		}
		p.mu.Unlock()
		sort.Slice(list, func(i, j int) bool {
			return api.String(list[i], "id") < api.String(list[j], "id")
		})
		writeJSON(w, list)
	})

	mux.HandleFunc("GET /api/v1/{coll}/{id}", func(w http.ResponseWriter, r *http.Request) {
		obj, ok := p.get(r.PathValue("coll"), r.PathValue("id"))
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, api.Resource{"error": "not found"})
			return
		}
		writeJSON(w, obj)
	})

	mux.HandleFunc("PUT /api/v1/{coll}/{id}", func(w http.ResponseWriter, r *http.Request) {
		var obj api.Resource
		require.NoError(t, json.NewDecoder(r.Body).Decode(&obj))
		obj["id"] = r.PathValue("id")
		p.put(r.PathValue("coll"), obj)
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("DELETE /api/v1/{coll}/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		delete(p.resources[r.PathValue("coll")], r.PathValue("id"))
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	// Relationship unlink endpoints: DELETE with member ids as the body.
	mux.HandleFunc("DELETE /api/v1/{coll}/{id}/{rel}/{$}", func(w http.ResponseWriter, r *http.Request) {
		var members []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&members))
		p.mu.Lock()
		for _, m := range members {
			p.unlinks = append(p.unlinks, fmt.Sprintf("%s/%s/%s:%s",
				r.PathValue("coll"), r.PathValue("id"), r.PathValue("rel"), m))
		}
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateUserChain(t *testing.T) {
	portal := newFakePortal()
	srv := portal.server(t)

	c := api.New(srv.URL)
	defer c.Close()

	result, err := CreateUser(context.Background(), c, "jane@example.com", "10.1.2.3:2222")
	require.NoError(t, err)

	user, ok := portal.get("users", result.UserID)
	require.True(t, ok)
	assert.Equal(t, "jane@example.com", api.String(user, "email"))
	assert.Equal(t, "jane", api.String(user, "name"))
	assert.Equal(t, "user", api.String(user, "adminRole"))

	team, ok := portal.get("teams", result.TeamID)
	require.True(t, ok)
	assert.Equal(t, []string{"jane@example.com"}, api.Strings(team, "emails"))

	role, ok := portal.get("accessRoles", result.AccessRoleID)
	require.True(t, ok)
	assert.Equal(t, []string{result.TeamID}, api.Strings(role, "teamIds"))

	policy, ok := portal.get("policies", result.PolicyID)
	require.True(t, ok)
	rules := api.Objects(policy, "rules")
	require.Len(t, rules, 1)
	assert.Equal(t, []string{result.AccessRoleID}, api.Strings(rules[0], "accessRoleIds"))
	assert.Equal(t, []string{"copy", "paste"}, api.Strings(rules[0], "actions"))

	app, ok := portal.get("applications", result.ApplicationID)
	require.True(t, ok)
	assert.Equal(t, result.PolicyID, api.String(app, "policyId"))
	assert.Equal(t, "ssh", api.String(app, "protocol"))
	assert.Equal(t, []string{"10.1.2.3"}, api.Strings(app, "host"))
	assert.Equal(t, float64(2222), app["port"])
}

func TestCreateUserRejectsBadInputs(t *testing.T) {
	c := api.New("https://portal.example.com")
	defer c.Close()

	_, err := CreateUser(context.Background(), c, "not-an-email", "10.0.0.1:22")
	require.Error(t, err)

	_, err = CreateUser(context.Background(), c, "jane@example.com", "no-port")
	require.Error(t, err)

	_, err = CreateUser(context.Background(), c, "jane@example.com", "host:abc")
	require.Error(t, err)
}

// seedPurgeFixture sets up: user jane in team t1 with role r1; app a1 on
// policy p1 granting only r1; app a2 on policy p2 granting r1 and r2;
// role r2 belongs to bob.
func seedPurgeFixture(portal *fakePortal) {
	portal.put("users", api.Resource{
		"id":            "jane@example.com",
		"email":         "jane@example.com",
		"teamIds":       []any{"t1"},
		"accessRoleIds": []any{"r1"},
	})
	portal.put("teams", api.Resource{
		"id":            "t1",
		"emails":        []any{"jane@example.com"},
		"accessRoleIds": []any{"r1"},
	})
	portal.put("accessRoles", api.Resource{
		"id":      "r1",
		"emails":  []any{"jane@example.com"},
		"teamIds": []any{"t1"},
	})
	portal.put("accessRoles", api.Resource{
		"id":      "r2",
		"emails":  []any{"bob@example.com"},
		"teamIds": []any{},
	})
	portal.put("policies", api.Resource{
		"id":    "p1",
		"rules": []any{map[string]any{"accessRoleIds": []any{"r1"}}},
	})
	portal.put("policies", api.Resource{
		"id":    "p2",
		"rules": []any{map[string]any{"accessRoleIds": []any{"r1", "r2"}}},
	})
	portal.put("applications", api.Resource{"id": "a1", "policyId": "p1"})
	portal.put("applications", api.Resource{"id": "a2", "policyId": "p2"})
}

func TestPurgeUserCascade(t *testing.T) {
	portal := newFakePortal()
	seedPurgeFixture(portal)
	srv := portal.server(t)

	c := api.New(srv.URL)
	defer c.Close()

	require.NoError(t, PurgeUser(context.Background(), c, "jane@example.com"))

	assert.Empty(t, portal.ids("users"), "user must be removed")
	assert.Empty(t, portal.ids("teams"), "the user's own team must be removed")
	assert.Equal(t, []string{"r2"}, portal.ids("accessRoles"), "only the unrelated role survives")
	assert.Equal(t, []string{"a2"}, portal.ids("applications"), "only the shared-policy app survives")
	assert.Equal(t, []string{"p2"}, portal.ids("policies"), "only the shared policy survives")

	// The shared policy's rule was rewritten without the purged role.
	p2, ok := portal.get("policies", "p2")
	require.True(t, ok)
	rules := api.Objects(p2, "rules")
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"r2"}, api.Strings(rules[0], "accessRoleIds"))

	// Relationship links were dropped before the deletes.
	assert.Contains(t, portal.unlinks, "teams/t1/users:jane@example.com")
	assert.Contains(t, portal.unlinks, "accessRoles/r1/users:jane@example.com")
	assert.Contains(t, portal.unlinks, "accessRoles/r1/teams:t1")
}

func TestPurgeUserDryRunTouchesNothing(t *testing.T) {
	portal := newFakePortal()
	seedPurgeFixture(portal)
	srv := portal.server(t)

	c := api.New(srv.URL, api.WithDryRun(true))
	defer c.Close()

	require.NoError(t, PurgeUser(context.Background(), c, "jane@example.com"))

	assert.Equal(t, []string{"jane@example.com"}, portal.ids("users"))
	assert.Equal(t, []string{"t1"}, portal.ids("teams"))
	assert.Equal(t, []string{"r1", "r2"}, portal.ids("accessRoles"))
	assert.Equal(t, []string{"a1", "a2"}, portal.ids("applications"))
	assert.Equal(t, []string{"p1", "p2"}, portal.ids("policies"))
	assert.Empty(t, portal.unlinks)
}

func TestPurgeUserMissingUser(t *testing.T) {
	portal := newFakePortal()
	srv := portal.server(t)

	c := api.New(srv.URL)
	defer c.Close()

	err := PurgeUser(context.Background(), c, "ghost@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch user")
}
