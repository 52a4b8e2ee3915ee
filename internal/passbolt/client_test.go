package passbolt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// call records one transport invocation.
type call struct {
	method  string
	path    string
	query   url.Values
	payload any
}

// fakeTransport serves canned envelope bodies keyed by "METHOD path" and
// records every call.
type fakeTransport struct {
	responses map[string]string
	calls     []call
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]string{}}
}

// respond registers the body (not the envelope) served for a route.
func (f *fakeTransport) respond(method, path, body string) {
	f.responses[method+" "+path] = `{"header":{"status":"success"},"body":` + body + `}`
}

func (f *fakeTransport) serve(method, path string, q url.Values, payload any) (json.RawMessage, error) {
	f.calls = append(f.calls, call{method: method, path: path, query: q, payload: payload})
	resp, ok := f.responses[method+" "+path]
	if !ok {
		return nil, fmt.Errorf("unexpected call: %s %s", method, path)
	}
	return json.RawMessage(resp), nil
}

func (f *fakeTransport) Get(_ context.Context, path string, q url.Values) (json.RawMessage, error) {
	return f.serve("GET", path, q, nil)
}
func (f *fakeTransport) Post(_ context.Context, path string, payload any) (json.RawMessage, error) {
	return f.serve("POST", path, nil, payload)
}
func (f *fakeTransport) Put(_ context.Context, path string, payload any) (json.RawMessage, error) {
	return f.serve("PUT", path, nil, payload)
}
func (f *fakeTransport) Delete(_ context.Context, path string) (json.RawMessage, error) {
	return f.serve("DELETE", path, nil, nil)
}

func (f *fakeTransport) lastCall(t *testing.T) call {
	t.Helper()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func newTestClient(ft *fakeTransport) *Client {
	return New(ft, zap.NewNop())
}

func mustID(t *testing.T) uuid.UUID {
	t.Helper()
	return uuid.Must(uuid.NewV4())
}

func folderJSON(id uuid.UUID, name string, parent *uuid.UUID) string {
	f := model.Folder{ID: id, Name: name, FolderParentID: parent}
	buf, _ := json.Marshal(f)
	return string(buf)
}

func TestFolderByName_ExactMatchOverSubstringResults(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	want := mustID(t)
	// The search endpoint matches substrings; "Ops" also returns "Ops Archive".
	ft.respond("GET", "/folders.json",
		"["+folderJSON(want, "Ops", nil)+","+folderJSON(mustID(t), "Ops Archive", nil)+"]")
	c := newTestClient(ft)

	f, err := c.FolderByName(context.Background(), "Ops", nil)
	require.NoError(t, err)
	assert.Equal(t, want, f.ID)
	assert.Equal(t, "Ops", ft.lastCall(t).query.Get("filter[search]"))
}

func TestFolderByName_ScopedByParent(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	p1, p2 := mustID(t), mustID(t)
	inP1, inP2 := mustID(t), mustID(t)
	ft.respond("GET", "/folders.json",
		"["+folderJSON(inP1, "Secrets", &p1)+","+folderJSON(inP2, "Secrets", &p2)+"]")
	c := newTestClient(ft)

	f, err := c.FolderByName(context.Background(), "Secrets", &p1)
	require.NoError(t, err)
	assert.Equal(t, inP1, f.ID)

	// Unscoped lookup requires a parent-less match; both candidates are nested.
	_, err = c.FolderByName(context.Background(), "Secrets", nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFolderByName_AmbiguousWithinScope(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	ft.respond("GET", "/folders.json",
		"["+folderJSON(mustID(t), "Ops", nil)+","+folderJSON(mustID(t), "Ops", nil)+"]")
	c := newTestClient(ft)

	_, err := c.FolderByName(context.Background(), "Ops", nil)
	require.ErrorIs(t, err, errs.ErrAmbiguous)
	var ambig *errs.AmbiguityError
	require.ErrorAs(t, err, &ambig)
	assert.Equal(t, 2, ambig.Count)
}

func TestUserByUsername_SubstringResultsFiltered(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	want := mustID(t)
	users, _ := json.Marshal([]model.User{
		{ID: want, Username: "jo@example.com", Active: true},
		{ID: mustID(t), Username: "jo@example.com.old", Active: true},
	})
	ft.respond("GET", "/users.json", string(users))
	c := newTestClient(ft)

	u, err := c.UserByUsername(context.Background(), "jo@example.com")
	require.NoError(t, err)
	assert.Equal(t, want, u.ID)

	_, err = c.UserByUsername(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGroups_RequestsMembershipRecords(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	ft.respond("GET", "/groups.json", "[]")
	c := newTestClient(ft)

	_, err := c.Groups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", ft.lastCall(t).query.Get("contain[groups_users]"))
}

func TestAddGroupMember_PayloadShape(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	groupID, userID := mustID(t), mustID(t)
	ft.respond("PUT", fmt.Sprintf("/groups/%s.json", groupID), "{}")
	c := newTestClient(ft)

	require.NoError(t, c.AddGroupMember(context.Background(), groupID, userID))

	buf, err := json.Marshal(ft.lastCall(t).payload)
	require.NoError(t, err)
	assert.JSONEq(t,
		fmt.Sprintf(`{"groups_users":[{"user_id":%q,"is_admin":false}]}`, userID),
		string(buf))
}

func TestRemoveGroupMember_TargetsMembershipRecord(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	groupID, membershipID := mustID(t), mustID(t)
	ft.respond("PUT", fmt.Sprintf("/groups/%s.json", groupID), "{}")
	c := newTestClient(ft)

	require.NoError(t, c.RemoveGroupMember(context.Background(), groupID, membershipID))

	buf, err := json.Marshal(ft.lastCall(t).payload)
	require.NoError(t, err)
	assert.JSONEq(t,
		fmt.Sprintf(`{"groups_users":[{"id":%q,"delete":true}]}`, membershipID),
		string(buf))
}

func TestResourceByName_UnscopedMatchesAcrossFolders(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	folder := mustID(t)
	want := mustID(t)
	resources, _ := json.Marshal([]model.Resource{
		{ID: want, Name: "db-main", FolderParentID: &folder, ResourceTypeID: mustID(t)},
		{ID: mustID(t), Name: "db-replica", ResourceTypeID: mustID(t)},
	})
	ft.respond("GET", "/resources.json", string(resources))
	c := newTestClient(ft)

	// Unlike folders, an unscoped resource lookup matches nested entries too.
	r, err := c.ResourceByName(context.Background(), "db-main", nil)
	require.NoError(t, err)
	assert.Equal(t, want, r.ID)

	other := mustID(t)
	_, err = c.ResourceByName(context.Background(), "db-main", &other)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCreateResource_RequiresCreatorSecret(t *testing.T) {
	t.Parallel()
	c := newTestClient(newFakeTransport())

	_, err := c.CreateResource(context.Background(), ResourceRequest{Name: "x"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = c.CreateResource(context.Background(), ResourceRequest{Secrets: []SecretData{{Data: "enc"}}})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestCreateResource_CreatorSecretCarriesNoUserID(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	created, _ := json.Marshal(model.Resource{ID: mustID(t), Name: "db-main"})
	ft.respond("POST", "/resources.json", string(created))
	c := newTestClient(ft)

	req := ResourceRequest{Name: "db-main", Secrets: []SecretData{{Data: "enc"}}}
	_, err := c.CreateResource(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, ft.calls, 1)
	sent, _ := json.Marshal(ft.calls[0].payload)
	assert.NotContains(t, string(sent), "user_id")
	assert.Contains(t, string(sent), `"data":"enc"`)
}

func TestShareResource_SimulateAndCommitPaths(t *testing.T) {
	t.Parallel()
	ft := newFakeTransport()
	id := mustID(t)
	ft.respond("POST", fmt.Sprintf("/share/simulate/resource/%s.json", id), "{}")
	ft.respond("PUT", fmt.Sprintf("/share/resource/%s.json", id), "{}")
	c := newTestClient(ft)

	recipient := mustID(t)
	payload := SharePayload{
		Permissions: []SharePermission{{IsNew: true, ARO: model.AROGroup, AROForeignKey: mustID(t), ACO: model.ACOResource, ACOForeignKey: id, Type: model.PermissionRead}},
		Secrets:     []SecretData{{UserID: &recipient, Data: "enc"}},
	}
	require.NoError(t, c.SimulateShareResource(context.Background(), id, payload))
	require.NoError(t, c.ShareResource(context.Background(), id, payload))

	require.Len(t, ft.calls, 2)
	sim, _ := json.Marshal(ft.calls[0].payload)
	commit, _ := json.Marshal(ft.calls[1].payload)
	assert.JSONEq(t, string(sim), string(commit))
}

func TestDecodeBody_RejectsEnvelopeWithoutBody(t *testing.T) {
	t.Parallel()
	var out map[string]any
	err := decodeBody(json.RawMessage(`{"header":{"status":"error","message":"nope"}}`), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no body")
}
