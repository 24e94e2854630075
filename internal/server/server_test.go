package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robertlestak/imapauth/internal/auth"
	"github.com/robertlestak/imapauth/internal/config"
	"github.com/robertlestak/imapauth/internal/persist"
	"github.com/robertlestak/imapauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type mailFunc func(login, password string) error

func (f mailFunc) Login(ctx context.Context, login, password string) error {
	return f(login, password)
}

var acceptAlice = mailFunc(func(login, password string) error {
	if login == "alice" && password == "mailpw" {
		return nil
	}
	return errors.New("NO")
})

func testConfig() *config.Config {
	c := config.Default()
	c.Server = "{imap.example.com:993/imap/ssl}"
	c.Domain = "example.com"
	return c
}

func newTestServer(t *testing.T, withStore bool, adminGroup string) (*httptest.Server, *store.Store) {
	t.Helper()
	opts := []auth.Option{
		auth.WithMailChannel(acceptAlice),
		auth.WithNotifier(&auth.Messages{}),
	}
	var st *store.Store
	if withStore {
		st = store.New(persist.NewMemory())
		st.Cost = bcrypt.MinCost
		require.NoError(t, st.Create("alice", "localpw", auth.UserProfile{
			Name: "Alice", Mail: "alice@example.com", Groups: []string{"user"},
		}))
		require.NoError(t, st.Create("bob", "bobpw", auth.UserProfile{
			Name: "Bob", Mail: "bob@example.com", Groups: []string{"user", "admin"},
		}))
		opts = append(opts, auth.WithStore(st))
	}
	b := auth.New(testConfig(), opts...)
	require.True(t, b.Success())
	srv := New(b)
	srv.AdminGroup = adminGroup
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	return doAs(t, "", "", method, url, body)
}

// doAs sends the request with Basic credentials unless user is empty.
func doAs(t *testing.T, user, pass, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, false, "")
	resp := do(t, "GET", ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBasicAuth(t *testing.T) {
	ts, _ := newTestServer(t, true, "admin")
	tests := []struct {
		name       string
		user, pass string
		noAuth     bool
		want       int
	}{
		{name: "no credentials", noAuth: true, want: http.StatusUnauthorized},
		{name: "mail password", user: "Alice@example.com", pass: "mailpw", want: http.StatusOK},
		{name: "local password", user: "bob", pass: "bobpw", want: http.StatusOK},
		{name: "wrong password", user: "bob", pass: "nope", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("GET", ts.URL+"/auth", nil)
			require.NoError(t, err)
			if !tt.noAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestCheckPass(t *testing.T) {
	ts, _ := newTestServer(t, false, "")
	var out struct {
		OK   bool   `json:"ok"`
		User string `json:"user"`
	}
	resp := do(t, "POST", ts.URL+"/auth/check", credentials{User: "ALICE", Pass: "mailpw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)
	assert.True(t, out.OK)
	assert.Equal(t, "alice", out.User)

	resp = do(t, "POST", ts.URL+"/auth/check", credentials{User: "alice", Pass: "x"})
	decode(t, resp, &out)
	assert.False(t, out.OK)
}

func TestGetUser(t *testing.T) {
	ts, _ := newTestServer(t, true, "admin")
	var p auth.UserProfile
	resp := doAs(t, "bob", "bobpw", "GET", ts.URL+"/users/Bob", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &p)
	assert.Equal(t, auth.UserProfile{Name: "Bob", Mail: "bob@example.com", Groups: []string{"user", "admin"}}, p)

	resp = doAs(t, "bob", "bobpw", "GET", ts.URL+"/users/jane.doe", nil)
	decode(t, resp, &p)
	assert.Equal(t, auth.UserProfile{Name: "Jane Doe", Mail: "jane.doe@example.com", Groups: []string{"user"}}, p)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	ts, st := newTestServer(t, true, "admin")
	var res mutationResult
	resp := doAs(t, "bob", "bobpw", "POST", ts.URL+"/users", newUser{User: "robert", Pass: "pw", Mail: "BOB@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	decode(t, resp, &res)
	assert.False(t, res.OK)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, auth.ErrDuplicateEmail.Error(), res.Messages[0].Text)
	_, ok := st.Get("robert")
	assert.False(t, ok)

	resp = doAs(t, "bob", "bobpw", "POST", ts.URL+"/users", newUser{User: "robert", Pass: "pw", Mail: "robert@example.com"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	_, ok = st.Get("robert")
	assert.True(t, ok)
}

func TestModifyAndDeleteUser(t *testing.T) {
	ts, st := newTestServer(t, true, "admin")
	resp := doAs(t, "bob", "bobpw", "PUT", ts.URL+"/users/bob", map[string]string{"mail": "bob@example.com", "name": "Bobby"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	p, _ := st.Get("bob")
	assert.Equal(t, "Bobby", p.Name)

	resp = doAs(t, "bob", "bobpw", "PUT", ts.URL+"/users/bob", map[string]string{"mail": "alice@example.com"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doAs(t, "bob", "bobpw", "DELETE", ts.URL+"/users/alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doAs(t, "bob", "bobpw", "DELETE", ts.URL+"/users/alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModifyPasswordOnly(t *testing.T) {
	ts, st := newTestServer(t, true, "admin")
	resp := doAs(t, "bob", "bobpw", "PUT", ts.URL+"/users/alice", map[string]string{"pass": "newpw"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, st.CheckPass("alice", "newpw"))
}

func TestListAndCount(t *testing.T) {
	ts, _ := newTestServer(t, true, "admin")
	var users map[string]auth.UserProfile
	resp := doAs(t, "bob", "bobpw", "GET", ts.URL+"/users?grps=admin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &users)
	assert.Equal(t, []string{"bob"}, auth.SortedUsers(users))

	var count map[string]int
	resp = doAs(t, "bob", "bobpw", "GET", ts.URL+"/users/count", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &count)
	assert.Equal(t, 2, count["count"])

	var groups []string
	resp = doAs(t, "bob", "bobpw", "GET", ts.URL+"/groups", nil)
	decode(t, resp, &groups)
	assert.Equal(t, []string{"admin", "user"}, groups)
}

func TestManagementWithoutStore(t *testing.T) {
	// without a store every user is in the default group only
	ts, _ := newTestServer(t, false, "user")
	for _, tc := range []struct{ method, path string }{
		{"GET", "/users"},
		{"GET", "/users/count"},
		{"POST", "/users"},
		{"PUT", "/users/bob"},
		{"DELETE", "/users/bob"},
	} {
		resp := doAs(t, "alice", "mailpw", tc.method, ts.URL+tc.path, map[string]string{})
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode, tc.method+" "+tc.path)
	}
}

func TestManagementRequiresAdmin(t *testing.T) {
	ts, st := newTestServer(t, true, "admin")
	tests := []struct {
		name       string
		user, pass string
		want       int
	}{
		{name: "anonymous", want: http.StatusUnauthorized},
		{name: "wrong password", user: "bob", pass: "nope", want: http.StatusUnauthorized},
		{name: "unknown user", user: "mallory", pass: "mailpw", want: http.StatusUnauthorized},
		{name: "not an admin", user: "alice", pass: "mailpw", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, tc := range []struct {
				method, path string
				body         any
			}{
				{"GET", "/users", nil},
				{"GET", "/users/count", nil},
				{"GET", "/users/bob", nil},
				{"GET", "/groups", nil},
				{"POST", "/users", newUser{User: "mallory", Pass: "pw"}},
				{"PUT", "/users/bob", map[string]string{"pass": "taken"}},
				{"DELETE", "/users/bob", nil},
			} {
				resp := doAs(t, tt.user, tt.pass, tc.method, ts.URL+tc.path, tc.body)
				assert.Equal(t, tt.want, resp.StatusCode, tc.method+" "+tc.path)
			}
			_, ok := st.Get("mallory")
			assert.False(t, ok)
			assert.True(t, st.CheckPass("bob", "bobpw"))
			assert.False(t, st.CheckPass("bob", "taken"))
		})
	}

	resp := do(t, "GET", ts.URL+"/auth", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestManagementDisabledWithoutAdminGroup(t *testing.T) {
	ts, st := newTestServer(t, true, "")
	resp := doAs(t, "bob", "bobpw", "PUT", ts.URL+"/users/bob", map[string]string{"pass": "taken"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = doAs(t, "bob", "bobpw", "POST", ts.URL+"/users", newUser{User: "mallory", Pass: "pw"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.True(t, st.CheckPass("bob", "bobpw"))
	_, ok := st.Get("mallory")
	assert.False(t, ok)
}

func TestUnconfiguredBackend(t *testing.T) {
	b := auth.New(config.Default(), auth.WithNotifier(&auth.Messages{}))
	ts := httptest.NewServer(New(b).Handler())
	defer ts.Close()

	resp := do(t, "GET", ts.URL+"/users/alice", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	req, _ := http.NewRequest("GET", ts.URL+"/auth", nil)
	req.SetBasicAuth("alice", "mailpw")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
