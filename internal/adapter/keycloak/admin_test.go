package keycloak_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/plexica/plexica-sub002/internal/adapter/keycloak"
)

// fakeKeycloak serves the token endpoint and answers admin calls with the
// status configured per route.
type fakeKeycloak struct {
	loginStatus int
	logins      atomic.Int32
	routes      map[string]int
}

func (f *fakeKeycloak) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/realms/master/protocol/openid-connect/token" {
		f.logins.Add(1)
		if f.loginStatus != 0 && f.loginStatus != http.StatusOK {
			w.WriteHeader(f.loginStatus)
			_, _ = w.Write([]byte(`{"error":"login failed"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"admin-token","expires_in":60,"token_type":"Bearer"}`))
		return
	}

	status, ok := f.routes[r.Method+" "+r.URL.Path]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status >= 400 {
		_, _ = w.Write([]byte(`{"errorMessage":"fake"}`))
	}
}

func newAdmin(t *testing.T, f *fakeKeycloak) *keycloak.Admin {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return keycloak.New(keycloak.Config{
		URL:           srv.URL,
		AdminUser:     "admin",
		AdminPassword: "secret",
		LoginAttempts: 3,
		LoginDelay:    time.Millisecond,
	}, zaptest.NewLogger(t))
}

func TestCreateRealm_ExistingRealmIsSuccess(t *testing.T) {
	// gocloak posts new realms to the collection URL with a trailing slash.
	admin := newAdmin(t, &fakeKeycloak{routes: map[string]int{
		"POST /admin/realms/": http.StatusConflict,
	}})

	require.NoError(t, admin.CreateRealm(context.Background(), "acme", "Acme"))
}

func TestCreateRealm_ServerErrorFails(t *testing.T) {
	admin := newAdmin(t, &fakeKeycloak{routes: map[string]int{}})

	err := admin.CreateRealm(context.Background(), "acme", "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating realm")
}

func TestDeleteRealm_MissingRealmIsSuccess(t *testing.T) {
	admin := newAdmin(t, &fakeKeycloak{routes: map[string]int{
		"DELETE /admin/realms/acme": http.StatusNotFound,
	}})

	require.NoError(t, admin.DeleteRealm(context.Background(), "acme"))
}

func TestProvisionRealmRoles_ExistingRolesAreSuccess(t *testing.T) {
	admin := newAdmin(t, &fakeKeycloak{routes: map[string]int{
		"POST /admin/realms/acme/roles": http.StatusConflict,
	}})

	require.NoError(t, admin.ProvisionRealmRoles(context.Background(), "acme"))
}

func TestDeleteUser_MissingUserIsSuccess(t *testing.T) {
	admin := newAdmin(t, &fakeKeycloak{routes: map[string]int{
		"DELETE /admin/realms/acme/users/u-1": http.StatusNotFound,
	}})

	require.NoError(t, admin.DeleteUser(context.Background(), "acme", "u-1"))
}

func TestLogin_RetriesTransientFailures(t *testing.T) {
	f := &fakeKeycloak{loginStatus: http.StatusServiceUnavailable}
	admin := newAdmin(t, f)

	err := admin.DeleteRealm(context.Background(), "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keycloak admin login")
	assert.Equal(t, int32(3), f.logins.Load())
}

func TestLogin_BadCredentialsAreNotRetried(t *testing.T) {
	f := &fakeKeycloak{loginStatus: http.StatusUnauthorized}
	admin := newAdmin(t, f)

	require.Error(t, admin.DeleteRealm(context.Background(), "acme"))
	assert.Equal(t, int32(1), f.logins.Load())
}

// TestIntegration_RealmRoundTrip runs against a live Keycloak when
// KEYCLOAK_TEST_URL is set.
func TestIntegration_RealmRoundTrip(t *testing.T) {
	url := os.Getenv("KEYCLOAK_TEST_URL")
	if url == "" {
		t.Skip("KEYCLOAK_TEST_URL not set")
	}

	admin := keycloak.New(keycloak.Config{
		URL:           url,
		AdminUser:     os.Getenv("KEYCLOAK_TEST_ADMIN_USER"),
		AdminPassword: os.Getenv("KEYCLOAK_TEST_ADMIN_PASSWORD"),
	}, zaptest.NewLogger(t))
	ctx := context.Background()
	realm := "it-" + time.Now().UTC().Format("20060102150405")

	require.NoError(t, admin.CreateRealm(ctx, realm, "Integration"))
	t.Cleanup(func() { _ = admin.DeleteRealm(context.Background(), realm) })

	require.NoError(t, admin.CreateRealm(ctx, realm, "Integration"), "second create is idempotent")
	require.NoError(t, admin.ProvisionRealmClients(ctx, realm))
	require.NoError(t, admin.ProvisionRealmRoles(ctx, realm))

	userID, err := admin.CreateAdminUser(ctx, realm, "admin@it.test", "Temp-Passw0rd!")
	require.NoError(t, err)
	require.NotEmpty(t, userID)

	require.NoError(t, admin.DeleteUser(ctx, realm, userID))
	require.NoError(t, admin.DeleteRealm(ctx, realm))
	require.NoError(t, admin.DeleteRealm(ctx, realm), "second delete is idempotent")
}
