// Package keycloak administers per-tenant realms through the Keycloak admin
// REST API.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Role names created in every tenant realm. The first is granted to the
// tenant administrator.
var realmRoles = []string{"tenant_admin", "tenant_member", "tenant_viewer"}

const (
	webClientID = "plexica-web"
	apiClientID = "plexica-api"
)

// Config holds the admin credentials and login retry policy.
type Config struct {
	URL           string
	AdminRealm    string
	AdminUser     string
	AdminPassword string

	// LoginAttempts and LoginDelay bound the retries of the admin login.
	LoginAttempts uint
	LoginDelay    time.Duration

	// RedirectURIs are registered on the web client of every realm.
	RedirectURIs []string
}

// Admin implements domain.IdentityProvider on top of gocloak.
//
// Creation treats "already exists" as success and deletion treats "not found"
// as success, so every operation can be repeated safely.
type Admin struct {
	client *gocloak.GoCloak
	cfg    Config
	logger *zap.Logger
}

var _ domain.IdentityProvider = (*Admin)(nil)

// New creates an admin client. No request is made until the first call.
func New(cfg Config, logger *zap.Logger) *Admin {
	if cfg.AdminRealm == "" {
		cfg.AdminRealm = "master"
	}
	if cfg.LoginAttempts == 0 {
		cfg.LoginAttempts = 3
	}
	if cfg.LoginDelay == 0 {
		cfg.LoginDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Admin{
		client: gocloak.NewClient(cfg.URL),
		cfg:    cfg,
		logger: logger,
	}
}

// token logs in as the admin user, retrying transient failures with backoff.
func (a *Admin) token(ctx context.Context) (string, error) {
	var jwt *gocloak.JWT
	err := retry.Do(
		func() error {
			var err error
			jwt, err = a.client.LoginAdmin(ctx, a.cfg.AdminUser, a.cfg.AdminPassword, a.cfg.AdminRealm)
			if isStatus(err, http.StatusUnauthorized) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(a.cfg.LoginAttempts),
		retry.Delay(a.cfg.LoginDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			a.logger.Warn("keycloak admin login failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return "", fmt.Errorf("keycloak admin login: %w", err)
	}
	return jwt.AccessToken, nil
}

func (a *Admin) CreateRealm(ctx context.Context, realm, displayName string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	_, err = a.client.CreateRealm(ctx, token, gocloak.RealmRepresentation{
		Realm:       gocloak.StringP(realm),
		DisplayName: gocloak.StringP(displayName),
		Enabled:     gocloak.BoolP(true),
	})
	if err != nil && !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("creating realm: %w", err)
	}
	return nil
}

func (a *Admin) DeleteRealm(ctx context.Context, realm string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	if err := a.client.DeleteRealm(ctx, token, realm); err != nil && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("deleting realm: %w", err)
	}
	return nil
}

// ProvisionRealmClients registers a public web client for browser logins and a
// confidential API client with a service account.
func (a *Admin) ProvisionRealmClients(ctx context.Context, realm string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	clients := []gocloak.Client{
		{
			ClientID:            gocloak.StringP(webClientID),
			Name:                gocloak.StringP("Web application"),
			Protocol:            gocloak.StringP("openid-connect"),
			PublicClient:        gocloak.BoolP(true),
			StandardFlowEnabled: gocloak.BoolP(true),
			RedirectURIs:        &a.cfg.RedirectURIs,
		},
		{
			ClientID:               gocloak.StringP(apiClientID),
			Name:                   gocloak.StringP("API"),
			Protocol:               gocloak.StringP("openid-connect"),
			PublicClient:           gocloak.BoolP(false),
			ServiceAccountsEnabled: gocloak.BoolP(true),
		},
	}
	for _, c := range clients {
		if _, err := a.client.CreateClient(ctx, token, realm, c); err != nil && !isStatus(err, http.StatusConflict) {
			return fmt.Errorf("creating client %s: %w", *c.ClientID, err)
		}
	}
	return nil
}

func (a *Admin) ProvisionRealmRoles(ctx context.Context, realm string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	for _, name := range realmRoles {
		_, err := a.client.CreateRealmRole(ctx, token, realm, gocloak.Role{Name: gocloak.StringP(name)})
		if err != nil && !isStatus(err, http.StatusConflict) {
			return fmt.Errorf("creating role %s: %w", name, err)
		}
	}
	return nil
}

// CreateAdminUser creates the user with a temporary password and grants it
// the tenant_admin role. An existing user with the same e-mail is reused.
func (a *Admin) CreateAdminUser(ctx context.Context, realm, email, temporaryPassword string) (string, error) {
	token, err := a.token(ctx)
	if err != nil {
		return "", err
	}

	userID, err := a.client.CreateUser(ctx, token, realm, gocloak.User{
		Username:      gocloak.StringP(email),
		Email:         gocloak.StringP(email),
		Enabled:       gocloak.BoolP(true),
		EmailVerified: gocloak.BoolP(false),
	})
	switch {
	case isStatus(err, http.StatusConflict):
		userID, err = a.findUser(ctx, token, realm, email)
		if err != nil {
			return "", err
		}
	case err != nil:
		return "", fmt.Errorf("creating user: %w", err)
	}

	if err := a.client.SetPassword(ctx, token, userID, realm, temporaryPassword, true); err != nil {
		return "", fmt.Errorf("setting temporary password: %w", err)
	}

	role, err := a.client.GetRealmRole(ctx, token, realm, realmRoles[0])
	if err != nil {
		return "", fmt.Errorf("loading role %s: %w", realmRoles[0], err)
	}
	if err := a.client.AddRealmRoleToUser(ctx, token, realm, userID, []gocloak.Role{*role}); err != nil {
		return "", fmt.Errorf("granting %s: %w", realmRoles[0], err)
	}
	return userID, nil
}

func (a *Admin) findUser(ctx context.Context, token, realm, email string) (string, error) {
	users, err := a.client.GetUsers(ctx, token, realm, gocloak.GetUsersParams{
		Email: gocloak.StringP(email),
		Exact: gocloak.BoolP(true),
	})
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if len(users) == 0 || users[0].ID == nil {
		return "", fmt.Errorf("user %s reported as existing but not found", email)
	}
	return *users[0].ID, nil
}

func (a *Admin) DeleteUser(ctx context.Context, realm, userID string) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}
	if err := a.client.DeleteUser(ctx, token, realm, userID); err != nil && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var apiErr *gocloak.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
