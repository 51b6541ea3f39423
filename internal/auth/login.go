package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/thenewspaper/newsroom-cli/internal/browser"
	"github.com/thenewspaper/newsroom-cli/internal/config"
	"github.com/thenewspaper/newsroom-cli/internal/util"
)

// loginTimeout bounds how long a login flow waits for the user to finish
// in the browser.
const loginTimeout = 5 * time.Minute

// oauthScopes are the scopes requested from the hosted UI.
var oauthScopes = []string{"openid", "email", "profile"}

// Flow drives the hosted-UI login: PKCE generation, the browser redirect to
// the authorization endpoint, the localhost callback, the code-for-token
// exchange, and persisting the resulting bundle.
type Flow struct {
	auth  config.AuthConfig
	store *TokenStore
	stash *VerifierStash

	httpClient *http.Client

	// openURL is replaceable in tests.
	openURL func(string) error

	// NoBrowser prints the authorization URL instead of opening a browser.
	NoBrowser bool
}

// NewFlow creates a login flow bound to the given store and verifier stash.
func NewFlow(cfg *config.Config, store *TokenStore, stash *VerifierStash) *Flow {
	return &Flow{
		auth:       cfg.Auth,
		store:      store,
		stash:      stash,
		httpClient: util.SetProxy(cfg.ProxyURL, &http.Client{Timeout: 30 * time.Second}),
		openURL:    browser.OpenURL,
	}
}

// AuthorizationURL builds the hosted UI authorization request for the given
// state and PKCE material.
func (f *Flow) AuthorizationURL(state string, pkce *PKCECodes) string {
	params := url.Values{
		"client_id":             {f.auth.ClientID},
		"response_type":         {"code"},
		"scope":                 {"openid email profile"},
		"redirect_uri":          {f.auth.RedirectURI()},
		"code_challenge_method": {"S256"},
		"code_challenge":        {pkce.CodeChallenge},
		"state":                 {state},
	}
	return fmt.Sprintf("%s?%s", f.auth.AuthorizeURL(), params.Encode())
}

// LogoutURL builds the hosted UI logout request.
func (f *Flow) LogoutURL() string {
	params := url.Values{
		"client_id":  {f.auth.ClientID},
		"logout_uri": {f.auth.LogoutURI},
	}
	return fmt.Sprintf("%s?%s", f.auth.LogoutURL(), params.Encode())
}

// Start runs the complete interactive login. If PKCE material cannot be
// generated the flow aborts before any navigation; the user stays where
// they are with no partial redirect.
func (f *Flow) Start(ctx context.Context) error {
	pkce, err := GeneratePKCECodes()
	if err != nil {
		log.Errorf("failed to start login: %v", err)
		return fmt.Errorf("failed to start login: %w", err)
	}

	if err = f.stash.Put(pkce.CodeVerifier); err != nil {
		return err
	}

	state := uuid.NewString()

	callback := NewCallbackServer(f.auth.CallbackPort)
	if err = callback.Start(); err != nil {
		f.stash.Discard()
		return err
	}
	defer func() {
		_ = callback.Stop(context.Background())
	}()

	authURL := f.AuthorizationURL(state, pkce)
	if f.NoBrowser {
		fmt.Printf("Open this URL in your browser to log in:\n\n%s\n\n", authURL)
	} else {
		fmt.Printf("Opening browser for login: %s\n", authURL)
		if errOpen := f.openURL(authURL); errOpen != nil {
			log.Warnf("could not open browser automatically: %v", errOpen)
			fmt.Printf("Open this URL in your browser to log in:\n\n%s\n\n", authURL)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	result, err := callback.WaitForResult(waitCtx)
	if err != nil {
		f.stash.Discard()
		return fmt.Errorf("login did not complete: %w", err)
	}
	if result.Error != "" {
		f.stash.Discard()
		return fmt.Errorf("authorization failed: %s", result.Error)
	}
	if result.State != state {
		f.stash.Discard()
		return fmt.Errorf("authorization state mismatch, aborting login")
	}

	bundle, err := f.exchangeCode(ctx, result.Code)
	if err != nil {
		return err
	}
	if err = f.store.Save(bundle); err != nil {
		return err
	}

	log.WithField("email", bundle.Email).Info("login complete")
	return nil
}

// exchangeCode trades the authorization code for tokens at the hosted UI
// token endpoint, consuming the stashed PKCE verifier exactly once.
func (f *Flow) exchangeCode(ctx context.Context, code string) (*TokenBundle, error) {
	verifier, err := f.stash.Take()
	if err != nil {
		return nil, err
	}

	conf := &oauth2.Config{
		ClientID:    f.auth.ClientID,
		RedirectURL: f.auth.RedirectURI(),
		Scopes:      oauthScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.auth.AuthorizeURL(),
			TokenURL: f.auth.TokenURL(),
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
	token, err := conf.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("token response carried no id_token")
	}

	bundle := &TokenBundle{IDToken: idToken}
	if claims, errParse := ParseIdentityToken(idToken); errParse != nil {
		log.Warnf("failed to parse id_token claims: %v", errParse)
	} else {
		bundle.Email = claims.UserEmail()
	}
	return bundle, nil
}

// Logout clears the persisted bundle and sends the browser to the hosted UI
// logout endpoint so the provider session ends too.
func (f *Flow) Logout() error {
	if err := f.store.Clear(); err != nil {
		return err
	}

	logoutURL := f.LogoutURL()
	if f.NoBrowser {
		fmt.Printf("Open this URL to finish logging out:\n\n%s\n\n", logoutURL)
		return nil
	}
	if err := f.openURL(logoutURL); err != nil {
		log.Warnf("could not open browser for logout: %v", err)
		fmt.Printf("Open this URL to finish logging out:\n\n%s\n\n", logoutURL)
	}
	return nil
}
