package subscription

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/thenewspaper/newsroom-cli/internal/api"
	"github.com/thenewspaper/newsroom-cli/internal/auth"
)

// Backend endpoints driven by the primary action. Older backend
// deployments expose the portal under the short path, so the dispatcher
// falls back to it on a 404.
const (
	checkoutPath       = "/api/create-checkout-session"
	billingPortalPath  = "/api/create-billing-portal-session"
	portalFallbackPath = "/api/create-portal-session"
)

// Action identifies what the primary control did.
type Action string

const (
	// ActionLogin means no valid credential existed; a login was started.
	ActionLogin Action = "login"
	// ActionCheckout means a checkout session was created.
	ActionCheckout Action = "checkout"
	// ActionBillingPortal means a billing-portal session was created.
	ActionBillingPortal Action = "billing_portal"
)

// Outcome reports what the dispatcher decided and where it sent the
// browser.
type Outcome struct {
	Action Action
	// RedirectURL is the hosted page the browser was pointed at. Empty for
	// ActionLogin, whose navigation is owned by the login flow.
	RedirectURL string
}

// LoginStarter begins an interactive login. Satisfied by *auth.Flow.
type LoginStarter interface {
	Start(ctx context.Context) error
}

// Navigator sends the browser to a URL.
type Navigator func(url string) error

// Dispatcher turns the current subscription state into the one billing
// action the primary control performs: force login, start checkout, or
// open the billing portal.
type Dispatcher struct {
	engine   *Engine
	client   *api.Client
	store    *auth.TokenStore
	login    LoginStarter
	navigate Navigator

	busy atomic.Bool
}

// NewDispatcher wires a dispatcher over the engine, client and store.
func NewDispatcher(engine *Engine, client *api.Client, store *auth.TokenStore, login LoginStarter, navigate Navigator) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		client:   client,
		store:    store,
		login:    login,
		navigate: navigate,
	}
}

// HandlePrimaryAction decides and performs the next billing step:
//
//	no valid token          -> clear credentials, start login
//	status active           -> create billing-portal session, open URL
//	any other status        -> create checkout session, open URL
//
// A success payload must contain a url field; its absence is an error,
// never a silent no-op. Only one action runs at a time, and none while a
// refresh is in flight.
func (d *Dispatcher) HandlePrimaryAction(ctx context.Context) (*Outcome, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("another billing action is already in progress")
	}
	defer d.busy.Store(false)

	if d.engine.InFlight() {
		return nil, fmt.Errorf("status refresh in progress, try again")
	}

	if !d.store.IsValid() {
		if err := d.store.Clear(); err != nil {
			log.Warnf("failed to clear stale credentials: %v", err)
		}
		log.WithField("action", ActionLogin).Info("no valid login, starting authentication")
		if err := d.login.Start(ctx); err != nil {
			return nil, err
		}
		return &Outcome{Action: ActionLogin}, nil
	}

	action := ActionCheckout
	if d.engine.Snapshot().Status == StatusActive {
		action = ActionBillingPortal
	}

	payload, err := d.createSession(ctx, action)
	if err != nil {
		return nil, err
	}

	redirectURL := payload.JSON().Get("url").String()
	if redirectURL == "" {
		return nil, api.MalformedResponse("no redirect URL returned")
	}

	log.WithFields(log.Fields{"action": action, "path": redirectURL}).Debug("redirecting browser")
	if err = d.navigate(redirectURL); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", redirectURL, err)
	}
	return &Outcome{Action: action, RedirectURL: redirectURL}, nil
}

// createSession posts to the endpoint matching the action. The billing
// portal retries once on the legacy path when the backend answers 404.
func (d *Dispatcher) createSession(ctx context.Context, action Action) (*api.Payload, error) {
	if action == ActionCheckout {
		return d.client.Post(ctx, checkoutPath, nil)
	}

	payload, err := d.client.Post(ctx, billingPortalPath, nil)
	if apiErr, ok := api.AsError(err); ok && apiErr.Kind == api.KindHTTPError && apiErr.Status == http.StatusNotFound {
		log.Debug("billing portal endpoint not found, trying legacy path")
		return d.client.Post(ctx, portalFallbackPath, nil)
	}
	return payload, err
}
