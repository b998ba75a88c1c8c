package sso

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	saml2 "github.com/russellhaering/gosaml2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantgate/pkg/apperr"
	"github.com/platinummonkey/tenantgate/pkg/auth"
	"github.com/platinummonkey/tenantgate/pkg/contextkeys"
	"github.com/platinummonkey/tenantgate/pkg/httputil"
	"github.com/platinummonkey/tenantgate/pkg/observability"
	"github.com/platinummonkey/tenantgate/pkg/storage/postgres"
	"github.com/platinummonkey/tenantgate/pkg/token"
)

const domain = "sso"

// ConfigReader is implemented by ConfigStore
type ConfigReader interface {
	Get(ctx context.Context, tenantID, id string) (*SAMLConfiguration, error)
}

// ProviderSource is implemented by ProviderFactory
type ProviderSource interface {
	Provider(cfg *SAMLConfiguration) (*saml2.SAMLServiceProvider, error)
}

// FederatedSignIn is implemented by auth.Service
type FederatedSignIn interface {
	SignInSAML(ctx context.Context, login auth.FederatedLogin) (*token.Tokens, error)
}

// Outcome is the typed result of a login request
type Outcome struct {
	State       State
	RedirectURL string
	Status      int
	Code        string
	Err         error
}

// Render writes the outcome. Redirecting states redirect, FAILED answers 401
// with its code and ERRORED answers a generic 500.
func (o *Outcome) Render(w http.ResponseWriter, r *http.Request) {
	switch o.State {
	case StateRedirectedToIdP, StateSucceeded:
		http.Redirect(w, r, o.RedirectURL, o.Status)
	case StateFailed:
		_ = httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
			Error:   http.StatusText(http.StatusUnauthorized),
			Message: "unauthorized",
			Code:    o.Code,
		})
	default:
		httputil.WriteInternalError(w)
	}
}

// Handler drives SAML logins
type Handler struct {
	configs   ConfigReader
	providers ProviderSource
	validator AssertionValidator
	auth      FederatedSignIn
	metrics   *observability.Metrics
}

// NewHandler creates a SAML handler
func NewHandler(configs ConfigReader, providers ProviderSource, validator AssertionValidator, auth FederatedSignIn, metrics *observability.Metrics) *Handler {
	return &Handler{
		configs:   configs,
		providers: providers,
		validator: validator,
		auth:      auth,
		metrics:   metrics,
	}
}

// Login is one attempt and owns its state machine. Every terminal method returns
// the outcome to render.
type Login struct {
	ctx     context.Context
	machine *LoginMachine
	metrics *observability.Metrics
}

func (h *Handler) begin(ctx context.Context, start State) *Login {
	return &Login{ctx: ctx, machine: NewLoginMachine(start), metrics: h.metrics}
}

// State returns the current state of the attempt
func (l *Login) State() State {
	return l.machine.Current()
}

func (l *Login) logger() *observability.Logger {
	return observability.FromContext(l.ctx).WithField("saml_state", l.State().String())
}

func (l *Login) finish(o *Outcome) *Outcome {
	l.metrics.RecordSAMLLogin(o.State.String())
	return o
}

// Redirect sends the browser to the identity provider
func (l *Login) Redirect(target string) *Outcome {
	if err := l.machine.Fire(l.ctx, TransitionRedirect); err != nil {
		return l.Error(err)
	}
	return l.finish(&Outcome{State: l.State(), RedirectURL: target, Status: http.StatusFound})
}

// Succeed redirects the browser back to the caller with the issued tokens
func (l *Login) Succeed(redirectURL string, tokens *token.Tokens) *Outcome {
	target, err := appendTokens(redirectURL, tokens)
	if err != nil {
		return l.Error(err)
	}
	if err := l.machine.Fire(l.ctx, TransitionSucceed); err != nil {
		return l.Error(err)
	}
	l.logger().Info("saml login succeeded")
	return l.finish(&Outcome{State: StateSucceeded, RedirectURL: target, Status: http.StatusMovedPermanently})
}

// Fail rejects the attempt with an unauthorized response
func (l *Login) Fail(challenge string, status int, code string) *Outcome {
	l.logger().WithFields(map[string]interface{}{
		"challenge": challenge,
		"status":    status,
		"code":      code,
	}).Error("saml authentication failed, the tenant likely needs support")

	if err := l.machine.Fire(l.ctx, TransitionFail); err != nil {
		return l.Error(err)
	}
	return l.finish(&Outcome{State: StateFailed, Status: http.StatusUnauthorized, Code: code})
}

// Pass is part of the protocol surface but no flow reaches it; reaching it is
// an internal error.
func (l *Login) Pass() *Outcome {
	l.logger().Error("saml pass transition called, this should never happen")
	return l.Error(errors.New("saml pass transition called"))
}

// Error ends the attempt with an internal error
func (l *Login) Error(err error) *Outcome {
	l.logger().WithError(err).Error("saml login errored")
	if l.machine.Can(TransitionError) {
		_ = l.machine.Fire(l.ctx, TransitionError)
	}
	return l.finish(&Outcome{State: StateErrored, Status: http.StatusInternalServerError, Err: err})
}

// Initiate validates the request for the ambient tenant and returns the redirect
// to the identity provider. Invalid input and unknown configurations are returned
// as errors for the caller to render.
func (h *Handler) Initiate(ctx context.Context, req InitiateRequest) (*Outcome, error) {
	rs := RelayState{
		TenantID:            contextkeys.TenantID(ctx),
		RedirectURL:         req.RedirectURL,
		SAMLConfigurationID: req.SAMLConfigurationID,
	}
	if err := rs.Validate(); err != nil {
		return nil, apperr.Invalid(domain, err.Error())
	}

	cfg, err := h.loadConfig(ctx, rs.TenantID, rs.SAMLConfigurationID)
	if err != nil {
		return nil, err
	}

	login := h.begin(ctx, StateInitiated)
	sp, err := h.providers.Provider(cfg)
	if err != nil {
		return login.Error(err), nil
	}

	blob, err := EncodeRelayState(rs)
	if err != nil {
		return login.Error(err), nil
	}
	target, err := sp.BuildAuthURL(blob)
	if err != nil {
		return login.Error(err), nil
	}
	return login.Redirect(target), nil
}

func (h *Handler) loadConfig(ctx context.Context, tenantID, id string) (*SAMLConfiguration, error) {
	cfg, err := h.configs.Get(ctx, tenantID, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, apperr.NotFound(domain, "SAMLConfiguration", id)
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, apperr.NotFound(domain, "SAMLConfiguration", id)
	}
	return cfg, nil
}

// Consume handles the identity provider's POST to the assertion consumer service.
// It never returns an error; every failure is an Outcome.
func (h *Handler) Consume(ctx context.Context, samlResponse, relayState string) (outcome *Outcome) {
	ctx, span := observability.StartSpan(ctx, "sso.Consume")
	defer func() {
		span.SetAttributes(attribute.String("saml.state", outcome.State.String()))
		observability.EndSpan(span, outcome.Err)
	}()

	login := h.begin(ctx, StateRedirectedToIdP)
	if err := login.machine.Fire(ctx, TransitionReceive); err != nil {
		return login.Error(err)
	}

	rs, err := DecodeRelayState(relayState)
	if err == nil {
		err = rs.Validate()
	}
	if err != nil {
		login.logger().WithField("relay_state", relayState).
			Error("relay state missing or malformed, a client is misconfigured or tampering")
		return login.Fail(err.Error(), http.StatusUnauthorized, apperr.CodeMissingStateData)
	}

	ctx = contextkeys.WithTenantID(ctx, rs.TenantID)
	login.ctx = ctx

	cfg, err := h.loadConfig(ctx, rs.TenantID, rs.SAMLConfigurationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return login.Fail(err.Error(), http.StatusUnauthorized, apperr.CodeSAMLAuthenticationFailure)
	}
	if err != nil {
		return login.Error(err)
	}

	sp, err := h.providers.Provider(cfg)
	if err != nil {
		return login.Error(err)
	}

	assertion, err := h.validator.Validate(ctx, sp, cfg, samlResponse)
	if err != nil {
		return login.Fail(err.Error(), http.StatusUnauthorized, apperr.CodeSAMLAuthenticationFailure)
	}

	tokens, err := h.auth.SignInSAML(ctx, auth.FederatedLogin{
		TenantID:   rs.TenantID,
		Email:      assertion.Email,
		Attributes: assertion.Attributes,
	})
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrForbidden), errors.Is(err, apperr.ErrUnauthorized):
		return login.Fail(err.Error(), http.StatusUnauthorized, apperr.CodeSAMLAuthenticationFailure)
	default:
		return login.Error(err)
	}

	return login.Succeed(rs.RedirectURL, tokens)
}

// Metadata returns the service provider metadata for a tenant configuration
func (h *Handler) Metadata(ctx context.Context, tenantID, id string) ([]byte, error) {
	cfg, err := h.loadConfig(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	sp, err := h.providers.Provider(cfg)
	if err != nil {
		return nil, err
	}
	return Metadata(sp)
}

// appendTokens adds jwt and refresh to redirectURL, keeping its existing query
func appendTokens(redirectURL string, tokens *token.Tokens) (string, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Add("jwt", tokens.JWTToken)
	q.Add("refresh", tokens.RefreshToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
