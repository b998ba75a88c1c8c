// Package sso implements SAML 2.0 single sign-on for tenants.
//
// A login runs in two HTTP requests. Initiate packs the tenant, the caller's
// redirect URL and the SAML configuration id into a relay state and redirects the
// browser to the tenant's identity provider. Consume receives the assertion and the
// untouched relay state back on the assertion consumer service, re-validates the
// relay state, verifies the assertion and hands the asserted identity to the
// authentication service.
//
// Every attempt is tracked by a LoginMachine:
//
//	INITIATED -> REDIRECTED_TO_IDP -> ASSERTION_RECEIVED -> SUCCEEDED
//	                                                     -> FAILED
//	                                                     -> ERRORED
//
// FAILED answers 401 with a machine readable code. ERRORED is reserved for faults
// on our side and answers 500.
//
// Example wiring:
//
//	providers := sso.NewProviderFactory(cfg.SAML)
//	handler := sso.NewHandler(sso.NewConfigStore(db), providers, sso.NewGosaml2Validator(), authService, metrics)
//	routes := sso.NewHandlers(handler, sso.NewConfigService(sso.NewConfigStore(db)), guard)
//	routes.RegisterRoutes(public)
//	routes.RegisterAdminRoutes(authenticated)
package sso
