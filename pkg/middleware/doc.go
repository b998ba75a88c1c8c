// Package middleware provides HTTP middleware for request scoping, authentication
// and attempt limiting.
//
// # Ordering
//
// RequestContext must run first: it assigns the request id, attaches the logger
// and reads the ambient tenant from X-Tenant-Id. AuthMiddleware then verifies the
// bearer token against that tenant.
//
//	router.Use(middleware.RequestContext(logger))
//	authenticated := router.NewRoute().Subrouter()
//	authenticated.Use(middleware.NewAuthMiddleware(tokens, accounts, false).Handler)
//
// # Attempt limiting
//
// RateLimit guards endpoints that accept guessable secrets (sign-in, approval
// codes). It takes any Limiter; DistributedRateLimiter shares counters across
// instances through Redis and RateLimiter keeps them in process. Both forget a
// client's attempts once it gets a 2xx response.
//
//	limiter := middleware.NewDistributedRateLimiter(redisClient, cfg, "attempts")
//	attempts := middleware.RateLimit(limiter, "attempts", middleware.ClientIPKey, metrics)
package middleware
