// Package scopefence provides scope-layered rate limiting for request
// pipelines.
//
// A Filter holds one token bucket per configured scope and admits a request
// only when every applicable scope has a token. Scopes are checked in a
// fixed order and the first one that is empty rejects the request:
//
//  1. global - every request through the filter
//  2. consumer - the authenticated caller
//  3. provider - the upstream the request is routed to
//  4. provider-consumer - the caller on that upstream
//
// Tokens taken by earlier scopes are kept when a later scope rejects.
//
// # Quick Start
//
//	filter, err := scopefence.NewFilter("api", &scopefence.Config{
//	    Global: scopefence.PerSecond(100),
//	    Consumers: map[string]*scopefence.LimitSpec{
//	        "userA": scopefence.PerMinute(10),
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx = scopefence.WithConsumer(ctx, "userA")
//	if err := filter.Admit(ctx); err != nil {
//	    scope, _ := scopefence.ScopeOf(err)
//	    fmt.Printf("rejected by %s limit\n", scope)
//	}
//
// # Configuration
//
// Example YAML configuration:
//
//	global:
//	  tokens: 100
//	  interval: second
//	consumers:
//	  userA:
//	    tokens: 10
//	    interval: minute
//	providers:
//	  providerA:
//	    global:
//	      tokens: 50
//	      interval: 1500   # milliseconds
//	    consumers:
//	      userA:
//	        tokens: 5
//	        interval: 2s
//
// Intervals accept unit names (second, minute, hour, day and their short
// forms), a millisecond count, or a Go duration string.
//
// Validation only checks structure. Negative token counts and unknown units
// are reported by NewFilter, wrapped in ErrInvalidConfig.
//
// # Rejections
//
// Admit returns a *RateLimitExceededError carrying the scope, a message and
// status 421 unless WithStatusCode says otherwise. The middleware and
// interceptor packages translate it for HTTP and gRPC.
//
// # Testing
//
// Pass WithClock(clockwork.NewFakeClock()) to control refill:
//
//	go test -v -race -cover ./pkg/scopefence
package scopefence
