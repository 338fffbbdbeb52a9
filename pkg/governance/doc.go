// Package governance composes the router, provider client, and cost
// tracker into the end-to-end operation flow: route the operation to a
// backend, invoke the provider, then record the actual usage against
// the scope's budget and audit chain.
//
// The provider client is a narrow external interface; this package
// ships a mock implementation for tests and dry runs. Failed provider
// calls still cost money and are still recorded.
package governance
