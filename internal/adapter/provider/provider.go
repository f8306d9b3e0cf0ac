package provider

import "net/http"

// HTTPClient is the outbound HTTP surface the adapters use. Injected so
// tests can fake provider responses and main can set timeouts.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
