// Package upstream is the rate-limited access layer in front of the profile
// API: a proxy resolver, a strictly serial request queue, and a fetcher that
// retries with backoff and fails over between proxies.
package upstream
