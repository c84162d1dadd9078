// Package api hosts the operator HTTP server. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawl/due and /v1/crawl/sites/{name} to trigger crawls in the
//     background.
package api
