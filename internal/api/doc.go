// Package api hosts the status server that runs beside a crawl:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live run counters and durable set sizes.
package api
