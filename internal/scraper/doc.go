// Package scraper reads a running calcengine's Prometheus /metrics endpoint
// and folds the exported series back into a Status for the CLI status
// command. API key authentication is handled by a shared round tripper.
package scraper
