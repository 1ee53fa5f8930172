// Package store provides the durable access layer of the humanflow engine: a
// shared key-value store with per-record TTLs and a publish/subscribe topic
// for completion events.
//
// Supported backends:
//   - Memory: for development and testing (default)
//   - Redis: for distributed production deployments
package store
