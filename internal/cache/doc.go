// Package cache implements a process-local key/value cache with optional
// per-entry expiry.
//
// Expired entries are never returned: Get drops them lazily, and a Sweeper
// reclaims entries that are written once and never read again. Instances are
// explicitly constructed and owned by the composition root; there is no package
// level cache.
package cache
