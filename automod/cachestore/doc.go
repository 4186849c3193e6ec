// Caching of JSON-encoded values with a fixed TTL and explicit purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// The engine uses it to cache subreddit metadata and flair templates, so message rendering does not hit the platform API on every task.
package cachestore
