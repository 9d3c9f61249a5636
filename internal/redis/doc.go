// Package redis wraps the go-redis client used for the shared function
// inventory cache. The wrapper installs a metrics hook so every command is
// observable without instrumenting call sites.
package redis
