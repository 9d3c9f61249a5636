// Package database implements the PostgreSQL-backed repositories for
// sessions, published applications, and portal pages.
package database
