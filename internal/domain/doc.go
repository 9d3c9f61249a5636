// Package domain contains the core business entities and interfaces.
// It has no dependencies on other internal packages and defines the
// contracts implemented by the database, nvcf, and proxy layers.
package domain
