// Package catalog manages products, categories and the shop profile.
//
// Every operation opens its own store handle and closes it before returning.
// Products referenced by recorded sales are never removed: Delete turns them
// inactive so sale history keeps resolving. Category deletion follows a
// configurable policy (see CategoryDeletePolicy).
package catalog
