// Package redundancy implements the bounded-memory "was this bundle already
// delivered?" check via a rotating set of bloom filters.
package redundancy

import "github.com/dtn7/dtn7-core/bundle"

// Filter answers whether a bundle_number has already been delivered.
// False positives are allowed; false negatives are not, within the window
// the implementation documents.
type Filter interface {
	// Check reports whether num has (probably) already been seen.
	Check(num bundle.BundleNumber) bool

	// Set marks num as seen.
	Set(num bundle.BundleNumber)
}

// Null never reports a bundle as seen. It exists for tests that want to
// observe delivery without duplicate suppression getting in the way; it is
// never wired into production construction paths.
type Null struct{}

func (Null) Check(bundle.BundleNumber) bool { return false }
func (Null) Set(bundle.BundleNumber)        {}
