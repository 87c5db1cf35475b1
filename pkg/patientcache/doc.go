// Package patientcache is a TTL-bounded local mirror of patient
// demographics, keyed by salted patient hash. An expired entry is
// treated exactly like a missing one; the cache never serves stale
// demographic data.
package patientcache
