// Package nearfilter removes near-range noise from a single LiDAR revolution.
//
// Responsibilities: classifying points by distance and return intensity,
// grouping ambiguous returns into angular clusters, and merging the trusted
// points back into one angle-ordered batch.
// Key types: Point, Batch, Config, Filter.
//
// Points further than NearRangeLimit pass through untouched. Inside that band
// a return is kept when its intensity is high enough on its own, or when it
// belongs to a run of at least MinClusterPoints ambiguous returns whose
// angular spacing matches the sensor's own sampling step.
//
// A Filter is not safe for concurrent use; callers that toggle the policy
// from another goroutine must serialise access themselves.
package nearfilter
