// Package l2frames owns Layer 2 (Frames) of the near filter data model.
//
// Responsibilities: assembling per-packet points into complete revolutions
// and detecting the 360° wrap between them.
// Key types: Revolution, RevolutionBuilder.
//
// Dependency rule: L2 may depend on L1 and on the nearfilter point types,
// never on the pipeline or its sinks.
package l2frames
