// Package pipeline is the composition root for near filter processing.
//
// A Runtime takes packets from a Source, cuts them into revolutions with
// l2frames, runs each revolution through the near filter and fans the
// result out to Sinks (storage, publish, plots). None of those packages
// import pipeline's runtime; they depend only on Result.
package pipeline
