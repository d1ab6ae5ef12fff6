// Package maxtree builds max-trees (and min-trees) of single- or
// double-precision images by priority-queue flooding.
//
// A max-tree is a hierarchy of connected components: every node is a
// connected set of pixels at or above (bright objects) or at or below (dark
// objects) the node's intensity level, and nodes nest according to their
// levels. The tree is the input of the significance tester in package
// significance, which decides which nodes are real objects.
//
// # Algorithm Overview
//
// The builder follows the non-recursive flooding scheme:
//
//  1. Seed: the first unvisited valid pixel becomes the current pixel and a
//     stack frame is opened at its level.
//  2. Explore: the undiscovered neighbours of the current pixel are queued.
//     A neighbour more extreme than the current level stops the
//     exploration: the current pixel is queued again, a frame is opened at
//     the neighbour's level and the neighbour becomes the current pixel.
//  3. Absorb: a fully explored pixel joins the top frame's node. The queue
//     then yields the most extreme queued pixel, which is never more
//     extreme than the top frame. If it is less extreme, the top level is
//     exhausted: frames are popped and their nodes become children of the
//     frame below until a frame at the pixel's level is on top (one is
//     opened when none exists). The pixel becomes the current pixel.
//  4. Finish: when the queue is empty the remaining frames are popped and
//     chained; the bottom frame's node is the root of the component.
//
// Frames only open next to the component being grown, so regions at the
// same level that do not touch always get separate nodes.
//
// Each valid pixel is absorbed exactly once and requeued at most once per
// neighbour, so the build is O(n log n) in the pixel count. Stack depth is
// bounded by the number of distinct intensity levels.
//
// # Pixels, Masks and Forests
//
// Pixels are addressed by their linear index y*Width + x. An optional mask
// excludes pixels from flooding; masked pixels have no canonical node and
// may hold non-finite values. When the mask splits the image into several
// connected regions the result is a forest with one root per region.
//
// # Node Order
//
// Nodes of a finished Tree are numbered so that every child precedes its
// parent. Ascending index order is therefore a valid bottom-up traversal
// and descending index order a valid top-down traversal.
//
// # Precision
//
// All types are generic over Scalar and are meant to be instantiated for
// float32 and float64. The two instantiations share no state.
//
// # Errors
//
// Malformed buffers are rejected with ErrInvalidInput before any flooding
// starts. Buffers larger than Options.MaxPixels are rejected with
// ErrResourceExhausted. A broken ordering invariant during construction is
// reported as ErrInvariantViolation and no tree is returned. An empty buffer
// is not an error: it yields an empty tree.
package maxtree
