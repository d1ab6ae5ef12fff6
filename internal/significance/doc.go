// Package significance decides which max-tree nodes are real objects.
//
// A Tester makes two passes over a finished tree:
//
//  1. Bottom-up, children before parents, it accumulates per-node
//     cumulative statistics (area, flux, mean, variance, peak) with
//     Welford updates and Chan's pairwise merge, so that large plateaus do
//     not lose precision in the float32 variant.
//  2. Top-down, parents before children, it evaluates every non-root node
//     against its background, the level of its parent node, and marks it
//     Accepted, Merged or Rejected.
//
// # Significance Tests
//
// Two tests are available:
//
//   - AreaScaled: the node's mean excess over the background must reach
//     k·σ·area^(−β). With β = 0.5 this is a z-score test on the node's total
//     excess flux.
//   - ChiSquared: the node's power Σ(x − background)²/σ² must exceed the
//     1−α quantile of a χ² distribution with area degrees of freedom.
//
// # Decisions
//
// A significant node with no accepted ancestor is Accepted. A significant
// node below an accepted ancestor is Merged into it, unless deblending is
// enabled and the node branches off the ancestor's main branch (the chain
// of largest-flux children), in which case it becomes a nested object.
// Non-significant nodes are Merged when an accepted ancestor exists and
// Rejected otherwise. Roots have no background and are always Rejected.
//
// Images are expected to be background-subtracted. A node whose level does
// not rise beyond Params.Floor·σ is never significant: the wide components
// just above the sky hold every source and would otherwise pass as one
// object.
//
// Each pixel is assigned to at most one object: the nearest accepted node
// above its canonical node. Nested objects therefore carve their pixels
// out of the enclosing object's region and no pixel is counted twice.
package significance
