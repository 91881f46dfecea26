// Package selection chooses which item to deliver next.
//
// Selection runs in four steps:
//   - Pool: never-delivered items, else items not delivered this cycle, else
//     the whole corpus (which signals a cycle reset)
//   - Score: context affinity, a never-delivered bonus, a stable per-item
//     salted variance and a uniform random term
//   - Shortlist: the top scorers
//   - Draw: weighted random pick with weight max(score, 0) + 10
//
// Select is a pure function of its input and the supplied random source.
package selection
