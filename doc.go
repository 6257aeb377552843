/*

Sealbase is a content-addressable integrity and identity layer for
self-describing hierarchical data products.  Given a store that already
holds a tree of groups, typed attributes, and chunked array datasets,
sealbase computes a persistent semantic identity for the product and a
tamper-evident content hash that can be re-verified at full-file,
per-dataset, or per-chunk granularity.

Vocabulary:

- node: a group or a dataset in the product tree; addressed by NodeID
- group: named set of child nodes plus an attribute map
- dataset: array value, optionally split into chunks, plus attributes
- chunk: rectangular sub-block of a dataset's array; the finest unit of
  integrity checking; edge chunks carry only their real extent
- grid: the logical chunk layout of a dataset (shape, chunk shape)
- chunk table: per-dataset companion dataset holding the ordered chunk
  digests; derived bookkeeping, never content
- content hash: Merkle root over the whole attribute/structure/data
  tree, stored on the root as "<algo>:<hex>"; an integrity seal, not a
  stable identifier
- identity: hash of a small ordered set of semantic fields, stable
  across re-processing of the same logical product
- source link: reference to an upstream product, carrying a snapshot of
  that product's content hash at link time
- seal: the write-time pass that computes chunk tables, content hash,
  and identity, turning a Building store into a Sealed one

*/

package sealbase
