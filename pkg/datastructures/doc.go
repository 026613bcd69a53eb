/*
Package datastructures provides a collection of probabilistic and
auxiliary data structures.

Currently this tree holds:
  - Probabilistic: BloomFilter (and its cuckoo-filter variant)

bloomfilter backs pkg/saga/dedupe's at-least-once reply guard.
*/
package datastructures
