/*
Package frequency turns a study design and a set of participant sequences into
per-stimulus frequency weights.

The pipeline is pure and synchronous:

  - Flatten walks nested sequences depth-first, left to right, into leaf ids.
  - ExtractInterruptions collects every id declared as an interruption anywhere in the design.
  - Aggregate counts flattened leaves across participants, removes interruption ids
    entirely, and derives Sum and Max.

Memo caches the last Aggregate keyed by a hash of its inputs so unrelated change
notifications do not trigger a recount.
*/
package frequency
