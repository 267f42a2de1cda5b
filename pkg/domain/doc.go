/*
Package domain contains the core types shared by every revisit component.

A study design is a tree of Node values. Leaves are stimulus identifiers; composites
group components and may declare interruptions, stimuli injected into the flow that
must never count toward normal-flow statistics. Participant sequences reuse the same
Node shape to describe the path one participant actually took.

# Key Types

  - Node: tagged union (Leaf or Composite) for designs and participant sequences.
  - Aggregate: exclusion-adjusted FrequencyTable with Sum and Max.
  - Envelope: one message of the host <-> embedded frame protocol.
  - Config: the widget configuration, carrying the root design under "sequence".
*/
package domain
