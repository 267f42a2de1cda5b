/*
Package revisit hosts the reVISit study widget: it summarizes how often each stimulus of a
hierarchical study design was actually shown to participants, and keeps the externally
rendered study application in sync over a typed message protocol.

# Concept

The host keeps a small model state (configuration, participant sequences, exports). The
embedded application announces itself with READY and receives the configuration as
CONFIG; it reports realized participant sequences and data exports back. Every change of
the sequences recomputes an exclusion-adjusted frequency table (stimuli declared as
interruptions never count), from which a presenter derives a relative weight per stimulus.

# Usage

	store := memory.NewStore()
	hub, _ := ws.NewHub("http://localhost:8080")

	w, err := revisit.New(store, hub)
	if err != nil {
		log.Fatal(err)
	}
	stop, err := w.Start(ctx, hub)
	if err != nil {
		log.Fatal(err)
	}
	defer stop()

	_ = w.SetConfig(ctx, studyJSON)
	snap := w.Snapshot()
	fmt.Println(snap.Aggregate.Sum, snap.Aggregate.Max)
*/
package revisit
