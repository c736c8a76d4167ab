// Package slicejobs creates slice jobs and runs them to completion in the
// background: settings are snapshotted at creation, the external slicer is
// invoked with a bounded timeout, and artifacts plus extracted metadata are
// recorded on the job before it reaches a terminal status.
package slicejobs
