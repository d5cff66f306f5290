// Package scheduler runs the multi-cadence coordination loop over the
// record store.
//
// One Scheduler owns five independent cadences: the full cycle starts
// out-of-band checks per record under a throttle window, the hook cycle
// polls checks, starts bounded numbers of external jobs, reaps zombies,
// and normalizes suffixes, the orphan pass releases claims whose PIDs
// died, and two export cadences write status and metrics snapshots for
// external viewers. Each cadence body runs inside an error boundary: a
// bad record or failed job is logged and counted, never allowed to stop
// the loop.
//
// The actual work of hooks, mentors, and sub-workflows happens in
// external OS processes; the scheduler only starts them through the
// injected JobRunner and watches liveness afterwards. The clock and the
// process table are injectable so every cadence can be driven
// deterministically in tests.
package scheduler
