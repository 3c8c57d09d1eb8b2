// Package guide implements the guided repair session engine: a state
// machine over the full session lifecycle, a periodic frame-analysis
// loop with stale-response gating, a guidance interpreter that turns
// analyzer output into state transitions, a serialized speech queue,
// and secondary flows for substitute search and plan regeneration.
//
// The Machine is pure: Apply commits a transition and returns effects,
// and the Session executes those effects (provider calls, speech,
// loops) outside the lock. Everything the UI needs arrives on the
// Session's event channel.
package guide
