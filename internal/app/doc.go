// Package app wires together the bounty engine: lifecycle management,
// trigger evaluation, the execution state machine, the append-only event
// log and the polling scheduler that drives them.
package app
