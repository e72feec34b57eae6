// Package launcher turns installed components into running silos.
//
// A launch resolves registry references, composes the components into a
// graph, validates every node against its world and providers, and only
// then spawns one thread silo per node in instantiation order. Imports
// served by another component are bound to that component's silo, so a
// guest call crosses silos through the manager.
//
// The Launcher also answers the guest-facing services that need the whole
// runtime: thread silos for hayride:silo/threads, composition plans for
// hayride:wac and agent runs for hayride:ai/agents.
package launcher
