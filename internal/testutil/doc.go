// Package testutil provides deterministic in-memory stand-ins for the
// writer's ports: MemoryDatabase for the database, OCC and read side,
// FakeMessaging for notifications and DeterministicClock for timestamps.
package testutil
