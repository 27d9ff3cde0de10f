// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// Services depend only on ports, never on concrete adapters, so every
// service can be exercised with in-memory fakes.
package services
