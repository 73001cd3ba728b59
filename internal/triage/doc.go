// Package triage provides the business boundary for ClinicaFlow's patient
// triage pipeline. It defines the Service (idempotent submission, audit
// persistence, escalation fan-out), Pipeline (staged orchestration with
// deterministic fallbacks), Store interface (persistence), the rule tables
// that decide risk tier, and the domain models.
package triage
