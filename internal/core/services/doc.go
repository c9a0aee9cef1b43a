// Package services contains the core business logic of corpusqa.
//
// Services implement the driving ports and depend only on the driven
// ports, never on concrete adapters:
//
//   - IngestService runs the contextual ingestion pipeline
//     (chunk, annotate, embed, commit).
//   - RetrievalService performs hybrid lexical + vector retrieval
//     with reciprocal-rank fusion.
//   - ResearchService runs the iterative evidence-gathering agent.
//   - SynthesisService turns a findings report into a cited answer.
//   - AnswerService orchestrates the full and simple answer modes.
//
// All services take their dependencies via constructor injection,
// which keeps them testable with the hand-rolled mocks in the
// package tests.
package services
