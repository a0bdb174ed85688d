// Package entity provides state accessors and entity loaders for the
// statemachine engine.
//
// Memory keeps entities in process and is meant for tests and single-node
// tools. Postgres and Mongo read and write one column or document field per
// call; they never cache, so every Get is an authoritative read.
//
// All stores implement statemachine.Accessor and statemachine.Loader and
// return Ref values as entities.
package entity
