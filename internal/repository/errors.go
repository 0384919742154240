// Package repository provides SQL-backed access to the four keyed
// collections: patrons, catalog items (with their copies), loans and
// reservations.  The sentinel values defined here let higher layers
// distinguish failure scenarios without inspecting driver errors.  For
// example, ErrConflict signals that an operation cannot proceed due to
// existing dependent records (e.g. deleting an item that still has a
// copy on loan).
package repository

import "errors"

// ErrNotFound is returned when a referenced patron, item, copy, loan
// or reservation does not exist.  Handlers should translate this into
// an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a delete or insert cannot be performed
// because of conflicting state, such as removing a patron who still
// has active loans or reserving the same item twice.  Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")
