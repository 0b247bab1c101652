// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers to distinguish between different failure scenarios without
// looking at driver errors or sql.ErrNoRows.
package repository

import "errors"

// ErrUserNotFound is returned when no users row matches.
var ErrUserNotFound = errors.New("user not found")

// ErrListingNotFound is returned when no properties row matches.
// Handlers translate it into an HTTP 404 response.
var ErrListingNotFound = errors.New("listing not found")

// ErrEmailExists is returned by UserRepo.Create on a duplicate email.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as saving a listing twice.
var ErrConflict = errors.New("conflict")
