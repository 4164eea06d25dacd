// Package registry holds the pluggable calculator definitions known to an
// engine instance.
//
// Each calculator implements the Calculator interface (ID, Category, Validate,
// Calculate). Calculators are registered once at startup and are immutable
// afterwards; the registry is read-heavy and safe for concurrent use.
//
// Register fails with *DuplicateIDError when the id is already taken, Get fails
// with *NotFoundError for unknown ids. Both error types match the ErrDuplicateID
// and ErrNotFound sentinels via errors.Is.
package registry
