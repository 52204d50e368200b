// Copyright 2024-2025 Sebastian Lederer. See the file LICENSE.md for details
package main

// IOHandler is implemented by every device attached to the I/O window.
// Addresses are window-relative; devices mask them down to their own
// slot-local register offsets.
type IOHandler interface {
	read(byteaddr word) (word, error)
	write(value word, byteaddr word) (error)
}
