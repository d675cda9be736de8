// Package learning records how well stored patterns perform and drafts new
// patterns from conversations that support staff answered by hand.
//
// Drafts are always stored inactive; a human reviews and activates them.
package learning
