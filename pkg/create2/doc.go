// Package create2 computes the deterministic addresses the rollup assigns to
// contracts deployed through CREATE2 by a factory, along with the bytecode
// hashes and constructor encodings that feed into them.
//
// Everything in this package is pure: the same inputs always produce the same
// address, so an account can be funded before its factory call is mined.
package create2
