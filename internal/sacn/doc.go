// Package sacn holds the ANSI E1.31 (streaming ACN) wire format: packet
// parsing and encoding, universe and port rules, the multicast group mapping
// and the sequence-number acceptance rule.
//
// Data packets carry one universe of up to 512 DMX slots behind a root layer,
// a framing layer and a DMP layer. Sync and universe discovery packets use the
// extended root vector; Parse recognises them so callers can ignore them
// without counting them as malformed.
package sacn
