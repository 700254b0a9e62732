// Package wire builds and parses IEEE 802.11 MAC frames.
//
// Everything in this package is a stateless transformation over byte
// buffers: management frame builders follow the struct-plus-Serialize
// pattern, parsers return typed bodies with strict bounds checking on
// every field. Frame buffers are expected without a trailing FCS; the
// driver strips it on receive and appends it on transmit.
package wire
