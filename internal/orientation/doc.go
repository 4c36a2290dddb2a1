// Package orientation decides how far each page of a scanned document has to
// be rotated to read upright.
//
// The engine fuses weak signals (OCR orientation detection, a text-presence
// gate, an optional body-pose estimate, the page aspect ratio) into a single
// clockwise rotation per page. Pages are folded strictly left to right: a
// FallbackTracker collects confident decisions and lends its majority to later
// pages whose own signals are too weak.
//
// Nothing in this package touches files or document containers. Detectors are
// injected as small capability interfaces so the resolver can be driven by
// fakes in tests.
package orientation
