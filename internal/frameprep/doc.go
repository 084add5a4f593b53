// Package frameprep turns one stored still image into a canvas-sized frame
// ready for encoding.
//
// Sources are decoded (PNG, JPEG, first GIF frame, WebP), checked against the
// maximum dimension before any pixel data is read, fitted into the target
// canvas, and run through the alpha policy: binarized against a threshold in
// transparent mode, flattened over the background colour otherwise.
package frameprep
