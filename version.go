// Package clipd holds shared metadata for the clipd service.
package clipd

// Version is the current clipd release version.
var Version = "0.3.0"
