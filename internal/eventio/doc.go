// Package eventio reads and writes detector geometry files and hit event
// streams. Event streams are JSON lines, optionally gzip (.gz) or
// zstandard (.zst) compressed.
package eventio
