// Package audio captures, persists and plays raw linear PCM voice audio:
// mono, 16 kHz, signed 16-bit little-endian samples.
package audio
