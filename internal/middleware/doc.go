// Package middleware provides HTTP middleware for the streaming API.
//
// It includes:
//   - Request logging in W3C Extended Log Format, with the caller from X-User-ID
//     and the requested byte range
//   - gzip compression for JSON and HLS playlists; direct streams, segments,
//     HEAD and ranged requests pass through untouched
//   - Prometheus request metrics labeled by route template, timing streams
//     to the first byte
package middleware
