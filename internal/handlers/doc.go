// Package handlers exposes the pipeline operations over HTTP.
//
// Each route maps to one pipeline call. Errors are written as
// {"error": "...", "code": "NOT_FOUND"} with the status from
// apperr.HTTPStatus. The caller identity is taken from the X-User-ID header
// set by the fronting auth layer; routes that record per-user state reject
// requests without it.
//
// Routes:
//
//	POST   /api/media                               register a file under the media root
//	GET    /api/media/{id}                          resolve one item
//	GET    /api/library/scan                        last media directory scan
//	POST   /api/library/scan                        queue a scan
//	POST   /api/media/{id}/transcode                StartTranscode
//	POST   /api/media/{id}/hls                      StartHLS
//	GET    /api/media/{id}/thumbnail                GetOrCreateThumbnail (image body)
//	GET    /api/media/{id}/storyboard               GetOrCreateStoryboard (frame URLs)
//	GET    /api/media/{id}/stream                   StreamDirect
//	GET    /api/media/{id}/hls/{name}               StreamHLS
//	GET    /api/media/{id}/progress                 GetProgress
//	PUT    /api/media/{id}/progress                 UpdateProgress
//	GET    /api/jobs/{id}                           GetJob
//	DELETE /api/jobs/{id}                           CancelJob
package handlers
