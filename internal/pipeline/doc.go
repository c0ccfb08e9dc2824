/*
Package pipeline composes the transcoding job pipeline and streaming delivery
into the operations exposed to the HTTP layer.

Artifact-producing operations follow one path: resolve the media item, check
that the operation suits its type, consult the catalog, and otherwise admit a
job to the dispatcher. StartTranscode and StartHLS return the job
immediately; GetOrCreateThumbnail and GetOrCreateStoryboard wait for it, up
to a configured limit.

The Service is the dispatcher's executor: it runs the encoder into the
catalog layout and records the artifact before the job is marked completed,
so an output is never visible in the catalog while it is being written.

Playback requests resolve to a catalog path and are handed to the streaming
package; stream starts are recorded as watch events without blocking.
*/
package pipeline
