// Package apperr defines the error taxonomy shared by the transcoding pipeline
// and its HTTP surface.
//
// Every error a caller can observe carries a stable Code alongside a human
// readable message. Codes are matched with errors.Is against the package
// sentinels, so wrapping with fmt.Errorf("...: %w") keeps them intact:
//
//	if errors.Is(err, apperr.ErrQueueFull) {
//	    // back off and retry admission later
//	}
//
// HTTPStatus maps a code to the response status used by the handlers.
package apperr
