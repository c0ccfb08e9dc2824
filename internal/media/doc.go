// Package media does the in-process image work that follows frame
// extraction: decoding encoder output, fitting frames into a bounding box,
// writing JPEGs atomically, and composing storyboard sprite sheets.
//
// Still images are loaded directly with LoadImageConstrained so a photo
// thumbnail never needs an encoder process.
package media
