// Package catalog records the artifacts produced by completed jobs and owns
// the layout of the output tree.
//
// The tree is partitioned by artifact kind and media identifier:
//
//	<root>/transcoded/<mediaId>/<stem>.mp4
//	<root>/hls/<mediaId>/<stem>-<job>/master.m3u8
//	<root>/thumbnail/<mediaId>/<stem>-t<offset>-<w>x<h>.jpg
//	<root>/storyboard/<mediaId>/<stem>-n<count>-w<width>-<job>/sprite.jpg
//
// Files that can be replaced with a single rename keep a stable name.
// Directory artifacts get a fresh per-job directory, so a reader that
// resolved the previous playlist keeps a complete ladder until it asks
// the catalog again.
//
// Each (media, format, variant) has at most one current artifact. Put
// supersedes the previous record instead of updating it; superseded files
// stay on disk.
package catalog
