// Command streamvio-ctl inspects and manages a streamvio database from the
// command line. It opens the same SQLite file the server uses, so it works
// while the server is running.
//
// Usage:
//
//	streamvio-ctl [--database-dir DIR] [--media-dir DIR] [-o auto|table|json] [-v] <command>
//
// Commands:
//
//	jobs list [--media ID] [--kind KIND] [--state STATE] [--limit N]
//	jobs show <job-id>
//	jobs summary
//	media list
//	media add <path> [--id ID] [--no-probe]
//	media probe <media-id|path>
//	media events <media-id> [--limit N]
//	artifacts <media-id> [--all]
//	db vacuum
//	version
//
// Output is a table when stdout is a terminal and JSON otherwise; -o
// forces either.
//
// Environment:
//
//	DATABASE_DIR  database directory (default /database)
//	MEDIA_DIR     media root for media add (default /media)
//	FFPROBE_PATH  ffprobe binary (default ffprobe on PATH)
package main
