/*
Package workers sizes worker pools for containerized deployments.

runtime.NumCPU reports the host's CPUs even when a cgroup limit applies, while
GOMAXPROCS follows the container limit. Pool sizes here are derived from
GOMAXPROCS:

	// a pod limited to 4 CPUs on a 64-core node
	runtime.NumCPU()     // 64
	runtime.GOMAXPROCS(0) // 4
	workers.ForEncoder(0) // 2

ForEncoder sizes the dispatcher's encoder pool. Every running job is one ffmpeg
process that already uses several threads, so the pool is half the CPU count
with a floor of one. Set TRANSCODE_WORKERS to pin it.
*/
package workers
