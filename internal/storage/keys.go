package storage

import "fmt"

// Every artifact of a job lives under jobs/{id}/, so rewriting the same job
// overwrites its own objects and never touches another job's.

func JobPrefix(jobID string) string     { return "jobs/" + jobID + "/" }
func EventsKey(jobID string) string     { return JobPrefix(jobID) + "events.json" }
func NarrationKey(jobID string) string  { return JobPrefix(jobID) + "narration.json" }
func ComplexityKey(jobID string) string { return JobPrefix(jobID) + "complexity.json" }
func SyncKey(jobID string) string       { return JobPrefix(jobID) + "sync.json" }
func AudioPrefix(jobID string) string   { return JobPrefix(jobID) + "audio/" }

// AudioKey names scene index's clip with a zero-padded position, so a
// lexical sort of the keys is scene order.
func AudioKey(jobID string, index int, ext string) string {
	return fmt.Sprintf("%s%03d.%s", AudioPrefix(jobID), index, ext)
}
