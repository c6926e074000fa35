package main

import (
	"os"

	"mediagen/jobcore"
	"mediagen/jobs"
)

func main() {
	os.Exit(jobs.Main(jobcore.KindStory, os.Args[1:]))
}
