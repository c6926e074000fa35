package main

import (
	"os"

	"mediagen/jobcore"
	"mediagen/jobs"
)

func main() {
	os.Exit(jobs.Main(jobcore.KindPrompt, os.Args[1:]))
}
