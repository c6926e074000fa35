package main

import (
	"os"

	"mediagen/jobcore"
	"mediagen/jobs"
)

func main() {
	os.Exit(jobs.Main(jobcore.KindDocVideo, os.Args[1:]))
}
