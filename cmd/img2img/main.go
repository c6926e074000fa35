package main

import (
	"os"

	"mediagen/jobcore"
	"mediagen/jobs"
)

func main() {
	os.Exit(jobs.Main(jobcore.KindImageEdit, os.Args[1:]))
}
