package main

import (
	"flag"
	"fmt"
	"io"

	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

func runDigest(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fileKey := fs.String("file-key", "", "storage key of the dataset file")
	datasetID := fs.Uint64("dataset-id", 0, "numeric dataset id in the storage system")
	size := fs.Uint64("size", 0, "file size in bytes")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := validation.All(validation.FileKey(*fileKey), validation.Size(*size)); err != nil {
		fmt.Fprintf(stderr, "digest: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, domain.ComputeDigest(*fileKey, *datasetID, *size).String())
	return 0
}
