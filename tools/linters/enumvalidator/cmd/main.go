package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"marketboard.app/commentsync/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
