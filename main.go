package main

import (
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/cmd"
)

// init sets the logging level used until flags are parsed.
func init() {
	logrus.SetLevel(logrus.InfoLevel)
}

func main() {
	cmd.Execute()
}
