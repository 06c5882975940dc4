package restyutil

import (
	"os"
	"path/filepath"
	"strings"

	"dealcatalog/lib/telemetry"
)

// FilesystemOutput writes one file per http message into a directory, it is used to
// inspect pages after the markup of a store has drifted.
type FilesystemOutput struct {
	directory string
	tel       telemetry.API
}

func NewFilesystemOutput(dir string, tel telemetry.API) (FilesystemOutput, error) {
	err := os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir, tel: tel}, nil
}

var unsafeFilename = strings.NewReplacer("/", "_", ":", "_", "?", "_", "&", "_", "=", "_")

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, unsafeFilename.Replace(id)), []byte(contents), 0600)
	if err != nil {
		o.tel.ReportWarning("fs-output.write", err, id)
	}
}
