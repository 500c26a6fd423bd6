package transcript

import (
	"taunote/internal/fileutil"
)

// WriteFile renders the transcript and writes it to path, creating parent
// directories as needed. The file is replaced atomically.
func WriteFile(path string, tr Transcript, format, unknownLabel string) error {
	data, err := Render(tr, format, unknownLabel)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(path, data, 0o644)
}
