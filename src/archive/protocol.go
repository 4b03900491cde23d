package archive

import (
	"bytes"
	"io"

	json "github.com/goccy/go-json"
)

// Helper exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
	ExitCorrupt = 3
)

// MessageType tags one line of helper stdout.
type MessageType string

const (
	TypeProgress MessageType = "progress"
	TypeSize     MessageType = "size"
	TypeProbe    MessageType = "probe"
	TypeVerify   MessageType = "verify"
)

// Message is one JSON line written by the helper to stdout.
type Message struct {
	Type    MessageType `json:"type"`
	Done    int64       `json:"done,omitempty"`
	Total   int64       `json:"total,omitempty"`
	Bytes   int64       `json:"bytes,omitempty"`
	Entries int64       `json:"entries,omitempty"`
}

// WriteMessage encodes m as a single line.
func WriteMessage(w io.Writer, m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// ParseMessage decodes one stdout line. ok is false for anything that is not
// a helper message, e.g. stray output of the image's shell.
func ParseMessage(line []byte) (Message, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return Message{}, false
	}
	var m Message
	if err := json.Unmarshal(line, &m); err != nil || m.Type == "" {
		return Message{}, false
	}
	return m, true
}

// ArchiveCommand builds the helper command that archives SourceDir into
// SnapshotDir.
func ArchiveCommand(compress bool) []string {
	return withCompress([]string{"archive"}, compress, SourceDir, SnapshotDir)
}

// ExtractCommand builds the helper command that unpacks SnapshotDir into
// TargetDir. clear wipes TargetDir's contents after the snapshot has been
// validated and before anything is written.
func ExtractCommand(compress, clear bool) []string {
	cmd := []string{"extract"}
	if clear {
		cmd = append(cmd, "--clear")
	}
	return withCompress(cmd, compress, SnapshotDir, TargetDir)
}

// SizeCommand builds the helper command reporting the archive size.
func SizeCommand(compress bool) []string {
	return withCompress([]string{"size"}, compress, SnapshotDir)
}

// VerifyCommand builds the helper command that reads the whole archive.
func VerifyCommand(compress bool) []string {
	return withCompress([]string{"verify"}, compress, SnapshotDir)
}

// ProbeCommand builds the helper command counting TargetDir's entries.
func ProbeCommand() []string {
	return []string{"probe", TargetDir}
}

func withCompress(cmd []string, compress bool, args ...string) []string {
	if compress {
		cmd = append(cmd, "--compress")
	}
	return append(cmd, args...)
}
