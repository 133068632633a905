package runner

import (
	"errors"
	"io"
	"time"

	"github.com/musher-dev/scriptdeck/internal/bridge"
)

// pump drains one output stream until end-of-stream or a read error. Every
// chunk goes to the sink as an exact copy and to the transcript decoder.
// The returned error is informational; it never decides the run status.
func pump(s bridge.Stream, scriptID, runID int64, sink Sink, dec io.Writer, now func() time.Time) error {
	buf := make([]byte, bridge.ChunkSize)

	for {
		n, err := s.Reader.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			sink.Output(OutputEvent{
				ScriptID: scriptID,
				RunID:    runID,
				Stream:   s.Name,
				Data:     data,
				At:       now(),
			})

			_, _ = dec.Write(data)
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}
	}
}
