package adk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/NoiseDigital/agent-development-environment/models"
)

// StreamError is an error frame sent by /run_sse after the stream started,
// e.g. data: {"error": "model overloaded"}.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "agent stream error: " + e.Message
}

// eventStream reads the /run_sse body. Each SSE event carries one session
// Event as JSON in its data lines; event names, ids and comments are ignored.
type eventStream struct {
	reader *bufio.Reader
	body   io.Closer
	// skip is told about data that is not a JSON event.
	skip func(data []byte, err error)
}

func newEventStream(body io.ReadCloser, skip func([]byte, error)) *eventStream {
	return &eventStream{
		reader: bufio.NewReader(body),
		body:   body,
		skip:   skip,
	}
}

// Next returns the next decoded event. io.EOF ends the stream; an error
// frame from the server is returned as *StreamError.
func (s *eventStream) Next() (models.Event, error) {
	for {
		data, err := s.frame()
		if err != nil {
			return models.Event{}, err
		}

		var frame struct {
			models.Event
			Error string `json:"error"`
		}
		if err := json.Unmarshal(data, &frame); err != nil {
			if s.skip != nil {
				s.skip(data, err)
			}
			continue
		}
		if frame.Error != "" {
			return models.Event{}, &StreamError{Message: frame.Error}
		}
		return frame.Event, nil
	}
}

// frame collects the data lines of one SSE event, joined by "\n".
func (s *eventStream) frame() ([]byte, error) {
	var data bytes.Buffer
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) == 0:
			if data.Len() > 0 {
				return data.Bytes(), nil
			}
		case bytes.HasPrefix(line, []byte("data:")):
			value := bytes.TrimPrefix(line[len("data:"):], []byte(" "))
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(value)
		}

		if err == io.EOF {
			if data.Len() == 0 {
				return nil, io.EOF
			}
			return data.Bytes(), nil
		}
	}
}

func (s *eventStream) Close() error {
	if s.body != nil {
		return s.body.Close()
	}
	return nil
}
