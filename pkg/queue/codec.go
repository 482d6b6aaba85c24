package queue

import (
	"encoding/json"
	"errors"
)

// Codec turns jobs into bytes for durable adapters and back.
type Codec interface {
	Encode(job *Job) ([]byte, error)
	Decode(data []byte) (*Job, error)
}

// JSONCodec encodes jobs as JSON and rebinds callables through a Registry.
type JSONCodec struct {
	registry *Registry
}

// NewJSONCodec returns a codec bound to registry, or DefaultRegistry if nil.
func NewJSONCodec(registry *Registry) *JSONCodec {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &JSONCodec{registry: registry}
}

func (c *JSONCodec) Encode(job *Job) ([]byte, error) {
	if job == nil {
		return nil, ErrJobNil
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, errors.Join(ErrCodec, err)
	}
	return data, nil
}

func (c *JSONCodec) Decode(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Join(ErrCodec, err)
	}
	c.registry.Bind(&job)
	return &job, nil
}
