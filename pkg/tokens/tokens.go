// Package tokens counts cl100k_base tokens for transcript statistics.
package tokens

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
	tiktoken "github.com/weaviate/tiktoken-go"
)

const Encoding = "cl100k_base"

type Counter interface {
	Count(text string) (int, error)
	Name() string
}

// Backend selects the tokenizer implementation.
type Backend string

const (
	BackendTokenizer Backend = "tokenizer"
	BackendTiktoken  Backend = "tiktoken"
)

func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendTokenizer:
		return BackendTokenizer, nil
	case BackendTiktoken:
		return BackendTiktoken, nil
	default:
		return "", errors.Errorf("unknown tokenizer %q (want %s or %s)", s, BackendTokenizer, BackendTiktoken)
	}
}

func NewCounter(b Backend) (Counter, error) {
	switch b {
	case "", BackendTokenizer:
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, errors.Wrap(err, "load tokenizer codec")
		}
		return &codecCounter{codec: codec}, nil
	case BackendTiktoken:
		enc, err := tiktoken.GetEncoding(Encoding)
		if err != nil {
			return nil, errors.Wrap(err, "load tiktoken encoding")
		}
		return &tiktokenCounter{enc: enc}, nil
	default:
		return nil, errors.Errorf("unknown tokenizer %q", b)
	}
}

type codecCounter struct {
	codec tokenizer.Codec
}

func (c *codecCounter) Name() string { return string(BackendTokenizer) }

func (c *codecCounter) Count(text string) (int, error) {
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, errors.Wrap(err, "encode")
	}
	return len(ids), nil
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *tiktokenCounter) Name() string { return string(BackendTiktoken) }

func (c *tiktokenCounter) Count(text string) (int, error) {
	return len(c.enc.Encode(text, nil, nil)), nil
}
