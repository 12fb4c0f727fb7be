// Package tokenizer counts subword tokens with a model loaded from a local
// file: a SentencePiece model, or a byte-pair-encoding ranks file for the
// tiktoken encodings.
package tokenizer

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ErrUnknownEncoding is returned for an encoding name without a known
// pre-tokenization scheme.
var ErrUnknownEncoding = errors.New("unknown encoding")

// Encoder turns text into token ids. Implementations must be deterministic.
type Encoder interface {
	Encode(text string) []int
}

// scheme is the pre-tokenization pattern and special tokens of an encoding.
// The mergeable ranks come from the model file.
type scheme struct {
	pattern string
	special map[string]int
}

const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`

var schemes = map[string]scheme{
	tiktoken.MODEL_CL100K_BASE: {
		pattern: `(?i:'s|'t|'re|'ve|'m|'ll|'d)|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+(?!\S)|\s+`,
		special: map[string]int{
			tiktoken.ENDOFTEXT:   100257,
			tiktoken.FIM_PREFIX:  100258,
			tiktoken.FIM_MIDDLE:  100259,
			tiktoken.FIM_SUFFIX:  100260,
			tiktoken.ENDOFPROMPT: 100276,
		},
	},
	tiktoken.MODEL_P50K_BASE: {
		pattern: gpt2Pattern,
		special: map[string]int{tiktoken.ENDOFTEXT: 50256},
	},
	tiktoken.MODEL_R50K_BASE: {
		pattern: gpt2Pattern,
		special: map[string]int{tiktoken.ENDOFTEXT: 50256},
	},
}

// Tokenizer is a loaded model. It holds no mutable state after Load.
type Tokenizer struct {
	encoding string
	encode   func(text string) []int
}

// Load reads the model at path. EncodingSentencePiece expects a SentencePiece
// .model file; the tiktoken encodings expect a ranks file combined with the
// encoding's pattern. Both an unreadable file and an unknown encoding are
// errors.
func Load(path, encoding string) (*Tokenizer, error) {
	if encoding == EncodingSentencePiece {
		return loadSentencePiece(path)
	}

	sch, ok := schemes[encoding]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}

	ranks, err := fileLoader{}.LoadTiktokenBpe(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer model %s: %w", path, err)
	}
	if len(ranks) == 0 {
		return nil, fmt.Errorf("load tokenizer model %s: no ranks", path)
	}

	core, err := tiktoken.NewCoreBPE(ranks, sch.special, sch.pattern)
	if err != nil {
		return nil, fmt.Errorf("build tokenizer %s: %w", encoding, err)
	}
	specialSet := make(map[string]any, len(sch.special))
	for tok := range sch.special {
		specialSet[tok] = true
	}
	enc := &tiktoken.Encoding{
		Name:           encoding,
		PatStr:         sch.pattern,
		MergeableRanks: ranks,
		SpecialTokens:  sch.special,
	}

	bpe := tiktoken.NewTiktoken(core, enc, specialSet)

	return &Tokenizer{
		encoding: encoding,
		encode:   bpe.EncodeOrdinary,
	}, nil
}

// Encode returns the token ids of text. Special-token markup is treated as
// ordinary text, so arbitrary prompt content never panics.
func (t *Tokenizer) Encode(text string) []int {
	return t.encode(text)
}

// Encoding returns the encoding name the tokenizer was loaded with.
func (t *Tokenizer) Encoding() string {
	return t.encoding
}

// Count returns the number of tokens enc produces for text.
func Count(enc Encoder, text string) int {
	return len(enc.Encode(text))
}

// fileLoader implements tiktoken.BpeLoader for local ranks files, one
// "<base64 token> <rank>" pair per line. The library's default loader
// caches file contents in a temp directory keyed by path, which would serve
// stale ranks after the model file is replaced in place.
type fileLoader struct{}

var _ tiktoken.BpeLoader = fileLoader{}

func (fileLoader) LoadTiktokenBpe(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ranks := make(map[string]int)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: want \"<token> <rank>\"", line)
		}
		tok, err := base64.StdEncoding.DecodeString(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rank, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ranks[string(tok)] = rank
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ranks, nil
}
