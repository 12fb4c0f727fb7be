package tokenizer

import (
	"fmt"
	"os"

	"github.com/eliben/go-sentencepiece"
)

// EncodingSentencePiece selects a SentencePiece .model file.
const EncodingSentencePiece = "sentencepiece"

// pieceEncoder is the part of *sentencepiece.Processor the tokenizer uses.
type pieceEncoder interface {
	Encode(text string) []sentencepiece.Token
}

func loadSentencePiece(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer model %s: %w", path, err)
	}
	defer f.Close()

	proc, err := sentencepiece.NewProcessor(f)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %s: %w", path, err)
	}
	return &Tokenizer{
		encoding: EncodingSentencePiece,
		encode:   pieceIDs(proc),
	}, nil
}

// pieceIDs adapts a SentencePiece encoder to plain token ids.
func pieceIDs(p pieceEncoder) func(string) []int {
	return func(text string) []int {
		toks := p.Encode(text)
		ids := make([]int, len(toks))
		for i, tok := range toks {
			ids[i] = tok.ID
		}
		return ids
	}
}
