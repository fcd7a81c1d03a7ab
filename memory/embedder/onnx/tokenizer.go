package onnx

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Special token IDs shared by the uncased BERT vocabularies used with MiniLM.
const (
	padTokenID = 0
	unkTokenID = 100
	clsTokenID = 101
	sepTokenID = 102
)

// Tokenizer is a lowercase WordPiece tokenizer driven by a tokenizer.json vocabulary.
type Tokenizer struct {
	vocab map[string]int
}

// LoadTokenizer reads the "model.vocab" table from a Hugging Face tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var parsed struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(parsed.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has no vocabulary", path)
	}
	return NewTokenizer(parsed.Model.Vocab), nil
}

// NewTokenizer builds a Tokenizer from an in-memory vocabulary.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	return &Tokenizer{vocab: vocab}
}

// Encoding is a fixed-length model input.
type Encoding struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
}

// Encode wraps the WordPiece IDs of text in [CLS] ... [SEP] and pads to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) Encoding {
	ids := t.Tokenize(text)
	if len(ids) > maxLen-2 {
		ids = ids[:maxLen-2]
	}

	enc := Encoding{
		InputIDs:      make([]int64, maxLen),
		AttentionMask: make([]int64, maxLen),
		TokenTypeIDs:  make([]int64, maxLen),
	}
	enc.InputIDs[0] = clsTokenID
	enc.AttentionMask[0] = 1
	for i, id := range ids {
		enc.InputIDs[i+1] = id
		enc.AttentionMask[i+1] = 1
	}
	end := len(ids) + 1
	enc.InputIDs[end] = sepTokenID
	enc.AttentionMask[end] = 1
	for i := end + 1; i < maxLen; i++ {
		enc.InputIDs[i] = padTokenID
	}
	return enc
}

// Tokenize converts text to WordPiece token IDs without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		for _, piece := range t.wordPieces(word) {
			if id, ok := t.vocab[piece]; ok {
				ids = append(ids, int64(id))
			} else {
				ids = append(ids, unkTokenID)
			}
		}
	}
	return ids
}

// splitWords splits on whitespace and isolates punctuation as its own word,
// the way BERT's basic tokenizer does.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// wordPieces greedily matches the longest vocabulary prefix, marking
// continuations with "##". Unmatchable words collapse to a single [UNK].
func (t *Tokenizer) wordPieces(word string) []string {
	var pieces []string
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		var match string
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				match = sub
				break
			}
			end--
		}
		if match == "" {
			return []string{"[UNK]"}
		}
		pieces = append(pieces, match)
		start = end
	}
	return pieces
}
