package embedding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxWordRunes = 100

// WordPieceTokenizer implements uncased BERT tokenization from a vocab.txt file.
type WordPieceTokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	pad   int64
	unk   int64
}

// LoadWordPieceVocab reads a vocab.txt file (one token per line, id = line number).
func LoadWordPieceVocab(path string) (*WordPieceTokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()
	return NewWordPieceTokenizer(f)
}

// NewWordPieceTokenizer reads a vocabulary from r.
func NewWordPieceTokenizer(r io.Reader) (*WordPieceTokenizer, error) {
	vocab := make(map[string]int64)
	sc := bufio.NewScanner(r)
	var id int64
	for sc.Scan() {
		tok := strings.TrimRight(sc.Text(), "\r")
		if _, ok := vocab[tok]; !ok {
			vocab[tok] = id
		}
		id++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	t := &WordPieceTokenizer{vocab: vocab}
	var missing []string
	for name, dst := range map[string]*int64{"[CLS]": &t.cls, "[SEP]": &t.sep, "[PAD]": &t.pad, "[UNK]": &t.unk} {
		v, ok := vocab[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		*dst = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("vocab missing special tokens %v", missing)
	}
	return t, nil
}

// Tokenize lowercases and strips accents, splits on whitespace and punctuation, then
// applies greedy longest-match-first WordPiece.
func (t *WordPieceTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	var ids []int64
	for _, word := range basicTokens(text) {
		ids = append(ids, t.wordPiece(word)...)
		if maxTokens > 0 && len(ids) >= maxTokens {
			break
		}
	}
	return frame(ids, maxTokens, t.cls, t.sep, t.pad)
}

// Tokens returns the WordPiece strings for text, mainly for debugging.
func (t *WordPieceTokenizer) Tokens(text string) []string {
	rev := make(map[int64]string, len(t.vocab))
	for k, v := range t.vocab {
		rev[v] = k
	}
	var out []string
	for _, word := range basicTokens(text) {
		for _, id := range t.wordPiece(word) {
			out = append(out, rev[id])
		}
	}
	return out
}

func (t *WordPieceTokenizer) wordPiece(word string) []int64 {
	chars := []rune(word)
	if len(chars) > maxWordRunes {
		return []int64{t.unk}
	}
	var ids []int64
	for start := 0; start < len(chars); {
		end := len(chars)
		found := int64(-1)
		for end > start {
			sub := string(chars[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.vocab[sub]; ok {
				found = id
				break
			}
			end--
		}
		if found < 0 {
			return []int64{t.unk}
		}
		ids = append(ids, found)
		start = end
	}
	return ids
}

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// basicTokens lowercases, strips accents, and splits on whitespace and punctuation.
// Punctuation and CJK characters become tokens of their own.
func basicTokens(text string) []string {
	clean, _, err := transform.String(stripAccents, strings.ToLower(text))
	if err != nil {
		clean = strings.ToLower(text)
	}
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range clean {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.Is(unicode.Han, r):
			flush()
			out = append(out, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
