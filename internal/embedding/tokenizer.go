package embedding

import "hash/fnv"

// BERT special token ids used when no vocabulary is loaded.
const (
	padTokenID = 0
	unkTokenID = 100
	clsTokenID = 101
	sepTokenID = 102
	vocabSize  = 30522
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
// Outputs are padded to maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps words to hashed ids. It keeps the model runnable without a
// vocabulary file but its vectors carry little meaning.
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := Words(text)
	ids := make([]int64, 0, len(words))
	for _, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		// keep clear of the special ids at the start of the vocabulary
		ids = append(ids, int64(1000+h.Sum32()%(vocabSize-1000)))
	}
	return frame(ids, maxTokens, clsTokenID, sepTokenID, padTokenID)
}

// frame wraps ids in [CLS] ... [SEP], truncates to maxTokens, and pads the rest.
func frame(ids []int64, maxTokens int, cls, sep, pad int64) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)
	for i := range inputIDs {
		inputIDs[i] = pad
	}

	inputIDs[0] = cls
	attentionMask[0] = 1
	pos := 1
	for _, id := range ids {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = id
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = sep
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}
