package domain

import (
	"encoding/json"
	"fmt"
)

// QuestionRecord is the content file shape of a question. Records without a type are
// multiple-choice.
type QuestionRecord struct {
	Type            string          `json:"type,omitempty"`
	Question        string          `json:"question"`
	Options         []string        `json:"options,omitempty"`
	Answer          json.RawMessage `json:"answer,omitempty"`
	Time            int             `json:"time,omitempty"`
	Images          []ImageOption   `json:"images,omitempty"`
	Words           []string        `json:"words,omitempty"`
	CorrectSequence []string        `json:"correctSequence,omitempty"`
}

// DecodeQuestions parses a JSON array of records into questions.
func DecodeQuestions(data []byte) ([]Question, error) {
	var records []QuestionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode question records: %w", err)
	}
	questions := make([]Question, 0, len(records))
	for i, rec := range records {
		q, err := rec.Normalize()
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// EncodeQuestions is the inverse of DecodeQuestions.
func EncodeQuestions(questions []Question) ([]byte, error) {
	records := make([]QuestionRecord, 0, len(questions))
	for _, q := range questions {
		rec, err := RecordOf(q)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return json.Marshal(records)
}

// Normalize validates the record and converts it to its Question variant.
func (r QuestionRecord) Normalize() (Question, error) {
	kind := KindMultipleChoice
	if r.Type != "" {
		k, ok := ParseQuestionKind(r.Type)
		if !ok {
			return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, r.Type)
		}
		kind = k
	}

	switch kind {
	case KindMultipleChoice:
		var idx int
		if err := json.Unmarshal(r.Answer, &idx); err != nil {
			return nil, fmt.Errorf("%w: answer must be an option index", ErrInvalidQuestion)
		}
		if idx < 0 || idx >= len(r.Options) {
			return nil, fmt.Errorf("%w: answer %d out of %d options", ErrInvalidQuestion, idx, len(r.Options))
		}
		return MultipleChoice{
			Prompt:           r.Question,
			Options:          append([]string(nil), r.Options...),
			CorrectIndex:     idx,
			TimeLimitSeconds: r.Time,
		}, nil
	case KindFillBlank:
		var text string
		if err := json.Unmarshal(r.Answer, &text); err != nil || text == "" {
			return nil, fmt.Errorf("%w: fill-blank answer must be a non-empty string", ErrInvalidQuestion)
		}
		return FillBlank{Prompt: r.Question, CorrectAnswer: text}, nil
	case KindImageIdentify:
		correct := 0
		for _, img := range r.Images {
			if img.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return nil, fmt.Errorf("%w: expected one correct image, got %d", ErrInvalidQuestion, correct)
		}
		return ImageIdentify{Prompt: r.Question, Images: append([]ImageOption(nil), r.Images...)}, nil
	case KindSentenceBuilder:
		seq := r.CorrectSequence
		if len(seq) == 0 && len(r.Answer) > 0 {
			if err := json.Unmarshal(r.Answer, &seq); err != nil {
				return nil, fmt.Errorf("%w: sentence answer must be a word list", ErrInvalidQuestion)
			}
		}
		if len(seq) == 0 || !isPermutation(r.Words, seq) {
			return nil, fmt.Errorf("%w: correct sequence is not a permutation of words", ErrInvalidQuestion)
		}
		return SentenceBuilder{
			Prompt:          r.Question,
			Words:           append([]string(nil), r.Words...),
			CorrectSequence: append([]string(nil), seq...),
		}, nil
	}
	return nil, fmt.Errorf("%w: unhandled kind %s", ErrInvalidQuestion, kind)
}

// RecordOf converts a question back to its content record.
func RecordOf(q Question) (QuestionRecord, error) {
	rec := QuestionRecord{Type: q.Kind().String(), Question: q.Text()}
	switch q := q.(type) {
	case MultipleChoice:
		rec.Options = q.Options
		rec.Time = q.TimeLimitSeconds
		rec.Answer, _ = json.Marshal(q.CorrectIndex)
	case FillBlank:
		rec.Answer, _ = json.Marshal(q.CorrectAnswer)
	case ImageIdentify:
		rec.Images = q.Images
	case SentenceBuilder:
		rec.Words = q.Words
		rec.CorrectSequence = q.CorrectSequence
	default:
		return QuestionRecord{}, fmt.Errorf("%w: %T", ErrInvalidQuestion, q)
	}
	return rec, nil
}

func isPermutation(words, seq []string) bool {
	if len(words) != len(seq) {
		return false
	}
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	for _, w := range seq {
		counts[w]--
		if counts[w] < 0 {
			return false
		}
	}
	return true
}

// TopicManifest lists the topics of a subject.
type TopicManifest struct {
	Title  string                `json:"title"`
	Topics map[string]TopicEntry `json:"topics"`
}

// TopicEntry describes one topic. Content files may give just the title string.
type TopicEntry struct {
	Title     string   `json:"title"`
	GameModes []string `json:"gameModes,omitempty"`
}

func (e *TopicEntry) UnmarshalJSON(data []byte) error {
	var title string
	if err := json.Unmarshal(data, &title); err == nil {
		e.Title = title
		return nil
	}
	type plain TopicEntry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = TopicEntry(p)
	return nil
}
