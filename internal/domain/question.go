package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuestionKind discriminates the Question variants.
type QuestionKind int

const (
	KindMultipleChoice QuestionKind = iota + 1
	KindFillBlank
	KindImageIdentify
	KindSentenceBuilder
)

var kindNames = map[QuestionKind]string{
	KindMultipleChoice:  "multiple_choice",
	KindFillBlank:       "fill_blank",
	KindImageIdentify:   "image_identify",
	KindSentenceBuilder: "sentence_builder",
}

func (k QuestionKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k QuestionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseQuestionKind maps a wire name to a kind.
func ParseQuestionKind(raw string) (QuestionKind, bool) {
	for kind, name := range kindNames {
		if name == raw {
			return kind, true
		}
	}
	return 0, false
}

// Question is one of MultipleChoice, FillBlank, ImageIdentify or SentenceBuilder.
type Question interface {
	Kind() QuestionKind
	Text() string
	isQuestion()
}

// MultipleChoice has exactly one correct option.
type MultipleChoice struct {
	Prompt           string
	Options          []string
	CorrectIndex     int
	TimeLimitSeconds int // 0 means the session default
}

// FillBlank is matched case-insensitively after trimming.
type FillBlank struct {
	Prompt        string
	CorrectAnswer string
}

// ImageOption is a selectable picture of an ImageIdentify question.
type ImageOption struct {
	Src       string `json:"src"`
	Label     string `json:"label"`
	IsCorrect bool   `json:"isCorrect"`
}

// ImageIdentify has exactly one correct image.
type ImageIdentify struct {
	Prompt string
	Images []ImageOption
}

// SentenceBuilder asks for Words in the order of CorrectSequence.
type SentenceBuilder struct {
	Prompt          string
	Words           []string
	CorrectSequence []string
}

func (MultipleChoice) Kind() QuestionKind  { return KindMultipleChoice }
func (FillBlank) Kind() QuestionKind       { return KindFillBlank }
func (ImageIdentify) Kind() QuestionKind   { return KindImageIdentify }
func (SentenceBuilder) Kind() QuestionKind { return KindSentenceBuilder }

func (q MultipleChoice) Text() string  { return q.Prompt }
func (q FillBlank) Text() string       { return q.Prompt }
func (q ImageIdentify) Text() string   { return q.Prompt }
func (q SentenceBuilder) Text() string { return q.Prompt }

func (MultipleChoice) isQuestion()  {}
func (FillBlank) isQuestion()       {}
func (ImageIdentify) isQuestion()   {}
func (SentenceBuilder) isQuestion() {}

// Answer is one of ChoiceAnswer, TextAnswer or SequenceAnswer.
type Answer interface {
	isAnswer()
}

// ChoiceAnswer selects an option (multiple-choice) or an image (image-identify) by index.
type ChoiceAnswer struct {
	Index int
}

// TextAnswer is a typed fill-blank response.
type TextAnswer struct {
	Text string
}

// SequenceAnswer is the player's assembled sentence.
type SequenceAnswer struct {
	Words []string
}

func (ChoiceAnswer) isAnswer()   {}
func (TextAnswer) isAnswer()     {}
func (SequenceAnswer) isAnswer() {}

// Evaluate reports whether answer is correct for q. A mismatched answer shape is an error,
// never a silent miss.
func Evaluate(q Question, answer Answer) (bool, error) {
	switch q := q.(type) {
	case MultipleChoice:
		choice, ok := answer.(ChoiceAnswer)
		if !ok {
			return false, ErrAnswerMismatch
		}
		if choice.Index < 0 || choice.Index >= len(q.Options) {
			return false, ErrOptionNotFound
		}
		return choice.Index == q.CorrectIndex, nil
	case FillBlank:
		text, ok := answer.(TextAnswer)
		if !ok {
			return false, ErrAnswerMismatch
		}
		return strings.EqualFold(strings.TrimSpace(text.Text), strings.TrimSpace(q.CorrectAnswer)), nil
	case ImageIdentify:
		choice, ok := answer.(ChoiceAnswer)
		if !ok {
			return false, ErrAnswerMismatch
		}
		if choice.Index < 0 || choice.Index >= len(q.Images) {
			return false, ErrOptionNotFound
		}
		return q.Images[choice.Index].IsCorrect, nil
	case SentenceBuilder:
		seq, ok := answer.(SequenceAnswer)
		if !ok {
			return false, ErrAnswerMismatch
		}
		if len(seq.Words) != len(q.CorrectSequence) {
			return false, nil
		}
		for i := range seq.Words {
			if seq.Words[i] != q.CorrectSequence[i] {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("%w: %T", ErrInvalidQuestion, q)
	}
}

// TimeLimit returns the per-question countdown, falling back to def.
func TimeLimit(q Question, def time.Duration) time.Duration {
	if mc, ok := q.(MultipleChoice); ok && mc.TimeLimitSeconds > 0 {
		return time.Duration(mc.TimeLimitSeconds) * time.Second
	}
	return def
}

// QuestionView is the answer-free projection sent to presentation.
type QuestionView struct {
	Index            int           `json:"index"`
	Total            int           `json:"total"`
	Kind             QuestionKind  `json:"kind"`
	Prompt           string        `json:"prompt"`
	Options          []string      `json:"options,omitempty"`
	Images           []ImageChoice `json:"images,omitempty"`
	Words            []string      `json:"words,omitempty"`
	TimeLimitSeconds int           `json:"timeLimitSeconds"`
	Jackpot          bool          `json:"jackpot"`
}

// ImageChoice is an image without its correctness flag.
type ImageChoice struct {
	Src   string `json:"src"`
	Label string `json:"label"`
}

// View builds the presentation projection. Sentence words are shuffled with shuffle when given.
func View(q Question, shuffle func(n int, swap func(i, j int))) QuestionView {
	view := QuestionView{Kind: q.Kind(), Prompt: q.Text()}
	switch q := q.(type) {
	case MultipleChoice:
		view.Options = append([]string(nil), q.Options...)
	case ImageIdentify:
		for _, img := range q.Images {
			view.Images = append(view.Images, ImageChoice{Src: img.Src, Label: img.Label})
		}
	case SentenceBuilder:
		view.Words = append([]string(nil), q.Words...)
		if shuffle != nil {
			shuffle(len(view.Words), func(i, j int) {
				view.Words[i], view.Words[j] = view.Words[j], view.Words[i]
			})
		}
	}
	return view
}

// CorrectAnswerText renders the expected answer for post-answer feedback.
func CorrectAnswerText(q Question) string {
	switch q := q.(type) {
	case MultipleChoice:
		if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			return q.Options[q.CorrectIndex]
		}
	case FillBlank:
		return q.CorrectAnswer
	case ImageIdentify:
		for _, img := range q.Images {
			if img.IsCorrect {
				return img.Label
			}
		}
	case SentenceBuilder:
		return strings.Join(q.CorrectSequence, " ")
	}
	return ""
}
