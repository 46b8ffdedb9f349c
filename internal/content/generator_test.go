package content

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"devfeed/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeModel) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestGeneratePost(t *testing.T) {
	model := &fakeModel{reply: "Go 1.23 ships range-over-func #golang"}
	gen := NewGenerator(model, 3, time.Minute)

	draft, err := gen.GeneratePost(context.Background(), "  iterators  ", KindCode)
	require.NoError(t, err)
	assert.Equal(t, model.reply, draft.Content)
	assert.Equal(t, KindCode, draft.Type)
	assert.True(t, draft.IsAIGenerated)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "User request: iterators")
	assert.Contains(t, model.prompts[0], kindInstructions[KindCode])
}

func TestGeneratePostUnknownKindFallsBackToText(t *testing.T) {
	gen := NewGenerator(&fakeModel{reply: "hi"}, 3, time.Minute)

	draft, err := gen.GeneratePost(context.Background(), "hello", "poetry")
	require.NoError(t, err)
	assert.Equal(t, KindText, draft.Type)
}

func TestGeneratorValidation(t *testing.T) {
	model := &fakeModel{reply: "x"}
	gen := NewGenerator(model, 3, time.Minute)
	ctx := context.Background()

	_, err := gen.GeneratePost(ctx, " ", KindText)
	assert.True(t, utils.IsErrorCode(err, utils.ErrValidation))
	_, err = gen.GeneratePost(ctx, strings.Repeat("a", MaxPromptLength+1), KindText)
	assert.True(t, utils.IsErrorCode(err, utils.ErrValidation))
	_, err = gen.GenerateHashtags(ctx, "")
	assert.True(t, utils.IsErrorCode(err, utils.ErrValidation))
	_, err = gen.SuggestImagePrompts(ctx, "\n")
	assert.True(t, utils.IsErrorCode(err, utils.ErrValidation))
	assert.Zero(t, model.calls)
}

func TestGeneratorWithoutModelIsUnavailable(t *testing.T) {
	gen := NewGenerator(nil, 3, time.Minute)
	assert.False(t, gen.Available())

	_, err := gen.GeneratePost(context.Background(), "hello", KindText)
	assert.True(t, utils.IsErrorCode(err, utils.ErrUnavailable))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	model := &fakeModel{err: errors.New("quota exceeded")}
	gen := NewGenerator(model, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := gen.GenerateHashtags(ctx, "some post")
		assert.True(t, utils.IsErrorCode(err, utils.ErrUnavailable))
	}
	// Calls after the second failure are short-circuited.
	assert.Equal(t, 2, model.calls)
}

func TestGenerateHashtags(t *testing.T) {
	gen := NewGenerator(&fakeModel{reply: "#Go #golang, concurrency #go #backend #dev #api #cloud #k8s #tests #extra"}, 3, time.Minute)

	tags, err := gen.GenerateHashtags(context.Background(), "a post about goroutines")
	require.NoError(t, err)
	assert.Equal(t, []string{"#Go", "#golang", "#backend", "#dev", "#api", "#cloud", "#k8s", "#tests"}, tags)
}

func TestSuggestImagePrompts(t *testing.T) {
	gen := NewGenerator(&fakeModel{reply: "1. A gopher at a desk\n\n2) Neon circuit board\n- Sunrise over a server farm\nA fourth idea"}, 3, time.Minute)

	prompts, err := gen.SuggestImagePrompts(context.Background(), "shipping on friday")
	require.NoError(t, err)
	assert.Equal(t, []string{"A gopher at a desk", "Neon circuit board", "Sunrise over a server farm"}, prompts)
}

func TestParseHashtagsEmpty(t *testing.T) {
	assert.Empty(t, ParseHashtags("no tags here # !", MaxHashtags))
	assert.NotNil(t, ParseHashtags("", MaxHashtags))
}
