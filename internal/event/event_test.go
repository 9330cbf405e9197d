package event

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/botkit/pkg/compose"
)

type fakeBinder struct {
	handlers []interface{}
	once     []interface{}
}

func (f *fakeBinder) AddHandler(h interface{}) func() {
	f.handlers = append(f.handlers, h)
	return func() {}
}

func (f *fakeBinder) AddHandlerOnce(h interface{}) func() {
	f.once = append(f.once, h)
	return func() {}
}

func TestBuildWithoutRunnerFails(t *testing.T) {
	_, err := New[*discordgo.MessageCreate]("messageCreate").Build()
	assert.ErrorIs(t, err, ErrNoRunner)

	assert.Panics(t, func() {
		New[*discordgo.MessageCreate]("messageCreate").MustBuild()
	})
}

func TestHandleRunsPipeline(t *testing.T) {
	author := compose.NewKey[string]("author")
	var got string

	e := New[*discordgo.MessageCreate]("messageCreate").
		Use(func(ctx context.Context, c compose.Context) (compose.Fragment, error) {
			m := Payload[*discordgo.MessageCreate](c)
			return author.Set(m.Author.Username), nil
		}).
		Run(func(ctx context.Context, c compose.Context) error {
			got = author.MustGet(c)
			_, ok := SessionKey.Get(c)
			assert.True(t, ok)
			return nil
		}).
		MustBuild()

	msg := &discordgo.MessageCreate{Message: &discordgo.Message{Author: &discordgo.User{Username: "bob"}}}
	assert.True(t, e.Handle(context.Background(), &discordgo.Session{}, msg))
	assert.Equal(t, "bob", got)
}

func TestHandleSwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	failing := New[*discordgo.Ready]("ready").
		Run(func(context.Context, compose.Context) error { return errors.New("nope") }).
		MustBuild()
	assert.True(t, failing.Handle(ctx, nil, &discordgo.Ready{}))
	assert.Contains(t, buf.String(), `"event":"ready"`)
	assert.Contains(t, buf.String(), "nope")

	buf.Reset()
	panicking := New[*discordgo.Ready]("ready").
		Run(func(context.Context, compose.Context) error { panic("bad") }).
		MustBuild()
	assert.NotPanics(t, func() { panicking.Handle(ctx, nil, &discordgo.Ready{}) })
	assert.Contains(t, buf.String(), "Event panicked")
}

func TestBindRespectsOnce(t *testing.T) {
	calls := 0
	run := func(context.Context, compose.Context) error {
		calls++
		return nil
	}

	b := &fakeBinder{}
	New[*discordgo.Ready]("ready").Once().Run(run).MustBuild().Bind(context.Background(), b)
	New[*discordgo.MessageCreate]("messageCreate").Run(run).MustBuild().Bind(context.Background(), b)

	require.Len(t, b.once, 1)
	require.Len(t, b.handlers, 1)

	ready, ok := b.once[0].(func(*discordgo.Session, *discordgo.Ready))
	require.True(t, ok, "handler must have a discordgo handler signature")
	ready(nil, &discordgo.Ready{})

	msg, ok := b.handlers[0].(func(*discordgo.Session, *discordgo.MessageCreate))
	require.True(t, ok)
	msg(nil, &discordgo.MessageCreate{Message: &discordgo.Message{}})

	assert.Equal(t, 2, calls)
}
