package middleware

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"
	"time"

	"github.com/rs/zerolog"

	"github.com/keshon/botkit/internal/command"
	"github.com/keshon/botkit/pkg/compose"
	"github.com/keshon/botkit/pkg/util"
)

// DefaultCooldownMessage is sent to a user still cooling down. {{.Remaining}}
// is replaced by the time left, e.g. "9.5s".
const DefaultCooldownMessage = "Please wait **{{.Remaining}}** before using this command again."

// Trigger starts the cooldown for the current user.
type Trigger func()

// CooldownKey holds the Trigger of a cooldown configured with WithManualTrigger.
var CooldownKey = compose.NewKey[Trigger]("cooldown")

type cooldownOptions struct {
	message string
	manual  bool
	now     func() time.Time
}

// CooldownOption configures Cooldown.
type CooldownOption func(*cooldownOptions)

// WithMessage replaces the notice template.
func WithMessage(tpl string) CooldownOption {
	return func(o *cooldownOptions) { o.message = tpl }
}

// WithManualTrigger leaves starting the cooldown to the runner, through the
// Trigger stored under CooldownKey.
func WithManualTrigger() CooldownOption {
	return func(o *cooldownOptions) { o.manual = true }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CooldownOption {
	return func(o *cooldownOptions) { o.now = now }
}

// cooldowns tracks expirations per command and user.
type cooldowns struct {
	duration time.Duration
	opts     cooldownOptions
	tpl      *template.Template

	mu      sync.Mutex
	expires map[string]map[string]time.Time
}

func newCooldowns(d time.Duration, opts []CooldownOption) *cooldowns {
	o := cooldownOptions{message: DefaultCooldownMessage, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &cooldowns{
		duration: d,
		opts:     o,
		tpl:      template.Must(template.New("cooldown").Parse(o.message)),
		expires:  make(map[string]map[string]time.Time),
	}
}

// remaining returns the time left for user on cmd, if any.
func (c *cooldowns) remaining(cmd, user string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.expires[cmd][user]
	if !ok {
		return 0, false
	}
	left := exp.Sub(c.opts.now())
	if left <= 0 {
		return 0, false
	}
	return left, true
}

func (c *cooldowns) start(cmd, user string) {
	exp := c.opts.now().Add(c.duration)

	c.mu.Lock()
	if c.expires[cmd] == nil {
		c.expires[cmd] = make(map[string]time.Time)
	}
	c.expires[cmd][user] = exp
	c.mu.Unlock()

	// Cleanup only; expiry is decided by comparing timestamps.
	time.AfterFunc(c.duration, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.expires[cmd][user].Equal(exp) {
			delete(c.expires[cmd], user)
		}
	})
}

// check replies with the notice and reports false while user is cooling down.
func (c *cooldowns) check(i *command.Interaction, cmd string) (bool, error) {
	left, active := c.remaining(cmd, i.User().ID)
	if !active {
		return true, nil
	}

	var buf bytes.Buffer
	if err := c.tpl.Execute(&buf, struct{ Remaining string }{util.FormatDuration(left)}); err != nil {
		return false, fmt.Errorf("failed to render cooldown message: %w", err)
	}
	if err := i.RespondEphemeral(buf.String()); err != nil {
		return false, fmt.Errorf("failed to send cooldown notice: %w", err)
	}
	return false, nil
}

// Cooldown limits how often each user may run a command. While a user is
// cooling down the pipeline halts with an ephemeral notice. The cooldown
// starts as soon as the middleware passes, unless WithManualTrigger is given.
func Cooldown(d time.Duration, opts ...CooldownOption) compose.Middleware {
	cd := newCooldowns(d, opts)

	return func(ctx context.Context, c compose.Context) (compose.Fragment, error) {
		i := command.InteractionKey.MustGet(c)
		name := command.CommandKey.MustGet(c).Name()

		ok, err := cd.check(i, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, compose.ErrHalt
		}

		user := i.User().ID
		var once sync.Once
		trigger := Trigger(func() {
			once.Do(func() { cd.start(name, user) })
		})
		if !cd.opts.manual {
			trigger()
		}
		return CooldownKey.Set(trigger), nil
	}
}

// CooldownInhibitor is Cooldown in inhibitor form, for Command.Inhibit. The
// cooldown starts whenever the inhibitor allows a run.
func CooldownInhibitor(d time.Duration, opts ...CooldownOption) command.Inhibitor {
	cd := newCooldowns(d, opts)

	return func(ctx context.Context, i *command.Interaction, cmd *command.Command) bool {
		ok, err := cd.check(i, cmd.Name())
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("command", cmd.Name()).Msg("Cooldown check failed")
			return false
		}
		if !ok {
			return false
		}
		cd.start(cmd.Name(), i.User().ID)
		return true
	}
}
