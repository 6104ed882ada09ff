/*
Package session keeps track of who is signed in: the platform user, the matching profile row and the role flags
derived from it.

A Controller owns this state through a single goroutine. Auth events, realtime profile updates and refreshes are all
funnelled to that goroutine, while readers only ever see immutable snapshots.
*/
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/silktrader/deadpoets/pkg/auth"
	"github.com/silktrader/deadpoets/pkg/client"
	"github.com/silktrader/deadpoets/pkg/profiles"
	"github.com/silktrader/deadpoets/pkg/realtime"
	"github.com/silktrader/deadpoets/pkg/roles"
	"github.com/sirupsen/logrus"
)

var ErrClosed = errors.New("session controller closed")

// Gateway is the part of the platform client the controller depends on.
type Gateway interface {
	Session(ctx context.Context) (*auth.User, error)
	GetProfile(ctx context.Context, id string) (profiles.Profile, error)
	SubscribeProfile(ctx context.Context, id string) (*client.Feed, error)
	OnAuthStateChange(listener client.AuthListener) (unsubscribe func())
}

// Snapshot is a read-only view of the session. Profile is nil when the user has no profile row yet; neither the
// profile nor its slices may be modified by readers.
type Snapshot struct {
	User    *auth.User
	Profile *profiles.Profile
	IsNew   bool
	Loading bool
	roles.Flags
}

// SignedIn reports whether a user is present.
func (s Snapshot) SignedIn() bool {
	return s.User != nil
}

// UserId is the signed in user's id, or an empty string.
func (s Snapshot) UserId() string {
	if s.User == nil {
		return ""
	}
	return s.User.Id
}

type Config struct {
	Gateway        Gateway
	Logger         logrus.FieldLogger
	MainAdminEmail string
}

type Controller struct {
	gateway        Gateway
	logger         logrus.FieldLogger
	mainAdminEmail string

	ctx    context.Context
	cancel context.CancelFunc

	updates chan func(*state)
	done    chan struct{}

	startOnce   sync.Once
	closeOnce   sync.Once
	running     bool
	unsubscribe func()

	mu       sync.RWMutex
	current  Snapshot
	watchers map[int]chan Snapshot
	nextId   int
}

func New(cfg Config) (*Controller, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gateway:        cfg.Gateway,
		logger:         cfg.Logger,
		mainAdminEmail: cfg.MainAdminEmail,
		ctx:            ctx,
		cancel:         cancel,
		updates:        make(chan func(*state)),
		done:           make(chan struct{}),
		current:        Snapshot{Loading: true},
		watchers:       make(map[int]chan Snapshot),
	}, nil
}

// state is owned by the run goroutine. epoch grows on every sign in and sign out so that results of loads started
// for a previous user are dropped.
type state struct {
	snapshot Snapshot
	epoch    int
	feed     *client.Feed
}

func (s *state) closeFeed() {
	if s.feed != nil {
		s.feed.Close()
		s.feed = nil
	}
}

// Start launches the controller and performs the initial load: the current session first, then its profile. It
// returns once the first non-loading snapshot is published.
func (c *Controller) Start(ctx context.Context) {
	var first bool
	c.startOnce.Do(func() {
		first = true
		c.running = true
		go c.run()
		c.unsubscribe = c.gateway.OnAuthStateChange(c.onAuthStateChange)
	})
	if !first {
		return
	}

	user, err := c.gateway.Session(ctx)
	if err != nil {
		c.logger.WithError(err).Error("can't fetch the current session")
	}
	epoch, err := c.switchUser(user)
	if err == nil && user != nil {
		c.load(ctx, *user, epoch)
	}
}

func (c *Controller) run() {
	defer close(c.done)
	var s = state{snapshot: Snapshot{Loading: true}}
	for {
		select {
		case update := <-c.updates:
			update(&s)
			c.publish(s.snapshot)
		case <-c.ctx.Done():
			s.closeFeed()
			return
		}
	}
}

// apply hands an update to the run goroutine and waits for it to be applied.
func (c *Controller) apply(update func(*state)) error {
	var applied = make(chan struct{})
	select {
	case c.updates <- func(s *state) {
		defer close(applied)
		update(s)
	}:
	case <-c.ctx.Done():
		return ErrClosed
	}
	select {
	case <-applied:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Controller) onAuthStateChange(event client.AuthEvent, user *auth.User) {
	c.logger.WithField("event", event).Debug("auth state changed")
	if event == client.SignedOut {
		user = nil
	}
	// switching synchronously keeps events in the order the gateway emitted them
	epoch, err := c.switchUser(user)
	if err == nil && user != nil {
		go c.load(c.ctx, *user, epoch)
	}
}

// switchUser replaces the session user, dropping the previous profile and its feed; nil signs out.
func (c *Controller) switchUser(user *auth.User) (epoch int, err error) {
	err = c.apply(func(s *state) {
		s.epoch++
		epoch = s.epoch
		s.closeFeed()
		if user == nil {
			s.snapshot = Snapshot{}
			return
		}
		var copied = *user
		s.snapshot = Snapshot{User: &copied, Loading: true}
	})
	return epoch, err
}

// load fetches the user's profile and subscribes to its updates.
func (c *Controller) load(ctx context.Context, user auth.User, epoch int) {
	profile := c.fetchProfile(ctx, user.Id)
	feed, err := c.gateway.SubscribeProfile(c.ctx, user.Id)
	if err != nil {
		c.logger.WithError(err).WithField("profile", user.Id).Warn("can't subscribe to profile updates")
		feed = nil
	}

	var current bool
	err = c.apply(func(s *state) {
		if s.epoch != epoch {
			return
		}
		current = true
		s.feed = feed
		c.setProfile(s, profile)
		s.snapshot.Loading = false
	})
	if err != nil || !current {
		if feed != nil {
			feed.Close()
		}
		return
	}
	if feed != nil {
		go c.follow(feed, epoch)
	}
}

// follow relays realtime events until the feed closes.
func (c *Controller) follow(feed *client.Feed, epoch int) {
	for event := range feed.Events {
		err := c.apply(func(s *state) {
			if s.epoch != epoch {
				return
			}
			switch event.Type {
			case realtime.Delete:
				c.setProfile(s, nil)
			case realtime.Update:
				var profile profiles.Profile
				if err := json.Unmarshal(event.Row, &profile); err != nil {
					c.logger.WithError(err).Warn("malformed profile update")
					return
				}
				c.setProfile(s, &profile)
			}
		})
		if err != nil {
			return
		}
	}
}

// fetchProfile returns nil when the profile doesn't exist or can't be fetched.
func (c *Controller) fetchProfile(ctx context.Context, id string) *profiles.Profile {
	profile, err := c.gateway.GetProfile(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		return nil
	}
	if err != nil {
		c.logger.WithError(err).WithField("profile", id).Error("can't fetch profile")
		return nil
	}
	return &profile
}

// setProfile recomputes the derived flags; without a profile row the session email stands in.
func (c *Controller) setProfile(s *state, profile *profiles.Profile) {
	s.snapshot.Profile = profile
	s.snapshot.IsNew = s.snapshot.User != nil && (profile == nil || !profile.IsComplete())

	var email string
	var role = roles.User
	if s.snapshot.User != nil {
		email = s.snapshot.User.Email
	}
	if profile != nil {
		if profile.Email != "" {
			email = profile.Email
		}
		role = profile.Role
	}
	if s.snapshot.User == nil {
		s.snapshot.Flags = roles.Flags{}
		return
	}
	s.snapshot.Flags = roles.Derive(email, role, c.mainAdminEmail)
}

// Refresh re-fetches the current profile, typically after the user edited it.
func (c *Controller) Refresh(ctx context.Context) {
	var snapshot = c.Snapshot()
	if snapshot.User == nil {
		return
	}

	var epoch int
	if err := c.apply(func(s *state) { epoch = s.epoch }); err != nil {
		return
	}
	var id = snapshot.User.Id
	profile, err := c.gateway.GetProfile(ctx, id)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		c.logger.WithError(err).WithField("profile", id).Error("can't refresh profile")
		return
	}
	_ = c.apply(func(s *state) {
		if s.epoch != epoch {
			return
		}
		if err != nil {
			c.setProfile(s, nil)
			return
		}
		c.setProfile(s, &profile)
	})
}

// Snapshot returns the latest published state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Watch returns a channel receiving the latest snapshot after every change, plus a function to stop watching.
// Slow readers only miss intermediate snapshots.
func (c *Controller) Watch() (<-chan Snapshot, func()) {
	c.mu.Lock()
	var id = c.nextId
	c.nextId++
	var ch = make(chan Snapshot, 1)
	ch <- c.current
	c.watchers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

func (c *Controller) publish(snapshot Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = snapshot
	for _, ch := range c.watchers {
		// publish is the only sender, so after draining the buffer the send can't block
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// Close releases the profile feed and the auth listener. It's safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		// waits for a concurrent Start and keeps later ones from launching
		c.startOnce.Do(func() {})
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.cancel()
		if c.running {
			<-c.done
		}
	})
}
