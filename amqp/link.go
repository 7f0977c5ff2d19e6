package amqp

import (
	"crypto/tls"
	"strconv"
	"sync"
	"time"

	driver "github.com/rabbitmq/amqp091-go"
	"go.bryk.io/x/cargonetsim/errors"
	xlog "go.bryk.io/x/cargonetsim/log"
)

// Message sent to the broker.
type Message = driver.Publishing

// Delivery is a message received from the broker.
type Delivery = driver.Delivery

// Connection lifecycle tuning. Initial dialing is bounded; once a link has
// been established, lost connections are recovered automatically with the
// same linear backoff, and publish attempts use a separate, much shorter,
// retry policy (see Transport).
const (
	// MaxConnectAttempts bounds how many times a link is dialed when it is
	// first opened. Reconnects after a lost connection are not bounded:
	// they keep retrying until the link is shut down.
	MaxConnectAttempts = 5

	// connectBackoff grows linearly with the attempt number: the n-th
	// retry waits n*connectBackoff.
	connectBackoff = 2 * time.Second

	// confirmWait is how long a publish waits for the broker's
	// confirmation before the attempt is considered failed.
	confirmWait = 3 * time.Second
)

var errNotConnected = "not connected to a broker"

// link owns one AMQP connection and channel, keeps the client's topology
// declared on it, and re-establishes both when the broker drops them.
// A Transport holds two: one for sending, one for receiving.
type link struct {
	name     string      // link identifier, used in logs and consumer tags
	addr     string      // broker endpoint
	topology Topology    // exchange/queue/binding set this link requires
	log      xlog.Logger // internal logger
	tlsConf  *tls.Config // TLS settings when using AMQPS

	prefetchCount int // in-flight delivery cap for the receive side
	prefetchSize  int // in-flight byte cap for the receive side

	conn    *driver.Connection
	channel *driver.Channel

	notifyConnClose chan *driver.Error
	notifyChanClose chan *driver.Error
	notifyConfirm   chan driver.Confirmation
	notifyReturn    chan driver.Return

	// status receives readiness transitions: true after every successful
	// (re)connect, false when the link is lost. Buffered so the watcher
	// never blocks on a slow listener.
	status chan bool

	// pushMu serializes publishes so broker confirmations pair with the
	// message that is waiting for them.
	pushMu sync.Mutex

	mu     sync.RWMutex
	ready  bool
	closed bool
	done   chan struct{}
}

// dial opens a link to the broker, retrying up to MaxConnectAttempts with
// linear backoff. On success a watcher goroutine keeps the link alive until
// shutdown is called.
func dial(addr, namePrefix string, options ...Option) (*link, error) {
	l := &link{
		addr:          addr,
		log:           xlog.Discard(),
		prefetchCount: 1,
		status:        make(chan bool, 4),
		done:          make(chan struct{}),
	}
	for _, opt := range options {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	if l.name == "" {
		l.name = randomName(namePrefix)
	}

	var lastErr error
	for attempt := 1; attempt <= MaxConnectAttempts; attempt++ {
		if lastErr = l.connect(); lastErr == nil {
			go l.watch()
			return l, nil
		}
		l.log.WithFields(xlog.Fields{
			"link":    l.name,
			"attempt": attempt,
		}).Warning("connection attempt failed")
		time.Sleep(time.Duration(attempt) * connectBackoff)
	}
	return nil, errors.Wrap(lastErr, "failed to connect to broker")
}

// connect establishes the connection and channel, enables publisher
// confirms and declares the link's topology.
func (l *link) connect() error {
	conn, err := driver.DialTLS(l.addr, l.tlsConf)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	if err = ch.Qos(l.prefetchCount, l.prefetchSize, false); err != nil {
		_ = conn.Close()
		return err
	}
	if err = ch.Confirm(false); err != nil {
		_ = conn.Close()
		return err
	}
	if err = declareTopology(ch, l.topology); err != nil {
		_ = conn.Close()
		return err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close()
		return errors.New("link is shutting down")
	}
	l.conn = conn
	l.channel = ch
	l.notifyConnClose = make(chan *driver.Error, 1)
	l.notifyChanClose = make(chan *driver.Error, 1)
	l.notifyConfirm = make(chan driver.Confirmation, 10)
	l.notifyReturn = make(chan driver.Return, 10)
	conn.NotifyClose(l.notifyConnClose)
	ch.NotifyClose(l.notifyChanClose)
	ch.NotifyPublish(l.notifyConfirm)
	ch.NotifyReturn(l.notifyReturn)
	l.ready = true
	l.mu.Unlock()

	l.notifyStatus(true)
	l.log.WithField("link", l.name).Info("connected")
	return nil
}

// watch reacts to connection or channel loss by reconnecting the link,
// backing off linearly between attempts, until shutdown.
func (l *link) watch() {
	for {
		l.mu.RLock()
		connClose := l.notifyConnClose
		chanClose := l.notifyChanClose
		returns := l.notifyReturn
		l.mu.RUnlock()

		select {
		case <-l.done:
			return
		case r, ok := <-returns:
			if ok {
				l.log.WithFields(xlog.Fields{
					"link":        l.name,
					"routing-key": r.RoutingKey,
				}).Warning("message returned undeliverable")
			}
			continue
		case _, ok := <-connClose:
			if !ok {
				continue
			}
		case _, ok := <-chanClose:
			if !ok {
				continue
			}
		}

		// Connection or channel lost; recover unless shutting down.
		l.setReady(false)
		l.notifyStatus(false)
		l.log.WithField("link", l.name).Warning("connection lost")
		for attempt := 1; ; attempt++ {
			select {
			case <-l.done:
				return
			case <-time.After(time.Duration(attempt) * connectBackoff):
			}
			if err := l.connect(); err == nil {
				break
			}
			l.log.WithFields(xlog.Fields{
				"link":    l.name,
				"attempt": attempt,
			}).Warning("reconnect attempt failed")
		}
	}
}

// push publishes one message and waits for the broker's confirmation.
// Publishes are serialized per link so each confirmation pairs with the
// message waiting on it.
func (l *link) push(msg Message, opts MessageOptions) (bool, error) {
	l.pushMu.Lock()
	defer l.pushMu.Unlock()

	l.mu.RLock()
	ready := l.ready
	ch := l.channel
	confirms := l.notifyConfirm
	l.mu.RUnlock()
	if !ready {
		return false, errors.New(errNotConnected)
	}

	if opts.Persistent {
		msg.DeliveryMode = driver.Persistent
	}
	if opts.TTL > 0 {
		msg.Expiration = strconv.Itoa(opts.TTL * 1000)
	}

	// Drop confirmations left over from a timed-out attempt so they never
	// pair with this message.
	for drained := false; !drained; {
		select {
		case <-confirms:
		default:
			drained = true
		}
	}
	err := ch.Publish(opts.Exchange, opts.RoutingKey, opts.Mandatory, false, msg)
	if err != nil {
		return false, err
	}

	select {
	case confirmation, ok := <-confirms:
		if !ok {
			return false, errors.New(errNotConnected)
		}
		return confirmation.Ack, nil
	case <-l.done:
		return false, errors.New("link is shutting down")
	case <-time.After(confirmWait):
		return false, errors.New("publish not confirmed")
	}
}

// consume opens an auto-acknowledged subscription on the given queue. The
// returned channel closes when the link drops; callers re-subscribe after
// the next ready notification.
func (l *link) consume(queue string) (<-chan Delivery, error) {
	l.mu.RLock()
	ready := l.ready
	ch := l.channel
	l.mu.RUnlock()
	if !ready {
		return nil, errors.New(errNotConnected)
	}
	return ch.Consume(queue, randomName(l.name), true, false, false, false, nil)
}

func (l *link) isReady() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ready
}

func (l *link) setReady(v bool) {
	l.mu.Lock()
	l.ready = v
	l.mu.Unlock()
}

// notifyStatus delivers a readiness transition without ever blocking: when
// the buffer is full the oldest pending notification is dropped, keeping
// the latest state observable.
func (l *link) notifyStatus(v bool) {
	select {
	case l.status <- v:
	default:
		select {
		case <-l.status:
		default:
		}
		l.status <- v
	}
}

// shutdown stops the watcher and closes the channel and connection.
func (l *link) shutdown() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.ready = false
	conn := l.conn
	ch := l.channel
	l.mu.Unlock()

	close(l.done)
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
