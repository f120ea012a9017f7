package mqttcore

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/RoanBrand/mqttcore/internal/config"
	"github.com/RoanBrand/mqttcore/internal/metrics"
	"github.com/RoanBrand/mqttcore/internal/queue"
	"github.com/RoanBrand/mqttcore/internal/ratelimit"
	"github.com/RoanBrand/mqttcore/internal/store"
	"github.com/RoanBrand/mqttcore/internal/websocket"
	"github.com/RoanBrand/mqttcore/packet"
	"github.com/RoanBrand/mqttcore/session"
)

var errNoJournal = errors.New("will journal not configured")

type Server struct {
	config.Config

	// Auther is optional. If nil, all clients and subscriptions are allowed.
	Auther Auther

	errs       chan error
	ctx        context.Context
	cancel     context.CancelFunc
	tcpL, tlsL net.Listener
	httpS      []*http.Server // ws, wss, metrics

	sessions *session.Table

	wills       queue.Basic
	dispatchers sync.WaitGroup
	journal     *store.WillJournal

	limiter  *ratelimit.IPLimiter
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	connsLock sync.Mutex
	conns     map[net.Conn]struct{}
	connsWG   sync.WaitGroup
	stopping  bool
	stopOnce  sync.Once
}

// Run starts all configured listeners and blocks until the server stops
// or one of them fails.
func (s *Server) Run() error {
	if err := s.setup(); err != nil {
		return err
	}

	if err := s.setupTCP(); err != nil {
		return err
	}
	if err := s.setupTLS(); err != nil {
		return err
	}
	if err := s.setupWebsocket(); err != nil {
		return err
	}
	if err := s.setupWebsocketSecure(); err != nil {
		return err
	}
	s.setupMetrics()

	lf := make(log.Fields, 5)
	if s.TCP.Address != "" {
		lf["tcp_address"] = s.TCP.Address
	}
	if s.TLS.Address != "" {
		lf["tls_address"] = s.TLS.Address
	}
	if s.WS.Address != "" {
		lf["ws_address"] = s.WS.Address
	}
	if s.WSS.Address != "" {
		lf["wss_address"] = s.WSS.Address
	}
	if s.Metrics.Address != "" {
		lf["metrics_address"] = s.Metrics.Address
	}
	log.WithFields(lf).Info("Starting MQTT server")

	return <-s.errs
}

// Stop closes all listeners and connections, then waits for released wills
// to be dispatched.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		log.Info("Shutting down MQTT server")
		if s.tcpL != nil {
			s.tcpL.Close()
		}
		if s.tlsL != nil {
			s.tlsL.Close()
		}
		for _, hs := range s.httpS {
			hs.Close()
		}

		s.connsLock.Lock()
		s.stopping = true
		for c := range s.conns {
			c.Close()
		}
		s.connsLock.Unlock()
		s.connsWG.Wait()

		if s.cancel != nil {
			s.cancel()
			s.wills.Interrupt()
			s.dispatchers.Wait()
		}

		if s.journal != nil {
			if err := s.journal.Close(); err != nil {
				log.WithFields(log.Fields{
					"err": err,
				}).Error("failed to close will journal")
			}
		}
	})
}

// Gatherer returns the server's metrics registry.
func (s *Server) Gatherer() prometheus.Gatherer {
	return s.registry
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	return s.sessions.Len()
}

// DrainWills hands every journaled will to iter in release order, removing it.
func (s *Server) DrainWills(iter func(connID string, released time.Time, p *packet.Publish) error) (int, error) {
	if s.journal == nil {
		return 0, errNoJournal
	}
	return s.journal.Drain(iter)
}

func (s *Server) setup() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := s.setupLogging(); err != nil {
		return err
	}

	s.errs = make(chan error, 8)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conns = make(map[net.Conn]struct{}, 16)
	s.wills.Init()

	opts := []session.Option{
		session.WithMaxQoS(packet.QoS(*s.MaxQoS)),
		session.WithWillHandler(s.releaseWill),
	}
	if s.Auther != nil {
		opts = append(opts, session.WithAuther(s.Auther))
	}
	s.sessions = session.NewTable(opts...)

	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry, func() float64 {
		return float64(s.sessions.Len())
	})

	if s.Store.Dir != "" {
		j, err := store.NewWillJournal(s.Store.Dir)
		if err != nil {
			return err
		}
		s.journal = j
	}

	if s.RateLimit.PerSecond > 0 {
		s.limiter = ratelimit.NewIPLimiter(s.RateLimit.PerSecond, s.RateLimit.Burst, time.Minute*5)
		go s.limiter.Run(s.ctx.Done())
	}

	s.dispatchers.Add(1)
	go s.wills.StartDispatcher(s.ctx, s.dispatchWill, &s.dispatchers)
	return nil
}

func (s *Server) setupLogging() error {
	if s.Log.File != "" {
		f, err := os.OpenFile(s.Log.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}
	if s.Log.Level != "" {
		switch strings.ToLower(s.Log.Level) {
		case "error":
			log.SetLevel(log.ErrorLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "info":
			log.SetLevel(log.InfoLevel)
		case "debug":
			log.SetLevel(log.DebugLevel)
		default:
			return errors.New("unknown log level: " + s.Log.Level)
		}
	}

	return nil
}

func (s *Server) setupTCP() error {
	if s.TCP.Address == "" {
		return nil
	}

	l, err := net.Listen("tcp", s.TCP.Address)
	if err != nil {
		return err
	}

	s.tcpL = l
	go s.startDispatcher(l)
	return nil
}

func (s *Server) setupTLS() error {
	if s.TLS.Address == "" {
		return nil
	}

	kp, err := tls.LoadX509KeyPair(s.TLS.Cert, s.TLS.Key)
	if err != nil {
		return err
	}
	config := tls.Config{Certificates: []tls.Certificate{kp}}

	l, err := tls.Listen("tcp", s.TLS.Address, &config)
	if err != nil {
		return err
	}

	s.tlsL = l
	go s.startDispatcher(l)
	return nil
}

func (s *Server) setupWebsocket() error {
	if s.WS.Address == "" {
		return nil
	}

	hs := websocket.NewServer(s.WS.Address, s.WS.CheckOrigin, s.startSession)
	s.httpS = append(s.httpS, hs)
	go func() {
		s.errs <- httpErr(hs.ListenAndServe())
	}()
	return nil
}

func (s *Server) setupWebsocketSecure() error {
	c := &s.WSS
	if c.Address == "" {
		return nil
	}

	hs := websocket.NewServer(c.Address, c.CheckOrigin, s.startSession)
	s.httpS = append(s.httpS, hs)
	go func() {
		s.errs <- httpErr(hs.ListenAndServeTLS(c.Cert, c.Key))
	}()
	return nil
}

func (s *Server) setupMetrics() {
	if s.Metrics.Address == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(s.Metrics.Path, metrics.Handler(s.registry))
	hs := &http.Server{Addr: s.Metrics.Address, Handler: mux}
	s.httpS = append(s.httpS, hs)
	go func() {
		s.errs <- httpErr(hs.ListenAndServe())
	}()
}

func httpErr(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) startDispatcher(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			s.errs <- err
			return
		}

		go s.startSession(conn)
	}
}

// trackConn registers c for Stop. It reports false if the server is stopping.
func (s *Server) trackConn(c net.Conn) bool {
	s.connsLock.Lock()
	defer s.connsLock.Unlock()

	if s.stopping {
		return false
	}
	s.conns[c] = struct{}{}
	s.connsWG.Add(1)
	return true
}

func (s *Server) untrackConn(c net.Conn) {
	s.connsLock.Lock()
	delete(s.conns, c)
	s.connsLock.Unlock()
	s.connsWG.Done()
}

// releaseWill is called by the session table, outside of its locks.
func (s *Server) releaseWill(connID string, w packet.Will) {
	s.metrics.WillsReleased.Inc()
	s.wills.Add(queue.GetItem(connID, w))
}

func (s *Server) dispatchWill(i *queue.Item) error {
	l := log.WithFields(log.Fields{
		"conn":   i.ConnID,
		"topic":  i.Will.Topic,
		"qos":    i.Will.QoS,
		"retain": i.Will.Retain,
	})
	l.Info("Will released")

	if s.journal == nil {
		return nil
	}

	if err := s.journal.Put(i.ConnID, i.Released, i.Will); err != nil {
		l.WithField("err", err).Error("failed to journal will")
		return nil
	}
	s.metrics.WillsJournaled.Inc()
	return nil
}
