package ratelimit

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func tcpAddr(ip string, port int) net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(ip), Port: port}
}

func TestAllowBurstPerIP(t *testing.T) {
	l := NewIPLimiter(0.001, 2, time.Minute)

	assert.True(t, l.Allow(tcpAddr("10.0.0.1", 1000)))
	assert.True(t, l.Allow(tcpAddr("10.0.0.1", 1001)))
	assert.False(t, l.Allow(tcpAddr("10.0.0.1", 1002)), "burst used up")

	assert.True(t, l.Allow(tcpAddr("10.0.0.2", 1000)), "other IPs are independent")
	assert.Equal(t, 2, l.Len())
}

type strAddr string

func (a strAddr) Network() string { return "ws" }
func (a strAddr) String() string  { return string(a) }

func TestExtractIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", extractIP(tcpAddr("10.0.0.1", 5)))
	assert.Equal(t, "192.168.1.9", extractIP(strAddr("192.168.1.9:443")))
	assert.Equal(t, "pipe", extractIP(strAddr("pipe")))
	assert.Equal(t, "", extractIP(nil))

	l := NewIPLimiter(0.001, 1, time.Minute)
	assert.True(t, l.Allow(nil))
	assert.True(t, l.Allow(nil))
}

func TestCleanup(t *testing.T) {
	l := NewIPLimiter(1, 1, time.Minute)
	l.Allow(tcpAddr("10.0.0.1", 1))

	l.Cleanup(time.Now())
	assert.Equal(t, 1, l.Len())

	l.Cleanup(time.Now().Add(2 * time.Minute))
	assert.Zero(t, l.Len())
}

func TestRunStops(t *testing.T) {
	l := NewIPLimiter(1, 1, time.Millisecond)
	l.Allow(tcpAddr("10.0.0.1", 1))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		l.Run(stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return l.Len() == 0 }, time.Second, time.Millisecond)
	close(stop)
	<-done
}
