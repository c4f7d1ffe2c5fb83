package pool

import (
	"database/sql"
	"time"
)

// pooledConn wraps a dedicated driver connection with pooling metadata.
// The *sql.Conn is exclusive: while lent to a Session nothing else touches it.
type pooledConn struct {
	conn      *sql.Conn
	createdAt time.Time
	lastUsed  time.Time
}

func newPooledConn(conn *sql.Conn) *pooledConn {
	now := time.Now()
	return &pooledConn{
		conn:      conn,
		createdAt: now,
		lastUsed:  now,
	}
}

// markUsed refreshes the idle clock when the connection changes hands.
func (pc *pooledConn) markUsed() {
	pc.lastUsed = time.Now()
}

// isIdleExpired reports whether the connection has sat unused longer than the
// idle timeout. A non-positive timeout disables expiry.
func (pc *pooledConn) isIdleExpired(idleTimeout time.Duration) bool {
	if idleTimeout <= 0 {
		return false
	}
	return time.Since(pc.lastUsed) > idleTimeout
}

func (pc *pooledConn) close() error {
	return pc.conn.Close()
}
