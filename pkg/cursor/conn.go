package cursor

import (
	"fmt"
	"log"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/rowbatch/pkg/backend"
)

// Environment owns the backend environment handle. One environment may own many connections.
type Environment struct {
	drv backend.Driver
	h   backend.Handle
}

// NewEnvironment allocates a backend environment.
func NewEnvironment(drv backend.Driver) (*Environment, error) {
	h, ret := drv.AllocEnv()
	if err := check(drv, "AllocEnv", ret, backend.HandleEnv, h); err != nil {
		return nil, fmt.Errorf("can't allocate environment: %w", err)
	}
	return &Environment{drv: drv, h: h}, nil
}

// Close frees the environment. All its connections must be disconnected before.
func (e *Environment) Close() error {
	if e.h == 0 {
		return nil
	}
	err := check(e.drv, "FreeEnv", e.drv.FreeEnv(e.h), backend.HandleEnv, e.h)
	e.h = 0
	return err
}

// Connect opens a connection with a backend-specific connection string.
func (e *Environment) Connect(connStr string) (*Connection, error) {
	if e.h == 0 {
		return nil, fmt.Errorf("can't connect: environment closed")
	}
	h, ret := e.drv.Connect(e.h, connStr)
	if err := check(e.drv, "Connect", ret, backend.HandleEnv, e.h); err != nil {
		return nil, fmt.Errorf("can't connect: %w", err)
	}
	log.Printf("[DEBUG] connected, handle %d", h)
	return &Connection{drv: e.drv, h: h}, nil
}

// Connection is an open session with the backend.
type Connection struct {
	drv backend.Driver
	h   backend.Handle
	env *Environment // set only when the connection owns its environment
}

// Connect opens a connection in a private environment, released on Disconnect.
func Connect(drv backend.Driver, connStr string) (*Connection, error) {
	env, err := NewEnvironment(drv)
	if err != nil {
		return nil, err
	}
	conn, err := env.Connect(connStr)
	if err != nil {
		_ = env.Close()
		return nil, err
	}
	conn.env = env
	return conn, nil
}

// Disconnect closes the session. Cursors made from it must be destroyed first, the engine does not
// track them. Calling it again is a no-op.
func (c *Connection) Disconnect() error {
	if c.h == 0 {
		return nil
	}
	errs := new(multierror.Error)
	if err := check(c.drv, "Disconnect", c.drv.Disconnect(c.h), backend.HandleConn, c.h); err != nil {
		errs = multierror.Append(errs, err)
	}
	c.h = 0
	if c.env != nil {
		if err := c.env.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		c.env = nil
	}
	return errs.ErrorOrNil()
}

// Driver returns the backend driver of the connection.
func (c *Connection) Driver() backend.Driver { return c.drv }
